package domain

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCooking   OrderStatus = "cooking"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusDeclined  OrderStatus = "declined"
	StatusCancelled OrderStatus = "cancelled"
)

// transitions is the full order state machine. Statuses absent from the map
// (or mapped to an empty set) are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusCooking, StatusDeclined},
	StatusCooking: {StatusReady, StatusCancelled},
	StatusReady:   {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCooking, StatusReady, StatusCompleted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}
