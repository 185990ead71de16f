package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RestaurantStatus string

const (
	RestaurantDraft  RestaurantStatus = "draft"
	RestaurantActive RestaurantStatus = "active"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleRestaurant Role = "restaurant"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DayHours describes a single weekday entry in a restaurant's schedule.
// Open and Close are "HH:MM" wall-clock strings.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	IsOpen bool   `json:"isOpen"`
}

type Restaurant struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"ownerId"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Categories  []string            `json:"categories"`
	Address     string              `json:"address"`
	Location    *Location           `json:"location,omitempty"`
	Phone       string              `json:"phone"`
	Hours       map[string]DayHours `json:"hours,omitempty"`
	Status      RestaurantStatus    `json:"status"`
	LogoURL     string              `json:"logoUrl,omitempty"`
	BannerURL   string              `json:"bannerUrl,omitempty"`
	PublishedAt *time.Time          `json:"publishedAt,omitempty"`
}

type MenuItem struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurantId"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	Category     string          `json:"category"`
	Available    bool            `json:"available"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

type Order struct {
	ID              string      `json:"id"`
	RestaurantID    string      `json:"restaurantId"`
	CustomerID      string      `json:"customerId"`
	CustomerName    string      `json:"customerName"`
	Items           []OrderItem `json:"items"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	StatusUpdatedAt time.Time   `json:"statusUpdatedAt"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	// PickupQR holds a PNG rendered when the order turns ready.
	PickupQR []byte `json:"pickupQr,omitempty"`
}

type User struct {
	ID                  string   `json:"id"`
	Email               string   `json:"email"`
	PasswordHash        string   `json:"passwordHash,omitempty"`
	Name                string   `json:"name,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Role                Role     `json:"role"`
	Disabled            bool     `json:"disabled,omitempty"`
	OnboardingCompleted bool     `json:"onboardingCompleted"`
	FavoriteRestaurants []string `json:"favoriteRestaurants,omitempty"`
	PushToken           string   `json:"pushToken,omitempty"`
}

// Public returns a copy safe to hand to API clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type AppSettings struct {
	UserID        string    `json:"userId"`
	Notifications bool      `json:"notifications"`
	Language      string    `json:"language,omitempty"`
	Theme         string    `json:"theme,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
