package validation

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"plateful/internal/domain"
)

func validRestaurant() *domain.Restaurant {
	return &domain.Restaurant{
		Name:       "Golden Wok",
		Categories: []string{"chinese"},
		Phone:      "+31 20 123 4567",
	}
}

func TestValidateRestaurant(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.Restaurant)
		wantField string
	}{
		{"valid", func(*domain.Restaurant) {}, ""},
		{"single char name", func(r *domain.Restaurant) { r.Name = "A" }, "name"},
		{"empty name", func(r *domain.Restaurant) { r.Name = "" }, "name"},
		{"no categories", func(r *domain.Restaurant) { r.Categories = nil }, "categories"},
		{"long description", func(r *domain.Restaurant) { r.Description = strings.Repeat("x", 501) }, "description"},
		{"bad phone", func(r *domain.Restaurant) { r.Phone = "call me" }, "phone"},
		{"empty phone ok", func(r *domain.Restaurant) { r.Phone = "" }, ""},
		{"close before open", func(r *domain.Restaurant) {
			r.Hours = map[string]domain.DayHours{
				"Monday": {Open: "10:00", Close: "09:00", IsOpen: true},
			}
		}, "hours.Monday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRestaurant()
			tt.mutate(r)
			errs := ValidateRestaurant(r)
			if tt.wantField == "" {
				assert.False(t, errs.Any(), "unexpected errors: %v", errs)
			} else {
				assert.Contains(t, errs, tt.wantField)
			}
		})
	}
}

func TestValidateHours(t *testing.T) {
	tests := []struct {
		name    string
		hours   map[string]domain.DayHours
		wantErr bool
	}{
		{"open day", map[string]domain.DayHours{"Tuesday": {Open: "09:00", Close: "17:00", IsOpen: true}}, false},
		{"closed day skips times", map[string]domain.DayHours{"Tuesday": {IsOpen: false}}, false},
		{"unknown weekday", map[string]domain.DayHours{"Funday": {IsOpen: false}}, true},
		{"garbled open", map[string]domain.DayHours{"Tuesday": {Open: "9am", Close: "17:00", IsOpen: true}}, true},
		{"garbled close", map[string]domain.DayHours{"Tuesday": {Open: "09:00", Close: "5pm", IsOpen: true}}, true},
		{"equal times", map[string]domain.DayHours{"Tuesday": {Open: "09:00", Close: "09:00", IsOpen: true}}, true},
		{"close before open", map[string]domain.DayHours{"Sunday": {Open: "22:00", Close: "06:00", IsOpen: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, ValidateHours(tt.hours).Any())
		})
	}
}

func TestValidateMenuItem(t *testing.T) {
	ok := &domain.MenuItem{Name: "Pad Thai", Price: decimal.NewFromFloat(12.50)}
	assert.False(t, ValidateMenuItem(ok).Any())

	free := &domain.MenuItem{Name: "Tap water", Price: decimal.Zero}
	assert.False(t, ValidateMenuItem(free).Any())

	short := &domain.MenuItem{Name: "P", Price: decimal.NewFromInt(5)}
	assert.Contains(t, ValidateMenuItem(short), "name")

	negative := &domain.MenuItem{Name: "Oops", Price: decimal.NewFromInt(-1)}
	assert.Contains(t, ValidateMenuItem(negative), "price")
}

func TestValidateStatusTransition(t *testing.T) {
	legal := []struct{ from, to domain.OrderStatus }{
		{domain.StatusPending, domain.StatusCooking},
		{domain.StatusPending, domain.StatusDeclined},
		{domain.StatusCooking, domain.StatusReady},
		{domain.StatusCooking, domain.StatusCancelled},
		{domain.StatusReady, domain.StatusCompleted},
		{domain.StatusReady, domain.StatusCancelled},
	}
	for _, tt := range legal {
		assert.Empty(t, ValidateStatusTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	illegal := []struct{ from, to domain.OrderStatus }{
		{domain.StatusPending, domain.StatusReady},
		{domain.StatusPending, domain.StatusCompleted},
		{domain.StatusPending, domain.StatusCancelled},
		{domain.StatusCooking, domain.StatusCompleted},
		{domain.StatusCooking, domain.StatusDeclined},
		{domain.StatusReady, domain.StatusCooking},
		{domain.StatusCompleted, domain.StatusCooking},
		{domain.StatusDeclined, domain.StatusCooking},
		{domain.StatusCancelled, domain.StatusReady},
	}
	for _, tt := range illegal {
		assert.NotEmpty(t, ValidateStatusTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.NotEmpty(t, ValidateStatusTransition(domain.StatusPending, domain.OrderStatus("frozen")))
}
