// Package validation holds the pure field validators. Everything here runs
// before any remote call so bad input never costs a round trip.
package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"plateful/internal/domain"
)

// Errors maps field names to human-readable problems.
type Errors map[string]string

func (e Errors) Any() bool { return len(e) > 0 }

const maxDescriptionLen = 500

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,18}[0-9]$`)

var weekdays = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

// ValidateRestaurant checks the mutable restaurant profile fields.
func ValidateRestaurant(r *domain.Restaurant) Errors {
	errs := Errors{}
	if len(r.Name) < 2 {
		errs["name"] = "Name must be at least 2 characters"
	}
	if len(r.Description) > maxDescriptionLen {
		errs["description"] = fmt.Sprintf("Description must be at most %d characters", maxDescriptionLen)
	}
	if len(r.Categories) == 0 {
		errs["categories"] = "Pick at least one category"
	}
	if r.Phone != "" && !phonePattern.MatchString(r.Phone) {
		errs["phone"] = "Phone number format is invalid"
	}
	if r.Hours != nil {
		for field, msg := range ValidateHours(r.Hours) {
			errs[field] = msg
		}
	}
	return errs
}

// ValidateHours checks a weekday schedule. Open/Close are "HH:MM".
func ValidateHours(hours map[string]domain.DayHours) Errors {
	errs := Errors{}
	for day, h := range hours {
		if !weekdays[day] {
			errs["hours."+day] = "Unknown weekday"
			continue
		}
		if !h.IsOpen {
			continue
		}
		open, err := time.Parse("15:04", h.Open)
		if err != nil {
			errs["hours."+day] = "Open time must be HH:MM"
			continue
		}
		close, err := time.Parse("15:04", h.Close)
		if err != nil {
			errs["hours."+day] = "Close time must be HH:MM"
			continue
		}
		if !close.After(open) {
			errs["hours."+day] = "Close time must be after open time"
		}
	}
	return errs
}

// ValidateMenuItem checks menu item fields.
func ValidateMenuItem(it *domain.MenuItem) Errors {
	errs := Errors{}
	if len(it.Name) < 2 {
		errs["name"] = "Name must be at least 2 characters"
	}
	if it.Price.LessThan(decimal.Zero) {
		errs["price"] = "Price must be a non-negative number"
	}
	return errs
}

// ValidateStatusTransition returns an empty string when the move is legal,
// otherwise a message describing why not.
func ValidateStatusTransition(from, to domain.OrderStatus) string {
	if !to.Valid() {
		return fmt.Sprintf("unknown order status %q", to)
	}
	if from.Terminal() {
		return fmt.Sprintf("order is already %s", from)
	}
	if !domain.CanTransition(from, to) {
		return fmt.Sprintf("cannot move order from %s to %s", from, to)
	}
	return ""
}
