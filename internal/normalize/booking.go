/**
 * @description
 * Booking normalization: converts a raw scheduling webhook event into the
 * canonical domain.Booking, including parsing the locale-formatted price
 * string the scheduling source sends ("1,750.00", "1.750,00", "$1750").
 */
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

// BookingEvent is the source-agnostic inbound booking payload.
type BookingEvent struct {
	Ref             string `json:"booking_ref"`
	Status          string `json:"status"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone"`
	ExtrasCount     int    `json:"extras_count"`
	PriceText       string `json:"price"`
	AppointmentType string `json:"appointment_type"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

// NormalizeBooking validates and converts a booking event.
func NormalizeBooking(evt BookingEvent, now time.Time) (*domain.Booking, error) {
	if evt.Ref == "" {
		return nil, fmt.Errorf("booking event has no reference")
	}
	email := strings.TrimSpace(strings.ToLower(evt.Email))
	if email == "" {
		return nil, fmt.Errorf("booking %s has no customer email", evt.Ref)
	}
	if evt.ExtrasCount < 0 {
		return nil, fmt.Errorf("booking %s has negative extras count %d", evt.Ref, evt.ExtrasCount)
	}

	price, err := ParseAmount(evt.PriceText)
	if err != nil {
		return nil, fmt.Errorf("booking %s price: %w", evt.Ref, err)
	}

	booking := &domain.Booking{
		Ref: evt.Ref,
		Customer: domain.Customer{
			Email:       email,
			DisplayName: strings.TrimSpace(evt.FirstName + " " + evt.LastName),
			FirstName:   evt.FirstName,
			LastName:    evt.LastName,
			Phone:       evt.Phone,
		},
		ExtrasCount:     evt.ExtrasCount,
		Price:           price,
		AppointmentType: evt.AppointmentType,
		Status:          evt.Status,
		ProcessedAt:     now,
	}

	if evt.StartTime != "" {
		start, err := parseEventTime(evt.StartTime)
		if err != nil {
			return nil, fmt.Errorf("booking %s start time: %w", evt.Ref, err)
		}
		booking.StartAt = start
	}
	if evt.EndTime != "" {
		end, err := parseEventTime(evt.EndTime)
		if err != nil {
			return nil, fmt.Errorf("booking %s end time: %w", evt.Ref, err)
		}
		booking.EndAt = end
	}

	return booking, nil
}

// ParseAmount parses a locale-formatted currency string into an exact
// decimal. It tolerates currency symbols, spaces, and both "1,234.56" and
// "1.234,56" group/decimal conventions.
func ParseAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return decimal.Zero, nil
	}

	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned = b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, fmt.Errorf("no numeric content in %q", text)
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma > lastDot && (lastDot >= 0 || len(cleaned)-lastComma-1 != 3):
		// Comma is the decimal separator; dots are grouping. A lone comma
		// followed by exactly three digits ("1,750") is grouping, not cents.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		// Dot (or nothing) is the decimal separator; commas are grouping.
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse amount %q: %w", text, err)
	}
	return amount, nil
}
