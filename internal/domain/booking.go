/**
 * @description
 * Canonical booking model produced by the booking normalizer from scheduling
 * webhook events.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking is the canonical scheduling event. Price is the nominal appointment
// price parsed from the source's locale-formatted currency string.
type Booking struct {
	Ref             string          `json:"ref"`
	Customer        Customer        `json:"customer"`
	ExtrasCount     int             `json:"extras_count"`
	Price           decimal.Decimal `json:"price"`
	AppointmentType string          `json:"appointment_type"`
	StartAt         time.Time       `json:"start_at"`
	EndAt           time.Time       `json:"end_at"`
	Status          string          `json:"status"`
	ProcessedAt     time.Time       `json:"processed_at"`
}
