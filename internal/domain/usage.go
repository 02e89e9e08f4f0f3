/**
 * @description
 * Types for the monthly usage billing run: per-resource usage records read
 * fresh from the activity source every run, and the per-owner aggregation
 * that feeds invoice line construction.
 */
package domain

import "time"

// ResourceKind is the billing variant of a usage resource.
type ResourceKind string

const (
	// ResourceFull is metered against an initial allocation.
	ResourceFull ResourceKind = "full"
	// ResourceInterview is metered flat; allocation is ignored.
	ResourceInterview ResourceKind = "interview"
)

// UsageRecord is one resource's usage for a billing period, joined with the
// resource metadata needed to compute its billable quantity.
type UsageRecord struct {
	ResourceID string       `json:"resource_id"`
	Name       string       `json:"name"`
	UsageTotal int          `json:"usage_total"`
	CreatedAt  time.Time    `json:"created_at"`
	OwnerEmail string       `json:"owner_email"`
	Allocation int          `json:"allocation"`
	Kind       ResourceKind `json:"kind"`
	HardLimit  bool         `json:"hard_limit"`
}

// OwnerUsage is the summed billable usage for one owner across the period.
// ResourceNames feed the invoice memo and are sorted for reproducible output.
type OwnerUsage struct {
	FullTotal      int      `json:"full_total"`
	InterviewTotal int      `json:"interview_total"`
	ResourceNames  []string `json:"resource_names"`
}
