/**
 * @description
 * Monthly usage billing: converts an account activity report into per-owner
 * billable quantities.
 *
 * Per-resource rules:
 *   - names matching an exclusion keyword are skipped (reported, not dropped)
 *   - hard-limited resources are skipped (fully accounted elsewhere)
 *   - a composite type identifier with a secondary segment marks the
 *     interview variant, which bills flat (allocation ignored)
 *   - full-variant resources created inside the period bill
 *     max(0, usage - allocation); created before the period, the allocation
 *     was consumed previously and the full usage bills
 *   - the owner is the first address in the CC field that is not an
 *     administrative address; an unresolvable owner is a per-resource error
 */
package usagebilling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

// typeDelimiter separates the segments of a composite resource type
// identifier; a populated secondary segment marks the interview variant.
const typeDelimiter = ":"

// ActivityTotal is one row of the account activity report.
type ActivityTotal struct {
	ResourceID string
	Name       string
	UsageTotal int
}

// ResourceDetails is the per-resource metadata needed to compute billables.
type ResourceDetails struct {
	CreatedAt  time.Time
	CCField    string
	TypeID     string
	Allocation int
	HardLimit  bool
}

// ActivitySource is the usage-source collaborator contract.
type ActivitySource interface {
	GetAccountActivity(ctx context.Context, accountID string, start, end time.Time) ([]ActivityTotal, error)
	GetResourceDetails(ctx context.Context, resourceID string) (*ResourceDetails, error)
}

// SkippedResource records an excluded resource and why.
type SkippedResource struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ResourceError records a per-resource failure. Errors never abort the batch.
type ResourceError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Report is one billing run's full output.
type Report struct {
	PeriodStart time.Time                     `json:"period_start"`
	PeriodEnd   time.Time                     `json:"period_end"`
	Owners      map[string]*domain.OwnerUsage `json:"owners"`
	Skipped     []SkippedResource             `json:"skipped,omitempty"`
	Errors      []ResourceError               `json:"errors,omitempty"`
}

// Aggregator computes per-owner billable usage.
type Aggregator struct {
	source          ActivitySource
	excludeKeywords []string
	adminAddresses  map[string]bool
	logger          *slog.Logger
}

// NewAggregator creates an aggregator. excludeKeywords are matched
// case-insensitively against resource names; adminAddresses are discarded
// when resolving owners from the CC field.
func NewAggregator(source ActivitySource, excludeKeywords, adminAddresses []string, logger *slog.Logger) *Aggregator {
	admins := make(map[string]bool, len(adminAddresses))
	for _, addr := range adminAddresses {
		admins[strings.ToLower(strings.TrimSpace(addr))] = true
	}
	return &Aggregator{
		source:          source,
		excludeKeywords: excludeKeywords,
		adminAddresses:  admins,
		logger:          logger,
	}
}

// ComputeBillableByOwner runs the aggregation for one account and period.
// Resources are processed sequentially for deterministic report ordering;
// sums are commutative, and per-owner resource names are sorted before use.
func (a *Aggregator) ComputeBillableByOwner(ctx context.Context, accountID string, periodStart, periodEnd time.Time) (*Report, error) {
	activity, err := a.source.GetAccountActivity(ctx, accountID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account activity: %w", err)
	}

	report := &Report{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Owners:      make(map[string]*domain.OwnerUsage),
	}

	for _, row := range activity {
		if keyword, excluded := a.excludedByName(row.Name); excluded {
			report.Skipped = append(report.Skipped, SkippedResource{Name: row.Name, Reason: fmt.Sprintf("name matches exclusion keyword %q", keyword)})
			continue
		}

		details, err := a.source.GetResourceDetails(ctx, row.ResourceID)
		if err != nil {
			report.Errors = append(report.Errors, ResourceError{Name: row.Name, Error: fmt.Sprintf("detail fetch failed: %v", err)})
			continue
		}

		if details.HardLimit {
			report.Skipped = append(report.Skipped, SkippedResource{Name: row.Name, Reason: "hard usage limit; accounted elsewhere"})
			continue
		}

		owner, err := resolveOwner(details.CCField, a.adminAddresses)
		if err != nil {
			report.Errors = append(report.Errors, ResourceError{Name: row.Name, Error: err.Error()})
			continue
		}

		record := domain.UsageRecord{
			ResourceID: row.ResourceID,
			Name:       row.Name,
			UsageTotal: row.UsageTotal,
			CreatedAt:  details.CreatedAt,
			OwnerEmail: owner,
			Allocation: details.Allocation,
			Kind:       classifyKind(details.TypeID),
			HardLimit:  details.HardLimit,
		}

		billable := billableQuantity(record, periodStart, periodEnd)
		usage := report.Owners[owner]
		if usage == nil {
			usage = &domain.OwnerUsage{}
			report.Owners[owner] = usage
		}
		switch record.Kind {
		case domain.ResourceInterview:
			usage.InterviewTotal += billable
		default:
			usage.FullTotal += billable
		}
		usage.ResourceNames = append(usage.ResourceNames, record.Name)
	}

	for _, usage := range report.Owners {
		sort.Strings(usage.ResourceNames)
	}

	a.logger.Info("usage aggregation complete",
		"owners", len(report.Owners),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors))
	return report, nil
}

// billableQuantity applies the allocation/proration rule tied to the
// resource's creation date.
func billableQuantity(record domain.UsageRecord, periodStart, periodEnd time.Time) int {
	if record.Kind == domain.ResourceInterview {
		return record.UsageTotal
	}
	createdInPeriod := !record.CreatedAt.Before(periodStart) && record.CreatedAt.Before(periodEnd)
	if createdInPeriod {
		billable := record.UsageTotal - record.Allocation
		if billable < 0 {
			return 0
		}
		return billable
	}
	return record.UsageTotal
}

// classifyKind inspects the composite type identifier: a populated secondary
// segment marks the interview variant.
func classifyKind(typeID string) domain.ResourceKind {
	parts := strings.SplitN(typeID, typeDelimiter, 2)
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		return domain.ResourceInterview
	}
	return domain.ResourceFull
}

// resolveOwner extracts the owner email from a free-text CC/notification
// field, splitting on commas and newlines and discarding administrative
// addresses. The first remaining address wins.
func resolveOwner(ccField string, admins map[string]bool) (string, error) {
	fields := strings.FieldsFunc(ccField, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ';'
	})
	for _, field := range fields {
		addr := strings.ToLower(strings.TrimSpace(field))
		if addr == "" || admins[addr] {
			continue
		}
		if !strings.Contains(addr, "@") {
			continue
		}
		return addr, nil
	}
	return "", fmt.Errorf("no resolvable owner in CC field %q", ccField)
}

func (a *Aggregator) excludedByName(name string) (string, bool) {
	lowered := strings.ToLower(name)
	for _, keyword := range a.excludeKeywords {
		if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
			return keyword, true
		}
	}
	return "", false
}
