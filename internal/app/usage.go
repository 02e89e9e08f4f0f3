/**
 * @description
 * The monthly usage billing run: aggregate the activity feed per owner,
 * then create one invoice per owner with one line per resource type that has
 * billable quantity. Per-owner failures are recorded and never abort the
 * batch; output ordering is deterministic (owners sorted by email).
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/catalog"
	"github.com/juliebasler-source/basler-webhooks/internal/domain"
	"github.com/juliebasler-source/basler-webhooks/internal/usagebilling"
	"github.com/juliebasler-source/basler-webhooks/pkg/rabbitmq"
)

// UsageAggregator computes per-owner billable usage for a period.
type UsageAggregator interface {
	ComputeBillableByOwner(ctx context.Context, accountID string, periodStart, periodEnd time.Time) (*usagebilling.Report, error)
}

// UsageBiller runs the monthly usage invoicing.
type UsageBiller struct {
	aggregator UsageAggregator
	ledger     Ledger
	catalogCfg catalog.Config
	accountID  string
	publisher  EventPublisher
	logger     *slog.Logger
}

// NewUsageBiller creates the monthly usage biller.
func NewUsageBiller(aggregator UsageAggregator, ledger Ledger, catalogCfg catalog.Config, accountID string, publisher EventPublisher, logger *slog.Logger) *UsageBiller {
	return &UsageBiller{
		aggregator: aggregator,
		ledger:     ledger,
		catalogCfg: catalogCfg,
		accountID:  accountID,
		publisher:  publisher,
		logger:     logger,
	}
}

// OwnerBillingError records one owner whose invoice could not be created.
type OwnerBillingError struct {
	Owner string `json:"owner"`
	Error string `json:"error"`
}

// UsageRunResult summarizes one monthly billing run.
type UsageRunResult struct {
	PeriodStart     time.Time                     `json:"period_start"`
	PeriodEnd       time.Time                     `json:"period_end"`
	InvoicesCreated int                           `json:"invoices_created"`
	OwnersBilled    []string                      `json:"owners_billed"`
	OwnersSkipped   []string                      `json:"owners_skipped,omitempty"`
	Skipped         []usagebilling.SkippedResource `json:"skipped_resources,omitempty"`
	ResourceErrors  []usagebilling.ResourceError  `json:"resource_errors,omitempty"`
	OwnerErrors     []OwnerBillingError           `json:"owner_errors,omitempty"`
}

// Run executes the usage billing for one period.
func (b *UsageBiller) Run(ctx context.Context, periodStart, periodEnd time.Time) (*UsageRunResult, error) {
	report, err := b.aggregator.ComputeBillableByOwner(ctx, b.accountID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("usage aggregation failed: %w", err)
	}

	result := &UsageRunResult{
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Skipped:        report.Skipped,
		ResourceErrors: report.Errors,
	}

	owners := make([]string, 0, len(report.Owners))
	for owner := range report.Owners {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		usage := report.Owners[owner]
		doc := b.buildInvoice(owner, usage, periodStart, periodEnd)
		if len(doc.Lines) == 0 {
			result.OwnersSkipped = append(result.OwnersSkipped, owner)
			continue
		}

		invoiceRef, err := b.createInvoice(ctx, owner, doc)
		if err != nil {
			b.logger.Error("usage invoice failed", "owner", owner, "error", err)
			result.OwnerErrors = append(result.OwnerErrors, OwnerBillingError{Owner: owner, Error: err.Error()})
			continue
		}

		result.InvoicesCreated++
		result.OwnersBilled = append(result.OwnersBilled, owner)
		b.publishEvent(ctx, owner, invoiceRef, doc.Total(), periodStart, periodEnd)
	}

	b.logger.Info("usage billing run complete",
		"period_start", periodStart.Format("2006-01-02"),
		"period_end", periodEnd.Format("2006-01-02"),
		"invoices_created", result.InvoicesCreated,
		"owner_errors", len(result.OwnerErrors))
	return result, nil
}

// buildInvoice constructs one owner's invoice: one line per resource type
// with nonzero billable quantity, memo listing contributing resources.
func (b *UsageBiller) buildInvoice(owner string, usage *domain.OwnerUsage, periodStart, periodEnd time.Time) domain.DocumentRequest {
	var lines []domain.DocumentLine
	if usage.FullTotal > 0 {
		lines = append(lines, usageLine("Tracked usage", b.catalogCfg.FullLinkItemRef, usage.FullTotal, b.catalogCfg.FullLinkPrice))
	}
	if usage.InterviewTotal > 0 {
		lines = append(lines, usageLine("Tracked usage (interview)", b.catalogCfg.InterviewItemRef, usage.InterviewTotal, b.catalogCfg.InterviewPrice))
	}

	memo := fmt.Sprintf("Usage %s to %s: %s",
		periodStart.Format("2006-01-02"),
		periodEnd.AddDate(0, 0, -1).Format("2006-01-02"),
		strings.Join(usage.ResourceNames, ", "))

	return domain.DocumentRequest{
		Kind:     domain.DocInvoice,
		Customer: domain.Customer{Email: owner, DisplayName: owner},
		Lines:    lines,
		Memo:     memo,
	}
}

func (b *UsageBiller) createInvoice(ctx context.Context, owner string, doc domain.DocumentRequest) (string, error) {
	customerRef, err := b.ledger.FindCustomerByEmail(ctx, owner)
	if err != nil {
		// Usage owners are existing customers; creating them here would mint
		// ledger records from a free-text CC field.
		return "", fmt.Errorf("owner has no ledger customer: %w", err)
	}

	invoiceRef, err := b.ledger.CreateInvoice(ctx, customerRef, doc)
	if err != nil {
		return "", fmt.Errorf("invoice creation failed: %w", err)
	}

	if err := b.ledger.SendInvoice(ctx, invoiceRef, owner); err != nil {
		b.logger.Warn("usage invoice send failed", "owner", owner, "invoice_ref", invoiceRef, "error", err)
	}
	return invoiceRef, nil
}

type usageInvoicedEvent struct {
	Owner       string          `json:"owner"`
	InvoiceRef  string          `json:"invoice_ref"`
	Amount      decimal.Decimal `json:"amount"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (b *UsageBiller) publishEvent(ctx context.Context, owner, invoiceRef string, amount decimal.Decimal, periodStart, periodEnd time.Time) {
	if b.publisher == nil {
		return
	}
	event := usageInvoicedEvent{
		Owner:       owner,
		InvoiceRef:  invoiceRef,
		Amount:      amount,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Timestamp:   time.Now().UTC(),
	}
	if err := b.publisher.Publish(ctx, rabbitmq.Exchange, "billing.usage.invoiced", event); err != nil {
		b.logger.Warn("failed to publish usage invoiced event", "owner", owner, "error", err)
	}
}

func usageLine(name, itemRef string, quantity int, unitPrice decimal.Decimal) domain.DocumentLine {
	qty := decimal.NewFromInt(int64(quantity))
	return domain.DocumentLine{
		Name:      name,
		ItemRef:   itemRef,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Amount:    unitPrice.Mul(qty),
	}
}
