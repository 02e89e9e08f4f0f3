/**
 * @description
 * The billing engine turns a canonical booking or order (plus an optional
 * matched payment) into a fully-specified document plan. It is pure: no
 * network calls, no clocks beyond the booking/order date it is handed.
 *
 * The dispatcher executes a plan strictly in order: invoice before its linked
 * payment (the payment references the ledger-assigned invoice id), and any
 * invoice send attempt last, as a non-fatal step.
 */
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/catalog"
	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

// ErrDiscountItemUnconfigured is returned when a discount line is required
// but the catalog has no ledger item to carry it. The adjustment is never
// silently dropped.
var ErrDiscountItemUnconfigured = errors.New("discount item reference is not configured")

var oneHundred = decimal.NewFromInt(100)

// Plan is the engine's decision: at most one invoice, at most one receipt,
// and optionally a payment linked to the invoice. UnmappedItems surfaces
// catalog misses for operator review.
type Plan struct {
	Flow          Flow
	Invoice       *domain.DocumentRequest
	Receipt       *domain.DocumentRequest
	PaymentAmount decimal.Decimal
	BalanceDue    decimal.Decimal
	SendInvoice   bool
	UnmappedItems []string
}

// Engine builds document plans from canonical inputs.
type Engine struct {
	catalog      *catalog.Catalog
	netTermsDays int
}

// NewEngine creates an engine. netTermsDays is the invoice due-date offset
// (NET 30 in production).
func NewEngine(cat *catalog.Catalog, netTermsDays int) *Engine {
	return &Engine{catalog: cat, netTermsDays: netTermsDays}
}

// PlanBooking selects the booking's flow and constructs its documents.
func (e *Engine) PlanBooking(booking domain.Booking, payment domain.MatchedPayment) (*Plan, error) {
	flow := SelectFlow(payment.Found, booking.ExtrasCount, payment.DiscountAmount)
	switch flow {
	case FlowPaylater:
		return e.planPaylaterBooking(booking)
	case FlowSimplePaid:
		return e.planSimplePaid(booking, payment)
	case FlowPaidWithDiscount:
		return e.planPaidWithDiscount(booking, payment)
	case FlowPartialPayment:
		return e.planPartialPayment(booking, payment)
	default:
		return nil, fmt.Errorf("unknown billing flow %q", flow)
	}
}

// planPaylaterBooking: one invoice at standard prices, NET terms, always sent.
func (e *Engine) planPaylaterBooking(booking domain.Booking) (*Plan, error) {
	plan := &Plan{Flow: FlowPaylater, SendInvoice: true}

	base, unmapped := e.baseMapping(booking)
	plan.UnmappedItems = unmapped

	basePrice := base.StandardPrice
	if !base.Matched && booking.Price.IsPositive() {
		// Unmapped appointment types fall back to the booking's own nominal
		// price rather than invoicing $0.
		basePrice = booking.Price
	}

	lines := []domain.DocumentLine{baseLine(base, basePrice)}
	if booking.ExtrasCount > 0 {
		lines = append(lines, e.extrasLine(booking.ExtrasCount))
	}

	due := booking.ProcessedAt.AddDate(0, 0, e.netTermsDays)
	plan.Invoice = &domain.DocumentRequest{
		Kind:     domain.DocInvoice,
		Customer: booking.Customer,
		Lines:    lines,
		DueDate:  &due,
		Memo:     fmt.Sprintf("Booking %s", booking.Ref),
	}
	plan.BalanceDue = plan.Invoice.Total()
	return plan, nil
}

// planSimplePaid: one receipt for the exact processor-reported amount.
func (e *Engine) planSimplePaid(booking domain.Booking, payment domain.MatchedPayment) (*Plan, error) {
	plan := &Plan{Flow: FlowSimplePaid}

	base, unmapped := e.baseMapping(booking)
	plan.UnmappedItems = unmapped

	plan.Receipt = &domain.DocumentRequest{
		Kind:     domain.DocSalesReceipt,
		Customer: booking.Customer,
		Lines:    []domain.DocumentLine{baseLine(base, payment.AmountPaid)},
		Memo:     fmt.Sprintf("Booking %s", booking.Ref),
	}
	return plan, nil
}

// planPaidWithDiscount: one receipt whose base line carries the pre-discount
// subtotal and whose second line carries the negative discount, so the
// receipt total equals the amount actually paid.
func (e *Engine) planPaidWithDiscount(booking domain.Booking, payment domain.MatchedPayment) (*Plan, error) {
	plan := &Plan{Flow: FlowPaidWithDiscount}

	base, unmapped := e.baseMapping(booking)
	plan.UnmappedItems = unmapped

	subtotal := payment.Subtotal
	if !subtotal.IsPositive() {
		subtotal = payment.AmountPaid.Add(payment.DiscountAmount)
	}

	discountLine, err := e.discountLine("Discount", payment.DiscountAmount)
	if err != nil {
		return nil, err
	}

	plan.Receipt = &domain.DocumentRequest{
		Kind:     domain.DocSalesReceipt,
		Customer: booking.Customer,
		Lines:    []domain.DocumentLine{baseLine(base, subtotal), discountLine},
		Memo:     fmt.Sprintf("Booking %s", booking.Ref),
	}
	return plan, nil
}

// planPartialPayment: one invoice covering every line (base at pre-discount
// price, extras at standard price, discount lines), then one payment linked
// to that invoice for the amount already collected.
//
// An earlier revision split this into a receipt for the paid base plus a
// separate invoice for unpaid extras. The combined invoice+payment shape is
// authoritative; changing it back is isolated to this function.
func (e *Engine) planPartialPayment(booking domain.Booking, payment domain.MatchedPayment) (*Plan, error) {
	plan := &Plan{Flow: FlowPartialPayment}

	base, unmapped := e.baseMapping(booking)
	plan.UnmappedItems = unmapped

	subtotal := payment.Subtotal
	if !subtotal.IsPositive() {
		subtotal = payment.AmountPaid.Add(payment.DiscountAmount)
	}

	lines := []domain.DocumentLine{baseLine(base, subtotal)}
	extras := e.extrasLine(booking.ExtrasCount)
	lines = append(lines, extras)

	if payment.DiscountAmount.IsPositive() {
		baseDiscount, err := e.discountLine("Discount", payment.DiscountAmount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, baseDiscount)

		// Percentage discounts apply scope-wide; fixed discounts are
		// base-only by policy.
		if payment.DiscountType == domain.DiscountPercent && payment.PercentOff.IsPositive() {
			extrasDiscount := extras.Amount.Mul(payment.PercentOff).Div(oneHundred).Round(2)
			if extrasDiscount.IsPositive() {
				line, err := e.discountLine("Discount (extras)", extrasDiscount)
				if err != nil {
					return nil, err
				}
				lines = append(lines, line)
			}
		}
	}

	due := booking.ProcessedAt.AddDate(0, 0, e.netTermsDays)
	plan.Invoice = &domain.DocumentRequest{
		Kind:     domain.DocInvoice,
		Customer: booking.Customer,
		Lines:    lines,
		DueDate:  &due,
		Memo:     fmt.Sprintf("Booking %s", booking.Ref),
	}
	plan.PaymentAmount = payment.AmountPaid
	plan.BalanceDue = plan.Invoice.Total().Sub(payment.AmountPaid)
	plan.SendInvoice = plan.BalanceDue.IsPositive()
	return plan, nil
}

// PlanOrder reduces to a binary choice for e-commerce orders: paylater
// orders get a NET-terms invoice at catalog standard prices (the store-side
// coupon is a billing-deferral mechanism, not a price reduction); paid
// orders get a sales receipt mirroring the order's own pricing.
func (e *Engine) PlanOrder(order domain.Order) (*Plan, error) {
	if order.IsPaylater {
		return e.planPaylaterOrder(order)
	}
	return e.planPaidOrder(order)
}

func (e *Engine) planPaylaterOrder(order domain.Order) (*Plan, error) {
	plan := &Plan{Flow: FlowPaylater, SendInvoice: true}

	var lines []domain.DocumentLine
	for _, item := range order.Lines {
		mapping := e.catalog.Map(item.Name, item.SKU)
		if !mapping.Matched {
			plan.UnmappedItems = append(plan.UnmappedItems, item.Name)
		}
		// Standard catalog price regardless of the order's own (possibly
		// zeroed) price.
		lines = append(lines, domain.DocumentLine{
			Name:      mapping.Label,
			ItemRef:   mapping.ItemRef,
			Quantity:  item.Quantity,
			UnitPrice: mapping.StandardPrice,
			Amount:    mapping.StandardPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	due := order.OrderedAt.AddDate(0, 0, e.netTermsDays)
	plan.Invoice = &domain.DocumentRequest{
		Kind:     domain.DocInvoice,
		Customer: order.Customer,
		Lines:    lines,
		DueDate:  &due,
		Memo:     fmt.Sprintf("Order %s", order.ID),
	}
	plan.BalanceDue = plan.Invoice.Total()
	return plan, nil
}

func (e *Engine) planPaidOrder(order domain.Order) (*Plan, error) {
	plan := &Plan{Flow: FlowSimplePaid}

	var lines []domain.DocumentLine
	for _, item := range order.Lines {
		mapping := e.catalog.Map(item.Name, item.SKU)
		if !mapping.Matched {
			plan.UnmappedItems = append(plan.UnmappedItems, item.Name)
		}
		lines = append(lines, domain.DocumentLine{
			Name:      mapping.Label,
			ItemRef:   mapping.ItemRef,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.Total,
		})
	}

	if order.Discount != nil && order.Discount.Amount.IsPositive() {
		plan.Flow = FlowPaidWithDiscount
		discountLine, err := e.discountLine(discountLabel(order.Discount.Code), order.Discount.Amount)
		if err != nil {
			return nil, err
		}
		lines = append(lines, discountLine)
	}

	plan.Receipt = &domain.DocumentRequest{
		Kind:     domain.DocSalesReceipt,
		Customer: order.Customer,
		Lines:    lines,
		Memo:     fmt.Sprintf("Order %s", order.ID),
	}
	return plan, nil
}

func (e *Engine) baseMapping(booking domain.Booking) (catalog.Mapping, []string) {
	mapping := e.catalog.Map(booking.AppointmentType, "")
	if !mapping.Matched {
		return mapping, []string{booking.AppointmentType}
	}
	return mapping, nil
}

func (e *Engine) extrasLine(count int) domain.DocumentLine {
	cfg := e.catalog.Config()
	qty := decimal.NewFromInt(int64(count))
	return domain.DocumentLine{
		Name:      "Additional participants",
		ItemRef:   cfg.ExtrasItemRef,
		Quantity:  count,
		UnitPrice: cfg.ExtrasPrice,
		Amount:    cfg.ExtrasPrice.Mul(qty),
	}
}

// discountLine builds a negative adjustment line. amount is the positive
// discount value.
func (e *Engine) discountLine(name string, amount decimal.Decimal) (domain.DocumentLine, error) {
	cfg := e.catalog.Config()
	if cfg.DiscountItemRef == "" {
		return domain.DocumentLine{}, fmt.Errorf("cannot apply %s of %s: %w", name, amount, ErrDiscountItemUnconfigured)
	}
	return domain.DocumentLine{
		Name:      name,
		ItemRef:   cfg.DiscountItemRef,
		Quantity:  1,
		UnitPrice: amount.Neg(),
		Amount:    amount.Neg(),
	}, nil
}

func baseLine(mapping catalog.Mapping, price decimal.Decimal) domain.DocumentLine {
	return domain.DocumentLine{
		Name:      mapping.Label,
		ItemRef:   mapping.ItemRef,
		Quantity:  1,
		UnitPrice: price,
		Amount:    price,
	}
}

func discountLabel(code string) string {
	if code == "" {
		return "Discount"
	}
	return fmt.Sprintf("Discount (%s)", code)
}
