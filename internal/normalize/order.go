/**
 * @description
 * Order normalization: converts a raw e-commerce order event into the
 * canonical domain.Order, including the deferred-payment classification.
 *
 * The paylater heuristic has two independent signals, checked in order with
 * first match winning:
 *   1. a recognized deferred-payment coupon code is present
 *   2. the coupon total covers at least 99% of the order subtotal
 * Neither signal is confirmed by the order source; classification is
 * best-effort and the winning signal is recorded on the Order for audit.
 */
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

// OrderEvent is the source-agnostic inbound order payload. Amount fields
// arrive as strings because the e-commerce source serializes money as
// quoted decimals.
type OrderEvent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
	DateTime string `json:"date_created"`
	Subtotal string `json:"subtotal"`
	Total    string `json:"total"`
	Billing  struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Address1  string `json:"address_1"`
		City      string `json:"city"`
		Postcode  string `json:"postcode"`
	} `json:"billing"`
	LineItems []struct {
		Name     string `json:"name"`
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
		Total    string `json:"total"`
	} `json:"line_items"`
	CouponLines []struct {
		Code     string `json:"code"`
		Discount string `json:"discount"`
	} `json:"coupon_lines"`
}

// paylaterCoverage is the fraction of the subtotal a discount must cover to
// classify the order as deferred payment.
var paylaterCoverage = decimal.RequireFromString("0.99")

// OrderNormalizer converts order events into canonical orders.
type OrderNormalizer struct {
	paylaterCoupons map[string]bool
}

// NewOrderNormalizer creates a normalizer. paylaterCoupons is the configured
// set of deferred-payment coupon codes, matched case-insensitively.
func NewOrderNormalizer(paylaterCoupons []string) *OrderNormalizer {
	set := make(map[string]bool, len(paylaterCoupons))
	for _, code := range paylaterCoupons {
		set[strings.ToLower(strings.TrimSpace(code))] = true
	}
	return &OrderNormalizer{paylaterCoupons: set}
}

// Normalize validates and converts an order event. The result is a pure
// function of (event, now): renormalizing the same event yields structurally
// identical values apart from the explicitly stamped processing time.
func (n *OrderNormalizer) Normalize(evt OrderEvent, now time.Time) (*domain.Order, error) {
	if evt.ID == "" {
		return nil, fmt.Errorf("order event has no id")
	}
	email := strings.TrimSpace(strings.ToLower(evt.Billing.Email))
	if email == "" {
		return nil, fmt.Errorf("order %s has no billing email", evt.ID)
	}

	subtotal, err := ParseAmount(evt.Subtotal)
	if err != nil {
		return nil, fmt.Errorf("order %s subtotal: %w", evt.ID, err)
	}
	total, err := ParseAmount(evt.Total)
	if err != nil {
		return nil, fmt.Errorf("order %s total: %w", evt.ID, err)
	}

	order := &domain.Order{
		ID: evt.ID,
		Customer: domain.Customer{
			Email:       email,
			DisplayName: strings.TrimSpace(evt.Billing.FirstName + " " + evt.Billing.LastName),
			FirstName:   evt.Billing.FirstName,
			LastName:    evt.Billing.LastName,
			Phone:       evt.Billing.Phone,
			Address:     joinAddress(evt.Billing.Address1, evt.Billing.City, evt.Billing.Postcode),
		},
		Subtotal:    subtotal,
		Total:       total,
		Currency:    evt.Currency,
		RawRef:      evt.ID,
		ProcessedAt: now,
	}

	if evt.DateTime != "" {
		orderedAt, err := parseEventTime(evt.DateTime)
		if err != nil {
			return nil, fmt.Errorf("order %s date: %w", evt.ID, err)
		}
		order.OrderedAt = orderedAt
	} else {
		order.OrderedAt = now
	}

	for _, item := range evt.LineItems {
		unit, err := ParseAmount(item.Price)
		if err != nil {
			return nil, fmt.Errorf("order %s line %q price: %w", evt.ID, item.Name, err)
		}
		lineTotal, err := ParseAmount(item.Total)
		if err != nil {
			return nil, fmt.Errorf("order %s line %q total: %w", evt.ID, item.Name, err)
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		order.Lines = append(order.Lines, domain.LineItem{
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  qty,
			UnitPrice: unit,
			Total:     lineTotal,
		})
	}

	couponTotal := decimal.Zero
	for _, coupon := range evt.CouponLines {
		amount, err := ParseAmount(coupon.Discount)
		if err != nil {
			return nil, fmt.Errorf("order %s coupon %q: %w", evt.ID, coupon.Code, err)
		}
		order.Coupons = append(order.Coupons, domain.CouponLine{Code: coupon.Code, Amount: amount})
		couponTotal = couponTotal.Add(amount)
	}

	// Only the first coupon drives pricing; the rest are audit trail.
	if len(order.Coupons) > 0 {
		order.Discount = &domain.Discount{
			Code:   order.Coupons[0].Code,
			Amount: order.Coupons[0].Amount,
		}
	}

	order.IsPaylater, order.PaylaterSignal = n.classifyPaylater(order.Coupons, couponTotal, subtotal)
	return order, nil
}

// classifyPaylater evaluates both deferral signals; first match wins.
func (n *OrderNormalizer) classifyPaylater(coupons []domain.CouponLine, couponTotal, subtotal decimal.Decimal) (bool, domain.PaylaterSignal) {
	for _, coupon := range coupons {
		if n.paylaterCoupons[strings.ToLower(strings.TrimSpace(coupon.Code))] {
			return true, domain.PaylaterSignalCouponCode
		}
	}
	if subtotal.IsPositive() && couponTotal.GreaterThanOrEqual(subtotal.Mul(paylaterCoverage)) {
		return true, domain.PaylaterSignalFullCover
	}
	return false, domain.PaylaterSignalNone
}

func joinAddress(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, strings.TrimSpace(part))
		}
	}
	return strings.Join(kept, ", ")
}

func parseEventTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
