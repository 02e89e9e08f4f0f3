/**
 * @description
 * This file defines the canonical order model produced by the order normalizer.
 * An Order is the source-agnostic representation of an e-commerce purchase,
 * ready for billing flow selection.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer holds the identity fields used to look up or create a ledger customer.
// Email is the unique matching key; customers are never deleted by this system.
type Customer struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// LineItem is a single order line. UnitPrice and Total are exact decimals;
// binary floats are never used for money anywhere in this system.
type LineItem struct {
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Total      decimal.Decimal `json:"total"`
	ItemRef    string          `json:"item_ref,omitempty"`
	IsDiscount bool            `json:"is_discount,omitempty"`
}

// CouponLine is a raw coupon entry retained for audit. Only the first coupon
// drives pricing decisions; the rest are kept verbatim.
type CouponLine struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// Discount models the primary discount on an order or payment. Amount and
// Percent are mutually exclusive drivers: when IsPercent is true, Percent
// (0-100) is authoritative and Amount is the computed value.
type Discount struct {
	Code      string          `json:"code"`
	Amount    decimal.Decimal `json:"amount"`
	Percent   decimal.Decimal `json:"percent"`
	IsPercent bool            `json:"is_percent"`
}

// PaylaterSignal records which heuristic classified an order as deferred.
type PaylaterSignal string

const (
	PaylaterSignalNone       PaylaterSignal = ""
	PaylaterSignalCouponCode PaylaterSignal = "coupon_code"
	PaylaterSignalFullCover  PaylaterSignal = "discount_covers_subtotal"
)

// Order is the canonical e-commerce order.
type Order struct {
	ID             string          `json:"id"`
	Customer       Customer        `json:"customer"`
	OrderedAt      time.Time       `json:"ordered_at"`
	Lines          []LineItem      `json:"lines"`
	Coupons        []CouponLine    `json:"coupons,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	IsPaylater     bool            `json:"is_paylater"`
	PaylaterSignal PaylaterSignal  `json:"paylater_signal,omitempty"`
	Discount       *Discount       `json:"discount,omitempty"`
	RawRef         string          `json:"raw_ref,omitempty"`
	ProcessedAt    time.Time       `json:"processed_at"`
}
