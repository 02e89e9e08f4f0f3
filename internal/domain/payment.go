/**
 * @description
 * MatchedPayment is the decidable result of searching the payment processor's
 * transaction history for a customer. A not-found result is a normal decision
 * input (it drives the paylater flow), never an error.
 */
package domain

import "github.com/shopspring/decimal"

// DiscountType classifies a processor-reported discount.
type DiscountType string

const (
	DiscountNone    DiscountType = "none"
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

// MatchedPayment carries everything the billing flow engine needs from the
// payment processor. Amounts arrive from the processor as integer minor units
// and are converted exactly to decimals at this boundary.
type MatchedPayment struct {
	Found          bool            `json:"found"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   DiscountType    `json:"discount_type"`
	PercentOff     decimal.Decimal `json:"percent_off"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	Description    string          `json:"description,omitempty"`
	RefToken       string          `json:"ref_token,omitempty"`
	TransactionIDs []string        `json:"transaction_ids,omitempty"`
	PayerEmail     string          `json:"payer_email,omitempty"`
	PayerName      string          `json:"payer_name,omitempty"`
}

// HasDiscount reports whether the matched payment carries a positive discount.
func (p MatchedPayment) HasDiscount() bool {
	return p.Found && p.DiscountAmount.IsPositive()
}
