/**
 * @description
 * Flow selection for bookings: a pure function of payment presence, extras,
 * and discount. The transition table is evaluated top to bottom and the first
 * match wins; extras and discount can co-occur, so ordering is load-bearing.
 *
 *   no payment                    -> PAYLATER
 *   payment + extras              -> PARTIAL_PAYMENT
 *   payment + no extras + disc    -> PAID_WITH_DISCOUNT
 *   payment + no extras + no disc -> SIMPLE_PAID
 */
package billing

import "github.com/shopspring/decimal"

// Flow classifies a booking into the billing flow that decides which
// accounting documents get created.
type Flow string

const (
	FlowPaylater         Flow = "PAYLATER"
	FlowSimplePaid       Flow = "SIMPLE_PAID"
	FlowPaidWithDiscount Flow = "PAID_WITH_DISCOUNT"
	FlowPartialPayment   Flow = "PARTIAL_PAYMENT"
)

// SelectFlow applies the transition table. discountAmount is only meaningful
// when hasPayment is true.
func SelectFlow(hasPayment bool, extrasCount int, discountAmount decimal.Decimal) Flow {
	switch {
	case !hasPayment:
		return FlowPaylater
	case extrasCount > 0:
		return FlowPartialPayment
	case discountAmount.IsPositive():
		return FlowPaidWithDiscount
	default:
		return FlowSimplePaid
	}
}
