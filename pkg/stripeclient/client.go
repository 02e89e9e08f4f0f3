/**
 * @description
 * Stripe-backed implementation of the payment matcher's transaction source.
 * Checkout sessions carry the discount breakdown (subtotal, coupon,
 * percent-off); charges only expose the final amount and a free-text
 * description.
 */
package stripeclient

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/juliebasler-source/basler-webhooks/internal/paymatch"
)

// Client wraps the Stripe API for transaction history search.
type Client struct {
	api *client.API
}

// New creates a Stripe client from a secret key.
func New(secretKey string) *Client {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Client{api: sc}
}

// ListCheckoutSessions returns completed, paid checkout sessions created
// since the given time.
func (c *Client) ListCheckoutSessions(ctx context.Context, since time.Time, limit int) ([]paymatch.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.AddExpand("data.total_details.breakdown")

	var sessions []paymatch.CheckoutSession
	iter := c.api.CheckoutSessions.List(params)
	for iter.Next() {
		s := iter.CheckoutSession()
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			continue
		}
		sessions = append(sessions, convertSession(s))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListCharges returns succeeded charges created since the given time.
func (c *Client) ListCharges(ctx context.Context, since time.Time, limit int) ([]paymatch.Charge, error) {
	params := &stripe.ChargeListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var charges []paymatch.Charge
	iter := c.api.Charges.List(params)
	for iter.Next() {
		ch := iter.Charge()
		if !ch.Paid {
			continue
		}
		charges = append(charges, convertCharge(ch))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return charges, nil
}

func convertSession(s *stripe.CheckoutSession) paymatch.CheckoutSession {
	converted := paymatch.CheckoutSession{
		ID:             s.ID,
		AmountSubtotal: s.AmountSubtotal,
		AmountTotal:    s.AmountTotal,
		CreatedAt:      time.Unix(s.Created, 0),
	}
	if s.PaymentIntent != nil {
		converted.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil {
		converted.CustomerEmail = s.CustomerDetails.Email
		converted.CustomerName = s.CustomerDetails.Name
	}
	if s.TotalDetails != nil {
		converted.DiscountAmount = s.TotalDetails.AmountDiscount
		if coupon := firstCoupon(s.TotalDetails.Breakdown); coupon != nil {
			converted.CouponCode = coupon.Name
			if converted.CouponCode == "" {
				converted.CouponCode = coupon.ID
			}
			if coupon.PercentOff > 0 {
				converted.PercentOff = decimal.NewFromFloat(coupon.PercentOff)
			}
			converted.AmountOff = coupon.AmountOff
		}
	}
	return converted
}

// firstCoupon extracts the primary coupon from a session's discount
// breakdown. Stripe models a list but the billing engine keys off a single
// coupon; only the first drives pricing.
func firstCoupon(breakdown *stripe.CheckoutSessionTotalDetailsBreakdown) *stripe.Coupon {
	if breakdown == nil || len(breakdown.Discounts) == 0 {
		return nil
	}
	discount := breakdown.Discounts[0]
	if discount == nil || discount.Discount == nil {
		return nil
	}
	return discount.Discount.Coupon
}

func convertCharge(ch *stripe.Charge) paymatch.Charge {
	converted := paymatch.Charge{
		ID:          ch.ID,
		Amount:      ch.Amount,
		Description: ch.Description,
		CreatedAt:   time.Unix(ch.Created, 0),
	}
	if ch.BillingDetails != nil {
		converted.PayerEmail = ch.BillingDetails.Email
		converted.PayerName = ch.BillingDetails.Name
	}
	if converted.PayerEmail == "" {
		converted.PayerEmail = ch.ReceiptEmail
	}
	return converted
}
