/**
 * @description
 * Payment matching against the payment processor's transaction history.
 *
 * Matching is email-only and case-insensitive within a bounded lookback
 * window. Higher-fidelity checkout-session records (subtotal, discount
 * breakdown, coupon) are preferred; charge-level records (final amount and a
 * free-text description) are a fallback when no session matches.
 *
 * FindPayment never returns an error: a processor failure or an empty result
 * both yield Found=false, because "no payment found" is the decision input
 * that drives the paylater flow, not an error path.
 */
package paymatch

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

// CheckoutSession is a high-fidelity processor record. Amounts are
// processor-native integer minor units.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	CustomerEmail   string
	CustomerName    string
	AmountSubtotal  int64
	AmountTotal     int64
	DiscountAmount  int64
	CouponCode      string
	PercentOff      decimal.Decimal
	AmountOff       int64
	CreatedAt       time.Time
}

// Charge is a low-fidelity processor record.
type Charge struct {
	ID           string
	PayerEmail   string
	PayerName    string
	Amount       int64
	Description  string
	CreatedAt    time.Time
}

// TransactionSource lists recent processor transactions. Implemented by
// pkg/stripeclient in production and by stubs in tests.
type TransactionSource interface {
	ListCheckoutSessions(ctx context.Context, since time.Time, limit int) ([]CheckoutSession, error)
	ListCharges(ctx context.Context, since time.Time, limit int) ([]Charge, error)
}

// refTokenPattern extracts the embedded reference token from free-text
// descriptions, e.g. "Premium shoot [ref:BK-4417-A]".
var refTokenPattern = regexp.MustCompile(`(?i)\[ref:([A-Za-z0-9-]+)\]`)

const listLimit = 100

// Matcher finds a customer's most recent processor transaction.
type Matcher struct {
	source   TransactionSource
	lookback time.Duration
	logger   *slog.Logger
}

// NewMatcher creates a matcher. lookback bounds the transaction history
// search window.
func NewMatcher(source TransactionSource, lookback time.Duration, logger *slog.Logger) *Matcher {
	return &Matcher{source: source, lookback: lookback, logger: logger}
}

// FindPayment searches the processor for the most recent transaction whose
// billing email matches case-insensitively. There is deliberately no
// amount-tolerance filtering.
func (m *Matcher) FindPayment(ctx context.Context, email string) domain.MatchedPayment {
	notFound := domain.MatchedPayment{Found: false, DiscountType: domain.DiscountNone}
	if m.source == nil {
		m.logger.Warn("payment matching skipped: processor is not configured")
		return notFound
	}

	wanted := strings.ToLower(strings.TrimSpace(email))
	if wanted == "" {
		return notFound
	}
	since := time.Now().Add(-m.lookback)

	sessions, err := m.source.ListCheckoutSessions(ctx, since, listLimit)
	if err != nil {
		m.logger.Warn("checkout session search failed", "email", wanted, "error", err)
	} else if match := newestSession(sessions, wanted); match != nil {
		return m.fromSession(*match)
	}

	charges, err := m.source.ListCharges(ctx, since, listLimit)
	if err != nil {
		m.logger.Warn("charge search failed", "email", wanted, "error", err)
		return notFound
	}
	if match := newestCharge(charges, wanted); match != nil {
		return m.fromCharge(*match)
	}

	return notFound
}

func newestSession(sessions []CheckoutSession, email string) *CheckoutSession {
	var best *CheckoutSession
	for i := range sessions {
		if !strings.EqualFold(strings.TrimSpace(sessions[i].CustomerEmail), email) {
			continue
		}
		if best == nil || sessions[i].CreatedAt.After(best.CreatedAt) {
			best = &sessions[i]
		}
	}
	return best
}

func newestCharge(charges []Charge, email string) *Charge {
	matched := make([]Charge, 0, 1)
	for _, charge := range charges {
		if strings.EqualFold(strings.TrimSpace(charge.PayerEmail), email) {
			matched = append(matched, charge)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return &matched[0]
}

func (m *Matcher) fromSession(s CheckoutSession) domain.MatchedPayment {
	payment := domain.MatchedPayment{
		Found:        true,
		AmountPaid:   centsToDecimal(s.AmountTotal),
		Subtotal:     centsToDecimal(s.AmountSubtotal),
		CouponCode:   s.CouponCode,
		PayerEmail:   s.CustomerEmail,
		PayerName:    s.CustomerName,
		DiscountType: domain.DiscountNone,
	}
	if s.PaymentIntentID != "" {
		payment.TransactionIDs = append(payment.TransactionIDs, s.PaymentIntentID)
	}
	payment.TransactionIDs = append(payment.TransactionIDs, s.ID)

	discount := centsToDecimal(s.DiscountAmount)
	if discount.IsZero() && s.AmountSubtotal > 0 {
		// The processor did not expose discount structure; derive it from the
		// subtotal/paid difference.
		discount = payment.Subtotal.Sub(payment.AmountPaid)
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}
	if discount.IsPositive() {
		payment.DiscountAmount = discount
		if s.PercentOff.IsPositive() {
			payment.DiscountType = domain.DiscountPercent
			payment.PercentOff = s.PercentOff
		} else {
			payment.DiscountType = domain.DiscountFixed
		}
	}
	return payment
}

func (m *Matcher) fromCharge(c Charge) domain.MatchedPayment {
	payment := domain.MatchedPayment{
		Found:          true,
		AmountPaid:     centsToDecimal(c.Amount),
		Description:    c.Description,
		TransactionIDs: []string{c.ID},
		PayerEmail:     c.PayerEmail,
		PayerName:      c.PayerName,
		DiscountType:   domain.DiscountNone,
	}
	payment.RefToken = ExtractRefToken(c.Description)
	return payment
}

// ExtractRefToken pulls the bracket-enclosed reference token out of a
// free-text description. An absent token returns "".
func ExtractRefToken(description string) string {
	groups := refTokenPattern.FindStringSubmatch(description)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}

// centsToDecimal converts processor minor units exactly; this is the only
// place processor amounts become currency decimals.
func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
