package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

func paidOrderEvent() OrderEvent {
	evt := OrderEvent{
		ID:       "10042",
		Status:   "completed",
		Currency: "USD",
		DateTime: "2026-03-14T09:30:00",
		Subtotal: "400.00",
		Total:    "360.00",
	}
	evt.Billing.Email = "Jamie@Example.com"
	evt.Billing.FirstName = "Jamie"
	evt.Billing.LastName = "Ortega"
	evt.LineItems = []struct {
		Name     string `json:"name"`
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
		Total    string `json:"total"`
	}{
		{Name: "Standard Session", SKU: "SESSION-STD", Quantity: 1, Price: "350.00", Total: "350.00"},
		{Name: "Print Credit", SKU: "", Quantity: 1, Price: "50.00", Total: "50.00"},
	}
	evt.CouponLines = []struct {
		Code     string `json:"code"`
		Discount string `json:"discount"`
	}{
		{Code: "SPRING10", Discount: "40.00"},
	}
	return evt
}

func TestNormalizeOrder_PaidWithDiscount(t *testing.T) {
	n := NewOrderNormalizer([]string{"PAYLATER"})
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	order, err := n.Normalize(paidOrderEvent(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.IsPaylater {
		t.Fatal("order with a 10% coupon must not classify as paylater")
	}
	if order.Customer.Email != "jamie@example.com" {
		t.Fatalf("email not lowercased: %q", order.Customer.Email)
	}
	if order.Discount == nil || !order.Discount.Amount.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected primary discount 40.00, got %+v", order.Discount)
	}
	if len(order.Lines) != 2 || order.Lines[0].SKU != "SESSION-STD" {
		t.Fatalf("lines not preserved: %+v", order.Lines)
	}
}

func TestNormalizeOrder_PaylaterByCouponCode(t *testing.T) {
	n := NewOrderNormalizer([]string{"paylater", "net30"})
	evt := paidOrderEvent()
	evt.CouponLines[0].Code = "NET30"
	evt.CouponLines[0].Discount = "10.00"

	order, err := n.Normalize(evt, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.IsPaylater {
		t.Fatal("recognized coupon code must classify as paylater")
	}
	if order.PaylaterSignal != domain.PaylaterSignalCouponCode {
		t.Fatalf("expected coupon_code signal, got %q", order.PaylaterSignal)
	}
}

func TestNormalizeOrder_PaylaterByFullCoverage(t *testing.T) {
	n := NewOrderNormalizer(nil)
	evt := paidOrderEvent()
	// 396.50 of 400.00 is over the 99% threshold.
	evt.CouponLines[0].Code = "STAFF-COMP"
	evt.CouponLines[0].Discount = "396.50"

	order, err := n.Normalize(evt, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.IsPaylater {
		t.Fatal("99%+ discount coverage must classify as paylater")
	}
	if order.PaylaterSignal != domain.PaylaterSignalFullCover {
		t.Fatalf("expected discount_covers_subtotal signal, got %q", order.PaylaterSignal)
	}
}

func TestNormalizeOrder_CouponSignalWinsOverCoverage(t *testing.T) {
	n := NewOrderNormalizer([]string{"PAYLATER"})
	evt := paidOrderEvent()
	evt.CouponLines[0].Code = "PAYLATER"
	evt.CouponLines[0].Discount = "400.00"

	order, err := n.Normalize(evt, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PaylaterSignal != domain.PaylaterSignalCouponCode {
		t.Fatalf("signals must be evaluated in order, got %q", order.PaylaterSignal)
	}
}

func TestNormalizeOrder_MissingEmailIsValidationError(t *testing.T) {
	n := NewOrderNormalizer(nil)
	evt := paidOrderEvent()
	evt.Billing.Email = "  "

	if _, err := n.Normalize(evt, time.Now()); err == nil {
		t.Fatal("expected a validation error for missing billing email")
	}
}

func TestNormalizeOrder_Idempotent(t *testing.T) {
	n := NewOrderNormalizer([]string{"PAYLATER"})
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	first, err := n.Normalize(paidOrderEvent(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := n.Normalize(paidOrderEvent(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID || !first.Subtotal.Equal(second.Subtotal) ||
		first.IsPaylater != second.IsPaylater || len(first.Lines) != len(second.Lines) ||
		!first.ProcessedAt.Equal(second.ProcessedAt) {
		t.Fatal("renormalizing the same event must yield identical canonical values")
	}
}
