package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
)

func testConfig() Config {
	return Config{
		Entries: []Entry{
			{Name: "Standard Session", SKU: "SESSION-STD", Keywords: []string{"session", "sitting"}, ItemRef: "21", StandardPrice: decimal.RequireFromString("350.00")},
			{Name: "Premium Package", SKU: "PKG-PREM", Keywords: []string{"premium"}, ItemRef: "22", StandardPrice: decimal.RequireFromString("1750.00")},
			{Name: "Print Credit", Keywords: []string{"print"}, ItemRef: "23", StandardPrice: decimal.RequireFromString("50.00")},
		},
		DiscountItemRef: "99",
	}
}

func TestMap_ExactSKUWins(t *testing.T) {
	c := New(testConfig())

	// The product name contains "session", which keyword-matches the first
	// entry, but the SKU belongs to the second. SKU must win.
	m := c.Map("Premium session bundle", "PKG-PREM")
	if !m.Matched {
		t.Fatal("expected a match")
	}
	if m.ItemRef != "22" {
		t.Fatalf("expected SKU match to item 22, got %s", m.ItemRef)
	}
}

func TestMap_KeywordMatchIsCaseInsensitiveAndOrdered(t *testing.T) {
	c := New(testConfig())

	m := c.Map("Family SITTING (outdoor)", "")
	if !m.Matched || m.ItemRef != "21" {
		t.Fatalf("expected keyword match to item 21, got %+v", m)
	}
}

func TestMap_FirstDeclaredEntryWins(t *testing.T) {
	c := New(testConfig())

	// Matches both "session" (entry 1) and "premium" (entry 2); declaration
	// order decides.
	m := c.Map("premium session", "")
	if m.ItemRef != "21" {
		t.Fatalf("expected first declared entry to win, got item %s", m.ItemRef)
	}
}

func TestMap_UnmappedFallsBackToRawName(t *testing.T) {
	c := New(testConfig())

	m := c.Map("Gift Voucher", "")
	if m.Matched {
		t.Fatal("expected no match")
	}
	if m.Label != "Gift Voucher" {
		t.Fatalf("expected raw name label, got %q", m.Label)
	}
	if !m.StandardPrice.IsZero() {
		t.Fatalf("expected zero standard price, got %s", m.StandardPrice)
	}
}

func TestValidate_FlagsUnreachableAndUnpricedEntries(t *testing.T) {
	cfg := Config{
		Entries: []Entry{
			{Name: "No ref", Keywords: []string{"x"}, StandardPrice: decimal.RequireFromString("10")},
			{Name: "No price", SKU: "A", ItemRef: "1"},
			{Name: "Unreachable", ItemRef: "2", StandardPrice: decimal.RequireFromString("10")},
		},
	}
	problems := New(cfg).Validate()
	if len(problems) != 4 { // missing ref, zero price, unreachable, no discount ref
		t.Fatalf("expected 4 problems, got %d: %v", len(problems), problems)
	}
}
