/**
 * @description
 * The product catalog maps store/booking product identifiers to ledger item
 * references and standard prices. The table is injected at construction time
 * (loaded from a YAML file by the config package), never read from process
 * globals.
 *
 * Matching precedence: exact SKU first, then case-insensitive keyword
 * substring match in table-declaration order. The first matching entry wins;
 * there is no best-match scoring.
 */
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Entry is one catalog row.
type Entry struct {
	Name          string
	SKU           string
	Keywords      []string
	ItemRef       string
	StandardPrice decimal.Decimal
}

// Mapping is the result of resolving a product against the catalog. When
// Matched is false the Label falls back to the raw product name and
// StandardPrice is zero; callers must surface this to an operator rather
// than silently invoicing at $0.
type Mapping struct {
	ItemRef       string
	StandardPrice decimal.Decimal
	Label         string
	Matched       bool
}

// Config is the full injected billing catalog: the product table plus the
// well-known item references the flow engine and usage billing need.
type Config struct {
	Entries []Entry

	// DiscountItemRef is the ledger item used for negative discount lines.
	// Document construction fails loudly when a discount is present and this
	// is unconfigured; the discount adjustment is never silently dropped.
	DiscountItemRef string

	// Extras billing for bookings.
	ExtrasItemRef string
	ExtrasPrice   decimal.Decimal

	// Usage billing line items.
	FullLinkItemRef  string
	FullLinkPrice    decimal.Decimal
	InterviewItemRef string
	InterviewPrice   decimal.Decimal
}

// Catalog resolves product names and SKUs to ledger items.
type Catalog struct {
	cfg Config
}

// New creates a catalog from an injected config table.
func New(cfg Config) *Catalog {
	return &Catalog{cfg: cfg}
}

// Config returns the injected configuration.
func (c *Catalog) Config() Config {
	return c.cfg
}

// Map resolves a product to a ledger item. SKU equality is checked across the
// whole table before any keyword matching so an exact SKU always beats a
// keyword hit on an earlier row.
func (c *Catalog) Map(productName, sku string) Mapping {
	if sku != "" {
		for _, entry := range c.cfg.Entries {
			if entry.SKU != "" && strings.EqualFold(entry.SKU, sku) {
				return Mapping{ItemRef: entry.ItemRef, StandardPrice: entry.StandardPrice, Label: entry.Name, Matched: true}
			}
		}
	}

	lowered := strings.ToLower(productName)
	for _, entry := range c.cfg.Entries {
		for _, keyword := range entry.Keywords {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return Mapping{ItemRef: entry.ItemRef, StandardPrice: entry.StandardPrice, Label: entry.Name, Matched: true}
			}
		}
	}

	return Mapping{Label: productName}
}

// Validate reports catalog rows an operator should fix before they cause
// degraded billing output.
func (c *Catalog) Validate() []string {
	var problems []string
	for i, entry := range c.cfg.Entries {
		if entry.ItemRef == "" {
			problems = append(problems, fmt.Sprintf("catalog entry %d (%s) has no ledger item reference", i, entry.Name))
		}
		if entry.StandardPrice.LessThanOrEqual(decimal.Zero) {
			problems = append(problems, fmt.Sprintf("catalog entry %d (%s) has a non-positive standard price", i, entry.Name))
		}
		if entry.SKU == "" && len(entry.Keywords) == 0 {
			problems = append(problems, fmt.Sprintf("catalog entry %d (%s) is unreachable: no SKU and no keywords", i, entry.Name))
		}
	}
	if c.cfg.DiscountItemRef == "" {
		problems = append(problems, "discount_item_ref is not configured; discounted payments will fail")
	}
	return problems
}
