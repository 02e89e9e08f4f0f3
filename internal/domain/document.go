/**
 * @description
 * DocumentRequest is the billing engine's sole output type: a ledger-agnostic
 * intent to create an invoice, sales receipt, or payment. It owns no network
 * or auth concerns; the dispatcher translates it into ledger API calls.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind discriminates the accounting document to create.
type DocumentKind string

const (
	DocInvoice      DocumentKind = "invoice"
	DocSalesReceipt DocumentKind = "sales_receipt"
	DocPayment      DocumentKind = "payment"
)

// DocumentLine is a single line on an accounting document. Discount lines
// carry a negative Amount so the document total nets out correctly.
type DocumentLine struct {
	Name      string          `json:"name"`
	ItemRef   string          `json:"item_ref"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// DocumentRequest is a fully-specified intent to create one ledger document.
// All external references are opaque strings; they are never parsed or
// coerced through numeric types.
type DocumentRequest struct {
	Kind              DocumentKind   `json:"kind"`
	Customer          Customer       `json:"customer"`
	Lines             []DocumentLine `json:"lines"`
	DueDate           *time.Time     `json:"due_date,omitempty"`
	Memo              string         `json:"memo,omitempty"`
	LinkedDocumentRef string         `json:"linked_document_ref,omitempty"`
}

// Total sums the line amounts. Discount lines are negative, so this is the
// document's net total.
func (d DocumentRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Lines {
		total = total.Add(line.Amount)
	}
	return total
}
