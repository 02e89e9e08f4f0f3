/**
 * @description
 * Client for the external accounting ledger. It exposes the narrow contract
 * the billing core needs: customer lookup/create, document creation, invoice
 * send, and item lookup.
 *
 * Every ledger reference is an opaque string end to end. The source system's
 * bug history shows numeric coercion of ids causing failures, so ids are
 * never parsed through a numeric type here.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

var (
	// ErrCustomerNotFound means the lookup succeeded but no customer matched.
	ErrCustomerNotFound = errors.New("ledger customer not found")
	// ErrDuplicateName means the ledger rejected a create because the display
	// name is already taken. Callers recover by disambiguating the name.
	ErrDuplicateName = errors.New("ledger customer display name already exists")
	// ErrItemNotFound means the requested catalog item does not exist.
	ErrItemNotFound = errors.New("ledger item not found")
)

// statusError is a non-2xx ledger response. Sentinel mapping happens at the
// call sites: what a 404 means depends on the endpoint, so do() never maps
// status codes itself.
type statusError struct {
	code     int
	method   string
	endpoint string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ledger returned status %d for %s %s", e.code, e.method, e.endpoint)
}

// mapStatus replaces a response with the given status code by the endpoint's
// sentinel error. Other errors pass through unchanged.
func mapStatus(err error, code int, sentinel error) error {
	var se *statusError
	if errors.As(err, &se) && se.code == code {
		return sentinel
	}
	return err
}

// Client is a client for the ledger service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new ledger client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Item is a ledger catalog item.
type Item struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	StandardPrice decimal.Decimal `json:"standard_price"`
}

type customerResponse struct {
	ID string `json:"id"`
}

type documentResponse struct {
	ID string `json:"id"`
}

// FindCustomerByEmail returns the customer ref for an email, or
// ErrCustomerNotFound.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	endpoint := fmt.Sprintf("/customers?email=%s", url.QueryEscape(email))
	var resp customerResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", mapStatus(err, http.StatusNotFound, ErrCustomerNotFound)
	}
	return resp.ID, nil
}

// FindCustomerByName returns the customer ref for a display name, or
// ErrCustomerNotFound.
func (c *Client) FindCustomerByName(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("/customers?display_name=%s", url.QueryEscape(name))
	var resp customerResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", mapStatus(err, http.StatusNotFound, ErrCustomerNotFound)
	}
	return resp.ID, nil
}

// CreateCustomer creates a ledger customer and returns its ref. A display
// name collision returns ErrDuplicateName.
func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (string, error) {
	payload := map[string]string{
		"email":        customer.Email,
		"display_name": customer.DisplayName,
		"first_name":   customer.FirstName,
		"last_name":    customer.LastName,
		"phone":        customer.Phone,
		"address":      customer.Address,
	}
	var resp customerResponse
	if err := c.do(ctx, http.MethodPost, "/customers", payload, &resp); err != nil {
		return "", mapStatus(err, http.StatusConflict, ErrDuplicateName)
	}
	return resp.ID, nil
}

// CreateInvoice creates an invoice for a customer and returns the
// ledger-assigned invoice ref.
func (c *Client) CreateInvoice(ctx context.Context, customerRef string, doc domain.DocumentRequest) (string, error) {
	return c.createDocument(ctx, "/invoices", customerRef, doc)
}

// CreateSalesReceipt creates a sales receipt and returns its ref.
func (c *Client) CreateSalesReceipt(ctx context.Context, customerRef string, doc domain.DocumentRequest) (string, error) {
	return c.createDocument(ctx, "/sales-receipts", customerRef, doc)
}

// CreatePayment records a payment against an existing invoice. The invoice
// must already exist; the ledger links the payment to it.
func (c *Client) CreatePayment(ctx context.Context, customerRef, invoiceRef string, amount decimal.Decimal) (string, error) {
	payload := map[string]interface{}{
		"customer_ref": customerRef,
		"invoice_ref":  invoiceRef,
		"amount":       amount,
	}
	var resp documentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SendInvoice emails an invoice to the customer. Callers treat failures here
// as non-fatal.
func (c *Client) SendInvoice(ctx context.Context, invoiceRef, email string) error {
	payload := map[string]string{"email": email}
	endpoint := fmt.Sprintf("/invoices/%s/send", url.PathEscape(invoiceRef))
	return c.do(ctx, http.MethodPost, endpoint, payload, nil)
}

// GetItem fetches a ledger item, primarily for its standard price.
func (c *Client) GetItem(ctx context.Context, itemRef string) (*Item, error) {
	var item Item
	endpoint := fmt.Sprintf("/items/%s", url.PathEscape(itemRef))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &item); err != nil {
		return nil, mapStatus(err, http.StatusNotFound, ErrItemNotFound)
	}
	return &item, nil
}

type lineItemPayload struct {
	Name      string          `json:"name"`
	ItemRef   string          `json:"item_ref"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

func (c *Client) createDocument(ctx context.Context, endpoint, customerRef string, doc domain.DocumentRequest) (string, error) {
	lines := make([]lineItemPayload, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, lineItemPayload{
			Name:      line.Name,
			ItemRef:   line.ItemRef,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Amount:    line.Amount,
		})
	}

	payload := map[string]interface{}{
		"customer_ref": customerRef,
		"lines":        lines,
		"memo":         doc.Memo,
	}
	if doc.DueDate != nil {
		payload["due_date"] = doc.DueDate.Format("2006-01-02")
	}

	var resp documentResponse
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("ledger base URL is not configured")
	}

	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, method: method, endpoint: endpoint}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse ledger response: %w", err)
	}
	return nil
}
