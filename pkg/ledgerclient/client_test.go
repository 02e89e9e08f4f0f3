package ledgerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/domain"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	return NewClient(server.URL, "test-key"), server
}

func TestFindCustomerByEmailMapsNotFound(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := client.FindCustomerByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestFindCustomerByNameMapsNotFound(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("display_name") != "Jane Doe (jane@example.com)" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := client.FindCustomerByName(context.Background(), "Jane Doe (jane@example.com)")
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestCreateCustomerMapsConflict(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	_, err := client.CreateCustomer(context.Background(), domain.Customer{Email: "a@example.com", DisplayName: "A"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGetItemMapsNotFoundToItemSentinel(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := client.GetItem(context.Background(), "item-99")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("item lookup must not surface a customer sentinel")
	}
}

func TestGetItemReturnsStandardPrice(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/item-47" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Item{ID: "item-47", Name: "Full Review", StandardPrice: decimal.RequireFromString("1750.00")})
	}))
	defer server.Close()

	item, err := client.GetItem(context.Background(), "item-47")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !item.StandardPrice.Equal(decimal.RequireFromString("1750.00")) {
		t.Errorf("expected standard price 1750.00, got %s", item.StandardPrice)
	}
}

func TestCreateInvoiceNotFoundIsNotACustomerSentinel(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := client.CreateInvoice(context.Background(), "cust-1", domain.DocumentRequest{})
	if err == nil {
		t.Fatalf("expected an error")
	}
	// A 404 on document creation is a plain failure, never a lookup sentinel
	// a caller could mistake for a missing customer.
	if errors.Is(err, ErrCustomerNotFound) || errors.Is(err, ErrItemNotFound) {
		t.Fatalf("document create must not map 404 to a sentinel, got %v", err)
	}
}

func TestCreatePaymentLinksInvoice(t *testing.T) {
	var payload map[string]interface{}
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(documentResponse{ID: "pay-1"})
	}))
	defer server.Close()

	ref, err := client.CreatePayment(context.Background(), "cust-1", "inv-9", decimal.RequireFromString("1575.00"))
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if ref != "pay-1" {
		t.Errorf("expected payment ref pay-1, got %q", ref)
	}
	if payload["invoice_ref"] != "inv-9" || payload["customer_ref"] != "cust-1" {
		t.Errorf("payment must reference its invoice and customer, got %v", payload)
	}
}
