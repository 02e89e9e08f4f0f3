/**
 * @description
 * Core orchestration for webhook-driven billing: normalize the event, match a
 * processor payment when needed, select the billing flow, and dispatch the
 * resulting documents to the ledger in strict order.
 *
 * Dispatch ordering is load-bearing: a payment references the
 * ledger-assigned invoice id, so it is created strictly after its invoice,
 * and an invoice-create failure means no payment attempt is made. Invoice
 * send failures are soft; document create failures are fatal to that event.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juliebasler-source/basler-webhooks/internal/billing"
	"github.com/juliebasler-source/basler-webhooks/internal/domain"
	"github.com/juliebasler-source/basler-webhooks/internal/normalize"
	"github.com/juliebasler-source/basler-webhooks/pkg/ledgerclient"
	"github.com/juliebasler-source/basler-webhooks/pkg/rabbitmq"
)

// Ledger defines the accounting system operations the service needs.
type Ledger interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	FindCustomerByName(ctx context.Context, name string) (string, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (string, error)
	GetItem(ctx context.Context, itemRef string) (*ledgerclient.Item, error)
	CreateInvoice(ctx context.Context, customerRef string, doc domain.DocumentRequest) (string, error)
	CreateSalesReceipt(ctx context.Context, customerRef string, doc domain.DocumentRequest) (string, error)
	CreatePayment(ctx context.Context, customerRef, invoiceRef string, amount decimal.Decimal) (string, error)
	SendInvoice(ctx context.Context, invoiceRef, email string) error
}

// PaymentFinder searches the payment processor for a customer's transaction.
type PaymentFinder interface {
	FindPayment(ctx context.Context, email string) domain.MatchedPayment
}

// EventPublisher defines the interface for publishing billing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Service wires normalization, payment matching, flow selection, and
// document dispatch together.
type Service struct {
	ledger     Ledger
	payments   PaymentFinder
	engine     *billing.Engine
	normalizer *normalize.OrderNormalizer
	publisher  EventPublisher
	logger     *slog.Logger
}

// NewService creates the billing service.
func NewService(ledger Ledger, payments PaymentFinder, engine *billing.Engine, normalizer *normalize.OrderNormalizer, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		ledger:     ledger,
		payments:   payments,
		engine:     engine,
		normalizer: normalizer,
		publisher:  publisher,
		logger:     logger,
	}
}

// ProcessResult summarizes one event's billing outcome.
type ProcessResult struct {
	RequestID     string          `json:"request_id"`
	SourceRef     string          `json:"source_ref"`
	Flow          billing.Flow    `json:"flow"`
	CustomerRef   string          `json:"customer_ref"`
	InvoiceRef    string          `json:"invoice_ref,omitempty"`
	ReceiptRef    string          `json:"receipt_ref,omitempty"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	InvoiceSent   bool            `json:"invoice_sent"`
	UnmappedItems []string        `json:"unmapped_items,omitempty"`
}

// ProcessOrderEvent normalizes and bills one e-commerce order event. Status
// filtering is the caller's precondition; only completed orders reach here.
func (s *Service) ProcessOrderEvent(ctx context.Context, evt normalize.OrderEvent) (*ProcessResult, error) {
	order, err := s.normalizer.Normalize(evt, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("order normalization failed: %w", err)
	}

	plan, err := s.engine.PlanOrder(*order)
	if err != nil {
		return nil, fmt.Errorf("billing plan for order %s failed: %w", order.ID, err)
	}

	result, err := s.dispatch(ctx, fmt.Sprintf("order %s", order.ID), order.Customer, plan)
	if err != nil {
		return nil, err
	}
	result.SourceRef = order.ID
	s.logger.Info("order billed",
		"order_id", order.ID,
		"flow", result.Flow,
		"invoice_ref", result.InvoiceRef,
		"receipt_ref", result.ReceiptRef,
		"paylater_signal", order.PaylaterSignal)
	return result, nil
}

// ProcessBookingEvent normalizes and bills one scheduling event.
func (s *Service) ProcessBookingEvent(ctx context.Context, evt normalize.BookingEvent) (*ProcessResult, error) {
	booking, err := normalize.NormalizeBooking(evt, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("booking normalization failed: %w", err)
	}

	payment := s.payments.FindPayment(ctx, booking.Customer.Email)

	plan, err := s.engine.PlanBooking(*booking, payment)
	if err != nil {
		return nil, fmt.Errorf("billing plan for booking %s failed: %w", booking.Ref, err)
	}

	result, err := s.dispatch(ctx, fmt.Sprintf("booking %s", booking.Ref), booking.Customer, plan)
	if err != nil {
		return nil, err
	}
	result.SourceRef = booking.Ref
	s.logger.Info("booking billed",
		"booking_ref", booking.Ref,
		"flow", result.Flow,
		"payment_found", payment.Found,
		"invoice_ref", result.InvoiceRef,
		"receipt_ref", result.ReceiptRef,
		"balance_due", result.BalanceDue)
	return result, nil
}

// dispatch executes a plan against the ledger: customer first, then receipt,
// then invoice, then the linked payment, then the soft send attempt.
func (s *Service) dispatch(ctx context.Context, sourceDesc string, customer domain.Customer, plan *billing.Plan) (*ProcessResult, error) {
	result := &ProcessResult{
		RequestID:     uuid.NewString(),
		Flow:          plan.Flow,
		BalanceDue:    plan.BalanceDue,
		UnmappedItems: plan.UnmappedItems,
	}

	for _, name := range plan.UnmappedItems {
		s.logger.Warn("unmapped catalog item billed by raw name", "source", sourceDesc, "item", name)
	}

	customerRef, err := s.ensureCustomer(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("customer resolution for %s failed: %w", sourceDesc, err)
	}
	result.CustomerRef = customerRef

	if err := s.fillMissingPrices(ctx, plan.Receipt); err != nil {
		return nil, fmt.Errorf("price resolution for %s failed: %w", sourceDesc, err)
	}
	if err := s.fillMissingPrices(ctx, plan.Invoice); err != nil {
		return nil, fmt.Errorf("price resolution for %s failed: %w", sourceDesc, err)
	}
	if plan.Invoice != nil {
		// Filled prices change the invoice total, so the balance is restated
		// from the final lines.
		result.BalanceDue = plan.Invoice.Total().Sub(plan.PaymentAmount)
	}

	if plan.Receipt != nil {
		receiptRef, err := s.ledger.CreateSalesReceipt(ctx, customerRef, *plan.Receipt)
		if err != nil {
			s.publishDocumentFailed(ctx, sourceDesc, domain.DocSalesReceipt, err)
			return nil, fmt.Errorf("sales receipt creation for %s failed: %w", sourceDesc, err)
		}
		result.ReceiptRef = receiptRef
		s.publishDocumentCreated(ctx, sourceDesc, domain.DocSalesReceipt, receiptRef, plan.Receipt.Total())
	}

	if plan.Invoice != nil {
		invoiceRef, err := s.ledger.CreateInvoice(ctx, customerRef, *plan.Invoice)
		if err != nil {
			s.publishDocumentFailed(ctx, sourceDesc, domain.DocInvoice, err)
			return nil, fmt.Errorf("invoice creation for %s failed: %w", sourceDesc, err)
		}
		result.InvoiceRef = invoiceRef
		s.publishDocumentCreated(ctx, sourceDesc, domain.DocInvoice, invoiceRef, plan.Invoice.Total())

		if plan.PaymentAmount.IsPositive() {
			paymentRef, err := s.ledger.CreatePayment(ctx, customerRef, invoiceRef, plan.PaymentAmount)
			if err != nil {
				s.publishDocumentFailed(ctx, sourceDesc, domain.DocPayment, err)
				return nil, fmt.Errorf("payment creation for %s failed: %w", sourceDesc, err)
			}
			result.PaymentRef = paymentRef
			s.publishDocumentCreated(ctx, sourceDesc, domain.DocPayment, paymentRef, plan.PaymentAmount)
		}

		if plan.SendInvoice {
			if err := s.ledger.SendInvoice(ctx, invoiceRef, customer.Email); err != nil {
				// The invoice persists unsent; this never rolls anything back.
				s.logger.Warn("invoice send failed", "source", sourceDesc, "invoice_ref", invoiceRef, "error", err)
			} else {
				result.InvoiceSent = true
			}
		}
	}

	return result, nil
}

// fillMissingPrices resolves line prices from the ledger item record when a
// catalog row carries an item ref but no standard price. The lookup is on
// the critical path: a document never goes out with a silently zeroed line.
func (s *Service) fillMissingPrices(ctx context.Context, doc *domain.DocumentRequest) error {
	if doc == nil {
		return nil
	}
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.ItemRef == "" || !line.UnitPrice.IsZero() || !line.Amount.IsZero() {
			continue
		}
		item, err := s.ledger.GetItem(ctx, line.ItemRef)
		if err != nil {
			return fmt.Errorf("standard price lookup for item %s failed: %w", line.ItemRef, err)
		}
		line.UnitPrice = item.StandardPrice
		line.Amount = item.StandardPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	}
	return nil
}

// ensureCustomer resolves a ledger customer ref, creating the customer on
// first sight. A display-name collision is recovered once by disambiguating
// with the contact email; a second failure is fatal.
func (s *Service) ensureCustomer(ctx context.Context, customer domain.Customer) (string, error) {
	ref, err := s.ledger.FindCustomerByEmail(ctx, customer.Email)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ledgerclient.ErrCustomerNotFound) {
		return "", fmt.Errorf("customer lookup failed: %w", err)
	}

	if customer.DisplayName == "" {
		customer.DisplayName = customer.Email
	}

	ref, err = s.ledger.CreateCustomer(ctx, customer)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ledgerclient.ErrDuplicateName) {
		return "", fmt.Errorf("customer creation failed: %w", err)
	}

	disambiguated := customer
	disambiguated.DisplayName = fmt.Sprintf("%s (%s)", customer.DisplayName, customer.Email)
	s.logger.Warn("customer display name collision, retrying with disambiguated name",
		"display_name", customer.DisplayName, "email", customer.Email)

	// An earlier run may already have created the disambiguated customer;
	// reuse it instead of colliding a second time.
	if ref, lookupErr := s.ledger.FindCustomerByName(ctx, disambiguated.DisplayName); lookupErr == nil {
		return ref, nil
	}

	ref, err = s.ledger.CreateCustomer(ctx, disambiguated)
	if err != nil {
		return "", fmt.Errorf("customer creation failed after name disambiguation: %w", err)
	}
	return ref, nil
}

type documentEvent struct {
	Source      string              `json:"source"`
	Kind        domain.DocumentKind `json:"kind"`
	DocumentRef string              `json:"document_ref,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Error       string              `json:"error,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

func (s *Service) publishDocumentCreated(ctx context.Context, source string, kind domain.DocumentKind, ref string, amount decimal.Decimal) {
	s.publishEvent(ctx, "billing.document.created", documentEvent{
		Source:      source,
		Kind:        kind,
		DocumentRef: ref,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Service) publishDocumentFailed(ctx context.Context, source string, kind domain.DocumentKind, failure error) {
	s.publishEvent(ctx, "billing.document.failed", documentEvent{
		Source:    source,
		Kind:      kind,
		Error:     failure.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rabbitmq.Exchange, routingKey, body); err != nil {
		s.logger.Warn("failed to publish billing event", "routing_key", routingKey, "error", err)
	}
}
