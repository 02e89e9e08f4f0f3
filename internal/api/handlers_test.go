package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/juliebasler-source/basler-webhooks/internal/app"
	"github.com/juliebasler-source/basler-webhooks/internal/normalize"
	"github.com/juliebasler-source/basler-webhooks/internal/store"
)

const testSecret = "whsec-test"

type stubService struct {
	orderCalls   int
	bookingCalls int
	err          error
}

func (s *stubService) ProcessOrderEvent(_ context.Context, _ normalize.OrderEvent) (*app.ProcessResult, error) {
	s.orderCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &app.ProcessResult{RequestID: "req-1"}, nil
}

func (s *stubService) ProcessBookingEvent(_ context.Context, _ normalize.BookingEvent) (*app.ProcessResult, error) {
	s.bookingCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &app.ProcessResult{RequestID: "req-2"}, nil
}

type stubUsageRunner struct {
	starts []time.Time
	err    error
}

func (s *stubUsageRunner) Run(_ context.Context, periodStart, _ time.Time) (*app.UsageRunResult, error) {
	s.starts = append(s.starts, periodStart)
	if s.err != nil {
		return nil, s.err
	}
	return &app.UsageRunResult{PeriodStart: periodStart}, nil
}

// memFailureLog is an in-memory FailureLog.
type memFailureLog struct {
	entries  []store.FailedWebhook
	resolved []string
}

func (m *memFailureLog) Insert(_ context.Context, source string, payload []byte, failure string, receivedAt time.Time) (string, error) {
	id := "fw-" + strconv.Itoa(len(m.entries)+1)
	m.entries = append(m.entries, store.FailedWebhook{ID: id, Source: source, Payload: payload, Error: failure, ReceivedAt: receivedAt})
	return id, nil
}

func (m *memFailureLog) ListPending(_ context.Context, _ int) ([]store.FailedWebhook, error) {
	return m.entries, nil
}

func (m *memFailureLog) Get(_ context.Context, id string) (*store.FailedWebhook, error) {
	for i := range m.entries {
		if m.entries[i].ID == id {
			return &m.entries[i], nil
		}
	}
	return nil, store.ErrEntryNotFound
}

func (m *memFailureLog) MarkResolved(_ context.Context, id string, _ time.Time) error {
	m.resolved = append(m.resolved, id)
	return nil
}

func newTestHandler(service *stubService, usage *stubUsageRunner, failures FailureLog) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(service, usage, failures, testSecret, testSecret, logger)
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sign(body))
	return req
}

func completedOrderBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":       "ord-1",
		"status":   "completed",
		"subtotal": "100.00",
		"total":    "100.00",
		"billing":  map[string]string{"email": "a@example.com"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHandleOrderWebhookProcessesCompletedOrder(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(service, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleOrderWebhook(rec, signedRequest(http.MethodPost, "/webhooks/order", completedOrderBody(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if service.orderCalls != 1 {
		t.Errorf("expected 1 service call, got %d", service.orderCalls)
	}
}

func TestHandleOrderWebhookRejectsBadSignature(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(service, nil, nil)

	body := completedOrderBody(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/order", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")

	rec := httptest.NewRecorder()
	h.HandleOrderWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.orderCalls != 0 {
		t.Errorf("service must not run on a rejected signature")
	}
}

func TestHandleOrderWebhookIgnoresNonCompletedStatus(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(service, nil, nil)

	body, _ := json.Marshal(map[string]interface{}{"id": "ord-2", "status": "pending"})
	rec := httptest.NewRecorder()
	h.HandleOrderWebhook(rec, signedRequest(http.MethodPost, "/webhooks/order", body))

	// A business no-op acknowledges the delivery so the source stops
	// redelivering.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.orderCalls != 0 {
		t.Errorf("non-completed orders must not be processed")
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp["status"] != "ignored" {
		t.Errorf("expected ignored status, got %v", resp)
	}
}

func TestHandleBookingWebhookIgnoresCancelled(t *testing.T) {
	service := &stubService{}
	h := newTestHandler(service, nil, nil)

	body, _ := json.Marshal(map[string]interface{}{"booking_ref": "bk-1", "status": "Cancelled", "email": "b@example.com", "price": "10"})
	rec := httptest.NewRecorder()
	h.HandleBookingWebhook(rec, signedRequest(http.MethodPost, "/webhooks/booking", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if service.bookingCalls != 0 {
		t.Errorf("cancelled bookings must not be processed")
	}
}

func TestHandleOrderWebhookLogsFailure(t *testing.T) {
	service := &stubService{err: errors.New("ledger unavailable")}
	failures := &memFailureLog{}
	h := newTestHandler(service, nil, failures)

	rec := httptest.NewRecorder()
	h.HandleOrderWebhook(rec, signedRequest(http.MethodPost, "/webhooks/order", completedOrderBody(t)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(failures.entries) != 1 {
		t.Fatalf("expected 1 retry log entry, got %d", len(failures.entries))
	}
	if failures.entries[0].Source != "order" {
		t.Errorf("expected source order, got %q", failures.entries[0].Source)
	}
}

func TestHandleOrderWebhookRetryDeliveryNotRelogged(t *testing.T) {
	service := &stubService{err: errors.New("still failing")}
	failures := &memFailureLog{}
	h := newTestHandler(service, nil, failures)

	req := signedRequest(http.MethodPost, "/webhooks/order", completedOrderBody(t))
	req.Header.Set(RetryHeader, "1")

	rec := httptest.NewRecorder()
	h.HandleOrderWebhook(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(failures.entries) != 0 {
		t.Errorf("a failing replay must not be re-logged, got %d entries", len(failures.entries))
	}
}

func TestHandleRetryFailureReplaysAndResolves(t *testing.T) {
	service := &stubService{}
	failures := &memFailureLog{}
	h := newTestHandler(service, nil, failures)

	id, _ := failures.Insert(context.Background(), "order", completedOrderBody(t), "ledger unavailable", time.Now())

	router := NewRouter(h, "admin-key")
	req := httptest.NewRequest(http.MethodPost, "/admin/failed-webhooks/"+id+"/retry", nil)
	req.Header.Set("X-Internal-API-Key", "admin-key")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if service.orderCalls != 1 {
		t.Errorf("expected replay to process the stored payload")
	}
	if len(failures.resolved) != 1 || failures.resolved[0] != id {
		t.Errorf("expected entry %s resolved, got %v", id, failures.resolved)
	}
}

func TestHandleRetryFailureUnknownEntry(t *testing.T) {
	h := newTestHandler(&stubService{}, nil, &memFailureLog{})

	router := NewRouter(h, "admin-key")
	req := httptest.NewRequest(http.MethodPost, "/admin/failed-webhooks/fw-99/retry", nil)
	req.Header.Set("X-Internal-API-Key", "admin-key")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	usage := &stubUsageRunner{}
	h := newTestHandler(&stubService{}, usage, &memFailureLog{})
	router := NewRouter(h, "admin-key")

	req := httptest.NewRequest(http.MethodPost, "/admin/usage-billing/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if len(usage.starts) != 0 {
		t.Errorf("usage run must not execute without the key")
	}
}

func TestAdminEndpointsDisabledWithoutConfiguredKey(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubUsageRunner{}, &memFailureLog{})
	router := NewRouter(h, "")

	req := httptest.NewRequest(http.MethodGet, "/admin/failed-webhooks", nil)
	req.Header.Set("X-Internal-API-Key", "anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no key is configured, got %d", rec.Code)
	}
}

func TestHandleUsageRunMonthOverride(t *testing.T) {
	usage := &stubUsageRunner{}
	h := newTestHandler(&stubService{}, usage, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/usage-billing/run?month=2025-06", nil)
	rec := httptest.NewRecorder()
	h.HandleUsageRun(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	if len(usage.starts) != 1 || !usage.starts[0].Equal(want) {
		t.Errorf("expected period start %s, got %v", want, usage.starts)
	}
}

func TestHandleUsageRunRejectsBadMonth(t *testing.T) {
	usage := &stubUsageRunner{}
	h := newTestHandler(&stubService{}, usage, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/usage-billing/run?month=June", nil)
	rec := httptest.NewRecorder()
	h.HandleUsageRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(usage.starts) != 0 {
		t.Errorf("invalid month must not trigger a run")
	}
}
