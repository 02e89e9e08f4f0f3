/**
 * @description
 * HTTP handlers for the webhook intake and the operational admin surface.
 * This is the primary entry point for order and booking events.
 *
 * Key features:
 * - Security: validates the HMAC-SHA256 signature of incoming webhooks.
 * - Filtering: applies the status preconditions (completed orders,
 *   non-cancelled bookings) and responds with a business no-op for the rest.
 * - Failure logging: failed deliveries are appended to the retry log unless
 *   the delivery is itself a replay (X-Webhook-Retry header), which keeps a
 *   failing replay from re-logging itself.
 */
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/juliebasler-source/basler-webhooks/internal/app"
	"github.com/juliebasler-source/basler-webhooks/internal/normalize"
	"github.com/juliebasler-source/basler-webhooks/internal/store"
)

// RetryHeader marks a delivery as an operator-driven replay. Failures of a
// replay are not re-appended to the retry log.
const RetryHeader = "X-Webhook-Retry"

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Webhook-Signature"

const (
	sourceOrder   = "order"
	sourceBooking = "booking"
)

// BillingService processes normalized webhook events.
type BillingService interface {
	ProcessOrderEvent(ctx context.Context, evt normalize.OrderEvent) (*app.ProcessResult, error)
	ProcessBookingEvent(ctx context.Context, evt normalize.BookingEvent) (*app.ProcessResult, error)
}

// UsageRunner executes one usage billing period on demand.
type UsageRunner interface {
	Run(ctx context.Context, periodStart, periodEnd time.Time) (*app.UsageRunResult, error)
}

// FailureLog is the retry log contract the handlers need.
type FailureLog interface {
	Insert(ctx context.Context, source string, payload []byte, failure string, receivedAt time.Time) (string, error)
	ListPending(ctx context.Context, limit int) ([]store.FailedWebhook, error)
	Get(ctx context.Context, id string) (*store.FailedWebhook, error)
	MarkResolved(ctx context.Context, id string, resolvedAt time.Time) error
}

// Handler holds dependencies for the HTTP endpoints.
type Handler struct {
	service       BillingService
	usage         UsageRunner
	failures      FailureLog
	orderSecret   string
	bookingSecret string
	logger        *slog.Logger
}

// NewHandler creates a new API handler. failures may be nil when no database
// is configured; failed deliveries are then only logged.
func NewHandler(service BillingService, usage UsageRunner, failures FailureLog, orderSecret, bookingSecret string, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		usage:         usage,
		failures:      failures,
		orderSecret:   orderSecret,
		bookingSecret: bookingSecret,
		logger:        logger,
	}
}

// HandleOrderWebhook receives e-commerce order events.
func (h *Handler) HandleOrderWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSignedBody(w, r, h.orderSecret)
	if !ok {
		return
	}

	var evt normalize.OrderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("order webhook has invalid JSON", "error", err)
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Only completed orders are billed. Everything else is acknowledged so
	// the source does not redeliver.
	if !strings.EqualFold(evt.Status, "completed") {
		h.logger.Info("order ignored by status", "order_id", evt.ID, "status", evt.Status)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "order not completed"})
		return
	}

	result, err := h.service.ProcessOrderEvent(r.Context(), evt)
	if err != nil {
		h.recordFailure(r, sourceOrder, body, err)
		respondError(w, http.StatusInternalServerError, "order processing failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleBookingWebhook receives scheduling events.
func (h *Handler) HandleBookingWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSignedBody(w, r, h.bookingSecret)
	if !ok {
		return
	}

	var evt normalize.BookingEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("booking webhook has invalid JSON", "error", err)
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if isCancelledStatus(evt.Status) {
		h.logger.Info("booking ignored by status", "booking_ref", evt.Ref, "status", evt.Status)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "booking cancelled"})
		return
	}

	result, err := h.service.ProcessBookingEvent(r.Context(), evt)
	if err != nil {
		h.recordFailure(r, sourceBooking, body, err)
		respondError(w, http.StatusInternalServerError, "booking processing failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleUsageRun triggers one usage billing run. The period defaults to the
// previous calendar month (UTC) and can be overridden with a month=YYYY-MM
// query parameter.
func (h *Handler) HandleUsageRun(w http.ResponseWriter, r *http.Request) {
	periodStart, periodEnd := app.PreviousMonth(time.Now().UTC())
	if month := r.URL.Query().Get("month"); month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			respondError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		periodStart = parsed
		periodEnd = parsed.AddDate(0, 1, 0)
	}

	result, err := h.usage.Run(r.Context(), periodStart, periodEnd)
	if err != nil {
		h.logger.Error("manual usage run failed", "error", err)
		respondError(w, http.StatusInternalServerError, "usage billing run failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleListFailures returns unresolved webhook failures, oldest first.
func (h *Handler) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		respondError(w, http.StatusServiceUnavailable, "retry log is not configured")
		return
	}

	entries, err := h.failures.ListPending(r.Context(), 100)
	if err != nil {
		h.logger.Error("failed to list retry log", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list retry log")
		return
	}
	if entries == nil {
		entries = []store.FailedWebhook{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// HandleRetryFailure replays one logged delivery through the pipeline and
// marks it resolved on success.
func (h *Handler) HandleRetryFailure(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		respondError(w, http.StatusServiceUnavailable, "retry log is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	entry, err := h.failures.Get(r.Context(), id)
	if err != nil {
		if err == store.ErrEntryNotFound {
			respondError(w, http.StatusNotFound, "retry log entry not found")
			return
		}
		h.logger.Error("failed to load retry log entry", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load retry log entry")
		return
	}

	result, err := h.replay(r.Context(), entry)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("replay failed: %v", err))
		return
	}

	if err := h.failures.MarkResolved(r.Context(), id, time.Now().UTC()); err != nil {
		h.logger.Warn("replay succeeded but entry could not be resolved", "id", id, "error", err)
	}
	respondJSON(w, http.StatusOK, result)
}

// replay re-dispatches one logged payload through the billing pipeline.
func (h *Handler) replay(ctx context.Context, entry *store.FailedWebhook) (*app.ProcessResult, error) {
	switch entry.Source {
	case sourceOrder:
		var evt normalize.OrderEvent
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return nil, fmt.Errorf("stored payload is not a valid order event: %w", err)
		}
		return h.service.ProcessOrderEvent(ctx, evt)
	case sourceBooking:
		var evt normalize.BookingEvent
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return nil, fmt.Errorf("stored payload is not a valid booking event: %w", err)
		}
		return h.service.ProcessBookingEvent(ctx, evt)
	default:
		return nil, fmt.Errorf("unknown source %q", entry.Source)
	}
}

// readSignedBody buffers the request body and validates its signature. The
// body has to be read once for validation and kept for decoding.
func (h *Handler) readSignedBody(w http.ResponseWriter, r *http.Request, secret string) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}

	if !validSignature(secret, r.Header.Get(SignatureHeader), body) {
		h.logger.Warn("webhook signature rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return nil, false
	}
	return body, true
}

// recordFailure appends the raw delivery to the retry log. Replays are never
// re-logged; a failing replay stays at its original entry.
func (h *Handler) recordFailure(r *http.Request, source string, body []byte, failure error) {
	h.logger.Error("webhook processing failed", "source", source, "error", failure)

	if h.failures == nil || r.Header.Get(RetryHeader) != "" {
		return
	}

	id, err := h.failures.Insert(r.Context(), source, body, failure.Error(), time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to append retry log entry", "source", source, "error", err)
		return
	}
	h.logger.Info("delivery logged for retry", "source", source, "entry_id", id)
}

// validSignature checks the hex HMAC-SHA256 of the body. An empty configured
// secret disables verification for that endpoint.
func validSignature(secret, provided string, body []byte) bool {
	if secret == "" {
		return true
	}
	if provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(provided))))
}

func isCancelledStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "rejected":
		return true
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already written; nothing left to do but note it.
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
