package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/net/ratelimit"
)

const webhookRateLimitKey = "webhook"

// WebhookHandler exposes POST /webhook/signal. The ingress handler must
// return within 50ms wall clock per §5 — Accept itself only verifies,
// parses, and inserts; any downstream pipeline work happens off a bounded
// queue the caller (the orchestrator) drains separately. A token-bucket
// limiter bounds ingest rate ahead of that queue so a burst fails fast
// with 503 instead of filling the backlog for every other sender.
type WebhookHandler struct {
	gateway *signal.Gateway
	limiter *ratelimit.Limiter
	queue   chan AcceptedSignal
}

// AcceptedSignal is one queued ingress result, drained by the orchestrator's
// pulse.
type AcceptedSignal struct {
	Result signal.AcceptResult
}

// NewWebhookHandler builds a handler backed by gateway, with a bounded
// backlog queue of depth queueDepth and a token-bucket ingress limiter
// (rps/burst). A full queue or exhausted bucket both reply 503 rather
// than blocking or dropping silently, per §5's backpressure requirement.
func NewWebhookHandler(gateway *signal.Gateway, queueDepth int, rps float64, burst int) *WebhookHandler {
	return &WebhookHandler{
		gateway: gateway,
		limiter: ratelimit.NewLimiter(rps, burst),
		queue:   make(chan AcceptedSignal, queueDepth),
	}
}

// Queue returns the channel the orchestrator's pulse consumes from.
func (h *WebhookHandler) Queue() <-chan AcceptedSignal { return h.queue }

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(webhookRateLimitKey) {
		writeJSONError(w, http.StatusServiceUnavailable, "ingress rate limit exceeded")
		return
	}

	sigHex := r.Header.Get("X-Signature")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	result, err := h.gateway.Accept(r.Context(), body, sigHex)
	if err != nil {
		code, isAppErr := apperr.CodeOf(err)
		switch {
		case isAppErr && code == apperr.CodeBadSignature:
			writeJSONError(w, http.StatusUnauthorized, "signature verification failed")
		case isAppErr && code == apperr.CodeFloatToken:
			writeJSONError(w, http.StatusBadRequest, "price field must be a decimal string")
		default:
			writeJSONError(w, http.StatusBadRequest, "malformed body")
		}
		return
	}

	select {
	case h.queue <- AcceptedSignal{Result: result}:
	default:
		writeJSONError(w, http.StatusServiceUnavailable, "ingress backlog full")
		return
	}

	status := "ack"
	if result.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlation_id": result.CorrelationID,
		"status":         status,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
