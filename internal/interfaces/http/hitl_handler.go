package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/money"
)

// HITLHandler exposes the bearer-token authenticated approval REST surface
// from §6: GET /api/hitl/pending, POST /api/hitl/{trade_id}/approve,
// POST /api/hitl/{trade_id}/reject.
type HITLHandler struct {
	gateway     *hitl.Gateway
	bearerToken string
}

func NewHITLHandler(gateway *hitl.Gateway, bearerToken string) *HITLHandler {
	return &HITLHandler{gateway: gateway, bearerToken: bearerToken}
}

// authenticate returns false (and has already written the 401 response)
// when the Authorization header doesn't carry the configured bearer token.
func (h *HITLHandler) authenticate(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || strings.TrimPrefix(auth, prefix) != h.bearerToken {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return false
	}
	return true
}

func (h *HITLHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}
	reqs, tampered, err := h.gateway.Pending(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list pending approvals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":         reqs,
		"tampered_trades": tampered,
	})
}

type approveBody struct {
	OperatorID   string `json:"operator_id"`
	CurrentPrice string `json:"current_price"`
}

type rejectBody struct {
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

func (h *HITLHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}
	tradeID := mux.Vars(r)["trade_id"]

	var body approveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}
	currentPrice, err := money.NewFromString(body.CurrentPrice, money.ScalePrice)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "current_price must be a decimal string")
		return
	}

	result, err := h.gateway.Decide(r.Context(), tradeID, body.OperatorID, hitl.DecisionApprove, money.Price{Decimal: currentPrice}, "")
	if err != nil {
		writeDecideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Request)
}

func (h *HITLHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}
	tradeID := mux.Vars(r)["trade_id"]

	var body rejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	result, err := h.gateway.Decide(r.Context(), tradeID, body.OperatorID, hitl.DecisionReject, money.Price{}, body.Reason)
	if err != nil {
		writeDecideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Request)
}

// writeDecideError maps the gateway's apperr.Code taxonomy onto the exact
// status codes §6 assigns each SEC-xxx failure mode.
func writeDecideError(w http.ResponseWriter, err error) {
	code, ok := apperr.CodeOf(err)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch code {
	case apperr.CodeOperatorNotAllowed:
		writeJSONError(w, http.StatusForbidden, err.Error())
	case apperr.CodeInvalidTransition:
		writeJSONError(w, http.StatusConflict, err.Error())
	case apperr.CodeHITLTimeout:
		writeJSONError(w, http.StatusGone, err.Error())
	case apperr.CodeSlippageExceeded:
		writeJSONError(w, http.StatusPreconditionFailed, err.Error())
	case apperr.CodeGuardianLocked:
		writeJSONError(w, http.StatusLocked, err.Error())
	case apperr.CodeHashMismatch:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
