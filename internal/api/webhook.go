package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
	"github.com/JakeFAU/sitereport/internal/orchestrator"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

// EventOrderSucceeded is the only webhook event type acted upon.
const EventOrderSucceeded = "order.succeeded"

type webhookRequest struct {
	Type string                 `json:"type" validate:"required"`
	Data fulfillment.OrderEvent `json:"data"`
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(header, "sha256=")))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Server) orderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if !validSignature(s.opts.WebhookSecret, body, r.Header.Get(SignatureHeader)) {
		metrics.ObserveWebhook("rejected")
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "missing event type")
		return
	}
	if req.Type != EventOrderSucceeded {
		metrics.ObserveWebhook("ignored")
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	intake, err := s.svc.HandleOrderSucceeded(r.Context(), req.Data)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidEvent) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("order intake failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("order_ref", req.Data.OrderID),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "could not record order")
		return
	}
	status := "accepted"
	if intake.Duplicate {
		status = "duplicate"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status, "purchase_id": intake.PurchaseID})
}
