package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Signature"

type WebhookHandler struct {
	log    *zap.Logger
	engine *service.ReservationService
	secret []byte
}

// NewWebhookHandler returns the payment webhook handler. With an empty
// secret signatures are not checked.
func NewWebhookHandler(log *zap.Logger, engine *service.ReservationService, secret string) *WebhookHandler {
	return &WebhookHandler{
		log:    log.Named("webhook"),
		engine: engine,
		secret: []byte(strings.TrimSpace(secret)),
	}
}

// Payment handles POST /webhooks/payment
// paid commits the reservation; expired, failed and cancelled release it.
// Domain rejections are acknowledged with 200 so the provider stops retrying;
// store failures answer 503 so it tries again.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, models.ErrValidation.New("invalid_body: %v", err))
		return
	}
	if len(h.secret) > 0 && !payment.VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		writeJSON(w, http.StatusUnauthorized, models.ValidationResponse{Error: "invalid_signature"})
		return
	}

	var event payment.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, models.ErrValidation.New("invalid_body: %v", err))
		return
	}
	if err := validateStruct(event); err != nil {
		writeError(w, err)
		return
	}

	var outcomes []service.Outcome
	switch {
	case event.Paid():
		outcomes, err = h.engine.CommitVia(r.Context(), event.PaidVia, event.TransactionID)
	case event.Abandoned():
		outcomes, err = h.engine.Release(r.Context(), event.TransactionID)
	default:
		writeJSON(w, http.StatusAccepted, OutcomeResponse{TransactionID: event.TransactionID})
		return
	}
	if err != nil {
		h.log.Warn("webhook not applied", zap.String("transaction", event.TransactionID), zap.Error(err))
		writeError(w, err)
		return
	}

	outcome := outcomes[0]
	if outcome.Err != nil {
		h.log.Info("webhook settled with rejection",
			zap.String("transaction", event.TransactionID),
			zap.String("status", string(event.Normalized())),
			zap.Error(outcome.Err))
	}
	writeJSON(w, http.StatusOK, outcomeResponse(outcome))
}
