package handlers

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/api/middleware"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

// --- Request / Response DTOs ---

type CreateTransactionRequest struct {
	Amount        float64 `json:"amount" validate:"gt=0,lte=1000000000000"`
	DeviceID      string  `json:"deviceId" validate:"required,max=256"`
	VoucherCode   string  `json:"voucherCode,omitempty" validate:"max=64"`
	TransactionID string  `json:"transactionId,omitempty" validate:"max=128"`
}

type CreateTransactionResponse struct {
	OrderID string        `json:"orderId"`
	Quote   service.Quote `json:"quote"`
	QR      payment.QR    `json:"qr"`
}

type OutcomeResponse struct {
	TransactionID string                  `json:"transactionId"`
	State         models.ReservationState `json:"state,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

func outcomeResponse(o service.Outcome) OutcomeResponse {
	resp := OutcomeResponse{TransactionID: o.TransactionID, State: o.State}
	if o.Err != nil {
		_, resp.Error = statusOf(o.Err)
	}
	return resp
}

// --- Handler struct & constructor ---

type TransactionHandler struct {
	log      *zap.Logger
	engine   *service.ReservationService
	provider payment.Provider
}

func NewTransactionHandler(log *zap.Logger, engine *service.ReservationService, provider payment.Provider) *TransactionHandler {
	return &TransactionHandler{log: log.Named("transactions"), engine: engine, provider: provider}
}

// --- Handlers ---

// Create handles POST /transactions
// reserves the best discount, then asks the provider for a QR of the final
// amount; the reservation is released again if the provider fails
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	if math.IsInf(req.Amount, 0) || math.IsNaN(req.Amount) || req.Amount != math.Trunc(req.Amount) {
		writeError(w, models.ErrValidation.New("amount must be a whole number of rupiah"))
		return
	}

	ctx := r.Context()
	quote, err := h.engine.Apply(ctx, service.ApplyRequest{
		Amount:        int64(req.Amount),
		DeviceID:      req.DeviceID,
		IP:            middleware.ClientIP(r),
		UserAgent:     r.UserAgent(),
		VoucherCode:   req.VoucherCode,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	orderID := quote.TransactionID
	if orderID == "" {
		orderID = req.TransactionID
	}
	if orderID == "" {
		orderID = uuid.NewString()
	}

	qr, err := h.provider.CreateQR(ctx, payment.QRRequest{OrderID: orderID, Amount: quote.AmountFinal})
	if err != nil {
		h.log.Warn("qr creation failed", zap.String("order", orderID), zap.Error(err))
		if quote.Reserved() {
			if _, rerr := h.engine.Release(ctx, quote.TransactionID); rerr != nil {
				h.log.Error("release after provider failure", zap.String("order", orderID), zap.Error(rerr))
			}
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateTransactionResponse{OrderID: orderID, Quote: quote, QR: qr})
}

// Cancel handles POST /transactions/{id}/cancel
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.engine.Release(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if outcomes[0].Err != nil {
		writeError(w, outcomes[0].Err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse(outcomes[0]))
}

// Reservation handles GET /transactions/{id}/reservation
func (h *TransactionHandler) Reservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.engine.Reservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
