package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
)

const maxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a strict JSON body: unknown fields and trailing data are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return models.ErrValidation.New("invalid_body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.ErrValidation.New("invalid_body: trailing data")
	}
	return nil
}

func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return models.ErrValidation.Wrap(err)
	}
	return nil
}

// statusOf maps error classes onto HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case models.ErrValidation.Has(err):
		return http.StatusBadRequest, "invalid_request"
	case models.ErrNotFound.Has(err):
		return http.StatusNotFound, "not_found"
	case models.ErrExpired.Has(err):
		return http.StatusConflict, "reservation_expired"
	case models.ErrReleased.Has(err):
		return http.StatusConflict, "reservation_released"
	case models.ErrExhausted.Has(err):
		return http.StatusConflict, "offer_exhausted"
	case models.ErrTransient.Has(err):
		return http.StatusServiceUnavailable, "try_again"
	case payment.Error.Has(err):
		return http.StatusBadGateway, "payment_provider_error"
	case identity.ErrNoPepper.Has(err):
		return http.StatusServiceUnavailable, "device_identity_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	code, name := statusOf(err)
	resp := models.ValidationResponse{Error: name}
	if code < http.StatusInternalServerError {
		resp.Message = err.Error()
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, resp)
}
