package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cheertaboi/qris-discount-service/internal/catalog"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

type AdminHandler struct {
	catalog *service.CatalogService
}

func NewAdminHandler(catalog *service.CatalogService) *AdminHandler {
	return &AdminHandler{catalog: catalog}
}

type VoucherListResponse struct {
	Vouchers []models.Voucher `json:"vouchers"`
}

// ListVouchers handles GET /admin/vouchers
func (h *AdminHandler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.catalog.Vouchers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VoucherListResponse{Vouchers: vouchers})
}

// GetVoucher handles GET /admin/vouchers/{code}
func (h *AdminHandler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	voucher, err := h.catalog.Voucher(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

// UpsertVoucher handles PUT /admin/vouchers
func (h *AdminHandler) UpsertVoucher(w http.ResponseWriter, r *http.Request) {
	var in catalog.VoucherInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	voucher, err := h.catalog.UpsertVoucher(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

// DisableVoucher handles POST /admin/vouchers/{code}/disable
func (h *AdminHandler) DisableVoucher(w http.ResponseWriter, r *http.Request) {
	voucher, err := h.catalog.DisableVoucher(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

// GetMonthlyPromo handles GET /admin/monthly-promo
func (h *AdminHandler) GetMonthlyPromo(w http.ResponseWriter, r *http.Request) {
	promo, err := h.catalog.MonthlyPromo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promo)
}

// SetMonthlyPromo handles PUT /admin/monthly-promo
func (h *AdminHandler) SetMonthlyPromo(w http.ResponseWriter, r *http.Request) {
	var change catalog.MonthlyPromoChange
	if err := decodeJSON(w, r, &change); err != nil {
		writeError(w, err)
		return
	}
	promo, err := h.catalog.SetMonthlyPromo(r.Context(), change)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promo)
}
