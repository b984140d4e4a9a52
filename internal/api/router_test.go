package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Cheertaboi/qris-discount-service/internal/api"
	"github.com/Cheertaboi/qris-discount-service/internal/api/handlers"
	"github.com/Cheertaboi/qris-discount-service/internal/api/middleware"
	"github.com/Cheertaboi/qris-discount-service/internal/cache"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/models"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

const (
	adminSecret   = "admin-secret"
	webhookSecret = "hook-secret"
)

type failingProvider struct{}

func (failingProvider) CreateQR(context.Context, payment.QRRequest) (payment.QR, error) {
	return payment.QR{}, payment.Error.New("provider down")
}

type testServer struct {
	handler http.Handler
	store   *cache.MemoryStore
}

func newServer(t *testing.T, provider payment.Provider) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	deriver, err := identity.NewHMACDeriver("pepper")
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	config := service.Config{TTL: 10 * time.Minute}
	engine := service.NewReservationService(log, store, deriver, config)
	catalog := service.NewCatalogService(log, store, deriver, config)

	return &testServer{
		store: store,
		handler: api.NewRouter(api.Deps{
			Log:           log,
			Engine:        engine,
			Catalog:       catalog,
			Provider:      provider,
			AdminSecret:   adminSecret,
			WebhookSecret: webhookSecret,
			ApplyLimit:    middleware.RateLimit{RequestsPerMinute: 600, Burst: 50},
		}),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return s.do(t, method, path, body, map[string]string{middleware.AdminHeader: adminSecret})
}

func (s *testServer) webhook(t *testing.T, body string) *httptest.ResponseRecorder {
	sig := payment.Sign([]byte(webhookSecret), []byte(body))
	return s.do(t, http.MethodPost, "/webhooks/payment", body, map[string]string{handlers.SignatureHeader: sig})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const save10 = `{"code":"save10","name":"Save 10","percent":10,"maxRp":0,"maxUses":1,"expiresAt":null}`

func TestPaymentFlow(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})

	rec := s.admin(t, http.MethodPut, "/admin/vouchers", save10)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	voucher := decode[models.Voucher](t, rec)
	assert.Equal(t, "SAVE10", voucher.Code)

	rec = s.do(t, http.MethodPost, "/transactions", `{"amount":10000,"deviceId":"device-abc-123","voucherCode":"SAVE10"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handlers.CreateTransactionResponse](t, rec)
	assert.EqualValues(t, 9000, created.Quote.AmountFinal)
	assert.Equal(t, created.Quote.TransactionID, created.OrderID)
	assert.Contains(t, created.QR.Payload, ":9000")

	rec = s.do(t, http.MethodGet, "/transactions/"+created.OrderID+"/reservation", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatePending, decode[models.Reservation](t, rec).State)

	paid := `{"transactionId":"` + created.OrderID + `","status":"paid","paidVia":"qris"}`
	for i := 0; i < 2; i++ {
		rec = s.webhook(t, paid)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decode[handlers.OutcomeResponse](t, rec)
		assert.Equal(t, models.StateCommitted, out.State)
		assert.Empty(t, out.Error)
	}

	rec = s.admin(t, http.MethodGet, "/admin/vouchers/save10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Voucher](t, rec).Uses)

	// capacity is gone: the next buyer pays full price
	rec = s.do(t, http.MethodPost, "/transactions", `{"amount":10000,"deviceId":"other-device","voucherCode":"SAVE10"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created = decode[handlers.CreateTransactionResponse](t, rec)
	assert.False(t, created.Quote.Reserved())
	assert.EqualValues(t, 10000, created.Quote.AmountFinal)
	assert.NotEmpty(t, created.OrderID)
}

func TestCancelAndAbandonedWebhook(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})
	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/admin/vouchers", save10).Code)

	create := func() string {
		rec := s.do(t, http.MethodPost, "/transactions", `{"amount":5000,"deviceId":"device-1","voucherCode":"SAVE10"}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		return decode[handlers.CreateTransactionResponse](t, rec).OrderID
	}

	id := create()
	rec := s.do(t, http.MethodPost, "/transactions/"+id+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateReleased, decode[handlers.OutcomeResponse](t, rec).State)

	// a late paid webhook cannot revive a released reservation
	rec = s.webhook(t, `{"transactionId":"`+id+`","status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reservation_released", decode[handlers.OutcomeResponse](t, rec).Error)

	id = create()
	rec = s.webhook(t, `{"transactionId":"`+id+`","status":"expired"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateReleased, decode[handlers.OutcomeResponse](t, rec).State)

	rec = s.webhook(t, `{"transactionId":"`+id+`","status":"pending"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/transactions/missing/cancel", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviderFailureReleasesReservation(t *testing.T) {
	s := newServer(t, failingProvider{})
	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/admin/vouchers", save10).Code)

	rec := s.do(t, http.MethodPost, "/transactions", `{"amount":5000,"deviceId":"device-1","voucherCode":"SAVE10","transactionId":"tx-9"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	doc, _, err := s.store.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, doc.Reservations, "tx-9")
	assert.Equal(t, models.StateReleased, doc.Reservations["tx-9"].State)
}

func TestRequestValidation(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})

	for _, body := range []string{
		`{"amount":0,"deviceId":"d"}`,
		`{"amount":-1,"deviceId":"d"}`,
		`{"amount":10.5,"deviceId":"d"}`,
		`{"amount":100}`,
		`{"amount":100,"deviceId":"d","extra":true}`,
		`not json`,
	} {
		rec := s.do(t, http.MethodPost, "/transactions", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid_request", decode[models.ValidationResponse](t, rec).Error)
	}

	// maxUses omitted is rejected rather than read as unlimited
	rec := s.admin(t, http.MethodPut, "/admin/vouchers", `{"code":"X","percent":10,"maxRp":0,"expiresAt":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.admin(t, http.MethodPost, "/admin/vouchers/NOPE/disable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSignatureRequired(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})

	rec := s.do(t, http.MethodPost, "/webhooks/payment", `{"transactionId":"x","status":"paid"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/webhooks/payment", `{"transactionId":"x","status":"paid"}`,
		map[string]string{handlers.SignatureHeader: "00"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSurface(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})

	rec := s.do(t, http.MethodGet, "/admin/vouchers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/admin/vouchers", save10).Code)
	require.Equal(t, http.StatusOK, s.admin(t, http.MethodPut, "/admin/vouchers",
		`{"code":"ABC","percent":5,"maxRp":1000,"maxUses":null,"expiresAt":"2030-01-01T00:00:00+07:00"}`).Code)

	rec = s.admin(t, http.MethodGet, "/admin/vouchers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[handlers.VoucherListResponse](t, rec)
	require.Len(t, list.Vouchers, 2)
	assert.Equal(t, "ABC", list.Vouchers[0].Code)
	require.NotNil(t, list.Vouchers[0].ExpiresAt)
	assert.True(t, time.Date(2029, 12, 31, 17, 0, 0, 0, time.UTC).Equal(*list.Vouchers[0].ExpiresAt))

	rec = s.admin(t, http.MethodPost, "/admin/vouchers/abc/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Voucher](t, rec).Enabled)

	rec = s.admin(t, http.MethodPut, "/admin/monthly-promo",
		`{"config":{"code":"june","percent":5,"maxRp":2000,"maxUses":100}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "JUNE", decode[models.MonthlyPromo](t, rec).Code)

	rec = s.admin(t, http.MethodPut, "/admin/monthly-promo", `{"addUnlimitedDeviceId":"vip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.MonthlyPromo](t, rec).Unlimited, 1)

	rec = s.admin(t, http.MethodPut, "/admin/monthly-promo", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.admin(t, http.MethodGet, "/admin/monthly-promo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.MonthlyPromo](t, rec).Enabled)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, payment.StaticProvider{})

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "promo_http_requests_total")
}
