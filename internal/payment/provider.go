// Package payment is the seam to the QR payment provider and its webhooks.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// Error is the class of provider failures.
var Error = errs.Class("payment provider")

// QRRequest asks the provider for a payable QR code.
type QRRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

// QR is the provider's answer.
type QR struct {
	OrderID   string    `json:"order_id"`
	Payload   string    `json:"qr_string"`
	ImageURL  string    `json:"qr_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Provider creates QR codes for an amount.
type Provider interface {
	CreateQR(ctx context.Context, req QRRequest) (QR, error)
}

// HTTPProvider implements Provider against a JSON HTTP endpoint.
type HTTPProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewHTTPProvider constructs a provider client with a 10s timeout.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateQR implements Provider.
func (p *HTTPProvider) CreateQR(ctx context.Context, req QRRequest) (QR, error) {
	if p == nil || p.baseURL == "" {
		return QR{}, Error.New("not configured")
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return QR{}, Error.Wrap(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/qr", bytes.NewReader(buf))
	if err != nil {
		return QR{}, Error.Wrap(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.http.Do(httpReq)
	if err != nil {
		return QR{}, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return QR{}, Error.New("create qr failed: status=%d", resp.StatusCode)
	}
	var qr QR
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return QR{}, Error.Wrap(err)
	}
	if qr.OrderID == "" {
		qr.OrderID = req.OrderID
	}
	return qr, nil
}

// StaticProvider returns a placeholder QR payload without calling anyone.
// It is used when no provider endpoint is configured.
type StaticProvider struct{}

// CreateQR implements Provider.
func (StaticProvider) CreateQR(_ context.Context, req QRRequest) (QR, error) {
	return QR{OrderID: req.OrderID, Payload: fmt.Sprintf("QRIS:%s:%d", req.OrderID, req.Amount)}, nil
}

// Status is a payment status reported by the provider webhook.
type Status string

// Webhook statuses.
const (
	StatusPaid      Status = "paid"
	StatusPending   Status = "pending"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Event is the webhook payload.
type Event struct {
	TransactionID string     `json:"transactionId" validate:"required"`
	Status        Status     `json:"status" validate:"required"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	PaidVia       string     `json:"paidVia,omitempty"`
}

// Normalized returns the status lower-cased, mapping provider synonyms.
func (e Event) Normalized() Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(string(e.Status)))); s {
	case "settlement", "success", "succeeded", "completed":
		return StatusPaid
	case "canceled":
		return StatusCancelled
	case "expire":
		return StatusExpired
	case "deny", "denied":
		return StatusFailed
	default:
		return s
	}
}

// Paid reports whether the payment went through.
func (e Event) Paid() bool { return e.Normalized() == StatusPaid }

// Abandoned reports whether the payment reached a terminal non-paid status.
func (e Event) Abandoned() bool {
	switch e.Normalized() {
	case StatusExpired, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time.
func VerifySignature(secret, body []byte, signature string) bool {
	if strings.TrimSpace(signature) == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
