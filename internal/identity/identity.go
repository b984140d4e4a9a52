// Package identity derives stable, non-reversible pseudonyms for paying
// devices.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/zeebo/errs"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// ErrNoPepper is returned when no server secret is configured. Derivation
// refuses to run rather than fall back to a guessable scheme.
var ErrNoPepper = errs.Class("device pepper not configured")

// Signals are the client supplied inputs to device identity.
type Signals struct {
	DeviceID  string
	IP        string
	UserAgent string
}

// Deriver turns device signals into a device key.
type Deriver interface {
	DeviceKey(Signals) (string, error)
}

// Strategy names accepted by New.
const (
	StrategyDevice      = "device"
	StrategyFingerprint = "fingerprint"
)

// New returns the deriver for strategy.
func New(strategy, pepper string) (Deriver, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyDevice:
		d, err := NewHMACDeriver(pepper)
		if err != nil {
			return nil, err
		}
		return d, nil
	case StrategyFingerprint:
		d, err := NewFingerprintDeriver(pepper)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, models.ErrValidation.New("unknown device strategy %q", strategy)
	}
}

// HMACDeriver keys the device id alone.
type HMACDeriver struct {
	pepper []byte
}

// NewHMACDeriver returns a deriver keyed by pepper.
func NewHMACDeriver(pepper string) (*HMACDeriver, error) {
	if strings.TrimSpace(pepper) == "" {
		return nil, ErrNoPepper.New("")
	}
	return &HMACDeriver{pepper: []byte(pepper)}, nil
}

// DeviceKey implements Deriver.
func (d *HMACDeriver) DeviceKey(s Signals) (string, error) {
	if d == nil || len(d.pepper) == 0 {
		return "", ErrNoPepper.New("")
	}
	id := strings.TrimSpace(s.DeviceID)
	if id == "" {
		return "", models.ErrValidation.New("deviceId required")
	}
	return mac(d.pepper, "device:"+id), nil
}

// FingerprintDeriver folds the network prefix and a user agent digest into
// the key. It is harder to spoof than HMACDeriver but collides for devices
// behind one NAT with identical browsers, and splits a device that roams.
type FingerprintDeriver struct {
	pepper []byte
}

// NewFingerprintDeriver returns a fingerprinting deriver keyed by pepper.
func NewFingerprintDeriver(pepper string) (*FingerprintDeriver, error) {
	if strings.TrimSpace(pepper) == "" {
		return nil, ErrNoPepper.New("")
	}
	return &FingerprintDeriver{pepper: []byte(pepper)}, nil
}

// DeviceKey implements Deriver.
func (d *FingerprintDeriver) DeviceKey(s Signals) (string, error) {
	if d == nil || len(d.pepper) == 0 {
		return "", ErrNoPepper.New("")
	}
	id := strings.TrimSpace(s.DeviceID)
	if id == "" {
		return "", models.ErrValidation.New("deviceId required")
	}
	ua := sha256.Sum256([]byte(strings.TrimSpace(s.UserAgent)))
	input := strings.Join([]string{
		"fingerprint",
		id,
		NetworkPrefix(s.IP),
		hex.EncodeToString(ua[:8]),
	}, "|")
	return mac(d.pepper, input), nil
}

// DeviceOnlyKey keys the device id alone, as HMACDeriver does. Allowlist
// entries made from a raw device id use it so they match the device from any
// network or browser.
func (d *FingerprintDeriver) DeviceOnlyKey(deviceID string) (string, error) {
	if d == nil || len(d.pepper) == 0 {
		return "", ErrNoPepper.New("")
	}
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return "", models.ErrValidation.New("deviceId required")
	}
	return mac(d.pepper, "device:"+id), nil
}

// AllowlistKey returns the key an admin allowlist entry for a raw device id
// is stored under. It never depends on network or browser signals.
func AllowlistKey(d Deriver, deviceID string) (string, error) {
	if d == nil {
		return "", ErrNoPepper.New("")
	}
	if k, ok := d.(interface {
		DeviceOnlyKey(string) (string, error)
	}); ok {
		return k.DeviceOnlyKey(deviceID)
	}
	return d.DeviceKey(Signals{DeviceID: deviceID})
}

// NetworkPrefix returns the /24 of an IPv4 address or the /48 of an IPv6
// address. Unparseable input yields "".
func NetworkPrefix(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return ip.Mask(net.CIDRMask(48, 128)).String() + "/48"
}

// Preview masks a raw device id for display.
func Preview(deviceID string) string {
	id := strings.TrimSpace(deviceID)
	if len(id) <= 8 {
		if id == "" {
			return ""
		}
		return id[:1] + "…"
	}
	return id[:4] + "…" + id[len(id)-4:]
}

func mac(pepper []byte, input string) string {
	h := hmac.New(sha256.New, pepper)
	_, _ = h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
