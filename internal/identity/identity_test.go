package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

func TestHMACDeriverDeterministic(t *testing.T) {
	d, err := NewHMACDeriver("pepper-1")
	require.NoError(t, err)

	a, err := d.DeviceKey(Signals{DeviceID: "device-abc"})
	require.NoError(t, err)
	b, err := d.DeviceKey(Signals{DeviceID: " device-abc "})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.NotContains(t, a, "device-abc")

	other, err := d.DeviceKey(Signals{DeviceID: "device-abd"})
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestPepperRotationChangesKeys(t *testing.T) {
	d1, err := NewHMACDeriver("pepper-1")
	require.NoError(t, err)
	d2, err := NewHMACDeriver("pepper-2")
	require.NoError(t, err)

	k1, err := d1.DeviceKey(Signals{DeviceID: "d1"})
	require.NoError(t, err)
	k2, err := d2.DeviceKey(Signals{DeviceID: "d1"})
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestFailClosedWithoutPepper(t *testing.T) {
	_, err := NewHMACDeriver("  ")
	require.True(t, ErrNoPepper.Has(err))

	_, err = New(StrategyFingerprint, "")
	require.True(t, ErrNoPepper.Has(err))

	var zero HMACDeriver
	_, err = zero.DeviceKey(Signals{DeviceID: "d1"})
	require.True(t, ErrNoPepper.Has(err))
}

func TestEmptyDeviceRejected(t *testing.T) {
	d, err := New(StrategyDevice, "pepper")
	require.NoError(t, err)
	_, err = d.DeviceKey(Signals{DeviceID: " "})
	require.True(t, models.ErrValidation.Has(err))

	_, err = New("bogus", "pepper")
	require.True(t, models.ErrValidation.Has(err))
}

func TestFingerprintFoldsNetworkAndAgent(t *testing.T) {
	d, err := NewFingerprintDeriver("pepper")
	require.NoError(t, err)

	base := Signals{DeviceID: "d1", IP: "10.1.2.3", UserAgent: "Mozilla/5.0"}
	k1, err := d.DeviceKey(base)
	require.NoError(t, err)

	sameSubnet := base
	sameSubnet.IP = "10.1.2.200"
	k2, err := d.DeviceKey(sameSubnet)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	otherSubnet := base
	otherSubnet.IP = "10.1.3.3"
	k3, err := d.DeviceKey(otherSubnet)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)

	otherAgent := base
	otherAgent.UserAgent = "curl/8"
	k4, err := d.DeviceKey(otherAgent)
	require.NoError(t, err)
	require.NotEqual(t, k1, k4)

	plain, err := NewHMACDeriver("pepper")
	require.NoError(t, err)
	k5, err := plain.DeviceKey(base)
	require.NoError(t, err)
	require.NotEqual(t, k1, k5)
}

func TestAllowlistKeyIgnoresNetworkAndAgent(t *testing.T) {
	plain, err := NewHMACDeriver("pepper")
	require.NoError(t, err)
	fingerprint, err := NewFingerprintDeriver("pepper")
	require.NoError(t, err)

	want, err := plain.DeviceKey(Signals{DeviceID: "vip"})
	require.NoError(t, err)

	got, err := AllowlistKey(plain, "vip")
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = AllowlistKey(fingerprint, " vip ")
	require.NoError(t, err)
	require.Equal(t, want, got)

	full, err := fingerprint.DeviceKey(Signals{DeviceID: "vip", IP: "203.0.113.9", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)
	require.NotEqual(t, full, got)

	_, err = AllowlistKey(nil, "vip")
	require.True(t, ErrNoPepper.Has(err))
	_, err = AllowlistKey(fingerprint, "  ")
	require.True(t, models.ErrValidation.Has(err))
}

func TestNetworkPrefix(t *testing.T) {
	require.Equal(t, "192.168.1.0/24", NetworkPrefix("192.168.1.77"))
	require.Equal(t, "2001:db8:1::/48", NetworkPrefix("2001:db8:1:2::1"))
	require.Equal(t, "", NetworkPrefix("not-an-ip"))
}

func TestPreview(t *testing.T) {
	require.Equal(t, "abcd…wxyz", Preview("abcdefghijklmnopqrstuvwxyz"))
	require.Equal(t, "s…", Preview("short"))
	require.Equal(t, "", Preview(""))
	require.False(t, strings.Contains(Preview("device-secret-1234"), "secret"))
}
