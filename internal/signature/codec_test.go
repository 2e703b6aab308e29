package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	c := New("merchant-key", "merchant-salt")

	canonical := c.CallbackCanonical("ORD-1001", "success", "52000")
	sig := c.Sign(canonical)

	require.NotEmpty(t, sig)
	assert.True(t, c.Verify(canonical, sig))
}

func TestVerifyRejectsTamperedInput(t *testing.T) {
	c := New("merchant-key", "merchant-salt")

	canonical := c.CallbackCanonical("ORD-1001", "success", "52000")
	sig := c.Sign(canonical)

	// Flipping any single input byte must break verification.
	assert.False(t, c.Verify(c.CallbackCanonical("ORD-1002", "success", "52000"), sig))
	assert.False(t, c.Verify(c.CallbackCanonical("ORD-1001", "failure", "52000"), sig))
	assert.False(t, c.Verify(c.CallbackCanonical("ORD-1001", "success", "52001"), sig))

	tampered := []byte(sig)
	tampered[0] ^= 0x01
	assert.False(t, c.Verify(canonical, string(tampered)))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	canonical := New("key-a", "salt").CallbackCanonical("ORD-1", "success", "100")
	sig := New("key-a", "salt").Sign(canonical)

	assert.False(t, New("key-b", "salt").Verify(canonical, sig))
}

func TestSignMatchesReferenceHMAC(t *testing.T) {
	c := New("secret", "salt")
	canonical := "ORD-9saltsuccess100"

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(canonical))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, c.Sign(canonical))
}

func TestTokenCanonicalFieldOrder(t *testing.T) {
	c := New("key", "SALT")
	p := TokenParams{
		MerchantID:     "M123",
		ClientIP:       "10.0.0.1",
		OrderID:        "ORD-7",
		Email:          "a@b.co",
		Amount:         52000,
		BasketB64:      "QkFTS0VU",
		NoInstallment:  0,
		MaxInstallment: 12,
		Currency:       "TL",
		TestMode:       true,
	}

	assert.Equal(t, "M12310.0.0.1ORD-7a@b.co52000QkFTS0VU012TL1SALT", c.TokenCanonical(p))
}

func TestCallbackCanonicalFieldOrder(t *testing.T) {
	c := New("key", "SALT")
	assert.Equal(t, "ORD-7SALTsuccess52000", c.CallbackCanonical("ORD-7", "success", "52000"))
}
