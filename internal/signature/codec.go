package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// Codec signs and verifies the gateway's canonical field concatenations with
// HMAC-SHA256 keyed by the merchant key. The gateway defines the field order;
// any reordering invalidates every signature, so the canonical builders below
// are the only places those orders appear.
type Codec struct {
	key  []byte
	salt string
}

func New(merchantKey, merchantSalt string) *Codec {
	return &Codec{key: []byte(merchantKey), salt: merchantSalt}
}

// Sign returns the base64-encoded HMAC-SHA256 of canonical.
func (c *Codec) Sign(canonical string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for canonical and compares it to the
// presented one in constant time.
func (c *Codec) Verify(canonical, presented string) bool {
	expected := c.Sign(canonical)
	return hmac.Equal([]byte(expected), []byte(presented))
}

// TokenParams are the signed fields of a payment-initiation request, in the
// gateway's documented concatenation order.
type TokenParams struct {
	MerchantID     string
	ClientIP       string
	OrderID        string
	Email          string
	Amount         int64
	BasketB64      string
	NoInstallment  int
	MaxInstallment int
	Currency       string
	TestMode       bool
}

// TokenCanonical concatenates the token-request fields, with the merchant
// salt appended last before hashing.
func (c *Codec) TokenCanonical(p TokenParams) string {
	test := "0"
	if p.TestMode {
		test = "1"
	}
	return p.MerchantID +
		p.ClientIP +
		p.OrderID +
		p.Email +
		strconv.FormatInt(p.Amount, 10) +
		p.BasketB64 +
		strconv.Itoa(p.NoInstallment) +
		strconv.Itoa(p.MaxInstallment) +
		p.Currency +
		test +
		c.salt
}

// CallbackCanonical concatenates the callback fields: order id, merchant
// salt, reported status, reported amount. Status and amount are taken as the
// raw form values so that verification covers exactly the bytes the gateway
// signed.
func (c *Codec) CallbackCanonical(orderID, status, totalAmount string) string {
	return orderID + c.salt + status + totalAmount
}
