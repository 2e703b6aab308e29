package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/storefront/payments-service/internal/config"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/signature"
)

// ErrUnreachable wraps transport-level failures (connection refused, timeout)
// so callers can distinguish "gateway said no" from "gateway never answered".
var ErrUnreachable = errors.New("payment gateway unreachable")

// RejectionError carries the gateway's own rejection reason.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("payment gateway rejected token request: %s", e.Reason)
}

// Placeholder contact fields used when checkout supplied none. The gateway
// requires these to be non-empty; they never feed any amount or accounting
// field.
const (
	placeholderEmail   = "unknown@example.invalid"
	placeholderName    = "Guest Customer"
	placeholderAddress = "N/A"
	placeholderPhone   = "0000000000"
)

// Draft is the order information the checkout flow hands to token issuance.
// Amount is either a minor-unit integer string or a decimal string.
type Draft struct {
	OrderID  string
	Amount   string
	Email    string
	Name     string
	Address  string
	Phone    string
	ClientIP string
	Items    []models.LineItem
	// BasketB64 overrides Items when the checkout already encoded the basket.
	BasketB64 string
}

// Client issues one-time payment session tokens against the external gateway.
// It never touches the order store; the token only renders the payment UI.
type Client struct {
	cfg   *config.Config
	codec *signature.Codec
	http  *http.Client
}

func NewClient(cfg *config.Config, codec *signature.Codec, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.GatewayTimeout}
	}
	return &Client{cfg: cfg, codec: codec, http: hc}
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// IssueToken builds, signs and sends the payment-initiation request. It blocks
// for at most the configured gateway timeout and does not retry; the caller
// decides whether to re-invoke.
func (c *Client) IssueToken(ctx context.Context, draft Draft) (string, error) {
	req, err := c.BuildRequest(draft)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("merchant_id", c.cfg.MerchantID)
	form.Set("user_ip", req.ClientIP)
	form.Set("merchant_oid", req.MerchantOrderID)
	form.Set("email", req.Email)
	form.Set("payment_amount", strconv.FormatInt(req.Amount, 10))
	form.Set("paytr_token", req.Signature)
	form.Set("user_basket", req.BasketB64)
	form.Set("no_installment", "0")
	form.Set("max_installment", "0")
	form.Set("user_name", req.Name)
	form.Set("user_address", req.Address)
	form.Set("user_phone", req.Phone)
	form.Set("merchant_ok_url", c.cfg.OKRedirectURL)
	form.Set("merchant_fail_url", c.cfg.ErrRedirectURL)
	form.Set("currency", c.cfg.Currency)
	form.Set("timeout_limit", "30")
	if c.cfg.TestMode {
		form.Set("test_mode", "1")
	} else {
		form.Set("test_mode", "0")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RejectionError{Reason: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding gateway response: %w", err)
	}
	if out.Status != "success" {
		return "", &RejectionError{Reason: out.Reason}
	}
	if out.Token == "" {
		return "", &RejectionError{Reason: "gateway returned empty token"}
	}
	return out.Token, nil
}

// BuildRequest normalizes the draft into a signed TokenRequest without
// sending it. Exposed separately so the signing path is testable against
// known vectors.
func (c *Client) BuildRequest(draft Draft) (*models.TokenRequest, error) {
	if draft.OrderID == "" {
		return nil, errors.New("order id required")
	}

	amount, err := NormalizeAmount(draft.Amount)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errors.New("payment amount must be positive")
	}

	basket := draft.BasketB64
	if basket == "" {
		basket, err = EncodeBasket(draft.Items, amount)
		if err != nil {
			return nil, err
		}
	}

	req := &models.TokenRequest{
		MerchantOrderID: draft.OrderID,
		Amount:          amount,
		BasketB64:       basket,
		Email:           fallback(draft.Email, placeholderEmail),
		Name:            fallback(draft.Name, placeholderName),
		Address:         fallback(draft.Address, placeholderAddress),
		Phone:           fallback(draft.Phone, placeholderPhone),
		ClientIP:        draft.ClientIP,
	}

	req.Signature = c.codec.Sign(c.codec.TokenCanonical(signature.TokenParams{
		MerchantID:     c.cfg.MerchantID,
		ClientIP:       req.ClientIP,
		OrderID:        req.MerchantOrderID,
		Email:          req.Email,
		Amount:         req.Amount,
		BasketB64:      req.BasketB64,
		NoInstallment:  0,
		MaxInstallment: 0,
		Currency:       c.cfg.Currency,
		TestMode:       c.cfg.TestMode,
	}))

	return req, nil
}

// NormalizeAmount converts an amount string to minor currency units. Decimal
// strings are multiplied by 100 and rounded to the nearest integer; integer
// strings pass through as already being in minor units.
func NormalizeAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("payment amount required")
	}
	if strings.ContainsAny(s, ".,") {
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid payment amount %q", s)
		}
		return int64(math.Round(f * 100)), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid payment amount %q", s)
	}
	return n, nil
}

// EncodeBasket serializes line items as the gateway's [name, price, qty]
// triples and base64-encodes the JSON. An empty basket becomes a single
// synthetic line covering the full amount, since the gateway rejects empty
// baskets.
func EncodeBasket(items []models.LineItem, amount int64) (string, error) {
	if len(items) == 0 {
		items = []models.LineItem{{
			Name:      "Order",
			UnitPrice: fmt.Sprintf("%d.%02d", amount/100, amount%100),
			Quantity:  1,
		}}
	}

	triples := make([][3]any, 0, len(items))
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		triples = append(triples, [3]any{it.Name, it.UnitPrice, qty})
	}

	raw, err := json.Marshal(triples)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
