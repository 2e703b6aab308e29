package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/payments-service/internal/config"
	"github.com/storefront/payments-service/internal/gateway"
	"github.com/storefront/payments-service/internal/signature"
)

func tokenRouter(gatewayURL string) *gin.Engine {
	cfg := &config.Config{
		MerchantID:     "M123",
		MerchantKey:    "tok-key",
		MerchantSalt:   "tok-salt",
		GatewayURL:     gatewayURL,
		GatewayTimeout: 2 * time.Second,
		Currency:       "TL",
	}
	client := gateway.NewClient(cfg, signature.New(cfg.MerchantKey, cfg.MerchantSalt), nil)

	r := gin.New()
	r.POST("/checkout/token", NewTokenHandler(client).IssueToken)
	return r
}

func postToken(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueTokenEndpointSuccess(t *testing.T) {
	var gotAmount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotAmount = r.PostFormValue("payment_amount")
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "token": "tok-42"})
	}))
	defer srv.Close()

	r := tokenRouter(srv.URL)
	w := postToken(r, `{
		"order_id": "ORD-1",
		"amount": "520.00",
		"email": "buyer@example.com",
		"basket": [["Widget", "260.00", 2]]
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "tok-42", resp["token"])
	assert.Equal(t, "52000", gotAmount, "decimal amount must reach the gateway in minor units")
}

func TestIssueTokenEndpointGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "reason": "basket invalid"})
	}))
	defer srv.Close()

	r := tokenRouter(srv.URL)
	w := postToken(r, `{"order_id": "ORD-2", "amount": "100"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "basket invalid", resp["message"])
}

func TestIssueTokenEndpointInvalidBody(t *testing.T) {
	r := tokenRouter("http://unused")

	w := postToken(r, `{"amount": "100"}`) // missing order_id
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postToken(r, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueTokenEndpointUnreachableGateway(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	r := tokenRouter(srv.URL)
	w := postToken(r, `{"order_id": "ORD-3", "amount": "100"}`)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
