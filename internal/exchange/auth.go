package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"sniper-engine/internal/config"
)

// Auth signs REST requests with HMAC-SHA256 over
// "timestamp + method + path [+ body]", keyed by the configured API
// secret. This is the generic spot-exchange analogue of the teacher's
// L2 HMAC signing — the EIP-712/wallet-proxy half of the teacher's auth
// layer has no counterpart here (see DESIGN.md).
type Auth struct {
	apiKey    string
	apiSecret string
}

// NewAuth creates an Auth from market credentials.
func NewAuth(cfg config.MarketConfig) *Auth {
	return &Auth{apiKey: cfg.APIKey, apiSecret: cfg.APISecret}
}

// Headers produces the signed request headers for method+path+body.
func (a *Auth) Headers(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := a.sign(timestamp, method, path, body)

	return map[string]string{
		"X-API-KEY":   a.apiKey,
		"X-TIMESTAMP": timestamp,
		"X-SIGNATURE": sig,
	}
}

func (a *Auth) sign(timestamp, method, path, body string) string {
	message := timestamp + method + path + body
	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
