package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shortontech/showfor/internal/event"
)

// SignatureHeader carries the hex HMAC-SHA256 of a request body, optionally
// prefixed with "sha256=".
const SignatureHeader = "X-ShowFor-Signature"

// HMACAuth verifies signed detection posts.
type HMACAuth struct {
	secret     []byte
	trustProxy bool
	logger     *slog.Logger
}

// NewHMACAuth returns nil when secret is empty, which disables checks.
func NewHMACAuth(secret string, trustProxy bool, logger *slog.Logger) *HMACAuth {
	if secret == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HMACAuth{secret: []byte(secret), trustProxy: trustProxy, logger: logger}
}

// Sign returns the signature of payload.
func (h *HMACAuth) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify validates the signature header of r against payload.
func (h *HMACAuth) Verify(r *http.Request, payload []byte) bool {
	provided := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(SignatureHeader)), "sha256=")
	if provided == "" {
		h.logger.Debug("signature missing", "path", r.URL.Path)
		return false
	}

	// hex decoding first keeps the comparison case-insensitive.
	got, err := hex.DecodeString(provided)
	if err != nil {
		h.logger.Debug("signature malformed", "path", r.URL.Path)
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		h.logger.Warn("signature mismatch", "client", event.ClientIP(r, h.trustProxy), "path", r.URL.Path)
		return false
	}
	return true
}
