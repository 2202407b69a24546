package event

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// EnrichServerFields fills the fields the server can set safely.
func EnrichServerFields(r *http.Request, e *Event, trustProxy bool) {
	if e.EventID == "" {
		e.EventID = New(e.Type).EventID
	}
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Request.Method == "" {
		e.Request.Method = r.Method
	}
	if e.Request.Path == "" && r.URL != nil {
		e.Request.Path = r.URL.Path
	}
	// Referrer
	if e.Request.Referrer == "" {
		e.Request.Referrer = r.Referer()
		if u, err := url.Parse(e.Request.Referrer); err == nil && u != nil {
			e.Request.ReferrerHostname = u.Hostname()
		}
	}

	e.Server.IP = hashIP(clientIPFromRequest(r, trustProxy))
	e.Server.HeaderFingerprint = headerFingerprint(r.Header)
	e.Server.ClientHints = r.Header.Get("Sec-CH-UA-Platform") != ""
}

func hashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}

// headerFingerprint hashes the sorted header names with a short prefix of
// each value.
func headerFingerprint(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := headers.Get(key)
		if len(value) > 20 {
			value = value[:20] + "..."
		}
		parts = append(parts, key+":"+value)
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:8])
}

func clientIPFromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// ClientIP returns the client address of r, honoring forwarding headers
// only when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	return clientIPFromRequest(r, trustProxy)
}
