package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/SalahElkadim/alc/internal/model"
)

// Fingerprint hashes the client headers of a request. It is a best-effort
// device hint built from spoofable headers, not an authentication factor.
// The client IP is recorded on the session separately.
func Fingerprint(info model.ClientInfo) string {
	data, _ := json.Marshal(map[string]string{
		"accept_encoding": info.AcceptEncoding,
		"accept_language": info.AcceptLanguage,
		"user_agent":      info.UserAgent,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ClientInfoFromRequest(r *http.Request) model.ClientInfo {
	return model.ClientInfo{
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		IP:             ClientIP(r),
	}
}
