package middleware

import (
	"net"
	"net/http"

	"github.com/google/uuid"

	goRemote "github.com/MrEthical07/goRemote"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a UUID request id. A well-formed UUID
// sent by the client is kept; anything else is replaced. The id is echoed
// in the response header and attached for audit records and logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		} else {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(goRemote.WithRequestID(r.Context(), id)))
	})
}

// ClientIP attaches the peer address to the request for per-IP connect
// throttling. Forwarding headers are not trusted.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(goRemote.WithClientIP(r.Context(), ip)))
	})
}
