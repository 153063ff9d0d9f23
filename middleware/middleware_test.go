package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	goRemote "github.com/MrEthical07/goRemote"
	"github.com/MrEthical07/goRemote/jwt"
)

func newManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestGuard(t *testing.T) {
	m := newManager(t)
	sshToken, err := m.Issue("agent-1", jwt.ScopeSSH)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotPrincipal string
	h := Guard(m, jwt.ScopeSSH)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
		}
		gotPrincipal = claims.Principal()
		w.WriteHeader(http.StatusNoContent)
	}))
	tcpOnly := Guard(m, jwt.ScopeTCP)(http.NotFoundHandler())

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		want    int
	}{
		{"valid", h, "Bearer " + sshToken, http.StatusNoContent},
		{"lowercase scheme", h, "bearer " + sshToken, http.StatusNoContent},
		{"missing header", h, "", http.StatusUnauthorized},
		{"wrong scheme", h, "Basic abc", http.StatusUnauthorized},
		{"garbage token", h, "Bearer not-a-token", http.StatusUnauthorized},
		{"missing scope", tcpOnly, "Bearer " + sshToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ssh/exec", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if gotPrincipal != "agent-1" {
		t.Fatalf("principal = %q", gotPrincipal)
	}
}

func TestGuardNilManagerRejects(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil, jwt.ScopeSSH)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = goRemote.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatal("response header must echo the request id")
	}

	const clientID = "6f1c1c1e-0d57-4f43-9a52-2f7c1d1b7d10"
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, clientID)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != clientID {
		t.Fatalf("expected client id kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, "drop table; --")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "drop table; --" {
		t.Fatal("malformed client id must be replaced")
	}
}
