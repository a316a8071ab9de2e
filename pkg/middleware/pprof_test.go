package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taar-app/ticketsync/pkg/logger"
)

func mustPrefixes(t *testing.T, cidrs ...string) []netip.Prefix {
	t.Helper()
	p, err := ParsePrefixes(cidrs)
	require.NoError(t, err)
	return p
}

func TestParsePrefixes(t *testing.T) {
	p, err := ParsePrefixes([]string{" 10.1.2.3/8 ", "", "::1/128"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}, p)

	_, err = ParsePrefixes([]string{"127.0.0.0/8", "not-a-cidr"})
	assert.ErrorContains(t, err, "not-a-cidr")
}

func TestIPAllowlist(t *testing.T) {
	mw := IPAllowlist(mustPrefixes(t, "10.0.0.0/8", "192.168.0.0/16", "::1/128"), logger.Discard())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		remote string
		xff    string
		status int
	}{
		{"allowed v4", "10.1.2.3:1234", "", http.StatusOK},
		{"allowed without port", "192.168.1.1", "", http.StatusOK},
		{"allowed v6", "[::1]:1234", "", http.StatusOK},
		{"v4-mapped v6", "[::ffff:10.0.0.1]:1234", "", http.StatusOK},
		{"denied", "8.8.8.8:1234", "", http.StatusForbidden},
		{"forwarded header ignored", "8.8.8.8:1234", "10.0.0.1", http.StatusForbidden},
		{"garbage address", "nonsense", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIPAllowlist_EmptyDeniesAll(t *testing.T) {
	h := IPAllowlist(nil, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "FORBIDDEN", body["error"]["code"])
}

func TestRegisterPprof(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, mustPrefixes(t, "127.0.0.0/8"), logger.Discard())

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/symbol", "/debug/pprof/heap"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
