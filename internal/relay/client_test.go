package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taar-app/ticketsync/pkg/httpclient"
	"github.com/taar-app/ticketsync/pkg/logger"
)

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newClient(t *testing.T, h http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/relay"
	return New(httpclient.New(httpclient.DefaultConfig()), cfg, logger.Discard())
}

func TestCall_Success(t *testing.T) {
	var gotPath, gotContentType, gotHeader string
	var gotBody map[string]any
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("x-custom")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"data":{"accessToken":"abc"}}`)
	})
	c := newClient(t, h, Config{Name: "test", Headers: map[string]string{"x-custom": "yes"}})

	out := c.Call(context.Background(), "bms-token", map[string]string{"grantType": "password"})

	require.True(t, out.OK)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "abc", out.Get("data.accessToken").String())
	assert.JSONEq(t, `{"accessToken":"abc"}`, string(out.Data()))
	assert.Equal(t, "/relay/bms-token", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, "password", gotBody["grantType"])
}

func TestCall_Classification(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:     "relay error with code",
			cfg:      Config{CodePath: "errors.code"},
			status:   http.StatusUnauthorized,
			body:     `{"message":"Invalid OTP","errors":{"code":"ERR.OTP.INVALID"}}`,
			wantMsg:  "Invalid OTP",
			wantCode: "ERR.OTP.INVALID",
		},
		{
			name:    "relay error without message",
			cfg:     Config{CodePath: "errors.code"},
			status:  http.StatusBadRequest,
			body:    `{}`,
			wantMsg: "Request failed.",
		},
		{
			name:    "unparsable body",
			cfg:     Config{},
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantMsg: "Request failed.",
		},
		{
			name:     "luma error shape",
			cfg:      Config{CodePath: "error", Fallback: StatusFallback},
			status:   http.StatusBadRequest,
			body:     `{"message":"Invalid phone number","error":"invalid-phone"}`,
			wantMsg:  "Invalid phone number",
			wantCode: "invalid-phone",
		},
		{
			name:    "status fallback",
			cfg:     Config{CodePath: "error", Fallback: StatusFallback},
			status:  http.StatusTooManyRequests,
			body:    ``,
			wantMsg: "HTTP 429",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, respond(tt.status, tt.body), tt.cfg)

			out := c.Call(context.Background(), "op", struct{}{})

			assert.False(t, out.OK)
			assert.False(t, out.Transport())
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Equal(t, tt.wantCode, out.Code)
		})
	}
}

func TestCall_EmptySuccessBody(t *testing.T) {
	c := newClient(t, respond(http.StatusNoContent, ""), Config{})

	out := c.Call(context.Background(), "op", nil)

	require.True(t, out.OK)
	assert.Equal(t, "{}", string(out.Body))
	assert.Nil(t, out.Data())
}

type errDoer struct{}

func (errDoer) Do(context.Context, *http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestCall_TransportFailure(t *testing.T) {
	c := New(errDoer{}, Config{Name: "test", BaseURL: "http://relay.invalid"}, logger.Discard())

	out := c.Call(context.Background(), "bms-token", struct{}{})

	assert.False(t, out.OK)
	assert.True(t, out.Transport())
	assert.Zero(t, out.Status)
	assert.Equal(t, "Request failed.", out.Message)
}

func TestCall_UnencodablePayload(t *testing.T) {
	c := New(errDoer{}, Config{BaseURL: "http://relay.invalid"}, logger.Discard())

	out := c.Call(context.Background(), "op", make(chan int))

	assert.True(t, out.Transport())
}

func TestNormalizeBody(t *testing.T) {
	assert.Equal(t, "{}", string(normalizeBody(nil)))
	assert.Equal(t, "{}", string(normalizeBody([]byte("null"))))
	assert.Equal(t, "{}", string(normalizeBody([]byte(`"text"`))))
	assert.Equal(t, `[1]`, string(normalizeBody([]byte(`[1]`))))
	assert.Equal(t, `{"a":1}`, string(normalizeBody([]byte(`{"a":1}`))))
}

func TestCall_ForwardClientIP(t *testing.T) {
	tests := []struct {
		name    string
		forward bool
		ip      string
		want    string
	}{
		{"forwarded", true, "198.51.100.7", "198.51.100.7"},
		{"not configured", false, "198.51.100.7", ""},
		{"no address", true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("X-Forwarded-For")
				_, _ = io.WriteString(w, `{}`)
			})
			c := newClient(t, h, Config{Name: "test", ForwardClientIP: tt.forward})

			out := c.Call(WithClientIP(context.Background(), tt.ip), "op", struct{}{})

			require.True(t, out.OK)
			assert.Equal(t, tt.want, got)
		})
	}
}
