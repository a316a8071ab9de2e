// Package proxy implements the BookMyShow relay endpoints. They forward the
// browser's credential requests to BookMyShow server side, adding the app
// code header, and pass the upstream status and JSON body back unchanged.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"

	"github.com/taar-app/ticketsync/pkg/httputil"
	"github.com/taar-app/ticketsync/pkg/logger"
	"github.com/taar-app/ticketsync/pkg/middleware"
	"github.com/taar-app/ticketsync/pkg/validator"
)

// Default BookMyShow endpoints.
const (
	DefaultTokenURL   = "https://in.bookmyshow.com/api/le-diy/auth/token"
	DefaultProfileURL = "https://in.bookmyshow.com/api/le-diy/user/profile"
	DefaultAppCode    = "DIY"
)

// HeaderAppCode identifies the calling app to BookMyShow.
const HeaderAppCode = "x-bms-le-app-code"

const (
	msgMethodNotAllowed = "Method not allowed"
	msgInvalidJSON      = "Invalid JSON payload"
	msgMissingToken     = "Missing access token"
	msgUnreachable      = "Unable to reach BookMyShow. Please try again later."
)

const maxUpstreamBody = 1 << 20

var upstreamRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_upstream_requests_total",
		Help: "Total number of relay requests forwarded upstream by operation and status class",
	},
	[]string{"operation", "status"},
)

// Doer sends an upstream request. *httpclient.CircuitBreakerClient
// satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the upstream endpoints.
type Config struct {
	TokenURL   string
	ProfileURL string
	AppCode    string
}

// DefaultConfig returns the production BookMyShow endpoints.
func DefaultConfig() Config {
	return Config{
		TokenURL:   DefaultTokenURL,
		ProfileURL: DefaultProfileURL,
		AppCode:    DefaultAppCode,
	}
}

// Handler serves the relay endpoints.
type Handler struct {
	upstream Doer
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates the relay handler.
func NewHandler(upstream Doer, cfg Config, logger *slog.Logger) *Handler {
	if cfg.AppCode == "" {
		cfg.AppCode = DefaultAppCode
	}
	return &Handler{upstream: upstream, cfg: cfg, logger: logger}
}

// Register mounts the relay endpoints on r under /relay with the open relay
// CORS policy. Every method reaches the handlers so that non-POST requests
// get the relay's own 405 body.
func (h *Handler) Register(r chi.Router) {
	r.Route("/relay", func(r chi.Router) {
		r.Use(middleware.CORS(middleware.RelayCORSConfig()))
		r.HandleFunc("/bms-token", h.Token)
		r.HandleFunc("/bms-profile", h.Profile)
	})
}

type message struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Token forwards a token request body verbatim to the BookMyShow token
// endpoint.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.cfg.TokenURL, bytes.NewReader(payload))
	if err != nil {
		h.unreachable(w, r, "token", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	h.forward(w, r, "token", req)
}

// Profile exchanges an access token for the account profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	token := gjson.GetBytes(payload, "accessToken")
	if !token.Exists() || token.Type == gjson.Null || token.Type == gjson.False || token.String() == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, message{Message: msgMissingToken})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.cfg.ProfileURL, http.NoBody)
	if err != nil {
		h.unreachable(w, r, "profile", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token.String())
	h.forward(w, r, "profile", req)
}

// readPayload enforces POST and reads a JSON body. An empty body is "{}".
func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, message{Message: msgMethodNotAllowed})
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, validator.MaxBodyBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, message{Message: msgInvalidJSON})
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}"), true
	}
	if !json.Valid(body) {
		httputil.WriteJSON(w, http.StatusBadRequest, message{Message: msgInvalidJSON})
		return nil, false
	}
	return body, true
}

// forward sends req upstream and relays its status and body. A body that is
// not JSON is replaced by "{}".
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, operation string, req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set(HeaderAppCode, h.cfg.AppCode)

	resp, err := h.upstream.Do(r.Context(), req)
	if err != nil {
		h.unreachable(w, r, operation, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil || !json.Valid(body) {
		body = []byte("{}")
	}

	upstreamRequestsTotal.WithLabelValues(operation, statusClass(resp.StatusCode)).Inc()
	logger.FromContext(r.Context()).DebugContext(r.Context(), "relay forwarded",
		slog.String("operation", operation),
		slog.Int("status", resp.StatusCode),
	)
	httputil.WriteJSON(w, resp.StatusCode, json.RawMessage(body))
}

func (h *Handler) unreachable(w http.ResponseWriter, r *http.Request, operation string, err error) {
	upstreamRequestsTotal.WithLabelValues(operation, "unreachable").Inc()
	h.logger.WarnContext(r.Context(), "relay upstream unreachable",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	httputil.WriteJSON(w, http.StatusBadGateway, message{Message: msgUnreachable, Detail: err.Error()})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
