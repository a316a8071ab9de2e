// Package relay issues identity requests to a relay or provider endpoint and
// folds every result into a single Outcome.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/taar-app/ticketsync/pkg/tracing"
)

const maxBodyBytes = 1 << 20

var relayCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_calls_total",
		Help: "Total number of relay calls by client, operation and result",
	},
	[]string{"client", "operation", "result"},
)

// Doer sends an HTTP request. *httpclient.Client and
// *httpclient.CircuitBreakerClient both satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config describes one relay target and the shape of its error bodies.
type Config struct {
	// Name labels logs, metrics and spans.
	Name string

	// BaseURL is joined with the operation name to form the request URL.
	BaseURL string

	// Headers are sent on every request.
	Headers map[string]string

	// MessagePath and CodePath are gjson paths into a failed response body.
	MessagePath string
	CodePath    string

	// Fallback produces the message used when the body has none. status is
	// zero for transport failures.
	Fallback func(status int) string

	// ForwardClientIP sends the address stored with WithClientIP as
	// X-Forwarded-For. Only set it for relays that trust this service.
	ForwardClientIP bool
}

type clientIPKey struct{}

// WithClientIP records the address of the organiser a call is made for.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Client calls a relay. It performs no retries; retry policy belongs to the
// caller.
type Client struct {
	doer   Doer
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a relay client.
func New(doer Doer, cfg Config, logger *slog.Logger) *Client {
	if cfg.MessagePath == "" {
		cfg.MessagePath = "message"
	}
	if cfg.Fallback == nil {
		cfg.Fallback = GenericFallback
	}
	return &Client{
		doer:   doer,
		cfg:    cfg,
		logger: logger,
		tracer: tracing.Tracer("github.com/taar-app/ticketsync/internal/relay"),
	}
}

// GenericFallback is the message used by the same-origin relay when a
// failure carries no message of its own.
func GenericFallback(int) string {
	return "Request failed."
}

// StatusFallback reports the HTTP status, as direct provider calls do.
func StatusFallback(status int) string {
	if status == 0 {
		return "Request failed."
	}
	return fmt.Sprintf("HTTP %d", status)
}

// Name returns the configured client name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Call POSTs payload as JSON to the named operation and classifies the
// result. It never returns an error: every failure is an Outcome.
func (c *Client) Call(ctx context.Context, operation string, payload any) Outcome {
	ctx, span := c.tracer.Start(ctx, "relay."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("relay.client", c.cfg.Name),
			attribute.String("relay.operation", operation),
		),
	)
	defer span.End()

	out := c.call(ctx, operation, payload)

	span.SetAttributes(attribute.Int("http.status_code", out.Status))
	result := "success"
	switch {
	case out.Transport():
		result = "transport_error"
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "transport failure")
	case !out.OK:
		result = "failure"
		span.SetStatus(codes.Error, out.Message)
	}
	relayCallsTotal.WithLabelValues(c.cfg.Name, operation, result).Inc()

	c.logger.DebugContext(ctx, "relay call completed",
		slog.String("client", c.cfg.Name),
		slog.String("operation", operation),
		slog.Int("status", out.Status),
		slog.String("result", result),
		slog.String("code", out.Code),
	)
	return out
}

func (c *Client) call(ctx context.Context, operation string, payload any) Outcome {
	target, err := url.JoinPath(c.cfg.BaseURL, strings.TrimPrefix(operation, "/"))
	if err != nil {
		return c.transportFailure(ctx, operation, fmt.Errorf("build %s url: %w", operation, err))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return c.transportFailure(ctx, operation, fmt.Errorf("encode %s payload: %w", operation, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return c.transportFailure(ctx, operation, fmt.Errorf("create %s request: %w", operation, err))
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if c.cfg.ForwardClientIP {
		if ip := clientIPFrom(ctx); ip != "" {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return c.transportFailure(ctx, operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}

	return c.classify(resp.StatusCode, body)
}

// classify turns a status and raw body into an Outcome.
func (c *Client) classify(status int, body []byte) Outcome {
	if status >= 200 && status < 300 {
		return Success(status, body)
	}

	out := Failure(status, body, "", "", nil)
	out.Message = out.Get(c.cfg.MessagePath).String()
	if out.Message == "" {
		out.Message = c.cfg.Fallback(status)
	}
	if c.cfg.CodePath != "" {
		out.Code = out.Get(c.cfg.CodePath).String()
	}
	return out
}

func (c *Client) transportFailure(ctx context.Context, operation string, err error) Outcome {
	c.logger.WarnContext(ctx, "relay unreachable",
		slog.String("client", c.cfg.Name),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return Failure(0, nil, c.cfg.Fallback(0), "", err)
}
