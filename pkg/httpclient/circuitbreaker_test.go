package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taar-app/ticketsync/pkg/logger"
)

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      100 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func statusServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"message":"upstream"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &hits)

	cb := NewCircuitBreakerClient(New(DefaultConfig()), testCBConfig("cb-closed"), logger.Discard())

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.NoError(t, cb.Ready(context.Background()))
}

func TestCircuitBreaker_PassesThrough5xx(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadGateway)
	srv := statusServer(t, &status, &hits)

	cb := NewCircuitBreakerClient(New(DefaultConfig()), testCBConfig("cb-passthrough"), logger.Discard())

	resp, err := cb.Post(context.Background(), srv.URL, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := statusServer(t, &status, &hits)

	cb := NewCircuitBreakerClient(New(DefaultConfig()), testCBConfig("cb-trip"), logger.Discard())
	ctx := context.Background()

	for range 3 {
		resp, err := cb.Get(ctx, srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Error(t, cb.Ready(ctx))

	_, err := cb.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load())

	status.Store(http.StatusOK)
	time.Sleep(150 * time.Millisecond)

	resp, err := cb.Get(ctx, srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_4xxNotCountedAsFailure(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := statusServer(t, &status, &hits)

	cb := NewCircuitBreakerClient(New(DefaultConfig()), testCBConfig("cb-4xx"), logger.Discard())

	for range 5 {
		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("bookmyshow")
	assert.Equal(t, "bookmyshow", cfg.Name)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.Equal(t, 0.5, cfg.FailureRatio)
}

func TestCircuitBreaker_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(New(DefaultConfig()), testCBConfig("cb-cancel"), logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cb.Get(ctx, srv.URL)
	assert.Error(t, err)
}
