package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/taar-app/ticketsync/internal/bookmyshow"
	"github.com/taar-app/ticketsync/internal/config"
	"github.com/taar-app/ticketsync/internal/handler"
	"github.com/taar-app/ticketsync/internal/link"
	"github.com/taar-app/ticketsync/internal/luma"
	"github.com/taar-app/ticketsync/internal/proxy"
	"github.com/taar-app/ticketsync/internal/relay"
	"github.com/taar-app/ticketsync/internal/session"
	"github.com/taar-app/ticketsync/pkg/health"
	"github.com/taar-app/ticketsync/pkg/httpclient"
	"github.com/taar-app/ticketsync/pkg/kafka"
	"github.com/taar-app/ticketsync/pkg/middleware"
	"github.com/taar-app/ticketsync/pkg/tracing"
)

// App wires together all dependencies and runs the ticketsync service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	sessions       *session.Store
	producer       *kafka.Producer
	tracerShutdown func(context.Context) error

	// background bounds the session sweeper and the rate limiter sweep.
	background context.Context
	stop       context.CancelFunc
}

// NewApp creates a new application instance with the relay endpoints,
// both provider flows and the session API wired.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	routerCfg := handler.RouterConfig{
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.PprofEnabled {
		allowed, err := middleware.ParsePrefixes(cfg.PprofAllowedCIDRs)
		if err != nil {
			return nil, fmt.Errorf("pprof allowlist: %w", err)
		}
		routerCfg.PprofAllowed = allowed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "ticketsync",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Relay endpoints: BookMyShow behind a circuit breaker.
	bmsUpstream := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: cfg.BMSTimeout, MaxConnsPerHost: 32}),
		httpclient.DefaultCircuitBreakerConfig("bookmyshow"),
		logger,
	)
	healthHandler.Register("bookmyshow", bmsUpstream.Ready)
	relayHandler := proxy.NewHandler(bmsUpstream, proxy.Config{
		TokenURL:   cfg.BMSTokenURL,
		ProfileURL: cfg.BMSProfileURL,
		AppCode:    cfg.BMSAppCode,
	}, logger)

	// account_linked events, when a broker is configured.
	var notifier link.Notifier = link.NopNotifier{}
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		notifier = link.NewEventNotifier(producer, logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// BookMyShow flows go through the relay like the browser did.
	relayClientCfg := httpclient.DefaultConfig()
	relayClientCfg.Timeout = cfg.BMSTimeout + 5*time.Second
	bmsRelay := relay.New(httpclient.New(relayClientCfg), bookmyshow.RelayConfig(cfg.RelayBaseURL), logger)
	bmsProvider := bookmyshow.NewProvider(bmsRelay, link.Passthrough{}, notifier, logger)

	// Luma flows call the API directly. Each session has its own cookie jar
	// over a shared transport.
	lumaTransport := httpclient.NewTransport(32)
	newLuma := func() session.Flow {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			// cookiejar.New only fails on invalid options.
			panic(err)
		}
		client := httpclient.New(httpclient.Config{
			Timeout:   cfg.LumaTimeout,
			Jar:       jar,
			Transport: lumaTransport,
		})
		api := relay.New(client, luma.RelayConfig(cfg.LumaAPIBaseURL, cfg.LumaClientVersion), logger)
		return luma.NewController(luma.NewProvider(api, notifier, logger), logger)
	}

	sessions := session.NewStore(map[string]session.Factory{
		bookmyshow.Name: func() session.Flow { return bookmyshow.NewController(bmsProvider, logger) },
		luma.Name:       newLuma,
	}, session.Config{TTL: cfg.SessionTTL, MaxSessions: cfg.SessionMax}, logger)

	background, stop := context.WithCancel(context.Background())
	router := handler.NewRouter(background, routerCfg, relayHandler,
		handler.NewSessionHandler(sessions, logger), healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		httpServer:     httpServer,
		sessions:       sessions,
		producer:       producer,
		tracerShutdown: tracerShutdown,
		background:     background,
		stop:           stop,
	}, nil
}

// Run starts the HTTP server and the session sweeper and blocks until ctx
// is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	sweeperDone := make(chan struct{})
	go func() {
		a.sessions.Run(a.background, a.cfg.SessionSweepInterval)
		close(sweeperDone)
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	err := a.Shutdown()
	<-sweeperDone
	return errors.Join(runErr, err)
}

// Shutdown stops the service in order:
// 1. HTTP server (drain in-flight requests)
// 2. Sessions and background sweeps
// 3. Kafka producer (flush account_linked events from drained requests)
// 4. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.stop()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
