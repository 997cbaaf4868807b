// Package main is the entry point for the relay bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/relay-bot/internal/config"
	"github.com/capitalize-ai/relay-bot/internal/conversation"
	"github.com/capitalize-ai/relay-bot/internal/cooldown"
	"github.com/capitalize-ai/relay-bot/internal/discord"
	"github.com/capitalize-ai/relay-bot/internal/filter"
	"github.com/capitalize-ai/relay-bot/internal/handler"
	"github.com/capitalize-ai/relay-bot/internal/llm"
	"github.com/capitalize-ai/relay-bot/internal/middleware"
	natsclient "github.com/capitalize-ai/relay-bot/internal/nats"
	"github.com/capitalize-ai/relay-bot/internal/service"
	"github.com/capitalize-ai/relay-bot/pkg/logger"
	"github.com/capitalize-ai/relay-bot/pkg/tracing"
)

// gateway is a chat connection the bot receives messages from.
type gateway interface {
	Name() string
	Run(ctx context.Context) error
	Ready() <-chan struct{}
	Connected() bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relaybot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "relay-bot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	// Initialize LLM client
	backend, err := llm.NewBackend(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMAPIURL)
	if err != nil {
		return fmt.Errorf("failed to create LLM backend: %w", err)
	}
	llmClient := llm.NewClient(backend, llm.Config{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
	}, log)
	defer llmClient.Close()

	// Connect to NATS when the bus is the gateway or events are journaled
	var natsClient *natsclient.Client
	if cfg.Gateway == config.GatewayNATS || cfg.EventsEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "relay-bot",
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()
	}

	var opts []service.Option
	if cfg.EventsEnabled {
		if err := natsclient.EnsureStream(ctx, natsClient); err != nil {
			return err
		}
		opts = append(opts, service.WithEventSink(natsclient.NewEventJournal(natsClient)))
	}

	// Initialize services
	relay := service.NewRelay(service.RelayConfig{
		SystemPrompt:     persona.SystemPrompt,
		MaxMessageLength: cfg.MaxMessageLength,
		IdleThreshold:    cfg.IdleThreshold,
	},
		cooldown.NewGate(cfg.CooldownWindow),
		filter.New(persona.FilterConfig()),
		conversation.NewStore(cfg.MaxContext),
		llmClient,
		log,
		opts...,
	)

	router := handler.NewRouter(relay, cfg.CommandPrefix, handler.BotInfo{
		Persona:  persona.Name,
		Provider: llmClient.Provider(),
		Model:    llmClient.Model(),
	}, log)

	var gw gateway
	switch cfg.Gateway {
	case config.GatewayNATS:
		gw = natsclient.NewBridge(natsClient, natsclient.BridgeConfig{
			InboundSubject: cfg.NATSInboundSubject,
			OutboundPrefix: cfg.NATSOutboundSubject,
		}, router.HandleMessage, log)
	default:
		gw, err = discord.NewGateway(discord.Config{
			Token: cfg.DiscordToken,
		}, router.HandleMessage, log)
		if err != nil {
			return err
		}
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(gw, gw.Name())
	channelHandler := handler.NewChannelHandler(relay, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Admin routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", channelHandler.Get)
				r.With(middleware.RequireScope(middleware.ScopeAdmin)).Delete("/", channelHandler.Reset)
				r.With(middleware.RequireScope(middleware.ScopeAdmin)).Post("/messages", channelHandler.Send)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("starting relay bot",
		zap.String("gateway", gw.Name()),
		zap.String("provider", llmClient.Provider()),
		zap.String("model", llmClient.Model()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.Run(gctx)
	})

	g.Go(func() error {
		return relay.RunSweeper(gctx, cfg.IdleEvictionInterval, gw.Ready())
	})

	g.Go(func() error {
		log.Info("ops server listening", zap.String("port", cfg.OpsPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("relay bot stopped with error", zap.Error(err))
		return err
	}

	log.Info("relay bot stopped")
	return nil
}
