// Package main is the entry point for the negotiation API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tetsy-ai/negotiation-platform/internal/config"
	"github.com/tetsy-ai/negotiation-platform/internal/dispatch"
	"github.com/tetsy-ai/negotiation-platform/internal/evaluator"
	"github.com/tetsy-ai/negotiation-platform/internal/handler"
	"github.com/tetsy-ai/negotiation-platform/internal/ledger"
	"github.com/tetsy-ai/negotiation-platform/internal/listing"
	"github.com/tetsy-ai/negotiation-platform/internal/llm"
	"github.com/tetsy-ai/negotiation-platform/internal/middleware"
	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/internal/responder"
	"github.com/tetsy-ai/negotiation-platform/internal/service"
	"github.com/tetsy-ai/negotiation-platform/internal/stream"
	"github.com/tetsy-ai/negotiation-platform/pkg/logger"
	"github.com/tetsy-ai/negotiation-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting negotiation API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "negotiation-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	streamClient, err := stream.Connect(ctx, stream.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer streamClient.Close()

	// Ensure the change feed stream exists
	feed := stream.NewManager(streamClient)
	if err := feed.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client for seller phrasing. Negotiation outcomes
	// never depend on it; template phrasing covers the fallback.
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, template phrasing only")
		}
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, template phrasing only")
		}
	}

	var phraser responder.Phraser = responder.Templates{}
	if llmClient != nil {
		phraser = responder.NewLLMPhraser(llmClient, cfg.ResponderModel, cfg.ResponderTimeout, log)
	}

	// Build the notification pipeline
	targets := dispatch.Multi{dispatch.NewFeedDispatcher(feed)}
	if cfg.ResponderWebhookURL != "" {
		targets = append(targets, dispatch.NewWebhookDispatcher(cfg.ResponderWebhookURL, cfg.DispatchTimeout))
	}
	dispatcher := dispatch.WithRetry(targets, cfg.DispatchMaxRetries, cfg.DispatchMaxInterval, log)

	// Initialize domain state and services
	directory := listing.NewDirectory()
	led := ledger.New()
	policy := evaluator.Policy{
		AcceptRatio: cfg.AcceptRatio,
		CounterRate: cfg.CounterRate,
	}

	sessions := service.NewSessionService(led, directory, policy, phraser, service.Options{
		Dispatcher:      dispatcher,
		Feed:            feed,
		DispatchTimeout: cfg.DispatchTimeout,
	}, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(streamClient)
	negotiationHandler := handler.NewNegotiationHandler(sessions, log)
	messageHandler := handler.NewMessageHandler(sessions, log)
	listingHandler := handler.NewListingHandler(directory, sessions, log)
	sellerHandler := handler.NewSellerHandler(sessions, log)
	eventsHandler := handler.NewEventsHandler(sessions, feed, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Negotiations
		r.Route("/negotiations", func(r chi.Router) {
			r.Post("/", negotiationHandler.Create)
			r.Get("/", negotiationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", negotiationHandler.Get)
				r.Post("/accept", negotiationHandler.Accept)
				r.Post("/reject", negotiationHandler.Reject)
				r.Post("/archive", negotiationHandler.Archive)
				r.Post("/read", messageHandler.MarkRead)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)

				// Event feed
				r.Get("/events", eventsHandler.Stream)
			})
		})

		// Seller surface
		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleSeller))

			r.Get("/negotiations", sellerHandler.ListNegotiations)
			r.Get("/unread-count", sellerHandler.UnreadCount)
			r.Post("/negotiations/{id}/respond", sellerHandler.Respond)
		})

		// Listings
		r.Route("/listings", func(r chi.Router) {
			r.Post("/", listingHandler.Create)
			r.Get("/", listingHandler.List)
			r.Get("/{id}", listingHandler.Get)
			r.Post("/{id}/relist", listingHandler.Relist)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let in-flight dispatches settle before exit
	sessions.Drain()

	log.Info("server stopped")
}
