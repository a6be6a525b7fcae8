package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/config"
	"github.com/whatsapp-saas/go-evolution-service/internal/evolution"
	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/handlers"
	"github.com/whatsapp-saas/go-evolution-service/internal/middleware"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("APP_ENV") == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Msg("Starting Evolution Sync Service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("evolution_url", cfg.EvolutionURL).
		Int("sync_message_limit", cfg.SyncMessageLimit).
		Msg("Configuration loaded")

	dbStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database store")
	}
	defer dbStore.Close()

	gw := gateway.NewClient(cfg.EvolutionURL, cfg.EvolutionAPIKey, cfg.GatewayTimeout)
	log.Info().Str("gateway", cfg.EvolutionURL).Msg("Evolution gateway client initialized")

	reconciler := evolution.NewReconciler(dbStore, gw)
	syncer := evolution.NewSyncer(dbStore, gw, cfg.SyncMessageLimit)
	ingestor := evolution.NewIngestor(dbStore)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	rateLimiter := middleware.NewRateLimiter(cfg.SendRatePerMinute, cfg.SendJitterMinMS, cfg.SendJitterMaxMS)
	defer rateLimiter.Stop()

	// Health endpoints (no auth)
	router.GET("/healthz", handlers.HealthCheck(dbStore))
	router.GET("/readyz", handlers.ReadinessCheck())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway push events (no auth: the gateway calls this directly)
	webhookHandler := handlers.NewWebhookHandler(ingestor)
	router.POST("/webhook/evolution", webhookHandler.Receive)

	// API v1 routes, user-scoped
	v1 := router.Group("/v1")
	v1.Use(middleware.UserAuth())
	{
		instance := v1.Group("/instance")
		{
			h := handlers.NewInstanceHandler(reconciler)
			instance.POST("/connect", h.Connect)
			instance.GET("/status", h.Status)
			instance.GET("/qrcode", h.QRCode)
			instance.DELETE("/disconnect", h.Disconnect)
		}

		sync := v1.Group("/sync")
		{
			h := handlers.NewSyncHandler(syncer)
			sync.POST("/contacts", h.Contacts)
			sync.POST("/chats", h.Chats)
			sync.POST("/messages/:contactId", h.Messages)
		}

		h := handlers.NewMessageHandler(syncer, dbStore, cfg.MessageRetention)
		messages := v1.Group("/messages")
		{
			messages.POST("/text", rateLimiter.Limit(), h.SendText)
		}
		v1.GET("/contacts", h.ListContacts)
		v1.GET("/contacts/:contactId/messages", h.ListMessages)
		v1.GET("/stats", h.Stats)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("Evolution Sync Service started successfully")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server exited gracefully")
	}
}
