package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/config"
	"github.com/vistaflix/tvlink/internal/database"
	"github.com/vistaflix/tvlink/internal/handler"
	"github.com/vistaflix/tvlink/internal/jobs"
	"github.com/vistaflix/tvlink/internal/middleware"
	"github.com/vistaflix/tvlink/internal/redis"
	"github.com/vistaflix/tvlink/internal/repository"
	"github.com/vistaflix/tvlink/internal/service"
	"github.com/vistaflix/tvlink/internal/xtream"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	activationRepo := repository.NewActivationCodeRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	provider := xtream.NewClient(redisClient, cfg.XtreamCacheTTL())

	accountService := service.NewAccountService(userRepo, sessionRepo, cfg.SessionSecret)
	activationService := service.NewActivationService(
		activationRepo, userRepo, accountService, provider,
		cfg.ActivationTTL(), cfg.EncryptionKey,
	)
	playlistService := service.NewPlaylistService(userRepo, provider, cfg.EncryptionKey)
	qrService := service.NewQRService(redisClient, cfg.QRSessionTTL())
	rateLimiter := service.NewRateLimiter(redisClient)

	sessionMiddleware := middleware.NewSessionMiddleware(accountService)
	activationRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.ActivationRateLimitPerMin, time.Minute, "activation",
	)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	activationHandler := handler.NewActivationHandler(activationService, accountService, isProduction)
	authHandler := handler.NewAuthHandler(accountService, isProduction)
	playlistHandler := handler.NewPlaylistHandler(playlistService)
	qrHandler := handler.NewQRHandler(qrService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)

		// Device endpoints are unauthenticated and cookie-free, so CSRF
		// tokens only guard the browser-session surfaces below.
		r.Route("/activation", func(r chi.Router) {
			r.Use(activationRateLimit.Handler)
			r.Mount("/", activationHandler.Routes())
		})

		r.Route("/qr-session", func(r chi.Router) {
			r.Use(activationRateLimit.Handler)
			r.Mount("/", qrHandler.Routes(sessionMiddleware, csrfMiddleware))
		})

		r.Group(func(r chi.Router) {
			r.Use(csrfMiddleware.Handler)

			r.Mount("/auth", authHandler.Routes(sessionMiddleware))

			r.Route("/playlist", func(r chi.Router) {
				r.Use(sessionMiddleware.Handler)
				r.Mount("/", playlistHandler.Routes())
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Handle("/*", handler.StaticFileServer(cfg.StaticDir))
	})

	cleanupJob := jobs.NewCleanupJob(activationRepo, sessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
