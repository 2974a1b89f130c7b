package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pointline/pointline-api/internal/config"
	"github.com/pointline/pointline-api/internal/domain/betting"
	"github.com/pointline/pointline-api/internal/domain/odds"
	"github.com/pointline/pointline-api/internal/domain/point"
	"github.com/pointline/pointline-api/internal/middleware"
	"github.com/pointline/pointline-api/internal/pkg/database"
	"github.com/pointline/pointline-api/internal/pkg/jwt"
	"github.com/pointline/pointline-api/internal/pkg/logger"
	"github.com/pointline/pointline-api/internal/pkg/notify"
	pkgresponse "github.com/pointline/pointline-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("storage", cfg.StorageDriver).
		Msg("Starting Pointline API")

	// ---------- Storage ----------
	var (
		pointRepo   point.Repository
		bettingRepo betting.Repository
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)
		pointRepo = point.NewPostgresRepository(db)
		bettingRepo = betting.NewPostgresRepository(db)
	default:
		mem := point.NewMemoryRepository()
		for _, raw := range cfg.MemoryCustomerIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				log.Fatal().Err(err).Str("customer_id", raw).Msg("Invalid MEMORY_CUSTOMER_IDS entry")
			}
			mem.AddCustomer(id)
		}
		log.Warn().Int("customers", len(cfg.MemoryCustomerIDs)).Msg("Using in-memory storage, data is lost on restart")
		pointRepo = mem
		bettingRepo = betting.NewMemoryRepository()
	}

	// ---------- Winner notifications ----------
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	var notifier betting.Notifier = betting.LogNotifier{}
	if redisClient != nil {
		notifier = betting.NewPublishingNotifier(notify.NewRedisPublisher(redisClient, cfg.WinnerChannel))
		log.Info().Str("channel", cfg.WinnerChannel).Msg("Winner notifications published to Redis")
	}

	// ---------- Services ----------
	adjuster, err := odds.NewAdjuster(cfg.OddsMargin, cfg.OddsPlaces)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid odds configuration")
	}

	pointService := point.NewService(pointRepo)
	bettingService := betting.NewService(bettingRepo, pointService, adjuster, notifier, betting.Config{
		CreditWorkers: cfg.SettlementCreditWorkers,
		BulkWorkers:   cfg.BulkSettlementWorkers,
	})

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	authMiddleware := middleware.Auth(jwtService)

	// ---------- Background jobs ----------
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.ReconcileInterval > 0 {
		go point.NewReconcileJob(pointService).Start(jobsCtx, cfg.ReconcileInterval)
		log.Info().Dur("interval", cfg.ReconcileInterval).Msg("Point reconcile job started")
	}

	// ---------- Router ----------
	r := newRouter(cfg, point.NewHandler(pointService), betting.NewHandler(bettingService), authMiddleware)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func newRouter(cfg *config.Config, pointHandler *point.Handler, bettingHandler *betting.Handler, authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"storage": cfg.StorageDriver,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// settlement runs are bounded by the server write timeout instead
		r.With(middleware.Timeout(cfg.RequestTimeout)).Mount("/points", pointHandler.Routes(authMiddleware))
		r.Mount("/betting", bettingHandler.Routes(authMiddleware))
	})

	return r
}
