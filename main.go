package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/tradereview/backend/src/cache"
	"github.com/username/tradereview/backend/src/config"
	"github.com/username/tradereview/backend/src/database"
	"github.com/username/tradereview/backend/src/events"
	"github.com/username/tradereview/backend/src/handlers"
	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/metrics"
	"github.com/username/tradereview/backend/src/parsers"
	"github.com/username/tradereview/backend/src/parsers/jpcsv"
	"github.com/username/tradereview/backend/src/processors"
	"github.com/username/tradereview/backend/src/security"
	"github.com/username/tradereview/backend/src/services"
	"github.com/username/tradereview/backend/src/utils"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				utils.SendJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.FromContext(r.Context()).Warn("Rate limit exceeded", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(allowed []string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowedOrigins[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] || allowedOrigins["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
				w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
			} else if origin == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type routerDeps struct {
	cfg             *config.AppConfig
	authService     *security.AuthService
	limiter         *rate.Limiter
	uploadHandler   *handlers.UploadHandler
	analysisHandler *handlers.AnalysisHandler
	healthHandler   *handlers.HealthHandler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(metrics.Middleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS(d.cfg.AllowedOrigins))

	r.Get("/health", d.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimitMiddleware(d.limiter))
		r.Use(handlers.AuthMiddleware(d.authService))

		r.Get("/sources", d.uploadHandler.HandleListSources)
		r.Post("/upload", d.uploadHandler.HandleUpload)

		r.Get("/analyses", d.analysisHandler.HandleListAnalyses)
		r.Route("/analyses/{id}", func(r chi.Router) {
			r.Get("/", d.analysisHandler.HandleGetAnalysis)
			r.Delete("/", d.analysisHandler.HandleDeleteAnalysis)
			r.Get("/trades.csv", d.analysisHandler.HandleExportTrades)
			r.Get("/instruments", d.analysisHandler.HandleListInstruments)
			r.Get("/chart/{instrument}", d.analysisHandler.HandleGetChart)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			utils.SendJSONError(w, "Not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
	})
	return r
}

func loadLayouts(cfg *config.AppConfig) error {
	parsers.SetExchangeSuffix(cfg.ExchangeSuffix)
	if cfg.LayoutsPath == "" {
		return nil
	}
	layouts, err := jpcsv.LoadLayouts(cfg.LayoutsPath)
	if err != nil {
		return err
	}
	for _, l := range layouts {
		if err := parsers.RegisterLayout(l, cfg.ExchangeSuffix); err != nil {
			return fmt.Errorf("layout %q: %w", l.Name, err)
		}
		logger.L.Info("Registered broker layout", "name", l.Name)
	}
	return nil
}

func newCacheStore(ctx context.Context, cfg *config.AppConfig) (cache.Store, func()) {
	if cfg.RedisURL != "" {
		store, err := cache.NewRedisStoreFromURL(ctx, cfg.RedisURL, "tradereview:")
		if err == nil {
			logger.L.Info("Using redis cache")
			return store, func() { store.Close() }
		}
		logger.L.Error("Redis unavailable, falling back to in-memory cache", "error", err)
	}
	return cache.NewMemoryStore(cache.DefaultCacheExpiration, cache.CacheCleanupInterval), func() {}
}

func main() {
	issueToken := flag.String("issue-token", "", "print an API token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of a token issued with -issue-token")
	flag.Parse()

	config.LoadConfig()
	cfg := config.Cfg
	logger.InitLogger(cfg.LogLevel)

	authService := security.NewAuthService(cfg.APIJWTSecret)
	if *issueToken != "" {
		token, err := authService.GenerateToken(*issueToken, "api", *tokenTTL)
		if err != nil {
			stdlog.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger.L.Info("Trade review backend server starting...")

	if err := loadLayouts(cfg); err != nil {
		logger.L.Error("Failed to load broker layouts", "path", cfg.LayoutsPath, "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
	database.InitDB(cfg.DatabasePath)
	database.RunMigrations(cfg.DatabasePath, cfg.MigrationsPath)
	defer database.DB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := newCacheStore(ctx, cfg)
	defer closeStore()

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		logger.L.Info("Publishing analysis events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	marketDataService := services.NewMarketDataService(services.MarketDataConfig{
		BaseURL:  cfg.MarketDataBaseURL,
		Timeout:  cfg.MarketDataTimeout,
		PriceTTL: cfg.PriceCacheTTL,
		Cache:    store,
		DB:       database.DB,
	})
	analysisService := services.NewAnalysisService(
		processors.NewTradeMatcher(),
		processors.NewPerformanceProcessor(),
		store,
		cfg.AnalysisCacheTTL,
		database.DB,
		publisher,
	)
	chartService := services.NewChartService(marketDataService, processors.NewAnnotationProcessor())

	router := newRouter(routerDeps{
		cfg:             cfg,
		authService:     authService,
		limiter:         rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		uploadHandler:   handlers.NewUploadHandler(analysisService, cfg),
		analysisHandler: handlers.NewAnalysisHandler(analysisService, chartService),
		healthHandler:   handlers.NewHealthHandler(database.DB),
	})

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.L.Info("Server starting", "address", serverAddr, "auth", authService.Enabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stdlog.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.L.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Graceful shutdown failed", "error", err)
	}
}
