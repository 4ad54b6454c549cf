package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yorby/backend/internal/analysis"
	"github.com/yorby/backend/internal/auth"
	"github.com/yorby/backend/internal/config"
	"github.com/yorby/backend/internal/curriculum"
	"github.com/yorby/backend/internal/database"
	"github.com/yorby/backend/internal/events"
	"github.com/yorby/backend/internal/handlers"
	"github.com/yorby/backend/internal/i18n"
	"github.com/yorby/backend/internal/infra"
	"github.com/yorby/backend/internal/middleware"
	"github.com/yorby/backend/internal/realtime"
	"github.com/yorby/backend/internal/saga"
	"github.com/yorby/backend/internal/screening"
)

func main() {
	// Local development convenience; in Cloud Run the env is already set.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig(logger)

	// Port from environment wins (Cloud Run requirement).
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	if port == "" {
		port = "8080"
	}

	supabaseClient, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("Failed to initialize Supabase client: %v", err)
	}

	bus := buildBus(cfg, logger)
	authorizer := auth.NewSupabaseAuthorizer(supabaseClient)
	catalog := i18n.NewStaticCatalog()
	metrics := saga.NewMetrics()

	curriculumSvc := curriculum.NewService(supabaseClient, authorizer, catalog, bus, saga.Config{
		MaxAttempts:    cfg.Propagation.MaxAttempts,
		InitialBackoff: cfg.Propagation.InitialBackoff(),
	}, metrics, logger)

	hub := realtime.NewHub(bus, logger)
	defer hub.Close()

	router := mux.NewRouter()

	// Health check endpoint (required for Cloud Run).
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		supabaseStatus := "connected"
		if _, err := supabaseClient.GetCoachByUserID(ctx, "health-check"); err != nil {
			supabaseStatus = "error"
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":   "healthy",
			"service":  "yorby-api",
			"supabase": supabaseStatus,
		})
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/ws", hub.HandleWebSocket)

	api := router.PathPrefix("/api/v1").Subrouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{})
	api.Use(rateLimiter.Middleware)

	oracle := buildOracle(cfg, logger)
	screeningSvc := screening.NewService(supabaseClient, authorizer, oracle, bus, cfg.Screening, logger)

	// Candidate application intake is the only unauthenticated mutation.
	api.HandleFunc("/programs/{programId}/applications", handlers.SubmitApplication(screeningSvc)).Methods("POST")

	// Coach endpoints: the gateway resolves the session, this service
	// validates the user is a coach and injects the identity.
	coach := api.NewRoute().Subrouter()
	coach.Use(func(next http.Handler) http.Handler {
		return middleware.CoachMiddleware(authorizer, next.ServeHTTP)
	})

	coach.HandleFunc("/programs/{programId}/questions/{questionId}/edit", handlers.EditQuestion(curriculumSvc)).Methods("POST")
	coach.HandleFunc("/programs/{programId}/questions/{questionId}/delete", handlers.DeleteQuestion(curriculumSvc)).Methods("POST")
	coach.HandleFunc("/programs/{programId}/questions/{questionId}/publication-status", handlers.UpdatePublicationStatus(curriculumSvc)).Methods("POST")
	coach.HandleFunc("/programs/{programId}/knowledge-base", handlers.UpdateKnowledgeBase(curriculumSvc)).Methods("POST")
	coach.HandleFunc("/programs/{programId}/applications", handlers.ListApplications(screeningSvc)).Methods("GET")

	// Endpoints that call the model are only wired when a key is configured.
	if oracle != nil {
		pipeline := analysis.NewPipeline(supabaseClient, oracle, bus, cfg.Analysis, logger)
		coach.HandleFunc("/interviews/{interviewId}/analyze", handlers.TriggerAnalysis(pipeline)).Methods("POST")
		coach.HandleFunc("/interviews/{interviewId}/feedback", handlers.GetFeedback(supabaseClient)).Methods("GET")
		coach.HandleFunc("/applications/{applicationId}/screen", handlers.ScreenApplication(screeningSvc)).Methods("POST")
	}

	router.Use(corsMiddleware)
	router.Use(loggingMiddleware(logger))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // analysis requests wait on the model
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown (Cloud Run sends SIGTERM).
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal, shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("yorby api starting", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	logger.Info("server stopped")
}

func loadConfig(logger *slog.Logger) *config.Config {
	path := os.Getenv("YORBY_CONFIG")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", path, err)
	}
	logger.Info("config loaded", "path", path)
	return cfg
}

// buildBus wires the Redis event bus when an address is configured, falling
// back to in-process delivery when Redis is absent or unreachable.
func buildBus(cfg *config.Config, logger *slog.Logger) events.Bus {
	if cfg.Redis.Addr == "" {
		logger.Info("no redis configured, using in-process event bus")
		return events.NewLocalBus()
	}

	adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("redis unavailable, using in-process event bus", "error", err)
		return events.NewLocalBus()
	}

	prefix := cfg.Redis.ChannelPrefix
	if prefix == "" {
		prefix = "yorby:events:"
	}
	logger.Info("redis event bus connected", "addr", cfg.Redis.Addr)
	return events.NewRedisBus(adapter, prefix)
}

// buildOracle creates the Gemini client when a key is configured. A nil
// return disables the model-backed endpoints rather than failing at request
// time.
func buildOracle(cfg *config.Config, logger *slog.Logger) analysis.Oracle {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		logger.Warn("GEMINI_API_KEY not set, analysis and screening endpoints disabled")
		return nil
	}

	oracle, err := analysis.NewGeminiOracle(context.Background(), apiKey, cfg.Analysis.Model)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini client: %v", err)
	}
	return analysis.WithBreaker(oracle, logger)
}

// Middleware

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Locale")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
