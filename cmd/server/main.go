package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clinical-scribe/internal/agent"
	"clinical-scribe/internal/config"
	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/history"
	"clinical-scribe/internal/platform/fhir"
	"clinical-scribe/internal/platform/logger"
	"clinical-scribe/internal/platform/session"
	"clinical-scribe/internal/report"
)

func main() {
	cfg := config.New()
	log := logger.New(cfg.Logger.Level, cfg.App.Env)
	defer log.Sync()

	// 1. Infrastructure
	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		log.Fatal("could not connect to database", zap.Error(err))
	}
	log.Info("connected to database")

	m, err := migrate.New(cfg.Postgres.MigrationsPath, cfg.Postgres.URL)
	if err != nil {
		log.Error("migration init failed", zap.Error(err))
	} else if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Error("migration up failed", zap.Error(err))
	} else {
		log.Info("migrations applied")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	sessionStore := session.NewStore(redisClient, cfg.Redis.SessionTTL)

	// 2. Clients
	fhirClient := fhir.NewClient(cfg.FHIR.BaseURL, cfg.FHIR.AccessToken, log)
	transcriber := agent.NewWhisperClient(cfg.Groq.APIKey)
	completions := agent.NewGroqClient(cfg.Groq.APIKey)

	// 3. Services
	repo := consultation.NewRepository(db)
	historySvc := history.NewService(fhirClient, log)
	reportSvc := report.NewService(completions, log)
	consultationSvc := consultation.NewService(repo, fhirClient, historySvc, transcriber, reportSvc, sessionStore, log)
	consultationHandler := consultation.NewHandler(consultationSvc)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(cfg.App.RateLimit, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, consultationHandler)
	})

	log.Info("server starting", zap.String("port", cfg.App.Port))
	if err := http.ListenAndServe(":"+cfg.App.Port, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
