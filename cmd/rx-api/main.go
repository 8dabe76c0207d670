// Package main provides the prescription API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/api/handlers"
	"github.com/clinicore/rxcore/internal/api/middleware"
	"github.com/clinicore/rxcore/internal/geo"
	infrapg "github.com/clinicore/rxcore/internal/infrastructure/postgres"
	"github.com/clinicore/rxcore/internal/observability/metrics"
	"github.com/clinicore/rxcore/internal/observability/tracing"
	"github.com/clinicore/rxcore/internal/patient"
	"github.com/clinicore/rxcore/internal/service"
	"github.com/clinicore/rxcore/internal/storage"
	"github.com/clinicore/rxcore/internal/storage/memory"
	storagepg "github.com/clinicore/rxcore/internal/storage/postgres"
)

// Config holds application configuration. An empty DATABASE_URL runs
// the API on the in-memory store for local development.
type Config struct {
	Port         string  `env:"PORT" envDefault:"8080"`
	DatabaseURL  string  `env:"DATABASE_URL"`
	ZipIndexPath string  `env:"ZIP_INDEX_PATH"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT"`
	SampleRate   float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
	Environment  string  `env:"ENVIRONMENT" envDefault:"development"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse configuration", zap.Error(err))
	}

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("rx-api")
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		tcfg.SampleRate = cfg.SampleRate
		tcfg.Environment = cfg.Environment
		provider, err := tracing.Init(ctx, tcfg)
		if err != nil {
			logger.Fatal("failed to init tracing", zap.Error(err))
		}
		defer provider.Shutdown(context.Background())
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		drugs         storage.DrugStore
		pharmacies    storage.PharmacyStore
		prescriptions storage.PrescriptionStore
		patients      patient.Directory
		ready         func(ctx context.Context) error
	)

	if cfg.DatabaseURL != "" {
		pool, err := infrapg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("connected to database")

		store := storagepg.New(pool)
		drugs = store.Drugs()
		pharmacies = store.Pharmacies()
		prescriptions = store.Prescriptions()
		patients = store.Patients()
		ready = pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store := memory.New(nil)
		drugs = store.Drugs()
		pharmacies = store.Pharmacies()
		prescriptions = store.Prescriptions()
		patients = store.Patients()
		ready = func(context.Context) error { return nil }
	}

	var zips *geo.Index
	if cfg.ZipIndexPath != "" {
		zips = geo.NewIndex()
		f, err := os.Open(cfg.ZipIndexPath)
		if err != nil {
			logger.Fatal("failed to open zip index", zap.Error(err))
		}
		n, err := zips.Load(f)
		f.Close()
		if err != nil {
			logger.Fatal("failed to load zip index", zap.Error(err))
		}
		logger.Info("zip index loaded", zap.Int("entries", n))
	}

	pharmacySvc := service.NewPharmacyService(pharmacies, drugs, prescriptions, logger)
	prescriptionSvc := service.NewPrescriptionService(prescriptions, drugs, pharmacySvc, patients, m, logger)

	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionSvc, logger)
	pharmacyHandler := handlers.NewPharmacyHandler(pharmacySvc, zips, logger)
	drugHandler := handlers.NewDrugHandler(drugs, logger)
	patientHandler := handlers.NewPatientHandler(patients, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("rx-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorAuth)
		r.Mount("/prescriptions", prescriptionHandler.Routes())
		r.Mount("/pharmacies", pharmacyHandler.Routes())
		r.Mount("/drugs", drugHandler.Routes())
		r.Mount("/patients", patientHandler.Routes())
		r.Mount("/meta", drugHandler.MetaRoutes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting prescription API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"rx-api","version":"1.0.0"}`)
}
