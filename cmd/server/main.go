// Command server runs the contract-analysis HTTP API.
//
// Startup sequence:
//  1. Load .env (best effort) and environment configuration
//  2. Configure logging (level, optional pretty console output)
//  3. Open SQLite, run migrations, ensure the upload directory exists
//  4. Build the extraction and analysis clients and the job runner
//  5. Register routes and serve with graceful shutdown
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-contract-backend/internal/analyze"
	"github.com/tbourn/go-contract-backend/internal/config"
	"github.com/tbourn/go-contract-backend/internal/extract"
	httpapi "github.com/tbourn/go-contract-backend/internal/http"
	"github.com/tbourn/go-contract-backend/internal/observability"
	"github.com/tbourn/go-contract-backend/internal/pipeline"
	"github.com/tbourn/go-contract-backend/internal/repo"
	"github.com/tbourn/go-contract-backend/internal/services"
	"github.com/tbourn/go-contract-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("create upload dir failed")
	}

	// Extraction: cloud OCR when configured, local PDF text layer otherwise.
	docai, err := extract.NewDocAI(ctx, cfg.DocAI, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("document ai client failed")
	}
	if docai == nil {
		log.Info().Msg("cloud ocr not configured; using local pdf extraction only")
	}
	extractor := extract.NewUnified(docai, log.Logger)

	// Analysis (requests fail fast with a clear error when no API key is set)
	analyzer := analyze.NewClient(cfg.LLM, log.Logger)
	if cfg.LLM.APIKey == "" {
		log.Warn().Msg("no analysis api key configured; uploads will fail at the analysis stage")
	}

	runner := pipeline.NewRunner(db, extractor, analyzer, log.Logger, cfg.JobTimeout)

	svcs := httpapi.Services{
		Auth: &services.AuthService{
			DB:        db,
			JWTSecret: cfg.Auth.JWTSecret,
			TokenTTL:  cfg.Auth.TokenTTL,
		},
		Docs: &services.DocumentService{
			DB:             db,
			Runner:         runner,
			UploadDir:      cfg.UploadDir,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Log:            log.Logger,
		},
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, svcs, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
