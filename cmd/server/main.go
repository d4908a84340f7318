package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/docvault/internal/api"
	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/quota"
	"github.com/org/docvault/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr    string          `yaml:"listen_addr"`
	TLSCertFile   string          `yaml:"tls_cert"`
	TLSKeyFile    string          `yaml:"tls_key"`
	DBUrl         string          `yaml:"db_url"`
	MigrationsDir string          `yaml:"migrations_dir"`
	LogLevel      string          `yaml:"log_level"`
	ScannerSecret string          `yaml:"scanner_secret"`
	RequireScan   bool            `yaml:"require_scan"`
	TrustProxy    bool            `yaml:"trust_proxy"`
	Provider      provider.Config `yaml:"provider"`
	Quota         quota.Limits    `yaml:"quota"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("DOCVAULT_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8300",
		MigrationsDir: storage.DefaultMigrationsDir,
		LogLevel:      "info",
		RequireScan:   true,
		Provider: provider.Config{
			Type:      "local",
			LocalRoot: "data/blobs",
			BaseURL:   "http://localhost:8300",
		},
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("DOCVAULT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("DOCVAULT_SCANNER_SECRET"); v != "" {
		cfg.ScannerSecret = v
	}
	if v := os.Getenv("DOCVAULT_SIGNING_SECRET"); v != "" {
		cfg.Provider.SigningSecret = v
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
	}

	ctx := context.Background()

	store, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	backend, err := provider.New(ctx, cfg.Provider)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage provider")
	}
	log.Info().Str("provider", backend.Name()).Msg("storage provider ready")

	srv := api.NewServer(store, provider.NewRegistry(backend), api.Config{
		ListenAddr:    cfg.ListenAddr,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
		ScannerSecret: cfg.ScannerSecret,
		RequireScan:   cfg.RequireScan,
		TrustProxy:    cfg.TrustProxy,
		QuotaLimits:   cfg.Quota,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
