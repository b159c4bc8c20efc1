package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cyhdev/backend/internal/api"
	"github.com/cyhdev/backend/internal/config"
	"github.com/cyhdev/backend/internal/db"
	"github.com/cyhdev/backend/internal/serverstate"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var httpAddr string
	var logLevel string

	root := &cobra.Command{
		Use:   "cyhdev-server",
		Short: "cyhdev backend — blog, i18n, geo-ip and wasm-bundle server",
		Long: `cyhdev-server is the backend for a personal content site: blog posts
with full-text search, reference-data and i18n string bundles, geo-ip
lookup, a visitor map, and WebAssembly demo bundles — all served from a
small set of in-process caches kept coherent with the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), httpAddr, logLevel)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&httpAddr, "http-addr", envOrDefault("HTTP_ADDR", ":8080"), "HTTP listen address")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cyhdev-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, httpAddr, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logsDir := filepath.Join("./log", safeDirName(cfg.AppNameVersion, version))

	logger.Info("starting cyhdev server",
		zap.String("version", version),
		zap.String("http_addr", httpAddr),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("curr_env", string(cfg.CurrEnv)),
		zap.String("log_level", logLevel),
		zap.String("logs_dir", logsDir),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must run before opening the database so that
	// EncryptedString fields (password hashes) can transparently
	// encrypt/decrypt on read/write.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.EncryptionKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// --- 3. ServerState (C1-C9 wired by the facade) ---
	state, err := serverstate.New(ctx, serverstate.Options{
		DB:              gormDB,
		Logger:          logger,
		SearchIndexPath: cfg.SearchIndexPath,
	})
	if err != nil {
		return fmt.Errorf("failed to build server state: %w", err)
	}
	defer func() {
		if err := state.Close(); err != nil {
			logger.Warn("server state shutdown error", zap.Error(err))
		}
	}()

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		logger.Warn("failed to create logs directory, log compression job will no-op", zap.String("dir", logsDir), zap.Error(err))
	}
	state.StartScheduler(ctx, logsDir)

	// --- 4. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		State:  state,
		Logger: logger,
	})

	httpSrv := &http.Server{
		Addr:         httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down cyhdev server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("cyhdev server stopped")
	return nil
}

// safeDirName picks the log directory's leaf name: the configured
// app-name-version if set, the build version otherwise.
func safeDirName(appNameVersion, buildVersion string) string {
	if appNameVersion != "" {
		return appNameVersion
	}
	return buildVersion
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
