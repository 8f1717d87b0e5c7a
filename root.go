package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorvault/upload-gateway/internal/api"
	"github.com/sensorvault/upload-gateway/internal/authn"
	"github.com/sensorvault/upload-gateway/internal/config"
	"github.com/sensorvault/upload-gateway/internal/metrics"
	"github.com/sensorvault/upload-gateway/internal/reaper"
	"github.com/sensorvault/upload-gateway/internal/session"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/storage/fsbackend"
	"github.com/sensorvault/upload-gateway/internal/storage/gridfsbackend"
	"github.com/sensorvault/upload-gateway/internal/storage/s3backend"
	"github.com/sensorvault/upload-gateway/internal/workerpool"
)

// version is set at build time via ldflags.
var version = "dev"

// Global flag values, bound in newRootCmd() (--config, persistent) and by
// the subcommands that take --pid-file.
var (
	flagConfigPath string
	flagPIDFile    string
)

// defaultPIDFile is where serve records its PID for sendSIGHUP to find,
// when --pid-file isn't given.
const defaultPIDFile = "/var/run/upload-gateway.pid"

// workerPoolQueueDepth bounds how many reaper deletions can queue up
// behind a slow backend before Submit starts blocking the sweep.
const workerPoolQueueDepth = 256

// reaperPoolWorkers sizes the reaper's deletion pool. The workload is
// I/O-bound filesystem unlink calls, so there is no benefit to scaling
// it with GOMAXPROCS.
const reaperPoolWorkers = 4

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "upload-gateway",
		Short:   "Resumable measurement upload gateway",
		Long:    "HTTP service that accepts resumable, chunked uploads of mobile sensor measurements.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: "+config.DefaultConfigPath()+")")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newReloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Signal a running gateway to refresh its JWKS key material",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendSIGHUP(flagPIDFile)
		},
	}

	cmd.Flags().StringVar(&flagPIDFile, "pid-file", defaultPIDFile, "PID file path of the running gateway")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage migrations and exit",
		Long:  "For the filesystem backend this applies pending SQLite schema migrations. Other backends create their indexes idempotently and exit immediately.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger("info", "text")

			cfg, err := config.Resolve(flagConfigPath, logger)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			backend, err := openBackend(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensuring storage indexes: %w", err)
			}

			logger.Info("migrations applied", slog.String("storage_type", cfg.Storage.Type))

			return nil
		},
	}

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().StringVar(&flagPIDFile, "pid-file", defaultPIDFile, "PID file path for single-instance enforcement and reload")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	bootstrapLogger := buildLogger("info", "text")

	cfg, err := config.Resolve(flagConfigPath, bootstrapLogger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg.Logging.LogLevel, cfg.Logging.LogFormat)

	cleanup, err := writePIDFile(flagPIDFile)
	if err != nil {
		return fmt.Errorf("acquiring PID file: %w", err)
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = shutdownContext(ctx, logger)

	backend, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensuring storage indexes: %w", err)
	}

	storageSvc := storage.NewService(backend, cfg.Upload.TempDir)
	sessions := session.New()

	verifier, err := authn.NewVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("building auth verifier: %w", err)
	}

	pool := workerpool.New(logger, workerPoolQueueDepth)
	pool.Start(ctx, reaperPoolWorkers)
	defer pool.Stop()

	expiration := time.Duration(cfg.Upload.ExpirationMillis) * time.Millisecond

	r := reaper.New(cfg.Upload.TempDir, expiration, logger)
	r.UsePool(pool)
	go r.Run(ctx)

	handlers := api.New(sessions, storageSvc, cfg.Upload, cfg.HTTP.Path, logger)
	router := api.NewRouter(handlers, verifier, logger)

	addr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))

	httpServer := newHTTPServer(addr, router)

	go watchReloadSignal(ctx, verifier, logger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- serveHTTP(httpServer, cfg)
	}()

	if cfg.Metrics.Enabled {
		metricsAddr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
		metricsServer := metrics.NewServer(metricsAddr, logger)

		go func() {
			if err := metricsServer.Run(ctx); err != nil {
				logger.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("upload gateway listening",
		slog.String("addr", addr),
		slog.String("storage_type", cfg.Storage.Type),
		slog.String("auth_type", cfg.Auth.Type),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}

		return nil
	case err := <-errCh:
		return err
	}
}

// watchReloadSignal listens for SIGHUP and, if the active verifier
// supports it, forces an immediate key refresh so rotated signing keys
// don't wait for the next lazy refresh interval.
func watchReloadSignal(ctx context.Context, verifier authn.Verifier, logger *slog.Logger) {
	sigCh := sighupChannel()
	defer signal.Stop(sigCh)

	refresher, ok := verifier.(authn.Refresher)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if !ok {
				logger.Info("received SIGHUP, nothing to refresh for this auth type")
				continue
			}

			if err := refresher.Refresh(ctx); err != nil {
				logger.Warn("SIGHUP key refresh failed", slog.String("error", err.Error()))
				continue
			}

			logger.Info("SIGHUP key refresh completed")
		}
	}
}

func openBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "filesystem", "":
		return fsbackend.Open(ctx, cfg.Filesystem.BlobDir, cfg.Filesystem.DBPath, logger)
	case "gridfs":
		return gridfsbackend.Open(ctx, cfg.GridFS.URI, cfg.GridFS.Database, cfg.GridFS.BucketName)
	case "s3":
		return s3backend.Open(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveHTTP runs the listener, choosing TLS when both cert and key are
// configured and plain HTTP otherwise (the latter expects a reverse proxy
// terminating TLS in front of it).
func serveHTTP(srv *http.Server, cfg *config.Config) error {
	var err error

	if cfg.HTTP.TLSCertFile != "" && cfg.HTTP.TLSKeyFile != "" {
		err = srv.ListenAndServeTLS(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func buildLogger(level, format string) *slog.Logger {
	var lvl slog.Level

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

