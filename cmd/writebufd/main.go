package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/writebuf/internal/config"
	"github.com/malbeclabs/writebuf/internal/logger"
	"github.com/malbeclabs/writebuf/internal/objectstore"
	"github.com/malbeclabs/writebuf/internal/wal"
	"github.com/malbeclabs/writebuf/internal/writebuffer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads a .env file (if present), parses flags, opens the Database,
// and serves the health/metrics HTTP surface until an interrupt or
// SIGTERM is received. No write/query HTTP endpoints are exposed here;
// those belong to an outer RPC/HTTP server that embeds writebuffer.DB
// directly.
func run() error {
	_ = godotenv.Load()

	dbNameFlag := flag.String("db-name", "", "database name (or set WRITEBUF_DB_NAME env var)")
	dirFlag := flag.String("dir", "", "WAL directory (or set WRITEBUF_DIR env var)")
	listenAddrFlag := flag.String("listen-addr", "0.0.0.0:8089", "address to listen on for health/metrics HTTP (or set WRITEBUF_LISTEN_ADDR env var)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging (or set WRITEBUF_VERBOSE=true env var)")
	readHeaderTimeoutFlag := flag.Duration("read-header-timeout", 10*time.Second, "HTTP read-header timeout")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to wait for graceful shutdown")

	s3BucketFlag := flag.String("s3-archive-bucket", "", "optional S3 bucket for best-effort archival of synced WAL frames (or set WRITEBUF_S3_ARCHIVE_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-archive-prefix", "", "key prefix under --s3-archive-bucket for archived WAL frames")
	readOnlyFlag := flag.Bool("read-only", false, "open the database as a read-only snapshot, rejecting writes")
	rateLimitFlag := flag.Float64("rate-limit", 10, "per-IP request rate limit for the HTTP surface, in requests per second")
	rateBurstFlag := flag.Int("rate-limit-burst", 20, "per-IP burst size for the HTTP surface rate limit")

	flag.Parse()

	cfg := config.Config{
		DBName:            *dbNameFlag,
		Dir:               *dirFlag,
		ListenAddr:        *listenAddrFlag,
		Verbose:           *verboseFlag,
		ReadHeaderTimeout: *readHeaderTimeoutFlag,
		ShutdownTimeout:   *shutdownTimeoutFlag,
	}
	cfg.ApplyEnvOverrides()
	if v := os.Getenv("WRITEBUF_S3_ARCHIVE_BUCKET"); v != "" {
		*s3BucketFlag = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New("writebufd", cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var archiver *wal.Archiver
	if *s3BucketFlag != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config for wal archiver: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		store := objectstore.NewS3Store(client, *s3BucketFlag)
		archiver = wal.NewArchiver(store, *s3PrefixFlag, log)
		log.Info("wal segment archival enabled", "bucket", *s3BucketFlag, "prefix", *s3PrefixFlag)
	}

	dbCfg := writebuffer.Config{
		Name:     cfg.DBName,
		Dir:      cfg.Dir,
		Logger:   log,
		Archiver: archiver,
	}

	var (
		db  *writebuffer.DB
		err error
	)
	if *readOnlyFlag {
		db, err = writebuffer.OpenReadOnly(dbCfg)
	} else {
		db, err = writebuffer.Open(dbCfg)
	}
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.DBName, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	log.Info("writebuffer: database open", "db", db.Name(), "run_id", db.RunID().String(), "dir", cfg.Dir)

	srv := newHealthServer(cfg, db, newIPRateLimiter(rate.Limit(*rateLimitFlag), *rateBurstFlag))

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("writebufd: http listening", "address", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("writebufd: stopping", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info("writebufd: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		log.Error("writebufd: http server error causing shutdown", "error", err)
		return err
	}
}

// newHealthServer builds the health/metrics HTTP surface: a chi router
// with request-logging, panic-recovery, and per-IP rate-limit
// middleware, localhost-CORS, and /healthz, /readyz, /metrics handlers.
func newHealthServer(cfg config.Config, db *writebuffer.DB, rl *ipRateLimiter) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(rateLimitMiddleware(rl))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		stats := db.Stats()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok partitions=%d rows=%d tables=%d\n", stats.Partitions, stats.RowCount, len(stats.Tables))
	})

	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
