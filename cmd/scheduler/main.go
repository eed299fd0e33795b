// Command scheduler runs the flowmr job-scheduling core: it accepts job
// submissions, dispatches map/reduce tasks to registered workers, and owns
// the commit protocol, liveness sweep, and straggler monitor (spec.md 4).
// Grounded on the teacher's control_plane/main.go composition (load
// config from env, pick a storage backend, wire background loops, serve
// an http.ServeMux with a /metrics endpoint) adapted to flowmr's
// Postgres-for-audit / Redis-or-filesystem-for-blobs split.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmiBuch/flowmr/internal/audit"
	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/gc"
	"github.com/AmiBuch/flowmr/internal/logging"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/scheduler"
)

func main() {
	log := logging.New("scheduler")

	configPath := os.Getenv("FLOWMR_CONFIG")
	cfg, err := config.LoadScheduler(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open blob store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditSink, err := audit.New(ctx, cfg.AuditDSN, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect audit store")
	}
	defer auditSink.Close()

	reg := mapreduce.NewRegistry()

	sched := scheduler.New(cfg, blobs, reg, auditSink, log)
	sched.Run(ctx)
	defer sched.Stop()

	janitor := gc.New(blobs, []string{"/data/intermediate", "/data/output"}, cfg.TmpGCAge, log)
	if err := janitor.Start(ctx, "*/5 * * * *"); err != nil {
		log.WithError(err).Fatal("failed to start tmp-blob janitor")
	}

	mux := sched.NewMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("scheduler listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newBlobStore(cfg config.Scheduler) (blobstore.Store, error) {
	if cfg.RedisAddr != "" {
		return blobstore.NewRedisStore(cfg.RedisAddr, "", 0)
	}
	return blobstore.NewFSStore(cfg.BlobStoreRoot)
}
