// Command worker runs a flowmr execution node: it registers with the
// scheduler, heartbeats its in-flight attempts, and executes whatever
// map/reduce tasks the scheduler dispatches to it (spec.md 4.5). Grounded
// on the teacher's fluxforge/agent/main.go composition of Config, Server,
// and a background heartbeat loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/logging"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/worker"
)

func main() {
	log := logging.New("worker")

	configPath := os.Getenv("FLOWMR_CONFIG")
	cfg, err := config.LoadWorker(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open blob store")
	}

	reg := mapreduce.NewRegistry()

	wk := worker.New(cfg, blobs, reg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := wk.NewMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("worker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	if err := wk.Run(ctx); err != nil {
		log.WithError(err).Fatal("failed to register with scheduler")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newBlobStore(cfg config.Worker) (blobstore.Store, error) {
	if cfg.RedisAddr != "" {
		return blobstore.NewRedisStore(cfg.RedisAddr, "", 0)
	}
	return blobstore.NewFSStore(cfg.BlobStoreRoot)
}
