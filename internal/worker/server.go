package worker

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/rpc"
)

// Worker wires identity, the scheduler client, and the executor into the
// HTTP server exposed to the scheduler (spec.md 4.5, 6). Grounded on the
// teacher's fluxforge/agent/main.go composition of Config+Server+Executor
// plus a background heartbeat loop.
type Worker struct {
	identity Identity
	client   *schedulerClient
	exec     *Executor
	log      *logrus.Entry
}

func New(cfg config.Worker, blobs blobstore.Store, reg *mapreduce.Registry, log *logrus.Entry) *Worker {
	identity := NewIdentity(cfg.ListenAddr)
	client := newSchedulerClient(cfg, identity, log)
	exec := NewExecutor(cfg, blobs, reg, log, client)
	return &Worker{identity: identity, client: client, exec: exec, log: log}
}

// Run registers with the scheduler and starts the heartbeat loop. It
// returns once registration succeeds; the heartbeat loop continues in the
// background until ctx is cancelled.
func (wk *Worker) Run(ctx context.Context) error {
	if err := wk.client.register(ctx); err != nil {
		return err
	}
	wk.log.WithField("worker_id", wk.identity.WorkerID).Info("registered with scheduler")
	go wk.client.heartbeatLoop(ctx, wk.exec)
	return nil
}

// NewMux builds the worker's inbound HTTP surface: the three RPCs the
// scheduler drives (spec.md 4.5).
func (wk *Worker) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /worker/map", wk.handleMap)
	mux.HandleFunc("POST /worker/reduce", wk.handleReduce)
	mux.HandleFunc("POST /worker/cancel", wk.handleCancel)
	return mux
}

func (wk *Worker) handleMap(w http.ResponseWriter, r *http.Request) {
	var req rpc.ExecuteMapTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	go wk.exec.ExecuteMap(req)
}

func (wk *Worker) handleReduce(w http.ResponseWriter, r *http.Request) {
	var req rpc.ExecuteReduceTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	go wk.exec.ExecuteReduce(req)
}

func (wk *Worker) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req rpc.CancelTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	wk.exec.Cancel(req.AttemptID)
	w.WriteHeader(http.StatusOK)
}
