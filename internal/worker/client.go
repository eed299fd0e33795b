// Package worker implements the execution side of spec.md 4.5: register
// with the scheduler, heartbeat its in-flight set, and run map/reduce
// attempts dispatched to it. Grounded on the teacher's fluxforge/agent
// package — a plain net/http server fed by a registration+heartbeat
// client loop — generalized from an opaque shell-command executor to a
// mapper/reducer executor with a commit handshake.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/rpc"
)

// Identity is the worker's runtime identity. It is not persisted: every
// start mints a new worker_id (see NewIdentity). The teacher's fluxforge/agent/config.go derives the
// same kind of identity with a hand-rolled generateUUID() ("Simple UUID
// stub... Replace with real if needed"); this repo uses google/uuid.
type Identity struct {
	WorkerID string
	Endpoint string
}

// NewIdentity mints a fresh identity. Persisting it across restarts is a
// worker-operator concern (an identity file, an env var); spec.md treats
// re-registration as ordinary, so a worker is free to simply mint a new
// ID on every start. listenAddr must be a scheduler-dialable host:port
// (e.g. "10.0.0.4:8091"), not a bare ":8091" — operators running a single
// host can use "localhost:8091".
func NewIdentity(listenAddr string) Identity {
	endpoint := listenAddr
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return Identity{WorkerID: uuid.NewString(), Endpoint: endpoint}
}

// schedulerClient is the worker's outbound RPC surface to the scheduler:
// register, heartbeat, and task-completed. Grounded on
// fluxforge/agent/heartbeat.go's sendRegistration/sendHeartbeat shape,
// generalized to use a shared *http.Client and carry a commit-decision
// response instead of a fire-and-forget status post.
type schedulerClient struct {
	schedulerURL      string
	identity          Identity
	capacity          int
	heartbeatInterval time.Duration
	client            *http.Client
	log               *logrus.Entry
}

func newSchedulerClient(cfg config.Worker, id Identity, log *logrus.Entry) *schedulerClient {
	return &schedulerClient{
		schedulerURL:      cfg.SchedulerURL,
		identity:          id,
		capacity:          cfg.Capacity,
		heartbeatInterval: cfg.HeartbeatInterval,
		client:            &http.Client{Timeout: 10 * time.Second},
		log:               log,
	}
}

func (c *schedulerClient) register(ctx context.Context) error {
	req := rpc.RegisterWorkerRequest{WorkerID: c.identity.WorkerID, Endpoint: c.identity.Endpoint, Capacity: c.capacity}
	return c.post(ctx, "/scheduler/register", req, nil)
}

// heartbeatLoop posts the in-flight set every heartbeat_interval until ctx
// is cancelled, applying any cancellations the scheduler requests back
// onto exec (spec.md 4.2).
func (c *schedulerClient) heartbeatLoop(ctx context.Context, exec *Executor) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("CRITICAL: heartbeat loop panicked, scheduler will mark this worker dead: %v", r)
		}
	}()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendHeartbeat(ctx, exec)
		}
	}
}

func (c *schedulerClient) sendHeartbeat(ctx context.Context, exec *Executor) {
	req := rpc.HeartbeatRequest{WorkerID: c.identity.WorkerID, InFlightIDs: exec.InFlightIDs()}
	var resp rpc.HeartbeatResponse
	if err := c.post(ctx, "/scheduler/heartbeat", req, &resp); err != nil {
		c.log.WithError(err).Warn("heartbeat failed")
		return
	}
	for _, attemptID := range resp.Cancellations {
		exec.Cancel(attemptID)
	}
}

func (c *schedulerClient) taskCompleted(ctx context.Context, req rpc.TaskCompletedRequest) (rpc.CommitDecision, error) {
	var decision rpc.CommitDecision
	req.WorkerID = c.identity.WorkerID
	err := c.post(ctx, "/scheduler/task-completed", req, &decision)
	return decision, err
}

func (c *schedulerClient) post(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.schedulerURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp rpc.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, errResp.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
