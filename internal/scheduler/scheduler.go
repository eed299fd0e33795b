// Package scheduler is the job-scheduling core: job/task state, dispatch,
// the commit protocol, liveness, and the straggler monitor (spec.md 4).
// Grounded throughout on the teacher's control_plane/scheduler package —
// the coarse RWMutex plus per-key serialization shape, the
// requeue-with-delay dispatch loop, and the recover-and-continue goroutine
// discipline — generalized from reconciliation tasks to map/reduce tasks.
package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/audit"
	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/observability"
	"github.com/AmiBuch/flowmr/internal/rpc"
	"github.com/AmiBuch/flowmr/internal/task"
)

// Scheduler owns all job/task/worker state, the single authority spec.md 9
// calls for ("global mutable state -> owned by scheduler"). Coarse
// bookkeeping lives behind mu; the commit-critical path (4.3) is
// additionally serialized per task via taskLocks, so a straggler sweep and
// a racing TaskCompleted for the same task never interleave.
type Scheduler struct {
	mu           sync.RWMutex
	jobs         map[string]*task.Job
	workers      map[string]*task.Worker
	attemptIndex map[string]task.ID3 // attempt_id -> owning task

	taskLocks sync.Map // taskKey(ID3) -> *sync.Mutex

	queue   *task.ReadyQueue
	limiter *DispatchLimiter
	reg     *mapreduce.Registry
	blobs   blobstore.Store
	audit   *audit.Sink
	hub     *StreamHub
	log     *logrus.Entry
	cfg     config.Scheduler
	client  *http.Client

	stop chan struct{}
}

// New constructs a Scheduler. auditSink may be nil (audit becomes a no-op).
func New(cfg config.Scheduler, blobs blobstore.Store, reg *mapreduce.Registry, auditSink *audit.Sink, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		jobs:         make(map[string]*task.Job),
		workers:      make(map[string]*task.Worker),
		attemptIndex: make(map[string]task.ID3),
		queue:        task.NewReadyQueue(),
		limiter:      NewDispatchLimiter(cfg.DispatchRateLimit, cfg.DispatchBurst),
		reg:          reg,
		blobs:        blobs,
		audit:        auditSink,
		hub:          NewStreamHub(log),
		log:          log,
		cfg:          cfg,
		client:       &http.Client{Timeout: 30 * time.Second},
		stop:         make(chan struct{}),
	}
}

// Hub exposes the job-event stream for the HTTP layer.
func (s *Scheduler) Hub() *StreamHub { return s.hub }

// Run starts the dispatch loop, the liveness sweeper, and the straggler
// monitor. It returns immediately; the loops stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	go s.dispatchLoop(ctx)
	go s.sweepLoop(ctx)
	go s.stragglerLoop(ctx)
}

// Stop halts the background loops.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func taskKey(id task.ID3) string {
	return fmt.Sprintf("%s/%s/%d", id.JobID, id.Kind, id.Index)
}

func (s *Scheduler) taskLock(id task.ID3) *sync.Mutex {
	v, _ := s.taskLocks.LoadOrStore(taskKey(id), &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Scheduler) taskByID(job *task.Job, id task.ID3) *task.Task {
	var list []*task.Task
	if id.Kind == task.KindMap {
		list = job.MapTasks
	} else {
		list = job.ReduceTasks
	}
	if id.Index < 0 || id.Index >= len(list) {
		return nil
	}
	return list[id.Index]
}

// SubmitJob validates and admits a job, materializing its map and reduce
// tasks and enqueueing the map tasks (spec.md 4.1).
func (s *Scheduler) SubmitJob(ctx context.Context, req rpc.SubmitJobRequest) (string, error) {
	if req.M < 1 || req.R < 1 || strings.TrimSpace(req.InputPath) == "" ||
		strings.TrimSpace(req.MapperRef) == "" || strings.TrimSpace(req.ReducerRef) == "" {
		return "", fmt.Errorf("%w: m>=1, r>=1, input_path, mapper_ref, reducer_ref are required", ErrBadRequest)
	}
	if !s.reg.HasMapper(req.MapperRef) {
		return "", fmt.Errorf("%w: unknown mapper_ref %q", ErrBadRequest, req.MapperRef)
	}
	if !s.reg.HasReducer(req.ReducerRef) {
		return "", fmt.Errorf("%w: unknown reducer_ref %q", ErrBadRequest, req.ReducerRef)
	}

	lineCount, err := s.countLines(ctx, req.InputPath)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	job := &task.Job{
		ID:          jobID,
		InputPath:   req.InputPath,
		OutputPath:  req.OutputPath,
		MapperRef:   req.MapperRef,
		ReducerRef:  req.ReducerRef,
		M:           req.M,
		R:           req.R,
		Phase:       task.PhaseMap,
		SubmittedAt: time.Now(),
	}

	job.MapTasks = make([]*task.Task, req.M)
	for i := 0; i < req.M; i++ {
		start := i * lineCount / req.M
		end := (i + 1) * lineCount / req.M
		job.MapTasks[i] = &task.Task{JobID: jobID, Kind: task.KindMap, Index: i, State: task.StatePending, LineStart: start, LineEnd: end}
	}
	job.ReduceTasks = make([]*task.Task, req.R)
	for r := 0; r < req.R; r++ {
		job.ReduceTasks[r] = &task.Task{JobID: jobID, Kind: task.KindReduce, Index: r, State: task.StatePending}
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	for _, t := range job.MapTasks {
		s.queue.Push(t, false)
	}
	observability.QueueDepth.Set(float64(s.queue.Len()))
	observability.JobPhase.WithLabelValues(jobID).Set(1)

	s.audit.RecordTaskEvent(ctx, jobID, "job", -1, "", "submitted", fmt.Sprintf("M=%d R=%d input=%s lines=%d", req.M, req.R, req.InputPath, lineCount))
	s.log.WithFields(logrus.Fields{"job_id": jobID, "m": req.M, "r": req.R, "lines": lineCount}).Info("job submitted")
	return jobID, nil
}

func (s *Scheduler) countLines(ctx context.Context, path string) (int, error) {
	r, err := s.blobs.Read(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, fmt.Errorf("%w: input_path %q not found", ErrBadRequest, path)
		}
		return 0, fmt.Errorf("%w: %v", ErrBlobStoreError, err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBlobStoreError, err)
	}
	return n, nil
}

// GetJobStatus projects a Job's current state (spec.md 4.1).
func (s *Scheduler) GetJobStatus(jobID string) (task.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return task.JobStatus{}, fmt.Errorf("%w: job %q", ErrNotFound, jobID)
	}

	st := task.JobStatus{JobID: job.ID, Phase: job.Phase, M: job.M, R: job.R, ErrorMessage: job.ErrorMessage}
	tally := func(t *task.Task, pending, running, committed *int) {
		switch t.State {
		case task.StatePending:
			*pending++
		case task.StateRunning:
			*running++
		case task.StateCommitted:
			*committed++
		}
		for _, a := range t.Attempts {
			if a.Outcome == task.OutcomeError || a.Outcome == task.OutcomeTimedOut {
				st.FailedAttempts++
			}
		}
	}
	for _, t := range job.MapTasks {
		tally(t, &st.MapPending, &st.MapRunning, &st.MapCommitted)
	}
	for _, t := range job.ReduceTasks {
		tally(t, &st.ReducePending, &st.ReduceRunning, &st.ReduceCommitted)
	}
	return st, nil
}

// GetResults streams a committed output blob (spec.md 6, convenience RPC).
func (s *Scheduler) GetResults(ctx context.Context, outputPath string) (io.ReadCloser, error) {
	r, err := s.blobs.Read(ctx, outputPath)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, outputPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrBlobStoreError, err)
	}
	return r, nil
}

// UploadBlob writes local_bytes to remote_path in the blob store.
func (s *Scheduler) UploadBlob(ctx context.Context, remotePath string, data io.Reader) error {
	if err := s.blobs.Write(ctx, remotePath, data); err != nil {
		return fmt.Errorf("%w: %v", ErrBlobStoreError, err)
	}
	return nil
}

// RegisterWorker admits or re-admits a worker (spec.md 3: "registered on
// first contact ... may re-register").
func (s *Scheduler) RegisterWorker(req rpc.RegisterWorkerRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[req.WorkerID]
	if !ok {
		w = &task.Worker{ID: req.WorkerID, InFlight: make(map[string]struct{})}
		s.workers[req.WorkerID] = w
	}
	w.Endpoint = req.Endpoint
	w.Capacity = req.Capacity
	w.Liveness = task.LivenessAlive
	w.LastHeartbeatAt = time.Now()
	observability.WorkerLiveness.WithLabelValues(w.ID).Set(2)
	s.log.WithFields(logrus.Fields{"worker_id": w.ID, "endpoint": w.Endpoint, "capacity": w.Capacity}).Info("worker registered")
}

// Heartbeat reconciles the worker's reported in-flight set against the
// scheduler's own (spec.md 4.2).
func (s *Scheduler) Heartbeat(req rpc.HeartbeatRequest) (rpc.HeartbeatResponse, error) {
	s.mu.Lock()
	w, ok := s.workers[req.WorkerID]
	if !ok {
		w = &task.Worker{ID: req.WorkerID, InFlight: make(map[string]struct{}), Liveness: task.LivenessAlive}
		s.workers[req.WorkerID] = w
	}
	w.LastHeartbeatAt = time.Now()
	if w.Liveness != task.LivenessAlive {
		s.log.WithField("worker_id", w.ID).Info("worker recovered")
		w.Liveness = task.LivenessAlive
	}
	observability.WorkerLiveness.WithLabelValues(w.ID).Set(2)

	reported := make(map[string]struct{}, len(req.InFlightIDs))
	for _, id := range req.InFlightIDs {
		reported[id] = struct{}{}
	}

	var forgotten []string
	for id := range w.InFlight {
		if _, ok := reported[id]; !ok {
			forgotten = append(forgotten, id)
		}
	}
	var cancellations []string
	for id := range reported {
		if _, ok := w.InFlight[id]; !ok {
			cancellations = append(cancellations, id)
		}
	}
	s.mu.Unlock()

	for _, attemptID := range forgotten {
		if taskID, ok := s.attemptOwner(attemptID); ok {
			s.resolveOutcome(taskID, attemptID, task.OutcomeCancelled, "worker forgot in-flight attempt")
		}
	}

	return rpc.HeartbeatResponse{Cancellations: cancellations}, nil
}

func (s *Scheduler) attemptOwner(attemptID string) (task.ID3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.attemptIndex[attemptID]
	return id, ok
}

// TaskCompleted implements the per-task-serialized commit protocol
// (spec.md 4.3).
func (s *Scheduler) TaskCompleted(req rpc.TaskCompletedRequest) (rpc.CommitDecision, error) {
	taskID, ok := s.attemptOwner(req.AttemptID)
	if !ok {
		return rpc.CommitDecision{}, fmt.Errorf("%w: unknown attempt %q", ErrNotFound, req.AttemptID)
	}

	outcome := task.Outcome(req.Outcome)
	if outcome != task.OutcomeSuccess {
		s.resolveOutcome(taskID, req.AttemptID, outcome, req.Message)
		return rpc.CommitDecision{Commit: false}, nil
	}

	lock := s.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[taskID.JobID]
	if !ok {
		return rpc.CommitDecision{}, fmt.Errorf("%w: unknown job for attempt %q", ErrNotFound, req.AttemptID)
	}
	t := s.taskByID(job, taskID)
	if t == nil {
		return rpc.CommitDecision{}, fmt.Errorf("%w: unknown task for attempt %q", ErrNotFound, req.AttemptID)
	}
	var attempt *task.Attempt
	for _, a := range t.Attempts {
		if a.ID == req.AttemptID {
			attempt = a
			break
		}
	}
	if attempt == nil {
		return rpc.CommitDecision{}, fmt.Errorf("%w: unknown attempt %q", ErrNotFound, req.AttemptID)
	}
	return s.resolveSuccessLocked(job, t, attempt), nil
}

// resolveSuccessLocked implements spec.md 4.3 items 1-2. Caller holds
// taskLock(t.ID()) and mu.
func (s *Scheduler) resolveSuccessLocked(job *task.Job, t *task.Task, attempt *task.Attempt) rpc.CommitDecision {
	now := time.Now()

	if w, ok := s.workers[attempt.WorkerID]; ok {
		delete(w.InFlight, attempt.ID)
	}

	if t.State == task.StateCommitted {
		attempt.Outcome = task.OutcomeSuccess
		attempt.FinishedAt = now
		observability.ActiveAttempts.Dec()
		observability.CommitEvents.WithLabelValues("redundant").Inc()
		s.audit.RecordTaskEvent(context.Background(), job.ID, string(t.Kind), t.Index, attempt.ID, "redundant_success", "")
		return rpc.CommitDecision{Commit: false}
	}

	attempt.Outcome = task.OutcomeSuccess
	attempt.FinishedAt = now
	t.State = task.StateCommitted
	t.CommittingAttemptID = attempt.ID

	observability.ActiveAttempts.Dec()
	observability.AttemptOutcomes.WithLabelValues("success").Inc()
	observability.CommitEvents.WithLabelValues("committed").Inc()
	observability.TaskDuration.WithLabelValues(string(t.Kind)).Observe(attempt.Duration(now).Seconds())

	for _, a := range t.InFlight() {
		if w, ok := s.workers[a.WorkerID]; ok {
			delete(w.InFlight, a.ID)
		}
		go s.sendCancel(a)
	}

	finalPath := s.canonicalPath(job, t)
	s.audit.RecordTaskEvent(context.Background(), job.ID, string(t.Kind), t.Index, attempt.ID, "committed", finalPath)
	s.hub.Publish(rpc.JobEvent{JobID: job.ID, Kind: "task_state", TaskKind: string(t.Kind), TaskIndex: t.Index, State: string(task.StateCommitted), At: now})

	s.advancePhaseLocked(job)

	return rpc.CommitDecision{Commit: true, FinalPath: finalPath}
}

func (s *Scheduler) canonicalPath(job *task.Job, t *task.Task) string {
	if t.Kind == task.KindReduce {
		return fmt.Sprintf("%s/reduce-%d.txt", job.OutputPath, t.Index)
	}
	return ""
}

// resolveOutcome implements spec.md 4.3 item 3 and is also the landing
// point for worker-declared-dead timeouts and heartbeat-forgotten
// cancellations: any non-Success terminal outcome for an attempt.
func (s *Scheduler) resolveOutcome(taskID task.ID3, attemptID string, outcome task.Outcome, message string) {
	lock := s.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[taskID.JobID]
	if !ok {
		return
	}
	t := s.taskByID(job, taskID)
	if t == nil {
		return
	}
	var attempt *task.Attempt
	for _, a := range t.Attempts {
		if a.ID == attemptID {
			attempt = a
			break
		}
	}
	if attempt == nil || attempt.Outcome != task.OutcomeInFlight {
		return // already resolved by a sibling or a prior call
	}
	s.resolveNonSuccessLocked(job, t, attempt, outcome, message)
}

func (s *Scheduler) resolveNonSuccessLocked(job *task.Job, t *task.Task, attempt *task.Attempt, outcome task.Outcome, message string) {
	now := time.Now()
	attempt.Outcome = outcome
	attempt.FinishedAt = now
	observability.ActiveAttempts.Dec()
	observability.AttemptOutcomes.WithLabelValues(strings.ToLower(string(outcome))).Inc()

	if w, ok := s.workers[attempt.WorkerID]; ok {
		delete(w.InFlight, attempt.ID)
	}

	if t.State == task.StateCommitted {
		return // a sibling already won; nothing to retry
	}

	if message != "" && job.ErrorMessage == "" {
		job.ErrorMessage = message
	}

	if len(t.InFlight()) > 0 {
		return // a sibling attempt is still running; wait for it
	}

	if len(t.Attempts) >= s.cfg.MaxAttempts {
		s.failJobLocked(job, fmt.Sprintf("task %s-%d exceeded max_attempts (%d): %s", t.Kind, t.Index, s.cfg.MaxAttempts, message))
		return
	}

	t.State = task.StatePending
	s.queue.Push(t, false)
	s.audit.RecordTaskEvent(context.Background(), job.ID, string(t.Kind), t.Index, attempt.ID, "retrying", message)
}

func (s *Scheduler) failJobLocked(job *task.Job, reason string) {
	job.Phase = task.PhaseFailed
	job.ErrorMessage = reason
	job.CompletedAt = time.Now()
	for _, t := range job.MapTasks {
		if t.State != task.StateCommitted {
			t.State = task.StateFailed
		}
	}
	for _, t := range job.ReduceTasks {
		if t.State != task.StateCommitted {
			t.State = task.StateFailed
		}
	}
	s.queue.RemoveJob(job.ID)
	observability.JobPhase.WithLabelValues(job.ID).Set(4)
	s.audit.RecordTaskEvent(context.Background(), job.ID, "job", -1, "", "failed", reason)
	s.hub.Publish(rpc.JobEvent{JobID: job.ID, Kind: "job_phase", Phase: string(task.PhaseFailed), At: time.Now()})
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "reason": reason}).Warn("job failed")
}

func (s *Scheduler) advancePhaseLocked(job *task.Job) {
	switch job.Phase {
	case task.PhaseMap:
		for _, t := range job.MapTasks {
			if t.State != task.StateCommitted {
				return
			}
		}
		job.Phase = task.PhaseReduce
		observability.JobPhase.WithLabelValues(job.ID).Set(2)
		for _, t := range job.ReduceTasks {
			s.queue.Push(t, false)
		}
		s.hub.Publish(rpc.JobEvent{JobID: job.ID, Kind: "job_phase", Phase: string(task.PhaseReduce), At: time.Now()})
	case task.PhaseReduce:
		for _, t := range job.ReduceTasks {
			if t.State != task.StateCommitted {
				return
			}
		}
		job.Phase = task.PhaseCompleted
		job.CompletedAt = time.Now()
		observability.JobPhase.WithLabelValues(job.ID).Set(3)
		s.hub.Publish(rpc.JobEvent{JobID: job.ID, Kind: "job_phase", Phase: string(task.PhaseCompleted), At: time.Now()})
		s.log.WithField("job_id", job.ID).Info("job completed")
	}
}

// --- dispatch loop ---

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("CRITICAL: dispatch loop panicked, dispatch is now stalled: %v", r)
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.dispatchOnce()
		}
	}
}

func (s *Scheduler) requeue(t *task.Task, isBackup bool, delay time.Duration) {
	if delay <= 0 {
		s.queue.Push(t, isBackup)
		return
	}
	time.AfterFunc(delay, func() { s.queue.Push(t, isBackup) })
}

func (s *Scheduler) dispatchOnce() {
	t, isBackup, ok := s.queue.Pop()
	if !ok {
		return
	}

	if now := time.Now(); t.EarliestSchedulableAt.After(now) {
		s.requeue(t, isBackup, t.EarliestSchedulableAt.Sub(now))
		return
	}

	s.mu.Lock()
	job, ok := s.jobs[t.JobID]
	if !ok || job.Phase == task.PhaseFailed || job.Phase == task.PhaseCompleted {
		s.mu.Unlock()
		return
	}
	if t.Kind == task.KindReduce && job.Phase != task.PhaseReduce {
		s.mu.Unlock()
		s.requeue(t, isBackup, 200*time.Millisecond)
		return
	}
	if t.State == task.StateCommitted || t.State == task.StateFailed {
		s.mu.Unlock()
		return
	}
	if isBackup && t.HasBackupInFlight() {
		s.mu.Unlock()
		return
	}

	excluded := make(map[string]struct{})
	for _, a := range t.InFlight() {
		excluded[a.WorkerID] = struct{}{}
	}

	var chosen *task.Worker
	for _, w := range s.workers {
		if w.Liveness != task.LivenessAlive || w.SpareCapacity() <= 0 {
			continue
		}
		if isBackup {
			if _, excl := excluded[w.ID]; excl {
				continue
			}
		}
		chosen = w
		break
	}
	if chosen == nil {
		s.mu.Unlock()
		observability.DispatchDecisions.WithLabelValues("no_worker").Inc()
		if !isBackup {
			s.requeue(t, isBackup, 200*time.Millisecond)
		}
		// Per spec.md 4.1: if no eligible worker exists for a backup,
		// defer it; the straggler monitor will reconsider next tick.
		return
	}

	if allowed, delay := s.limiter.Reserve(chosen.ID); !allowed {
		s.mu.Unlock()
		observability.DispatchDecisions.WithLabelValues("rate_limited").Inc()
		s.requeue(t, isBackup, delay)
		return
	}

	attemptID := uuid.NewString()
	attempt := &task.Attempt{
		ID:        attemptID,
		TaskID:    t.ID(),
		WorkerID:  chosen.ID,
		StartedAt: time.Now(),
		Outcome:   task.OutcomeInFlight,
		IsBackup:  isBackup,
	}
	t.Attempts = append(t.Attempts, attempt)
	t.State = task.StateRunning
	chosen.InFlight[attemptID] = struct{}{}
	s.attemptIndex[attemptID] = t.ID()
	dispatchJob := job
	s.mu.Unlock()

	observability.DispatchDecisions.WithLabelValues("dispatched").Inc()
	observability.ActiveAttempts.Inc()
	if isBackup {
		observability.BackupsLaunched.WithLabelValues(string(t.Kind)).Inc()
	}
	s.hub.Publish(rpc.JobEvent{JobID: t.JobID, Kind: "task_state", TaskKind: string(t.Kind), TaskIndex: t.Index, State: string(task.StateRunning), At: time.Now()})

	go s.sendExecute(dispatchJob, t, attempt)
}

func (s *Scheduler) sendExecute(job *task.Job, t *task.Task, attempt *task.Attempt) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("attempt_id", attempt.ID).Errorf("CRITICAL: dispatch goroutine panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.RLock()
	w, ok := s.workers[attempt.WorkerID]
	s.mu.RUnlock()
	if !ok {
		s.resolveOutcome(t.ID(), attempt.ID, task.OutcomeTimedOut, "worker vanished before dispatch")
		return
	}

	var err error
	if t.Kind == task.KindMap {
		body := rpc.ExecuteMapTaskRequest{
			JobID: job.ID, TaskIndex: t.Index, AttemptID: attempt.ID,
			InputPath: job.InputPath, LineStart: t.LineStart, LineEnd: t.LineEnd,
			MapperRef: job.MapperRef, R: job.R, IsBackup: attempt.IsBackup,
		}
		err = s.postJSON(ctx, w.Endpoint+"/worker/map", body, nil)
	} else {
		body := rpc.ExecuteReduceTaskRequest{
			JobID: job.ID, TaskIndex: t.Index, AttemptID: attempt.ID,
			M: job.M, ReducerRef: job.ReducerRef, OutputPath: job.OutputPath, IsBackup: attempt.IsBackup,
		}
		err = s.postJSON(ctx, w.Endpoint+"/worker/reduce", body, nil)
	}
	if err != nil {
		s.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("dispatch RPC failed")
		s.resolveOutcome(t.ID(), attempt.ID, task.OutcomeTimedOut, "dispatch RPC failed: "+err.Error())
	}
}

func (s *Scheduler) sendCancel(attempt *task.Attempt) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("attempt_id", attempt.ID).Errorf("CRITICAL: cancel goroutine panicked: %v", r)
		}
	}()

	s.mu.RLock()
	w, ok := s.workers[attempt.WorkerID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.postJSON(ctx, w.Endpoint+"/worker/cancel", rpc.CancelTaskRequest{AttemptID: attempt.ID}, nil)
}

func (s *Scheduler) postJSON(ctx context.Context, url string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
