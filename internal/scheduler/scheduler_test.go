package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/logging"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/rpc"
	"github.com/AmiBuch/flowmr/internal/task"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	cfg := config.DefaultScheduler()
	cfg.MaxAttempts = 3
	return New(cfg, blobs, mapreduce.NewRegistry(), nil, logging.New("test"))
}

func TestSubmitJobAssignsLineRanges(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\nb\nc\nd\ne\n")))

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 2, R: 1,
	})
	require.NoError(t, err)

	job := s.jobs[jobID]
	require.Len(t, job.MapTasks, 2)
	assert.Equal(t, 0, job.MapTasks[0].LineStart)
	assert.Equal(t, 2, job.MapTasks[0].LineEnd)
	assert.Equal(t, 2, job.MapTasks[1].LineStart)
	assert.Equal(t, 5, job.MapTasks[1].LineEnd)
}

func TestSubmitJobRejectsUnknownMapper(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\n")))

	_, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "nope", ReducerRef: "wordcount", M: 1, R: 1,
	})
	assert.ErrorIs(t, err, ErrBadRequest)
}

// seedRunningTask wires up a task with two in-flight attempts on two
// distinct (fake) workers, mimicking a straggler's original attempt
// racing a speculative backup.
func seedRunningTask(s *Scheduler, t *task.Task, attempt1, attempt2 string) {
	a1 := &task.Attempt{ID: attempt1, TaskID: t.ID(), WorkerID: "w1", StartedAt: time.Now(), Outcome: task.OutcomeInFlight}
	a2 := &task.Attempt{ID: attempt2, TaskID: t.ID(), WorkerID: "w2", StartedAt: time.Now(), Outcome: task.OutcomeInFlight, IsBackup: true}
	t.Attempts = append(t.Attempts, a1, a2)
	t.State = task.StateRunning

	s.workers["w1"] = &task.Worker{ID: "w1", Endpoint: "http://unreachable.invalid", InFlight: map[string]struct{}{attempt1: {}}, Liveness: task.LivenessAlive}
	s.workers["w2"] = &task.Worker{ID: "w2", Endpoint: "http://unreachable.invalid", InFlight: map[string]struct{}{attempt2: {}}, Liveness: task.LivenessAlive}
	s.attemptIndex[attempt1] = t.ID()
	s.attemptIndex[attempt2] = t.ID()
}

func TestTaskCompletedFirstSuccessWinsCommitRace(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\n")))

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 1, R: 1,
	})
	require.NoError(t, err)

	job := s.jobs[jobID]
	mapTask := job.MapTasks[0]
	seedRunningTask(s, mapTask, "a1", "a2")

	decision1, err := s.TaskCompleted(rpc.TaskCompletedRequest{AttemptID: "a1", Outcome: string(task.OutcomeSuccess)})
	require.NoError(t, err)
	assert.True(t, decision1.Commit)
	assert.Equal(t, task.StateCommitted, mapTask.State)

	decision2, err := s.TaskCompleted(rpc.TaskCompletedRequest{AttemptID: "a2", Outcome: string(task.OutcomeSuccess)})
	require.NoError(t, err)
	assert.False(t, decision2.Commit, "a losing redundant success must not be told to commit")
}

func TestTaskCompletedErrorRetriesUntilMaxAttempts(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\n")))
	s.cfg.MaxAttempts = 2

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 1, R: 1,
	})
	require.NoError(t, err)
	job := s.jobs[jobID]
	mapTask := job.MapTasks[0]

	a1 := &task.Attempt{ID: "a1", TaskID: mapTask.ID(), WorkerID: "w1", StartedAt: time.Now(), Outcome: task.OutcomeInFlight}
	mapTask.Attempts = append(mapTask.Attempts, a1)
	mapTask.State = task.StateRunning
	s.workers["w1"] = &task.Worker{ID: "w1", InFlight: map[string]struct{}{"a1": {}}, Liveness: task.LivenessAlive}
	s.attemptIndex["a1"] = mapTask.ID()

	_, err = s.TaskCompleted(rpc.TaskCompletedRequest{AttemptID: "a1", Outcome: string(task.OutcomeError), Message: "boom"})
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, mapTask.State, "first failure should retry, not fail the job")

	a2 := &task.Attempt{ID: "a2", TaskID: mapTask.ID(), WorkerID: "w1", StartedAt: time.Now(), Outcome: task.OutcomeInFlight}
	mapTask.Attempts = append(mapTask.Attempts, a2)
	mapTask.State = task.StateRunning
	s.workers["w1"].InFlight["a2"] = struct{}{}
	s.attemptIndex["a2"] = mapTask.ID()

	_, err = s.TaskCompleted(rpc.TaskCompletedRequest{AttemptID: "a2", Outcome: string(task.OutcomeError), Message: "boom again"})
	require.NoError(t, err)
	assert.Equal(t, task.PhaseFailed, job.Phase, "exceeding max_attempts must fail the whole job")
}

func TestHeartbeatResolvesAttemptsTheWorkerForgot(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\n")))

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 1, R: 1,
	})
	require.NoError(t, err)
	job := s.jobs[jobID]
	mapTask := job.MapTasks[0]
	seedRunningTask(s, mapTask, "a1", "a2")

	// w2 no longer reports a2 as in-flight (S_s \ S_w): the scheduler
	// resolves it as Cancelled on its own, since the worker silently
	// dropped it, without waiting for a future RPC.
	_, err = s.Heartbeat(rpc.HeartbeatRequest{WorkerID: "w2", InFlightIDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeCancelled, findAttempt(mapTask, "a2").Outcome)
}

func TestHeartbeatTellsWorkerToCancelAttemptsItDoesNotKnowAbout(t *testing.T) {
	s := newTestScheduler(t)
	s.workers["w1"] = &task.Worker{ID: "w1", InFlight: map[string]struct{}{}, Liveness: task.LivenessAlive}

	// The worker still reports "a1" as in-flight (S_w \ S_s, from the
	// scheduler's perspective) because it lost a commit race or a prior
	// CancelTask RPC never arrived; the scheduler tells it to kill it.
	resp, err := s.Heartbeat(rpc.HeartbeatRequest{WorkerID: "w1", InFlightIDs: []string{"a1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, resp.Cancellations)
}

func findAttempt(t *task.Task, id string) *task.Attempt {
	for _, a := range t.Attempts {
		if a.ID == id {
			return a
		}
	}
	return nil
}
