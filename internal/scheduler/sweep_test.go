package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmiBuch/flowmr/internal/rpc"
	"github.com/AmiBuch/flowmr/internal/task"
)

func TestSweepOnceMarksSilentWorkerDeadAndTimesOutItsAttempts(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\n")))
	s.cfg.HeartbeatTimeout = 5 * time.Second
	s.cfg.DeadTimeout = 10 * time.Second

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 1, R: 1,
	})
	require.NoError(t, err)
	mapTask := s.jobs[jobID].MapTasks[0]

	a1 := &task.Attempt{ID: "a1", TaskID: mapTask.ID(), WorkerID: "w1", StartedAt: time.Now().Add(-20 * time.Second), Outcome: task.OutcomeInFlight}
	mapTask.Attempts = append(mapTask.Attempts, a1)
	mapTask.State = task.StateRunning
	s.attemptIndex["a1"] = mapTask.ID()
	s.workers["w1"] = &task.Worker{
		ID: "w1", Liveness: task.LivenessAlive,
		InFlight:        map[string]struct{}{"a1": {}},
		LastHeartbeatAt: time.Now().Add(-20 * time.Second),
	}

	s.sweepOnce()

	assert.Equal(t, task.LivenessDead, s.workers["w1"].Liveness)
	assert.Equal(t, task.OutcomeTimedOut, findAttempt(mapTask, "a1").Outcome)
	assert.Equal(t, task.StatePending, mapTask.State, "a timed-out sole attempt should be retried")
}

func TestSweepOnceMarksQuietWorkerSuspectWithoutTouchingAttempts(t *testing.T) {
	s := newTestScheduler(t)
	s.cfg.HeartbeatTimeout = 5 * time.Second
	s.cfg.DeadTimeout = 30 * time.Second

	s.workers["w1"] = &task.Worker{
		ID: "w1", Liveness: task.LivenessAlive,
		InFlight:        map[string]struct{}{"a1": {}},
		LastHeartbeatAt: time.Now().Add(-8 * time.Second),
	}

	s.sweepOnce()

	assert.Equal(t, task.LivenessSuspect, s.workers["w1"].Liveness)
	assert.Contains(t, s.workers["w1"].InFlight, "a1", "suspect workers keep their in-flight attempts")
}
