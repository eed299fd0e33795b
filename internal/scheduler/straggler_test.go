package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmiBuch/flowmr/internal/rpc"
	"github.com/AmiBuch/flowmr/internal/task"
)

func TestStragglerOnceLaunchesBackupPastThreshold(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Write(ctx, "/in.txt", strings.NewReader("a\nb\nc\n")))

	s.cfg.MinBaselineRatio = 0.1
	s.cfg.StragglerThreshold = 1.5

	jobID, err := s.SubmitJob(ctx, rpc.SubmitJobRequest{
		InputPath: "/in.txt", OutputPath: "/out", MapperRef: "wordcount", ReducerRef: "wordcount", M: 3, R: 1,
	})
	require.NoError(t, err)
	job := s.jobs[jobID]

	now := time.Now()
	// Two committed attempts establish a ~1s baseline.
	commit := func(idx int, dur time.Duration) {
		tsk := job.MapTasks[idx]
		attemptID := fmt.Sprintf("committed-%d", idx)
		a := &task.Attempt{ID: attemptID, TaskID: tsk.ID(), WorkerID: "w0", StartedAt: now.Add(-dur), FinishedAt: now, Outcome: task.OutcomeSuccess}
		tsk.Attempts = append(tsk.Attempts, a)
		tsk.State = task.StateCommitted
		tsk.CommittingAttemptID = a.ID
	}
	commit(0, 1*time.Second)
	commit(1, 1*time.Second)

	// The third task has been running far past the baseline with no backup yet.
	slow := job.MapTasks[2]
	slowAttempt := &task.Attempt{ID: "slow1", TaskID: slow.ID(), WorkerID: "w1", StartedAt: now.Add(-10 * time.Second), Outcome: task.OutcomeInFlight}
	slow.Attempts = append(slow.Attempts, slowAttempt)
	slow.State = task.StateRunning
	s.workers["w1"] = &task.Worker{ID: "w1", Liveness: task.LivenessAlive, InFlight: map[string]struct{}{"slow1": {}}}

	s.stragglerOnce()

	assert.Equal(t, 1, s.queue.Len(), "a backup request for the straggling task should be queued")
}
