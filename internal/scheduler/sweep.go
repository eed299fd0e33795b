package scheduler

import (
	"context"
	"time"

	"github.com/AmiBuch/flowmr/internal/observability"
	"github.com/AmiBuch/flowmr/internal/task"
)

// sweepLoop implements spec.md 4.2's background liveness sweeper, grounded
// on the teacher's coordination/agent_monitor.go periodic health loop:
// every sweep_interval, workers silent past heartbeat_timeout become
// Suspect (no new dispatches, existing attempts continue); past
// dead_timeout they become Dead, and every attempt they were holding is
// TimedOut and handed to the same resolveOutcome path TaskCompleted uses.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("CRITICAL: liveness sweep loop panicked, workers will no longer be reaped: %v", r)
		}
	}()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

type timedOutAttempt struct {
	taskID    task.ID3
	attemptID string
}

func (s *Scheduler) sweepOnce() {
	now := time.Now()
	var toTimeOut []timedOutAttempt

	s.mu.Lock()
	for id, w := range s.workers {
		silence := now.Sub(w.LastHeartbeatAt)
		switch {
		case silence > s.cfg.DeadTimeout:
			if w.Liveness != task.LivenessDead {
				w.Liveness = task.LivenessDead
				observability.WorkerLiveness.WithLabelValues(id).Set(0)
				s.log.WithField("worker_id", id).Warn("worker declared dead")
			}
			for attemptID := range w.InFlight {
				if taskID, ok := s.attemptIndex[attemptID]; ok {
					toTimeOut = append(toTimeOut, timedOutAttempt{taskID: taskID, attemptID: attemptID})
				}
			}
			w.InFlight = make(map[string]struct{})
		case silence > s.cfg.HeartbeatTimeout:
			if w.Liveness == task.LivenessAlive {
				w.Liveness = task.LivenessSuspect
				observability.WorkerLiveness.WithLabelValues(id).Set(1)
				s.log.WithField("worker_id", id).Warn("worker suspect")
			}
		}
	}
	s.mu.Unlock()

	for _, d := range toTimeOut {
		s.resolveOutcome(d.taskID, d.attemptID, task.OutcomeTimedOut, "worker declared dead")
	}
}
