package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/observability"
	"github.com/AmiBuch/flowmr/internal/task"
)

// stragglerLoop implements spec.md 4.4. Grounded on the teacher's
// CircuitBreaker (scheduler/circuit_breaker.go) for the shape of a
// periodically-evaluated, threshold-driven decision loop, and on
// coordination/janitor.go for the plain ticker-loop skeleton.
func (s *Scheduler) stragglerLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("CRITICAL: straggler loop panicked, speculative backups are now stalled: %v", r)
		}
	}()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.stragglerOnce()
		}
	}
}

func (s *Scheduler) stragglerOnce() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		var tasks []*task.Task
		var total int
		switch job.Phase {
		case task.PhaseMap:
			tasks, total = job.MapTasks, job.M
		case task.PhaseReduce:
			tasks, total = job.ReduceTasks, job.R
		default:
			continue
		}
		if total == 0 {
			continue
		}

		var durations []float64
		for _, t := range tasks {
			if t.State != task.StateCommitted {
				continue
			}
			for _, a := range t.Attempts {
				if a.ID == t.CommittingAttemptID {
					durations = append(durations, a.Duration(now).Seconds())
				}
			}
		}
		if float64(len(durations))/float64(total) < s.cfg.MinBaselineRatio {
			continue // baseline not established; spec.md 9 open question: never mitigate here
		}

		sort.Float64s(durations)
		mid := len(durations) / 2
		median := durations[mid]
		if len(durations)%2 == 0 {
			median = (durations[mid-1] + durations[mid]) / 2
		}
		threshold := s.cfg.StragglerThreshold * median

		for _, t := range tasks {
			if t.State != task.StatePending && t.State != task.StateRunning {
				continue
			}
			if t.HasBackupInFlight() {
				continue
			}
			for _, a := range t.Attempts {
				if a.Outcome != task.OutcomeInFlight {
					continue
				}
				if a.Duration(now).Seconds() > threshold {
					s.queue.Push(t, true)
					s.log.WithFields(logrus.Fields{
						"job_id": job.ID, "task_kind": t.Kind, "task_index": t.Index,
						"elapsed": a.Duration(now).Seconds(), "threshold": threshold,
					}).Info("straggler detected, requesting backup")
				}
				break
			}
		}

		// spec.md 5: once a baseline exists, an attempt past
		// task_deadline_factor x median is treated as a straggler whose
		// backup has already won, followed by a forced cancel of the
		// original. Only applies once a backup is actually racing it.
		deadline := s.cfg.TaskDeadlineFactor * median
		for _, t := range tasks {
			if !t.HasBackupInFlight() {
				continue
			}
			for _, a := range t.Attempts {
				if a.Outcome == task.OutcomeInFlight && !a.IsBackup && a.Duration(now).Seconds() > deadline {
					go s.sendCancel(a)
				}
			}
		}
	}
	observability.QueueDepth.Set(float64(s.queue.Len()))
}
