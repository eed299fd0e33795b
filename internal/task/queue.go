package task

import (
	"container/heap"
	"sync"
)

// readyItem is a single entry in a job's ready queue: either a fresh
// pending task or a speculative backup request for a task already running.
type readyItem struct {
	task     *Task
	isBackup bool
}

// jobHeap orders a single job's ready items FIFO by task index, with
// backups sorted ahead of fresh pending tasks per spec.md 4.1 ("Backup
// attempts are prioritised ahead of new pending tasks when both compete
// for an idle slot").
type jobHeap []*readyItem

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].isBackup != h[j].isBackup {
		return h[i].isBackup // backups sort first
	}
	return h[i].task.Index < h[j].task.Index
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*readyItem))
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ReadyQueue holds one FIFO-by-index heap per job and serves jobs
// round-robin so a late-arriving job is never starved by an earlier one
// with a deep backlog (spec.md 4.1 "Task selection policy").
type ReadyQueue struct {
	mu       sync.Mutex
	perJob   map[string]*jobHeap
	order    []string // round-robin cursor over job IDs with ready work
	orderPos int
}

// NewReadyQueue creates an empty ReadyQueue.
func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{perJob: make(map[string]*jobHeap)}
}

// Push enqueues a task for dispatch. isBackup marks a speculative backup
// request (see spec.md 4.4).
func (q *ReadyQueue) Push(t *Task, isBackup bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.perJob[t.JobID]
	if !ok {
		h = &jobHeap{}
		heap.Init(h)
		q.perJob[t.JobID] = h
		q.order = append(q.order, t.JobID)
	}
	heap.Push(h, &readyItem{task: t, isBackup: isBackup})
}

// Pop removes and returns the next task to dispatch, advancing the
// round-robin cursor across jobs. Returns ok=false if the queue is empty.
func (q *ReadyQueue) Pop() (t *Task, isBackup bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for attempts := 0; attempts < len(q.order); attempts++ {
		if len(q.order) == 0 {
			return nil, false, false
		}
		if q.orderPos >= len(q.order) {
			q.orderPos = 0
		}
		jobID := q.order[q.orderPos]
		h, ok := q.perJob[jobID]
		if !ok || h.Len() == 0 {
			q.removeJobLocked(q.orderPos)
			continue
		}
		item := heap.Pop(h).(*readyItem)
		if h.Len() == 0 {
			q.removeJobLocked(q.orderPos)
		} else {
			q.orderPos++
		}
		return item.task, item.isBackup, true
	}
	return nil, false, false
}

func (q *ReadyQueue) removeJobLocked(pos int) {
	jobID := q.order[pos]
	delete(q.perJob, jobID)
	q.order = append(q.order[:pos], q.order[pos+1:]...)
	if q.orderPos > pos || q.orderPos >= len(q.order) {
		q.orderPos = 0
	}
}

// Len returns the total number of queued items across all jobs.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, h := range q.perJob {
		n += h.Len()
	}
	return n
}

// RemoveJob drops all pending items for a job, used when a job transitions
// to Failed and its remaining pending tasks must not be dispatched.
func (q *ReadyQueue) RemoveJob(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.perJob[jobID]; !ok {
		return
	}
	delete(q.perJob, jobID)
	for i, id := range q.order {
		if id == jobID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.orderPos = 0
}
