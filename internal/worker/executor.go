package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/blobstore"
	"github.com/AmiBuch/flowmr/internal/config"
	"github.com/AmiBuch/flowmr/internal/mapreduce"
	"github.com/AmiBuch/flowmr/internal/rpc"
	"github.com/AmiBuch/flowmr/internal/task"
)

// Executor runs ExecuteMapTask/ExecuteReduceTask/CancelTask (spec.md 4.5).
// Grounded on the teacher's fluxforge/agent/executor.go shape: the server
// hands a request to a goroutine that runs it to completion and reports
// back over HTTP, with each attempt's failure contained to itself.
type Executor struct {
	cfg    config.Worker
	blobs  blobstore.Store
	reg    *mapreduce.Registry
	log    *logrus.Entry
	client *schedulerClient

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

func NewExecutor(cfg config.Worker, blobs blobstore.Store, reg *mapreduce.Registry, log *logrus.Entry, client *schedulerClient) *Executor {
	return &Executor{cfg: cfg, blobs: blobs, reg: reg, log: log, client: client, inFlight: make(map[string]context.CancelFunc)}
}

// InFlightIDs reports every attempt currently being worked, for the
// heartbeat client to report as S_w (spec.md 4.2).
func (e *Executor) InFlightIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.inFlight))
	for id := range e.inFlight {
		ids = append(ids, id)
	}
	return ids
}

func (e *Executor) track(attemptID string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.inFlight[attemptID] = cancel
	e.mu.Unlock()
	return ctx
}

func (e *Executor) untrack(attemptID string) {
	e.mu.Lock()
	delete(e.inFlight, attemptID)
	e.mu.Unlock()
}

// Cancel interrupts attemptID at its next cooperative checkpoint
// (spec.md 4.5 CancelTask). A no-op once the attempt has already finished.
func (e *Executor) Cancel(attemptID string) {
	e.mu.Lock()
	cancel, ok := e.inFlight[attemptID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func partitionOf(key string, r int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(r))
}

func mapTmpPath(jobID string, m, r int, attemptID string) string {
	return fmt.Sprintf("/data/intermediate/%s/map-%d-reduce-%d.pb.tmp.%s", jobID, m, r, attemptID)
}

func mapFinalPath(jobID string, m, r int) string {
	return fmt.Sprintf("/data/intermediate/%s/map-%d-reduce-%d.pb", jobID, m, r)
}

func reduceTmpPath(outputPath string, r int, attemptID string) string {
	return fmt.Sprintf("%s/reduce-%d.txt.tmp.%s", outputPath, r, attemptID)
}

func reduceFinalPath(outputPath string, r int) string {
	return fmt.Sprintf("%s/reduce-%d.txt", outputPath, r)
}

// ExecuteMap runs a map attempt end to end: read the assigned input split,
// apply the mapper, partition emitted pairs by hash(key) mod R into R
// length-prefixed intermediate blobs, and report back for the commit
// decision (spec.md 4.5).
func (e *Executor) ExecuteMap(req rpc.ExecuteMapTaskRequest) {
	ctx := e.track(req.AttemptID)
	defer e.untrack(req.AttemptID)
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("attempt_id", req.AttemptID).Errorf("CRITICAL: map attempt panicked: %v", r)
			e.reportError(req.AttemptID, fmt.Errorf("map attempt panicked: %v", r))
		}
	}()

	log := e.log.WithFields(logrus.Fields{"job_id": req.JobID, "task_index": req.TaskIndex, "attempt_id": req.AttemptID})

	if e.simulateDelay(ctx, req.AttemptID) {
		return
	}

	mapper, err := e.reg.Mapper(req.MapperRef)
	if err != nil {
		e.reportError(req.AttemptID, err)
		return
	}

	rc, err := e.blobs.Read(ctx, req.InputPath)
	if err != nil {
		e.reportError(req.AttemptID, fmt.Errorf("read input: %w", err))
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	partitions := make([][]mapreduce.KV, req.R)
	var bytesIn, recordsOut int64
	line := 0
	for scanner.Scan() {
		text := scanner.Text()
		bytesIn += int64(len(text)) + 1
		if line >= req.LineStart && line < req.LineEnd {
			for _, kv := range mapper(text) {
				p := partitionOf(kv.Key, req.R)
				partitions[p] = append(partitions[p], kv)
				recordsOut++
			}
		}
		line++
		if ctx.Err() != nil {
			e.reportCancelled(req.AttemptID)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		e.reportError(req.AttemptID, fmt.Errorf("scan input: %w", err))
		return
	}

	var bytesOut int64
	var written []string
	for r, kvs := range partitions {
		if ctx.Err() != nil {
			e.cleanupTmp(written)
			e.reportCancelled(req.AttemptID)
			return
		}
		tmpPath := mapTmpPath(req.JobID, req.TaskIndex, r, req.AttemptID)
		var buf bytes.Buffer
		for _, kv := range kvs {
			if err := mapreduce.WriteKV(&buf, kv); err != nil {
				e.cleanupTmp(written)
				e.reportError(req.AttemptID, fmt.Errorf("encode partition %d: %w", r, err))
				return
			}
		}
		bytesOut += int64(buf.Len())
		if err := e.blobs.Write(ctx, tmpPath, bytes.NewReader(buf.Bytes())); err != nil {
			e.cleanupTmp(written)
			e.reportError(req.AttemptID, fmt.Errorf("write partition %d: %w", r, err))
			return
		}
		written = append(written, tmpPath)
	}

	decision, err := e.client.taskCompleted(context.Background(), rpc.TaskCompletedRequest{
		AttemptID: req.AttemptID, Outcome: string(task.OutcomeSuccess),
		BytesIn: bytesIn, BytesOut: bytesOut, RecordsOut: recordsOut,
	})
	if err != nil {
		log.WithError(err).Warn("task-completed RPC failed")
		return
	}

	for r := range partitions {
		tmpPath := mapTmpPath(req.JobID, req.TaskIndex, r, req.AttemptID)
		if decision.Commit {
			if err := e.blobs.Rename(context.Background(), tmpPath, mapFinalPath(req.JobID, req.TaskIndex, r)); err != nil {
				log.WithError(err).Warn("commit rename failed")
			}
		} else {
			_ = e.blobs.Delete(context.Background(), tmpPath)
		}
	}
}

// ExecuteReduce runs a reduce attempt: read each of the M committed
// intermediate partitions for this reduce index fully into memory, sort
// each one, k-way merge them by key, invoke the reducer per key group, and
// report back for the commit decision. All M partitions and the output
// buffer are held in memory at once; nothing spills to disk.
func (e *Executor) ExecuteReduce(req rpc.ExecuteReduceTaskRequest) {
	ctx := e.track(req.AttemptID)
	defer e.untrack(req.AttemptID)
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("attempt_id", req.AttemptID).Errorf("CRITICAL: reduce attempt panicked: %v", r)
			e.reportError(req.AttemptID, fmt.Errorf("reduce attempt panicked: %v", r))
		}
	}()

	log := e.log.WithFields(logrus.Fields{"job_id": req.JobID, "task_index": req.TaskIndex, "attempt_id": req.AttemptID})

	if e.simulateDelay(ctx, req.AttemptID) {
		return
	}

	reducer, err := e.reg.Reducer(req.ReducerRef)
	if err != nil {
		e.reportError(req.AttemptID, err)
		return
	}

	runs := make([]*run, 0, req.M)
	var bytesIn int64
	for m := 0; m < req.M; m++ {
		path := mapFinalPath(req.JobID, m, req.TaskIndex)
		rc, err := e.blobs.Read(ctx, path)
		if err != nil {
			e.reportError(req.AttemptID, fmt.Errorf("read intermediate %s: %w", path, err))
			return
		}
		var kvs []mapreduce.KV
		for {
			kv, err := mapreduce.ReadKV(rc)
			if err != nil {
				break
			}
			bytesIn += int64(len(kv.Key) + len(kv.Value))
			kvs = append(kvs, kv)
		}
		rc.Close()
		sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
		runs = append(runs, &run{kvs: kvs})
	}

	var buf bytes.Buffer
	var recordsOut int64
	mergeByKey(runs, func(key string, values []string) {
		if ctx.Err() != nil {
			return
		}
		for _, kv := range reducer(key, mapreduce.NewSliceIterator(values)) {
			fmt.Fprintf(&buf, "%s\t%s\n", kv.Key, kv.Value)
			recordsOut++
		}
	})
	if ctx.Err() != nil {
		e.reportCancelled(req.AttemptID)
		return
	}

	tmpPath := reduceTmpPath(req.OutputPath, req.TaskIndex, req.AttemptID)
	if err := e.blobs.Write(ctx, tmpPath, bytes.NewReader(buf.Bytes())); err != nil {
		e.reportError(req.AttemptID, fmt.Errorf("write output: %w", err))
		return
	}

	decision, err := e.client.taskCompleted(context.Background(), rpc.TaskCompletedRequest{
		AttemptID: req.AttemptID, Outcome: string(task.OutcomeSuccess),
		BytesIn: bytesIn, BytesOut: int64(buf.Len()), RecordsOut: recordsOut,
	})
	if err != nil {
		log.WithError(err).Warn("task-completed RPC failed")
		return
	}

	if decision.Commit {
		if err := e.blobs.Rename(context.Background(), tmpPath, reduceFinalPath(req.OutputPath, req.TaskIndex)); err != nil {
			log.WithError(err).Warn("commit rename failed")
		}
	} else {
		_ = e.blobs.Delete(context.Background(), tmpPath)
	}
}

// simulateDelay honors a worker's simulate_straggler test knob
// (SPEC_FULL.md 8), sleeping straggler_delay before the attempt begins
// real work. Returns true if the attempt was cancelled during the sleep.
func (e *Executor) simulateDelay(ctx context.Context, attemptID string) bool {
	if !e.cfg.SimulateStraggler {
		return false
	}
	select {
	case <-time.After(e.cfg.StragglerDelay):
		return false
	case <-ctx.Done():
		e.reportCancelled(attemptID)
		return true
	}
}

func (e *Executor) cleanupTmp(paths []string) {
	for _, p := range paths {
		_ = e.blobs.Delete(context.Background(), p)
	}
}

func (e *Executor) reportError(attemptID string, err error) {
	if _, rpcErr := e.client.taskCompleted(context.Background(), rpc.TaskCompletedRequest{
		AttemptID: attemptID, Outcome: string(task.OutcomeError), Message: err.Error(),
	}); rpcErr != nil {
		e.log.WithError(rpcErr).Warn("task-completed RPC failed while reporting error")
	}
}

func (e *Executor) reportCancelled(attemptID string) {
	if _, err := e.client.taskCompleted(context.Background(), rpc.TaskCompletedRequest{
		AttemptID: attemptID, Outcome: string(task.OutcomeCancelled),
	}); err != nil {
		e.log.WithError(err).Warn("task-completed RPC failed while reporting cancellation")
	}
}
