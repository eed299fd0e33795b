// Package rpc defines the JSON wire types shared by the scheduler-facing
// and scheduler-worker RPC surfaces (SPEC_FULL.md 6), grounded on the
// teacher's fluxforge/agent request/response shapes (plain structs decoded
// with encoding/json over net/http, no framework).
package rpc

import "time"

// SubmitJobRequest is the body of POST /jobs.
type SubmitJobRequest struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	MapperRef  string `json:"mapper_ref"`
	ReducerRef string `json:"reducer_ref"`
	M          int    `json:"m"`
	R          int    `json:"r"`
}

// SubmitJobResponse is the body of a successful POST /jobs reply.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

// JobStatusResponse is the body of GET /jobs/{id}.
type JobStatusResponse struct {
	JobID           string `json:"job_id"`
	Phase           string `json:"phase"`
	M               int    `json:"m"`
	R               int    `json:"r"`
	MapPending      int    `json:"map_pending"`
	MapRunning      int    `json:"map_running"`
	MapCommitted    int    `json:"map_committed"`
	ReducePending   int    `json:"reduce_pending"`
	ReduceRunning   int    `json:"reduce_running"`
	ReduceCommitted int    `json:"reduce_committed"`
	FailedAttempts  int    `json:"failed_attempts"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// ErrorResponse is the JSON body returned alongside a non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterWorkerRequest is the body of POST /scheduler/register.
type RegisterWorkerRequest struct {
	WorkerID string `json:"worker_id"`
	Endpoint string `json:"endpoint"`
	Capacity int    `json:"capacity"`
}

// HeartbeatRequest is the body of POST /scheduler/heartbeat, sent by a
// worker every heartbeat_interval (spec.md 4.2).
type HeartbeatRequest struct {
	WorkerID    string   `json:"worker_id"`
	InFlightIDs []string `json:"in_flight_ids"`
}

// HeartbeatResponse tells the worker which of its reported in-flight
// attempts the scheduler has already resolved and wants killed.
type HeartbeatResponse struct {
	Cancellations []string `json:"cancellations"`
}

// TaskCompletedRequest is the body of POST /scheduler/task-completed.
type TaskCompletedRequest struct {
	AttemptID  string `json:"attempt_id"`
	WorkerID   string `json:"worker_id"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message,omitempty"`
	BytesIn    int64  `json:"bytes_in,omitempty"`
	BytesOut   int64  `json:"bytes_out,omitempty"`
	RecordsOut int64  `json:"records_out,omitempty"`
	TmpPath    string `json:"tmp_path,omitempty"`
}

// CommitDecision is the scheduler's synchronous reply to TaskCompleted,
// telling the worker whether to rename its tmp artifact into place or
// delete it (spec.md 4.3 atomic output write rule).
type CommitDecision struct {
	Commit     bool   `json:"commit"`
	FinalPath  string `json:"final_path,omitempty"`
}

// ExecuteMapTaskRequest is the body of POST /worker/map.
type ExecuteMapTaskRequest struct {
	JobID      string `json:"job_id"`
	TaskIndex  int    `json:"task_index"`
	AttemptID  string `json:"attempt_id"`
	InputPath  string `json:"input_path"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	MapperRef  string `json:"mapper_ref"`
	R          int    `json:"r"`
	IsBackup   bool   `json:"is_backup"`
}

// ExecuteReduceTaskRequest is the body of POST /worker/reduce.
type ExecuteReduceTaskRequest struct {
	JobID      string `json:"job_id"`
	TaskIndex  int    `json:"task_index"`
	AttemptID  string `json:"attempt_id"`
	M          int    `json:"m"`
	ReducerRef string `json:"reducer_ref"`
	OutputPath string `json:"output_path"`
	IsBackup   bool   `json:"is_backup"`
}

// CancelTaskRequest is the body of POST /worker/cancel.
type CancelTaskRequest struct {
	AttemptID string `json:"attempt_id"`
}

// JobEvent is pushed over the /jobs/{id}/stream websocket (SPEC_FULL.md 4.9).
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"` // task_state, job_phase
	TaskKind  string    `json:"task_kind,omitempty"`
	TaskIndex int       `json:"task_index,omitempty"`
	State     string    `json:"state,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	At        time.Time `json:"at"`
}
