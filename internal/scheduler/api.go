package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AmiBuch/flowmr/internal/rpc"
)

// NewMux builds the scheduler's HTTP+JSON RPC surface (SPEC_FULL.md 6):
// plain net/http handlers keyed on Go 1.22+ method+pattern routes, no
// framework, matching the teacher's own net/http.ServeMux-based
// control_plane/main.go wiring.
func (s *Scheduler) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJobStatus)
	mux.HandleFunc("GET /jobs/{id}/results", s.handleGetResults)
	mux.HandleFunc("GET /jobs/{id}/stream", s.handleJobStream)
	mux.HandleFunc("POST /blobs/{path...}", s.handleUploadBlob)

	mux.HandleFunc("POST /scheduler/register", s.handleRegisterWorker)
	mux.HandleFunc("POST /scheduler/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /scheduler/task-completed", s.handleTaskCompleted)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrWorkerUnavailable), errors.Is(err, ErrTimeout):
		status = http.StatusConflict
	}
	writeJSON(w, status, rpc.ErrorResponse{Error: err.Error()})
}

func (s *Scheduler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req rpc.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	jobID, err := s.SubmitJob(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.SubmitJobResponse{JobID: jobID})
}

func (s *Scheduler) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	st, err := s.GetJobStatus(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.JobStatusResponse{
		JobID: st.JobID, Phase: string(st.Phase), M: st.M, R: st.R,
		MapPending: st.MapPending, MapRunning: st.MapRunning, MapCommitted: st.MapCommitted,
		ReducePending: st.ReducePending, ReduceRunning: st.ReduceRunning, ReduceCommitted: st.ReduceCommitted,
		FailedAttempts: st.FailedAttempts, ErrorMessage: st.ErrorMessage,
	})
}

func (s *Scheduler) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if _, err := s.GetJobStatus(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	outputPath := r.URL.Query().Get("output_path")
	if outputPath == "" {
		writeError(w, badRequest("output_path query parameter is required"))
		return
	}

	rc, err := s.GetResults(r.Context(), outputPath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.Copy(w, rc)
}

func (s *Scheduler) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := s.GetJobStatus(jobID); err != nil {
		writeError(w, err)
		return
	}
	s.hub.ServeJobStream(w, r, jobID)
}

func (s *Scheduler) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" {
		writeError(w, badRequest("blob path is required"))
		return
	}
	if err := s.UploadBlob(r.Context(), path, r.Body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Scheduler) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req rpc.RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	s.RegisterWorker(req)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Scheduler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req rpc.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	resp, err := s.Heartbeat(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Scheduler) handleTaskCompleted(w http.ResponseWriter, r *http.Request) {
	var req rpc.TaskCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	decision, err := s.TaskCompleted(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}
