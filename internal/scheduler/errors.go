package scheduler

import "errors"

// Error kinds named in spec.md 7. Handlers in api.go map these to HTTP
// status codes; callers use errors.Is against these sentinels.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrUserCodeError    = errors.New("user code error")
	ErrWorkerUnavailable = errors.New("worker unavailable")
	ErrTimeout          = errors.New("timeout")
	ErrBlobStoreError   = errors.New("blob store error")
	ErrInternal         = errors.New("internal error")
)
