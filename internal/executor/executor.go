// Package executor runs a single diagnostic request against the daemon on
// a background goroutine. The daemon round trip is the one blocking point
// and it happens off the caller's goroutine; the caller polls the handle.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accelkit/acceldiag/internal/daemon"
	"github.com/accelkit/acceldiag/internal/schema"
)

// DefaultCadence is how often callers are expected to poll an outstanding
// handle. Cancellation checks happen at this granularity.
const DefaultCadence = 100 * time.Millisecond

// Terminal, non-retryable outcomes, surfaced verbatim to the caller.
var (
	ErrConnectionFailed  = errors.New("unable to reach the daemon")
	ErrGroupIncompatible = errors.New("diagnostic can only be performed on a homogeneous group of devices")
	ErrUnsupportedDriver = errors.New("diagnostic could not be run because the recommended driver is not in use")
	ErrDaemonPaused      = errors.New("diagnostic could not be run while the daemon is paused")
	ErrTimeout           = errors.New("diagnostic timed out")
	ErrKilled            = errors.New("diagnostic was killed")
)

// DaemonError carries a daemon-reported failure that has no dedicated
// sentinel: its status code plus the system-error text, or a synthesized
// message when the daemon supplied none.
type DaemonError struct {
	Status  schema.Status
	Message string
}

func (e *DaemonError) Error() string {
	return e.Message
}

// Result is the terminal outcome of one submitted run. Exactly one of
// Response and Err is meaningful: a transport or daemon error means no
// valid response exists to inspect.
type Result struct {
	Response *schema.RunResponse
	Err      error
}

// Handle tracks one in-flight run.
type Handle struct {
	ID uuid.UUID

	done chan struct{}

	mu     sync.Mutex
	result Result
}

// Poll is non-blocking: it reports whether the background task has
// terminated, and if so its result.
func (h *Handle) Poll() (Result, bool) {
	select {
	case <-h.done:
	default:
		return Result{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, true
}

// Executor submits runs to one daemon client.
type Executor struct {
	client daemon.Client
	log    *slog.Logger
}

func New(client daemon.Client) *Executor {
	return &Executor{
		client: client,
		log:    slog.Default(),
	}
}

// Submit validates the request shape and begins execution on a background
// goroutine. It returns immediately; shape validation failures are
// reported before anything is scheduled.
func (e *Executor) Submit(ctx context.Context, req schema.RunRequest) (*Handle, error) {
	if err := schema.ValidateDeviceList(req.DeviceList); err != nil {
		return nil, fmt.Errorf("device list %q: %w", req.DeviceList, err)
	}

	h := &Handle{
		ID:   uuid.New(),
		done: make(chan struct{}),
	}
	go e.run(ctx, req, h)
	return h, nil
}

func (e *Executor) run(ctx context.Context, req schema.RunRequest, h *Handle) {
	status, resp, err := e.client.RunDiagnostic(ctx, req)
	result := e.mapOutcome(ctx, req, status, resp, err)

	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

// RequestStop asks the daemon to abort the in-flight run. Best effort: it
// does not block on the background goroutine, which terminates when the
// daemon's own reply arrives.
func (e *Executor) RequestStop(ctx context.Context, h *Handle) {
	status, err := e.client.StopDiagnostic(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "could not stop the launched diagnostic",
			"handle", h.ID, "error", err)
		return
	}
	if status != schema.StatusOK {
		e.log.WarnContext(ctx, "daemon refused to stop the launched diagnostic",
			"handle", h.ID, "status", status.String())
	}
}

func (e *Executor) mapOutcome(ctx context.Context, req schema.RunRequest, status schema.Status, resp *schema.RunResponse, err error) Result {
	if err != nil {
		if errors.Is(err, schema.ErrSchemaMismatch) || errors.Is(err, schema.ErrUnknownVersion) {
			return Result{Err: err}
		}
		return Result{Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)}
	}

	switch status {
	case schema.StatusOK:
		if resp == nil {
			// Nothing to classify; success without a response is a daemon bug.
			return Result{Err: &DaemonError{Status: schema.StatusGenericError,
				Message: "daemon reported success without a response"}}
		}
		if resp.SystemError.Message != "" {
			// The run never really started; the response carries no results.
			return Result{Err: &DaemonError{Status: schema.StatusGenericError, Message: resp.SystemError.Message}}
		}
		return Result{Response: resp}

	case schema.StatusGroupIncompatible:
		return Result{Err: ErrGroupIncompatible}

	case schema.StatusUnsupportedDriver:
		return Result{Err: ErrUnsupportedDriver}

	case schema.StatusPaused:
		return Result{Err: ErrDaemonPaused}

	case schema.StatusTimeout:
		// Stop the launched diagnostic so a timed-out run does not keep
		// consuming daemon resources. Failure of this compensating stop is
		// a warning, never escalated.
		if st, serr := e.client.StopDiagnostic(ctx); serr != nil || st != schema.StatusOK {
			e.log.WarnContext(ctx, "could not stop the timed-out diagnostic",
				"status", st.String(), "error", serr)
			return Result{Err: fmt.Errorf("%w (could not stop the launched diagnostic)", ErrTimeout)}
		}
		return Result{Err: ErrTimeout}

	case schema.StatusKilled:
		return Result{Err: ErrKilled}
	}

	if resp != nil && resp.SystemError.Message != "" {
		return Result{Err: &DaemonError{Status: status, Message: resp.SystemError.Message}}
	}
	msg := fmt.Sprintf("unable to complete diagnostic for group %d: (%d) %s",
		req.GroupID, status, status.String())
	return Result{Err: &DaemonError{Status: status, Message: msg}}
}
