package pipeline

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStream/stream/common"
)

// --------------------------------------------------------------------------
// Status Reporting
// --------------------------------------------------------------------------

// IStatusReporter receives every state transition of a pipeline, in order.
// Report is called from a dedicated goroutine, a slow reporter delays later
// reports but never the network or consumer workers. The reporter may call Stop,
// see Pipeline.Stop.
type IStatusReporter interface {
	Report(status common.Status)
}

// ReporterFunc adapts a function to the IStatusReporter interface
type ReporterFunc func(status common.Status)

func (f ReporterFunc) Report(status common.Status) {
	f(status)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrAlreadyStarted is returned by Start on a running pipeline
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrStopped is returned by Start on a stopped pipeline, pipelines cannot be restarted
	ErrStopped = errors.New("pipeline stopped")
)

// BindError is returned by Start when the listener cannot be created
type BindError struct {
	Endpoint string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// SinkError is the fatal error of a pipeline whose sink failed
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
