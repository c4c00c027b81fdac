package trace

import (
	"errors"
	"fmt"
)

// TraceViolationError wraps an algorithm-invariant violation with the PC
// the processor had reached when it fired. Grounded on
// go-interpreter-wagon/validate.Error's offset-wrapping shape: every
// trace-algorithm violation is fatal, so the only thing worth attaching
// to the underlying sentinel is where in the trace it happened.
type TraceViolationError struct {
	PC  uint64
	Err error
}

func (e *TraceViolationError) Error() string {
	return fmt.Sprintf("trace: at pc %#x: %v", e.PC, e.Err)
}

func (e *TraceViolationError) Unwrap() error { return e.Err }

// Sentinel causes wrapped by TraceViolationError. Each corresponds to one
// of trace_processor.py's bare `raise Exception(...)` call sites.
var (
	errUnprocessedBranches = errors.New("unprocessed branches at stop point")
	errCannotResolveBranch = errors.New("cannot resolve branch: branches == 0")
	errUnexpectedDiscon    = errors.New("unexpected uninferable discontinuity while stop_at_last_branch is set")
	errTraceMustStartSync  = errors.New("expecting trace to start with a format 3 sync packet")
)
