package trace

import (
	"github.com/pulp-platform/rv-tracer/internal/ringstack"
	"github.com/pulp-platform/rv-tracer/trace/packet"
)

// State is the trace reconstruction algorithm's working state: the
// retired-instruction cursor (pc) plus every piece of bookkeeping
// follow_execution_path needs to decide when to stop walking forward.
// Grounded on trace_processor_model.py's TraceState, split out from
// Processor so tests can assert on it directly without driving a whole
// packet stream.
type State struct {
	pc, lastPC uint64

	branches  int
	branchMap uint32

	stopAtLastBranch bool
	inferredAddress  bool
	startOfTrace     bool

	address   uint64 // the most recently reported target address
	privilege packet.Privilege
	options   packet.Ioptions

	returnStack *ringstack.Stack

	preceding packet.Preceding // the immediately preceding packet's notify/updiscon/irreport (invalid unless it was an F1/F2 carrying them)
}

// NewState returns a State ready to process the first packet of a trace.
// returnStackDepth is the implicit-return stack's capacity, a parameter of
// the encoder (2^return_stack_size, or 2^call_counter_size when the
// former is zero); see DESIGN.md for how this decoder fixes it.
func NewState(returnStackDepth int) *State {
	return &State{
		startOfTrace: true,
		options:      packet.DefaultIoptions(),
		returnStack:  ringstack.New(returnStackDepth),
	}
}

// PC returns the address of the instruction most recently reported to the
// sink.
func (s *State) PC() uint64 { return s.pc }
