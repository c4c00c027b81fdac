package trace

import "github.com/pulp-platform/rv-tracer/riscvdis"

// Sink receives every retired instruction the processor reports, in
// program order. Grounded on instruction_logger.py's log_instruction,
// generalized to an interface so the execution log destination isn't
// hardwired to a single file the way the reference decoder's is.
type Sink interface {
	Report(instr riscvdis.Instruction) error
}

// TrapSink receives the side-band reports a trap packet carries: the
// exception cause/value pair, and the exception program counter. The
// reference decoder leaves both as NotImplementedError stubs
// (report_trap, report_epc); TrapSink makes that an explicit, pluggable
// extension point instead of a hole in the algorithm.
type TrapSink interface {
	ReportTrap(ecause, tval uint64, interrupt bool) error
	ReportEPC(address uint64) error
}

// DiscardTrapSink implements TrapSink by doing nothing. It's the default
// when a caller has no use for trap detail, without forcing every
// processor to guard against a nil TrapSink.
type DiscardTrapSink struct{}

func (DiscardTrapSink) ReportTrap(ecause, tval uint64, interrupt bool) error { return nil }
func (DiscardTrapSink) ReportEPC(address uint64) error                      { return nil }
