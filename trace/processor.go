package trace

import (
	"github.com/pulp-platform/rv-tracer/riscvdis"
	"github.com/pulp-platform/rv-tracer/trace/classify"
	"github.com/pulp-platform/rv-tracer/trace/packet"
)

// iaddressLSB is the encoder's discovery-response parameter for the number
// of implicit zero low bits an address omits. The reference decoder's
// DiscoveryResponse hardcodes it to 0 (no compression below the byte);
// this decoder does the same, since nothing in the wire format or the
// CLI surface exposes a discovery-response query to learn otherwise.
const iaddressLSB = 0

// ReturnStackDepth is the implicit-return stack's capacity: 2^return_stack_size
// if that discovery-response parameter is non-zero, else 2^call_counter_size.
// Both are fixed at 0 by the same hardcoded DiscoveryResponse iaddressLSB
// comes from, so the capacity this decoder builds is 2^0 = 1 — callers that
// need a different depth (a different encoder configuration) can still pass
// their own to NewProcessor directly.
const ReturnStackDepth = 1

// Processor drives the trace reconstruction algorithm: one packet in,
// zero or more retired instructions out. It owns the only State in a run
// and is not safe for concurrent use, matching §5's single-writer model.
type Processor struct {
	state  *State
	instrs *riscvdis.Map
	sink   Sink
	traps  TrapSink
}

// NewProcessor returns a Processor ready to consume the first packet of a
// trace. returnStackDepth sizes the implicit-return ring buffer; traps may
// be nil, in which case trap reports are silently discarded.
func NewProcessor(instrs *riscvdis.Map, sink Sink, traps TrapSink, returnStackDepth int) *Processor {
	if traps == nil {
		traps = DiscardTrapSink{}
	}
	return &Processor{
		state:  NewState(returnStackDepth),
		instrs: instrs,
		sink:   sink,
		traps:  traps,
	}
}

// State exposes the processor's working state, for tests that want to
// assert on it directly.
func (p *Processor) State() *State { return p.state }

// Process consumes one te_inst packet, advancing the state machine and
// reporting every instruction it retires along the way. It returns
// riscvdis.ErrEndOfTrace when the trace ends via the encoder's
// self-referential zero-immediate jump sentinel; callers should treat that
// as a clean stop, not a failure. Any other error is a fatal trace
// violation per §7: the caller must not feed the processor further
// packets once one has been returned.
func (p *Processor) Process(pkt packet.Packet) error {
	defer func() { p.state.preceding = packet.Of(pkt) }()

	if f3, ok := pkt.(packet.Format3Packet); ok {
		return p.processFormat3(pkt, f3)
	}
	return p.processBranchPacket(pkt)
}

func (p *Processor) processBranchPacket(pkt packet.Packet) error {
	s := p.state
	if s.startOfTrace {
		return &TraceViolationError{PC: s.pc, Err: errTraceMustStartSync}
	}

	switch v := pkt.(type) {
	case packet.F1:
		if v.Branches != 0 {
			s.stopAtLastBranch = false
			if s.options.Has(packet.FullAddress) {
				s.address = uint64(v.Address << iaddressLSB)
			} else {
				s.address = uint64(int64(s.address) + v.Address<<iaddressLSB)
			}
		}
		s.stopAtLastBranch = v.Branches == 0
		s.branchMap |= v.BranchMap << uint(s.branches)
		if v.Branches == 0 {
			s.branches += 31
		} else {
			s.branches += v.Branches
		}
	case packet.F2:
		s.stopAtLastBranch = false
		if s.options.Has(packet.FullAddress) {
			s.address = uint64(v.Address << iaddressLSB)
		} else {
			s.address = uint64(int64(s.address) + v.Address<<iaddressLSB)
		}
	}
	return p.followExecutionPath(pkt)
}

func (p *Processor) processFormat3(pkt packet.Packet, f3 packet.Format3Packet) error {
	switch f3.Subformat() {
	case packet.SubformatSupport:
		return p.processSupport(pkt.(packet.F3Support))

	case packet.SubformatContext:
		// Context packets carry nothing this implementation tracks
		// beyond privilege; time/context fields are out of scope
		// (see Non-goals), so this is a privilege update and nothing
		// else retires.
		p.state.privilege = pkt.(packet.F3Context).Privilege
		return nil

	case packet.SubformatTrap:
		trap := pkt.(packet.F3Trap)
		logger.Printf("trap: ecause=%d interrupt=%v thaddr=%v", trap.Ecause, trap.Interrupt != 0, trap.Thaddr != 0)
		if err := p.traps.ReportTrap(trap.Ecause, trap.Tval, trap.Interrupt != 0); err != nil {
			return err
		}
		if trap.Interrupt == 0 {
			addr, err := p.exceptionAddress(trap)
			if err != nil {
				return err
			}
			if err := p.traps.ReportEPC(addr); err != nil {
				return err
			}
		}
		if trap.Thaddr == 0 {
			return nil // trap report only: nothing retired
		}
		return p.processDiscontinuity(pkt, trap.Address, trap.Privilege, trap.Branch, true)

	default: // SubformatSync
		sync := pkt.(packet.F3Sync)
		return p.processDiscontinuity(pkt, sync.Address, sync.Privilege, sync.Branch, false)
	}
}

// processDiscontinuity implements the shared tail of process_te_inst's
// format-3 handling: update state.address and the branch map, then either
// walk forward to it (a sync packet arriving mid-trace) or jump straight
// there (trace start, or a trap - a trap packet's thaddr flag says whether
// control actually lands at its address, but the packet itself always
// reports its own PC directly rather than being walked to).
func (p *Processor) processDiscontinuity(pkt packet.Packet, addr uint64, priv packet.Privilege, branch uint8, isTrap bool) error {
	s := p.state
	s.inferredAddress = false
	s.address = addr << iaddressLSB

	if isTrap || s.startOfTrace {
		s.branches = 0
		s.branchMap = 0
	}

	instrAtAddr, err := p.instrAt(s.address)
	if err != nil {
		return err
	}
	if classify.IsBranch(instrAtAddr) {
		s.branchMap |= uint32(branch) << uint(s.branches)
		s.branches++
	}

	if !isTrap && !s.startOfTrace {
		return p.followExecutionPath(pkt)
	}

	s.pc = s.address
	if err := p.report(); err != nil {
		return err
	}
	s.lastPC = s.pc
	s.privilege = priv
	s.startOfTrace = false
	s.returnStack.Reset()
	return nil
}

// followExecutionPath advances the PC, emitting each retired address,
// until one of the termination conditions in the reference decoder's
// follow_execution_path fires. Ported as a single loop instead of the
// source's two-armed recursion-by-flag: the `inferred_address` branch and
// the normal branch are just two bodies of the same while True.
func (p *Processor) followExecutionPath(pkt packet.Packet) error {
	s := p.state
	for {
		if s.inferredAddress {
			stop, err := p.nextPC(pkt)
			if err != nil {
				return err
			}
			if err := p.report(); err != nil {
				return err
			}
			if stop {
				s.inferredAddress = false
			}
			continue
		}

		stop, err := p.nextPC(pkt)
		if err != nil {
			return err
		}
		if err := p.report(); err != nil {
			return err
		}

		instrAtPC, err := p.instrAt(s.pc)
		if err != nil {
			return err
		}

		if s.branches == 1 && classify.IsBranch(instrAtPC) && s.stopAtLastBranch {
			// Reached the final branch; its retirement isn't known yet, so
			// don't follow past it.
			s.stopAtLastBranch = false
			return nil
		}

		if stop {
			unresolved, err := p.unprocessedBranches(s.pc)
			if err != nil {
				return err
			}
			if unresolved {
				return &TraceViolationError{PC: s.pc, Err: errUnprocessedBranches}
			}
			return nil
		}

		if df, ok := discontinuityFieldsOf(pkt); ok {
			unresolved, err := p.unprocessedBranches(s.pc)
			if err != nil {
				return err
			}

			if s.pc == s.address && !s.stopAtLastBranch && p.notifyDiffers(df.notify) && !unresolved {
				return nil
			}

			lastInstr, err := p.instrAt(s.lastPC)
			if err != nil {
				return err
			}
			if s.pc == s.address && !s.stopAtLastBranch &&
				!classify.IsUninferableDiscon(lastInstr) &&
				p.updisconMatches(df.updiscon) && !unresolved &&
				(p.irreportMatches(df.irreport) || df.irdepth == uint32(s.returnStack.Depth())) {
				// All branches processed and the reported address was
				// reached, but not via an uninferable jump target: stop for
				// now, though this may not be the final retirement.
				s.inferredAddress = true
				return nil
			}
		}

		if sync, ok := pkt.(packet.F3Sync); ok {
			unresolved, err := p.unprocessedBranches(s.pc)
			if err != nil {
				return err
			}
			lastInstr, err := p.instrAt(s.lastPC)
			if err != nil {
				return err
			}
			if s.pc == s.address && !unresolved &&
				(sync.Privilege == s.privilege || classify.IsReturnFromTrap(lastInstr)) {
				return nil
			}
		}
	}
}

// nextPC computes the processor's next PC from its current one,
// classifying the instruction at state.pc in the fixed priority order the
// reference decoder uses. It reports "stop" when the PC was forced to
// state.address after an uninferable discontinuity - the caller still
// needs to check that every branch was consumed before treating that as a
// legitimate arrival.
func (p *Processor) nextPC(pkt packet.Packet) (stop bool, err error) {
	s := p.state
	instr, err := p.instrAt(s.pc)
	if err != nil {
		return false, err
	}
	thisPC := s.pc

	switch {
	case classify.IsInferableJump(instr):
		s.pc = uint64(int64(s.pc) + instr.Imm)

	case p.isSequentialJumpCandidate(instr):
		target, serr := p.sequentialJumpTarget(s.pc, s.lastPC)
		if serr != nil {
			return false, serr
		}
		s.pc = target

	case p.isImplicitReturn(instr, pkt):
		s.pc = s.returnStack.Pop()

	case classify.IsUninferableDiscon(instr):
		if s.stopAtLastBranch {
			return false, &TraceViolationError{PC: s.pc, Err: errUnexpectedDiscon}
		}
		s.pc = s.address
		stop = true

	default:
		taken, terr := p.isTakenBranch(instr)
		if terr != nil {
			return false, terr
		}
		if taken {
			s.pc = uint64(int64(s.pc) + instr.Imm)
		} else {
			s.pc = thisPC + uint64(classify.InstructionSize(instr))
		}
	}

	if classify.IsCall(instr) && s.options.Has(packet.ImplicitReturn) {
		s.returnStack.Push(thisPC + uint64(instr.Size))
	}
	s.lastPC = thisPC
	return stop, nil
}

// processSupport applies a support packet's encoder configuration to
// state. On an ENDED_NTR qualification while a natural-arrival inference
// is outstanding, it re-drives the same two-pass loop
// followExecutionPath uses to resolve it: next_pc against the current
// (already-arrived-at) PC until it signals stop.
func (p *Processor) processSupport(sup packet.F3Support) error {
	s := p.state
	s.options = sup.Ioptions
	if sup.QualStatus != packet.QualStatusNoChange {
		s.startOfTrace = true
	}
	if sup.QualStatus == packet.QualStatusEndedNTR && s.inferredAddress {
		s.inferredAddress = false
		for {
			stop, err := p.nextPC(sup)
			if err != nil {
				return err
			}
			if err := p.report(); err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// exceptionAddress computes the program counter a trap report should
// attribute to report_epc: the trap address itself when control hasn't
// actually landed there yet (thaddr clear), the trapping instruction's own
// PC for ecall/ebreak, or one ordinary step forward otherwise.
func (p *Processor) exceptionAddress(trap packet.F3Trap) (uint64, error) {
	s := p.state
	instr, err := p.instrAt(s.pc)
	if err != nil {
		return 0, err
	}
	if classify.IsUninferableDiscon(instr) && trap.Thaddr == 0 {
		return trap.Address, nil
	}
	switch instr.Opcode {
	case "ecall", "ebreak", "c.ebreak":
		return s.pc, nil
	}
	if _, err := p.nextPC(trap); err != nil {
		return 0, err
	}
	return s.pc, nil
}

// sequentialJumpTarget resolves an uninferable jump whose register was
// just loaded by the preceding auipc/lui/c.lui, per the SIJUMP ioption:
// the target is the producing instruction's immediate, offset from its own
// address if it was an auipc, plus the jump's own immediate if it's a
// jalr carrying one (c.jr/c.jalr never do).
func (p *Processor) sequentialJumpTarget(addr, prevAddr uint64) (uint64, error) {
	instr, err := p.instrAt(addr)
	if err != nil {
		return 0, err
	}
	prevInstr, err := p.instrAt(prevAddr)
	if err != nil {
		return 0, err
	}

	var target int64
	if prevInstr.Opcode == "auipc" {
		target = int64(prevAddr)
	}
	target += prevInstr.Imm
	if instr.Opcode == "jalr" {
		target += instr.Imm
	}
	return uint64(target), nil
}

// isSequentialJumpCandidate reports whether instr is an uninferable jump
// the SIJUMP ioption lets the decoder resolve without the trace's help,
// because it consumes a register the immediately preceding instruction
// just produced from an immediate.
func (p *Processor) isSequentialJumpCandidate(instr riscvdis.Instruction) bool {
	if !(classify.IsUninferableJump(instr) && p.state.options.Has(packet.SIJump)) {
		return false
	}
	prevInstr, err := p.instrAt(p.state.lastPC)
	if err != nil {
		return false
	}
	switch prevInstr.Opcode {
	case "auipc", "lui", "c.lui":
		return instr.Rs1 == prevInstr.Rd
	default:
		return false
	}
}

// isImplicitReturn reports whether instr is a jalr/c.jr shaped like a
// subroutine return and the implicit-return stack can supply its target:
// IMPLICIT_RETURN must be enabled, the packet's irreport/irdepth pair must
// not explicitly disconfirm an implicit return, and the stack must be
// non-empty.
func (p *Processor) isImplicitReturn(instr riscvdis.Instruction, pkt packet.Packet) bool {
	s := p.state
	if !s.options.Has(packet.ImplicitReturn) {
		return false
	}
	isReturnShape := (instr.Opcode == "jalr" && instr.Rs1 == 1 && instr.Rd == 0) ||
		(instr.Opcode == "c.jr" && instr.Rs1 == 1)
	if !isReturnShape {
		return false
	}

	if irreport, irdepth, ok := irreportFieldsOf(pkt); ok {
		differs := !s.preceding.Valid || irreport != s.preceding.Irreport
		if differs && irdepth == uint32(s.returnStack.Depth()) {
			return false
		}
	}
	return s.returnStack.Depth() > 0
}

// isTakenBranch consumes one bit of the branch map for instr if it's a
// branch, reporting whether that outcome was taken. It returns a
// TraceViolationError if the map has no bit left to consume, matching the
// source's unconditional raise on branches==0.
func (p *Processor) isTakenBranch(instr riscvdis.Instruction) (bool, error) {
	s := p.state
	if !classify.IsBranch(instr) {
		return false, nil
	}
	if s.branches == 0 {
		return false, &TraceViolationError{PC: instr.Addr, Err: errCannotResolveBranch}
	}
	taken := s.branchMap&1 == 0
	s.branches--
	s.branchMap >>= 1
	return taken, nil
}

// unprocessedBranches reports whether state.branches holds more branch
// outcomes than the instruction at addr accounts for (1 if it is itself a
// branch, 0 otherwise).
func (p *Processor) unprocessedBranches(addr uint64) (bool, error) {
	instr, err := p.instrAt(addr)
	if err != nil {
		return false, err
	}
	want := 0
	if classify.IsBranch(instr) {
		want = 1
	}
	return p.state.branches != want, nil
}

// instrAt is the processor's single instruction accessor: every PC lookup
// in this file goes through it, so the end-of-trace sentinel check only
// has to live in one place (mirroring get_instr being the reference
// decoder's sole instruction accessor too).
func (p *Processor) instrAt(addr uint64) (riscvdis.Instruction, error) {
	instr, err := p.instrs.Instr(addr)
	if err != nil {
		return riscvdis.Instruction{}, err
	}
	switch instr.Opcode {
	case "jal", "c.j", "c.jal":
		if instr.HasImm && instr.Imm == 0 {
			return riscvdis.Instruction{}, riscvdis.ErrEndOfTrace
		}
	}
	return instr, nil
}

func (p *Processor) report() error {
	instr, err := p.instrAt(p.state.pc)
	if err != nil {
		return err
	}
	return p.sink.Report(instr)
}

// discontinuityBits is the notify/updiscon/irreport/irdepth quadruple a
// Format 1 or Format 2 packet carries; Format 3 packets don't, which is
// why followExecutionPath's notification/natural-arrival stops only ever
// fire for F1/F2.
type discontinuityBits struct {
	notify, updiscon, irreport uint8
	irdepth                    uint32
}

func discontinuityFieldsOf(pkt packet.Packet) (discontinuityBits, bool) {
	switch v := pkt.(type) {
	case packet.F1:
		if v.Branches == 0 {
			return discontinuityBits{}, false // short form carries no address/bits
		}
		return discontinuityBits{v.Notify, v.Updiscon, v.Irreport, v.Irdepth}, true
	case packet.F2:
		return discontinuityBits{v.Notify, v.Updiscon, v.Irreport, v.Irdepth}, true
	default:
		return discontinuityBits{}, false
	}
}

// irreportFieldsOf extracts the irreport/irdepth pair is_implicit_return
// needs, for the packet kinds that carry one.
func irreportFieldsOf(pkt packet.Packet) (irreport uint8, irdepth uint32, ok bool) {
	switch v := pkt.(type) {
	case packet.F1:
		if v.Branches == 0 {
			return 0, 0, false
		}
		return v.Irreport, v.Irdepth, true
	case packet.F2:
		return v.Irreport, v.Irdepth, true
	default:
		return 0, 0, false
	}
}

func (p *Processor) notifyDiffers(notify uint8) bool {
	pre := p.state.preceding
	return !pre.Valid || notify != pre.Notify
}

func (p *Processor) updisconMatches(updiscon uint8) bool {
	pre := p.state.preceding
	return pre.Valid && updiscon == pre.Updiscon
}

func (p *Processor) irreportMatches(irreport uint8) bool {
	pre := p.state.preceding
	return pre.Valid && irreport == pre.Irreport
}
