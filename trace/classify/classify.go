// Package classify implements the pure instruction predicates the trace
// reconstruction state machine dispatches on: is this a branch, a call, an
// inferable or uninferable discontinuity. The sequential-jump and
// implicit-return checks need state beyond one instruction and live in
// package trace instead. Grounded on
// trace_processor_utils.py's is_* helpers in the reference decoder; ported
// opcode-for-opcode rather than reworked, since they're already a flat,
// idiomatic lookup-table shape.
package classify

import "github.com/pulp-platform/rv-tracer/riscvdis"

var branchOpcodes = map[string]bool{
	"beq": true, "bne": true, "blt": true, "bge": true, "bltu": true, "bgeu": true,
	"c.beqz": true, "c.bnez": true,
	"beqz": true, "bnez": true, "blez": true, "bgez": true, "bltz": true, "bgtz": true,
}

var pseudoBranchOpcodes = map[string]bool{
	"beqz": true, "bnez": true, "blez": true, "bgez": true, "bltz": true, "bgtz": true,
}

var trapReturnOpcodes = map[string]bool{
	"uret": true, "sret": true, "mret": true, "dret": true,
}

// IsBranch reports whether instr is a conditional branch, real or pseudo.
func IsBranch(instr riscvdis.Instruction) bool { return branchOpcodes[instr.Opcode] }

// IsCompressedBranch reports whether instr is one of the two compressed
// conditional branches, whose target is carried differently than a
// standard branch's immediate.
func IsCompressedBranch(instr riscvdis.Instruction) bool {
	return instr.Opcode == "c.beqz" || instr.Opcode == "c.bnez"
}

// IsPseudoBranch reports whether instr is an assembler pseudo-branch
// (beqz/bnez/blez/bgez/bltz/bgtz), expanded from a real branch against x0.
func IsPseudoBranch(instr riscvdis.Instruction) bool { return pseudoBranchOpcodes[instr.Opcode] }

// IsInferableJump reports whether instr's target can be computed without
// consulting the trace: an unconditional jump with an immediate offset, or
// a jalr through x0 (used for absolute jumps the assembler can resolve).
func IsInferableJump(instr riscvdis.Instruction) bool {
	switch instr.Opcode {
	case "jal", "c.j", "c.jal":
		return true
	case "jalr":
		return instr.Rs1 == 0
	default:
		return false
	}
}

// IsUninferableJump reports whether instr's target depends on a register
// value the decoder cannot know without the trace's help.
func IsUninferableJump(instr riscvdis.Instruction) bool {
	switch instr.Opcode {
	case "c.jr", "c.jalr":
		return true
	case "jalr":
		return instr.Rs1 != 0
	default:
		return false
	}
}

// IsReturnFromTrap reports whether instr returns control from a trap
// handler (uret/sret/mret/dret).
func IsReturnFromTrap(instr riscvdis.Instruction) bool { return trapReturnOpcodes[instr.Opcode] }

// IsUninferableDiscon reports whether instr is any discontinuity whose
// destination the trace must report explicitly: an uninferable jump, a
// trap return, or a trap-raising instruction.
func IsUninferableDiscon(instr riscvdis.Instruction) bool {
	if IsUninferableJump(instr) || IsReturnFromTrap(instr) {
		return true
	}
	switch instr.Opcode {
	case "ecall", "ebreak", "c.ebreak":
		return true
	default:
		return false
	}
}

// IsCall reports whether instr is a call: it pushes a return address onto
// the implicit-return stack. Tail calls (jal/jalr into rd=x0 or a register
// other than ra) are excluded, matching the ISA's calling convention.
func IsCall(instr riscvdis.Instruction) bool {
	switch instr.Opcode {
	case "c.jal", "c.jalr":
		return true
	case "jalr", "jal":
		return instr.Rd == 1
	default:
		return false
	}
}

// InstructionSize returns instr's encoded size in bytes (2 for a
// compressed instruction, 4 otherwise). The reference decoder derives this
// from the "c." mnemonic prefix Capstone reports; this decoder already
// carries it as a typed field, so InstructionSize is just an accessor kept
// for parity with the algorithm's vocabulary.
func InstructionSize(instr riscvdis.Instruction) int { return instr.Size }
