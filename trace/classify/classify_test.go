package classify

import (
	"testing"

	"github.com/pulp-platform/rv-tracer/riscvdis"
)

func instr(opcode string, rd, rs1 int) riscvdis.Instruction {
	return riscvdis.Instruction{Opcode: opcode, Rd: rd, Rs1: rs1}
}

func TestIsBranch(t *testing.T) {
	for _, op := range []string{"beq", "bne", "blt", "bge", "bltu", "bgeu", "c.beqz", "c.bnez", "beqz", "bgtz"} {
		if !IsBranch(instr(op, -1, -1)) {
			t.Errorf("IsBranch(%s) = false, want true", op)
		}
	}
	if IsBranch(instr("add", -1, -1)) {
		t.Error("IsBranch(add) = true, want false")
	}
}

func TestIsInferableJump(t *testing.T) {
	if !IsInferableJump(instr("jal", 1, -1)) {
		t.Error("jal should be inferable")
	}
	if !IsInferableJump(instr("jalr", 0, 0)) {
		t.Error("jalr rs1=0 should be inferable")
	}
	if IsInferableJump(instr("jalr", 0, 1)) {
		t.Error("jalr rs1!=0 should not be inferable")
	}
}

func TestIsUninferableJump(t *testing.T) {
	if !IsUninferableJump(instr("jalr", 0, 1)) {
		t.Error("jalr rs1!=0 should be uninferable")
	}
	if IsUninferableJump(instr("jalr", 0, 0)) {
		t.Error("jalr rs1=0 should not be uninferable")
	}
	if !IsUninferableJump(instr("c.jr", -1, 1)) {
		t.Error("c.jr should be uninferable")
	}
}

func TestIsUninferableDiscon(t *testing.T) {
	for _, op := range []string{"c.jr", "mret", "ecall", "ebreak", "c.ebreak"} {
		if !IsUninferableDiscon(instr(op, -1, 1)) {
			t.Errorf("IsUninferableDiscon(%s) = false, want true", op)
		}
	}
	if IsUninferableDiscon(instr("jal", 1, -1)) {
		t.Error("jal is inferable, should not count as uninferable discontinuity")
	}
}

func TestIsCall(t *testing.T) {
	if !IsCall(instr("jal", 1, -1)) {
		t.Error("jal rd=ra should be a call")
	}
	if IsCall(instr("jal", 0, -1)) {
		t.Error("jal rd=x0 is a plain jump, not a call")
	}
	if !IsCall(instr("c.jalr", -1, 1)) {
		t.Error("c.jalr should always be a call")
	}
}

func TestInstructionSize(t *testing.T) {
	i := riscvdis.Instruction{Opcode: "c.jr", Size: 2}
	if InstructionSize(i) != 2 {
		t.Errorf("InstructionSize = %d, want 2", InstructionSize(i))
	}
}
