package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pulp-platform/rv-tracer/riscvdis"
)

func TestFileSinkWritesAndFlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_trace")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	instrs := []riscvdis.Instruction{
		{Addr: 0x1000, Opcode: "addi", Rd: 10, Rs1: 10, Rs2: -1, HasImm: true, Imm: 1},
		{Addr: 0x1004, Opcode: "jal", Rd: 1, Rs1: -1, Rs2: -1, HasImm: true, Imm: 0x1000},
	}
	for _, instr := range instrs {
		if err := s.Report(instr); err != nil {
			t.Fatalf("Report(%+v): %v", instr, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "0x1000 addi a0, a0, 1\n0x1004 jal ra, 4096\n"
	if string(got) != want {
		t.Fatalf("file contents = %q, want %q", got, want)
	}
}

func TestNewFileSinkTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_trace")
	if err := os.WriteFile(path, []byte("stale run\nwith old lines\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := s.Report(riscvdis.Instruction{Addr: 0x2000, Opcode: "ecall", Rd: -1, Rs1: -1, Rs2: -1}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "0x2000 ecall \n"
	if string(got) != want {
		t.Fatalf("file contents = %q, want %q (stale content should be gone)", got, want)
	}
}
