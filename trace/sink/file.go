// Package sink provides Sink implementations for trace.Processor.
package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pulp-platform/rv-tracer/riscvdis"
)

// FileSink writes one line per retired instruction to a file, in the
// reference decoder's execution_trace format: "0xADDR mnemonic operands".
// Unlike instruction_logger.py, which reopens the file in append mode for
// every single instruction, FileSink opens it once and buffers writes,
// flushing on Close.
type FileSink struct {
	f *os.File
	w *bufio.Writer
}

// NewFileSink truncates (or creates) path and returns a FileSink that
// writes to it.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: creating %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Report(instr riscvdis.Instruction) error {
	_, err := fmt.Fprintf(s.w, "%#x %s %s\n", instr.Addr, instr.Opcode, instr.Operands())
	return err
}

// Close flushes buffered output and closes the underlying file.
func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
