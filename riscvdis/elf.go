package riscvdis

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// SectionNotFoundError reports a configured section absent from the ELF
// file being disassembled.
type SectionNotFoundError string

func (e SectionNotFoundError) Error() string {
	return fmt.Sprintf("riscvdis: section not found: %s", string(e))
}

// Map is an address-indexed table of every instruction decoded out of an
// ELF binary's code sections.
type Map struct {
	instrs map[uint64]Instruction
}

// UnknownAddressError reports a trace address with no corresponding
// instruction in the map: either the address is outside the disassembled
// sections, or it landed mid-instruction.
type UnknownAddressError uint64

func (e UnknownAddressError) Error() string {
	return fmt.Sprintf("riscvdis: address %#x is not an instruction", uint64(e))
}

// NewMap builds a Map directly from an address-indexed instruction table,
// bypassing ELF parsing. Exported for tests of packages downstream of
// riscvdis that need a fixed, hand-built instruction map rather than a
// real binary.
func NewMap(instrs map[uint64]Instruction) *Map {
	return &Map{instrs: instrs}
}

// Instr looks up the instruction at addr.
func (m *Map) Instr(addr uint64) (Instruction, error) {
	instr, ok := m.instrs[addr]
	if !ok {
		return Instruction{}, UnknownAddressError(addr)
	}
	return instr, nil
}

// BuildInstructionMap memory-maps the ELF file at path, reads every
// section cfg names, and decodes it instruction by instruction into a Map.
// Decode errors for individual words are tolerated (data embedded in a
// code section, or an opcode this decoder doesn't cover) and skipped by
// advancing 2 bytes, mirroring how an objdump-style disassembler
// resynchronizes after an unknown opcode.
func BuildInstructionMap(path string, cfg *Config) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("riscvdis: opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("riscvdis: mapping %s: %w", path, err)
	}
	defer data.Unmap()

	ef, err := elf.NewFile(&sliceReaderAt{data})
	if err != nil {
		return nil, fmt.Errorf("riscvdis: parsing ELF %s: %w", path, err)
	}

	m := &Map{instrs: make(map[uint64]Instruction)}
	for _, name := range cfg.Disassemble.Sections {
		sec := ef.Section(name)
		if sec == nil {
			return nil, SectionNotFoundError(name)
		}
		code, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("riscvdis: reading section %s: %w", name, err)
		}
		logger.Printf("disassembling section %s: %#x bytes at %#x", name, len(code), sec.Addr)
		decodeSection(m, sec.Addr, code)
	}
	return m, nil
}

func decodeSection(m *Map, base uint64, code []byte) {
	for off := 0; off < len(code); {
		addr := base + uint64(off)
		instr, err := Decode(addr, code[off:])
		if err != nil {
			logger.Printf("skipping undecodable word at %#x: %v", addr, err)
			off += 2
			continue
		}
		m.instrs[addr] = instr
		off += instr.Size
	}
}

// sliceReaderAt adapts a memory-mapped byte slice to io.ReaderAt, so
// debug/elf can parse it without a second copy of the file into memory.
type sliceReaderAt struct {
	data []byte
}

func (r *sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, fmt.Errorf("riscvdis: read at %d out of range", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("riscvdis: short read at %d", off)
	}
	return n, nil
}
