package riscvdis

// Decode is a from-scratch RV64IMC decoder: standard 32-bit instructions
// (RV32I/RV64I, M) plus the "C" compressed extension; A, F and D encodings
// are not decoded (a 32-bit one is a DecodeError, a compressed one comes
// back as "c.unknown"). It is sized and
// opcode-tabled the way github.com/LMMilewski/riscv-emu's decode.go lays
// its base-opcode switch out, but reduced to typed Rd/Rs1/Rs2/Imm fields
// instead of an interpreter dispatch table, since this decoder only needs
// to describe instructions, not execute them.

import "fmt"

// DecodeError reports bytes this decoder has no table entry for, at a
// given trace address.
type DecodeError struct {
	Addr uint64
	Word uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("riscvdis: no decoding for %#08x at %#x", e.Word, e.Addr)
}

// Decode decodes one instruction starting at addr from the front of b.
// len(b) must be at least 2; Decode reads 2 or 4 bytes depending on the
// instruction's size tag in the low bits of the first byte.
func Decode(addr uint64, b []byte) (Instruction, error) {
	if len(b) < 2 {
		return Instruction{}, fmt.Errorf("riscvdis: truncated instruction at %#x", addr)
	}
	if b[0]&0x3 != 0x3 {
		word := uint16(b[1])<<8 | uint16(b[0])
		return decodeCompressed(addr, word)
	}
	if len(b) < 4 {
		return Instruction{}, fmt.Errorf("riscvdis: truncated instruction at %#x", addr)
	}
	word := uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
	return decodeStandard(addr, word)
}

func signExtend(v uint64, signBit int) int64 {
	mask := uint64(1) << uint(signBit)
	if v&mask != 0 {
		return int64(v | ^uint64(0)<<uint(signBit))
	}
	return int64(v)
}

func decodeStandard(addr uint64, in uint32) (Instruction, error) {
	w := uint64(in)
	rd := int((w >> 7) & 0x1f)
	rs1 := int((w >> 15) & 0x1f)
	rs2 := int((w >> 20) & 0x1f)
	funct3 := (w >> 12) & 0x7
	funct7 := (w >> 25) & 0x7f

	base := Instruction{Addr: addr, Size: 4, Rd: noReg, Rs1: noReg, Rs2: noReg}

	switch opcode := (w >> 2) & 0x1f; opcode {
	case 0x0D: // LUI
		base.Opcode, base.Rd, base.Imm, base.HasImm = "lui", rd, int64(int32(w&0xFFFFF000)), true
		return base, nil
	case 0x05: // AUIPC
		base.Opcode, base.Rd, base.Imm, base.HasImm = "auipc", rd, int64(int32(w&0xFFFFF000)), true
		return base, nil
	case 0x1B: // JAL
		raw := (w>>11)&0x100000 | w&0xff000 | (w>>9)&0x800 | (w>>20)&0x7fe
		base.Opcode, base.Rd, base.Imm, base.HasImm = "jal", rd, signExtend(raw, 20), true
		return base, nil
	case 0x19: // JALR
		base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "jalr", rd, rs1, signExtend(w>>20, 11), true
		return base, nil
	case 0x18: // BRANCH
		names := map[uint64]string{0: "beq", 1: "bne", 4: "blt", 5: "bge", 6: "bltu", 7: "bgeu"}
		name, ok := names[funct3]
		if !ok {
			return Instruction{}, &DecodeError{addr, in}
		}
		raw := (w>>19)&0x1000 | (w<<4)&0x800 | (w>>20)&0x7e0 | (w>>7)&0x1e
		base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = name, rs1, rs2, signExtend(raw, 12), true
		return base, nil
	case 0x00: // LOAD
		names := map[uint64]string{0: "lb", 1: "lh", 2: "lw", 3: "ld", 4: "lbu", 5: "lhu", 6: "lwu"}
		name, ok := names[funct3]
		if !ok {
			return Instruction{}, &DecodeError{addr, in}
		}
		base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = name, rd, rs1, signExtend(w>>20, 11), true
		return base, nil
	case 0x08: // STORE
		names := map[uint64]string{0: "sb", 1: "sh", 2: "sw", 3: "sd"}
		name, ok := names[funct3]
		if !ok {
			return Instruction{}, &DecodeError{addr, in}
		}
		raw := (w>>20)&0xFE0 | (w>>7)&0x1f
		base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = name, rs1, rs2, signExtend(raw, 11), true
		return base, nil
	case 0x04: // OP-IMM
		switch funct3 {
		case 1:
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "slli", rd, rs1, int64(w>>20&0x3f), true
		case 5:
			if (w>>26)&1 != 0 {
				base.Opcode = "srai"
			} else {
				base.Opcode = "srli"
			}
			base.Rd, base.Rs1, base.Imm, base.HasImm = rd, rs1, int64(w>>20&0x3f), true
		default:
			names := map[uint64]string{0: "addi", 2: "slti", 3: "sltiu", 4: "xori", 6: "ori", 7: "andi"}
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = names[funct3], rd, rs1, signExtend(w>>20, 11), true
		}
		return base, nil
	case 0x06: // OP-IMM-32 (RV64)
		switch funct3 {
		case 1:
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "slliw", rd, rs1, int64(w>>20&0x1f), true
		case 5:
			if (w>>25)&1 != 0 {
				base.Opcode = "sraiw"
			} else {
				base.Opcode = "srliw"
			}
			base.Rd, base.Rs1, base.Imm, base.HasImm = rd, rs1, int64(w>>20&0x1f), true
		case 0:
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "addiw", rd, rs1, signExtend(w>>20, 11), true
		default:
			return Instruction{}, &DecodeError{addr, in}
		}
		return base, nil
	case 0x0C, 0x0E: // OP, OP-32
		rv64 := opcode == 0x0E
		name, ok := rTypeName(funct3, funct7, rv64)
		if !ok {
			return Instruction{}, &DecodeError{addr, in}
		}
		base.Opcode, base.Rd, base.Rs1, base.Rs2 = name, rd, rs1, rs2
		return base, nil
	case 0x03: // MISC-MEM
		if funct3 == 1 {
			base.Opcode = "fence.i"
		} else {
			base.Opcode = "fence"
		}
		return base, nil
	case 0x1C: // SYSTEM
		if funct3 == 0 {
			imm12 := w >> 20
			switch imm12 {
			case 0x000:
				base.Opcode = "ecall"
			case 0x001:
				base.Opcode = "ebreak"
			case 0x002:
				base.Opcode = "uret"
			case 0x102:
				base.Opcode = "sret"
			case 0x302:
				base.Opcode = "mret"
			case 0x7b2:
				base.Opcode = "dret"
			default:
				base.Opcode = "wfi"
			}
			return base, nil
		}
		names := map[uint64]string{1: "csrrw", 2: "csrrs", 3: "csrrc", 5: "csrrwi", 6: "csrrsi", 7: "csrrci"}
		name, ok := names[funct3]
		if !ok {
			return Instruction{}, &DecodeError{addr, in}
		}
		base.Opcode, base.Rd = name, rd
		if funct3 < 5 {
			base.Rs1 = rs1
		} else {
			base.Imm, base.HasImm = int64(rs1), true // zimm, encoded in the rs1 field
		}
		return base, nil
	default:
		return Instruction{}, &DecodeError{addr, in}
	}
}

func rTypeName(funct3, funct7 uint64, rv64 bool) (string, bool) {
	switch funct7 {
	case 0x00:
		names32 := map[uint64]string{0: "add", 1: "sll", 2: "slt", 3: "sltu", 4: "xor", 5: "srl", 6: "or", 7: "and"}
		names64 := map[uint64]string{0: "addw", 1: "sllw", 5: "srlw"}
		if rv64 {
			n, ok := names64[funct3]
			return n, ok
		}
		n, ok := names32[funct3]
		return n, ok
	case 0x20:
		if funct3 == 0 {
			if rv64 {
				return "subw", true
			}
			return "sub", true
		}
		if funct3 == 5 {
			if rv64 {
				return "sraw", true
			}
			return "sra", true
		}
		return "", false
	case 0x01: // M extension
		names32 := map[uint64]string{0: "mul", 1: "mulh", 2: "mulhsu", 3: "mulhu", 4: "div", 5: "divu", 6: "rem", 7: "remu"}
		names64 := map[uint64]string{0: "mulw", 4: "divw", 5: "divuw", 6: "remw", 7: "remuw"}
		if rv64 {
			n, ok := names64[funct3]
			return n, ok
		}
		n, ok := names32[funct3]
		return n, ok
	default:
		return "", false
	}
}
