package riscvdis

import "testing"

// le32 encodes a 32-bit RISC-V instruction word as its 4 little-endian bytes.
func le32(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func le16(w uint16) []byte {
	return []byte{byte(w), byte(w >> 8)}
}

func TestDecodeJAL(t *testing.T) {
	// jal ra, +16: immediate bit 4 (value 16) lands in inst[24], inside
	// the imm[10:1] field at inst[30:21]. rd=1(ra), opcode=1101111.
	var w uint32 = 1<<24 | 1<<7 | 0x6f
	instr, err := Decode(0x1000, le32(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "jal" || instr.Rd != 1 || instr.Imm != 16 || instr.Size != 4 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeJALRUninferable(t *testing.T) {
	// jalr x0, 4(ra): rd=0, rs1=1(ra), imm=4, funct3=0, opcode=1100111
	var w uint32 = 4<<20 | 1<<15 | 0<<7 | 0x67
	instr, err := Decode(0x2000, le32(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "jalr" || instr.Rd != 0 || instr.Rs1 != 1 || instr.Imm != 4 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeBEQNegativeImm(t *testing.T) {
	// beq x1, x2, -8: encode imm=-8 across the B-type split fields.
	imm := uint32(int32(-8)) & 0x1fff
	var w uint32
	w |= (imm >> 12 & 0x1) << 31
	w |= (imm >> 5 & 0x3f) << 25
	w |= 2 << 20 // rs2
	w |= 1 << 15 // rs1
	w |= 0 << 12 // funct3 = beq
	w |= (imm >> 1 & 0xf) << 8
	w |= (imm >> 11 & 0x1) << 7
	w |= 0x63
	instr, err := Decode(0x3000, le32(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "beq" || instr.Rs1 != 1 || instr.Rs2 != 2 || instr.Imm != -8 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeAddi(t *testing.T) {
	// addi a0, a0, 1: rd=10, rs1=10, imm=1, funct3=0, opcode=0010011
	var w uint32 = 1<<20 | 10<<15 | 10<<7 | 0x13
	instr, err := Decode(0x4000, le32(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "addi" || instr.Rd != 10 || instr.Rs1 != 10 || instr.Imm != 1 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeEcallEbreak(t *testing.T) {
	ecall, err := Decode(0x5000, le32(0x73))
	if err != nil || ecall.Opcode != "ecall" {
		t.Fatalf("ecall: %+v, %v", ecall, err)
	}
	ebreak, err := Decode(0x5004, le32(1<<20|0x73))
	if err != nil || ebreak.Opcode != "ebreak" {
		t.Fatalf("ebreak: %+v, %v", ebreak, err)
	}
}

func TestDecodeCompressedCJ(t *testing.T) {
	// c.j with a small positive offset: opcode=01, funct3=101.
	// offset encoding per decodeCompressed's cjImm: set inst bit 4, which
	// maps to offset bit 2 (offset +4).
	var w uint16 = 0b101_00000000100_01
	instr, err := Decode(0x6000, le16(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "c.j" || instr.Size != 2 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeCompressedCJR(t *testing.T) {
	// c.jr ra: funct4=1000, rs1=1, rs2=0, opcode=10 quadrant.
	var w uint16 = 0b1000_00001_00000_10
	instr, err := Decode(0x7000, le16(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "c.jr" || instr.Rs1 != 1 || instr.Size != 2 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeCompressedCBeqz(t *testing.T) {
	// c.beqz x8, 0: rs1'=000 (-> x8), offset bits all zero, funct3=110.
	var w uint16 = 0b110_000_000_00_000_01
	instr, err := Decode(0x8000, le16(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if instr.Opcode != "c.beqz" || instr.Rs1 != 8 {
		t.Errorf("instr = %+v", instr)
	}
}

func TestDecodeUnknownFallsBackGracefully(t *testing.T) {
	// An all-ones word with a 0x1f opcode field isn't in any table.
	_, err := Decode(0x9000, le32(0xFFFFFFFF))
	if err == nil {
		t.Fatal("expected a DecodeError for an unrecognized word")
	}
	if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("err = %v (%T), want *DecodeError", err, err)
	}
}
