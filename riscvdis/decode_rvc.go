package riscvdis

// decodeCompressed decodes one 16-bit "C" extension instruction, covering
// the control-flow-relevant opcodes the trace reconstruction algorithm
// dispatches on (c.j, c.jal, c.jr, c.jalr, c.beqz, c.bnez, c.ebreak) plus
// the common integer/stack-pointer forms needed to produce a readable
// execution log. Quadrant and funct3 follow the RVC standard encoding.

// crs maps a compressed 3-bit register field (x8-x15) to its full number.
func crs(field uint16) int { return int(field&0x7) + 8 }

func decodeCompressed(addr uint64, w uint16) (Instruction, error) {
	base := Instruction{Addr: addr, Size: 2, Rd: noReg, Rs1: noReg, Rs2: noReg}
	quadrant := w & 0x3
	funct3 := (w >> 13) & 0x7

	switch quadrant {
	case 0:
		switch funct3 {
		case 0: // C.ADDI4SPN
			rd := crs(w >> 2)
			imm := (w>>7&0x30)<<2 | (w>>1&0x3c0) | (w>>4&0x4) | (w>>2&0x8)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.addi4spn", rd, 2, int64(imm), true
			return base, nil
		case 2: // C.LW
			rd, rs1 := crs(w>>2), crs(w>>7)
			imm := (w>>4&0x4) | (w>>7&0x38) | (w<<1&0x40)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.lw", rd, rs1, int64(imm), true
			return base, nil
		case 3: // C.LD
			rd, rs1 := crs(w>>2), crs(w>>7)
			imm := (w>>7&0x38) | (w<<1&0xc0)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.ld", rd, rs1, int64(imm), true
			return base, nil
		case 6: // C.SW
			rs2, rs1 := crs(w>>2), crs(w>>7)
			imm := (w>>4&0x4) | (w>>7&0x38) | (w<<1&0x40)
			base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = "c.sw", rs1, rs2, int64(imm), true
			return base, nil
		case 7: // C.SD
			rs2, rs1 := crs(w>>2), crs(w>>7)
			imm := (w>>7&0x38) | (w<<1&0xc0)
			base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = "c.sd", rs1, rs2, int64(imm), true
			return base, nil
		default:
			base.Opcode = "c.unknown"
			return base, nil
		}
	case 1:
		switch funct3 {
		case 0: // C.ADDI (rd==0: C.NOP)
			rd := int((w >> 7) & 0x1f)
			imm := signExtend(uint64((w>>7&0x20)|(w>>2&0x1f)), 5)
			if rd == 0 {
				base.Opcode = "c.nop"
				return base, nil
			}
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.addi", rd, rd, imm, true
			return base, nil
		case 1: // C.ADDIW (RV64)
			rd := int((w >> 7) & 0x1f)
			imm := signExtend(uint64((w>>7&0x20)|(w>>2&0x1f)), 5)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.addiw", rd, rd, imm, true
			return base, nil
		case 2: // C.LI
			rd := int((w >> 7) & 0x1f)
			imm := signExtend(uint64((w>>7&0x20)|(w>>2&0x1f)), 5)
			base.Opcode, base.Rd, base.Imm, base.HasImm = "c.li", rd, imm, true
			return base, nil
		case 3:
			rd := int((w >> 7) & 0x1f)
			if rd == 2 { // C.ADDI16SP
				raw := (w>>3&0x200) | (w>>2&0x10) | (w<<1&0x40) | (w<<4&0x180) | (w<<3&0x20)
				base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.addi16sp", 2, 2, signExtend(uint64(raw), 9), true
				return base, nil
			}
			// C.LUI
			raw := uint64((w>>7&0x1f)<<12) | uint64((w>>12&0x1)<<17)
			base.Opcode, base.Rd, base.Imm, base.HasImm = "c.lui", rd, signExtend(raw, 17), true
			return base, nil
		case 4:
			rd := crs(w >> 7)
			funct2 := (w >> 10) & 0x3
			switch funct2 {
			case 0, 1: // C.SRLI / C.SRAI
				imm := int64((w>>7&0x20) | (w>>2&0x1f))
				if funct2 == 0 {
					base.Opcode = "c.srli"
				} else {
					base.Opcode = "c.srai"
				}
				base.Rd, base.Rs1, base.Imm, base.HasImm = rd, rd, imm, true
				return base, nil
			case 2: // C.ANDI
				imm := signExtend(uint64((w>>7&0x20)|(w>>2&0x1f)), 5)
				base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.andi", rd, rd, imm, true
				return base, nil
			case 3:
				rs2 := crs(w >> 2)
				names := map[uint16]string{0: "c.sub", 1: "c.xor", 2: "c.or", 3: "c.and"}
				if (w>>12)&1 != 0 {
					names = map[uint16]string{0: "c.subw", 1: "c.addw"}
				}
				base.Opcode, base.Rd, base.Rs1, base.Rs2 = names[(w>>5)&0x3], rd, rd, rs2
				return base, nil
			}
		case 5: // C.J
			raw := cjImm(w)
			base.Opcode, base.Imm, base.HasImm = "c.j", raw, true
			return base, nil
		case 6: // C.BEQZ
			rs1 := crs(w >> 7)
			base.Opcode, base.Rs1, base.Imm, base.HasImm = "c.beqz", rs1, cbImm(w), true
			return base, nil
		case 7: // C.BNEZ
			rs1 := crs(w >> 7)
			base.Opcode, base.Rs1, base.Imm, base.HasImm = "c.bnez", rs1, cbImm(w), true
			return base, nil
		}
	case 2:
		switch funct3 {
		case 0: // C.SLLI
			rd := int((w >> 7) & 0x1f)
			imm := int64((w>>7&0x20) | (w>>2&0x1f))
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.slli", rd, rd, imm, true
			return base, nil
		case 2: // C.LWSP
			rd := int((w >> 7) & 0x1f)
			imm := (w>>2&0x1c) | (w>>7&0x20) | (w<<4&0xc0)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.lwsp", rd, 2, int64(imm), true
			return base, nil
		case 3: // C.LDSP
			rd := int((w >> 7) & 0x1f)
			imm := (w>>2&0x18) | (w>>7&0x20) | (w<<4&0x1c0)
			base.Opcode, base.Rd, base.Rs1, base.Imm, base.HasImm = "c.ldsp", rd, 2, int64(imm), true
			return base, nil
		case 4:
			rd := int((w >> 7) & 0x1f)
			rs2 := int((w >> 2) & 0x1f)
			bit12 := (w >> 12) & 1
			switch {
			case bit12 == 0 && rs2 == 0: // C.JR
				base.Opcode, base.Rs1 = "c.jr", rd
				return base, nil
			case bit12 == 0: // C.MV
				base.Opcode, base.Rd, base.Rs2 = "c.mv", rd, rs2
				return base, nil
			case bit12 == 1 && rd == 0 && rs2 == 0: // C.EBREAK
				base.Opcode = "c.ebreak"
				return base, nil
			case bit12 == 1 && rs2 == 0: // C.JALR
				base.Opcode, base.Rs1 = "c.jalr", rd
				return base, nil
			default: // C.ADD
				base.Opcode, base.Rd, base.Rs1, base.Rs2 = "c.add", rd, rd, rs2
				return base, nil
			}
		case 6: // C.SWSP
			rs2 := int((w >> 2) & 0x1f)
			imm := (w>>7&0x3c) | (w>>1&0xc0)
			base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = "c.swsp", 2, rs2, int64(imm), true
			return base, nil
		case 7: // C.SDSP
			rs2 := int((w >> 2) & 0x1f)
			imm := (w>>7&0x38) | (w>>1&0x1c0)
			base.Opcode, base.Rs1, base.Rs2, base.Imm, base.HasImm = "c.sdsp", 2, rs2, int64(imm), true
			return base, nil
		}
	}
	base.Opcode = "c.unknown"
	return base, nil
}

// cjImm decodes the 11-bit signed jump-target offset shared by C.J and C.JAL.
func cjImm(w uint16) int64 {
	raw := (w>>1&0x800) | (w>>7&0x10) | (w>>1&0x300) | (w<<2&0x400) |
		(w>>1&0x40) | (w<<1&0x80) | (w>>2&0xe) | (w<<3&0x20)
	return signExtend(uint64(raw), 11)
}

// cbImm decodes the 8-bit signed branch-target offset shared by C.BEQZ and C.BNEZ.
func cbImm(w uint16) int64 {
	raw := (w>>4&0x100) | (w>>7&0x18) | (w<<1&0xc0) | (w>>2&0x6) | (w<<3&0x20)
	return signExtend(uint64(raw), 8)
}
