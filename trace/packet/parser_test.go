package packet

import (
	"bytes"
	"io"
	"strconv"
	"testing"
)

// buildRecord assembles one 40-byte record from a payload bit string
// (MSB-first), mirroring the wire layout: [payload, right-aligned within
// 248 bits][64-bit timestamp][8-bit header, low 5 bits = payload length
// in bytes].
func buildRecord(t *testing.T, payload string) []byte {
	t.Helper()
	if len(payload)%8 != 0 {
		t.Fatalf("payload must be a whole number of bytes, got %d bits", len(payload))
	}
	payloadBytes := len(payload) / 8

	bits := make([]byte, 0, 320)
	padLen := 248 - len(payload)
	for i := 0; i < padLen; i++ {
		bits = append(bits, '0')
	}
	bits = append(bits, payload...)
	for i := 0; i < 64; i++ { // timestamp, unused
		bits = append(bits, '0')
	}
	header := strconv.FormatInt(int64(payloadBytes), 2)
	for i := 0; i < 8-len(header); i++ {
		bits = append(bits, '0')
	}
	bits = append(bits, header...)

	if len(bits) != 320 {
		t.Fatalf("built %d bits, want 320", len(bits))
	}

	out := make([]byte, 40)
	for i := 0; i < 40; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			b <<= 1
			if bits[i*8+j] == '1' {
				b |= 1
			}
		}
		out[i] = b
	}
	return out
}

func bin(s string) string { return s }

func TestParseFormat1ShortForm(t *testing.T) {
	// branch_map="0" (taken), branches=1 (00001), format=01 (F1=1).
	// Wire order (left to right): branch_map, branches, format.
	payload := "0" + bin("00001") + "01"
	rec := buildRecord(t, payload)

	p := NewParser()
	pkt, err := p.Next(bytes.NewReader(rec))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f1, ok := pkt.(F1)
	if !ok {
		t.Fatalf("got %T, want F1", pkt)
	}
	if f1.Branches != 1 || f1.HasAddress {
		t.Errorf("f1 = %+v", f1)
	}
	if f1.BranchMap != 0 {
		t.Errorf("branch map = %d, want 0 (taken)", f1.BranchMap)
	}
}

func TestParseFormat2DeltaAddress(t *testing.T) {
	// format=10 (F2=2). address compressed to 9 bits (sign-extend to 65,
	// two's complement), value +4. Fields are read tail-first in the order
	// format, address, notify, updiscon, irreport, irdepth, so the wire
	// layout (left to right) is the reverse of that: one padding bit,
	// irdepth, irreport, updiscon, notify, address, format.
	payload := "0" + "0" + "0" + "0" + "0" + bin("000000100") + "10"
	rec := buildRecord(t, payload)

	p := NewParser() // default ioptions: delta address enabled
	pkt, err := p.Next(bytes.NewReader(rec))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f2, ok := pkt.(F2)
	if !ok {
		t.Fatalf("got %T, want F2", pkt)
	}
	if f2.Address != 4 {
		t.Errorf("address = %d, want 4", f2.Address)
	}
}

func TestParseFormat2DeltaAddressNegative(t *testing.T) {
	// Same layout as TestParseFormat2DeltaAddress but with a backward
	// delta (-4), the common case for a loop branch under the default
	// delta-address encoder mode: the 9-bit compressed field is the two's
	// complement of -4 (508 = 0b111111100), which sign-extends to 65 bits
	// with a leading 1 before TwosComplement converts it back.
	payload := "0" + "0" + "0" + "0" + "0" + bin("111111100") + "10"
	rec := buildRecord(t, payload)

	p := NewParser()
	pkt, err := p.Next(bytes.NewReader(rec))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f2, ok := pkt.(F2)
	if !ok {
		t.Fatalf("got %T, want F2", pkt)
	}
	if f2.Address != -4 {
		t.Errorf("address = %d, want -4", f2.Address)
	}
}

func TestParseFormat3Support(t *testing.T) {
	// format=11, subformat=11 (F3/S3=3,3). ienable=1, encoder_mode=0,
	// qual_status=00 (NO_CHANGE), ioptions: DELTA_ADDRESS=1 IMPLICIT_RETURN=1 rest 0.
	// Fields are read tail-first in the order format, subformat, ienable,
	// encoder_mode, qual_status, ioptions, so the wire layout is the
	// reverse: one padding bit, ioptions, qual_status, encoder_mode,
	// ienable, subformat, format.
	ioptions := "1000100" // DELTA_ADDRESS, FULL_ADDRESS, IMPLICIT_EXCEPTION, SIJUMP, IMPLICIT_RETURN, BRANCH_PREDICTION, JUMP_TARGET_CACHE
	payload := "0" + ioptions + "00" + "0" + "1" + "11" + "11"
	rec := buildRecord(t, payload)

	p := NewParser()
	pkt, err := p.Next(bytes.NewReader(rec))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	s3, ok := pkt.(F3Support)
	if !ok {
		t.Fatalf("got %T, want F3Support", pkt)
	}
	if !s3.Ioptions.Has(DeltaAddress) || !s3.Ioptions.Has(ImplicitReturn) {
		t.Errorf("ioptions = %+v, want DELTA_ADDRESS and IMPLICIT_RETURN set", s3.Ioptions)
	}
	if s3.Ioptions.Has(FullAddress) || s3.Ioptions.Has(SIJump) {
		t.Errorf("ioptions = %+v, unexpected bit set", s3.Ioptions)
	}
	if !p.Ioptions().Has(ImplicitReturn) {
		t.Errorf("parser's current ioptions not updated by support packet")
	}
}

func TestParseFormat3Sync(t *testing.T) {
	// format=11, subformat=00, branch=0, privilege=00 (U), address 9 bits = 16.
	// Wire order (left to right): address, privilege, branch, subformat, format.
	addr := "000010000" // 16
	payload := addr + "00" + "0" + "00" + "11"
	rec := buildRecord(t, payload)

	pkt, err := NewParser().Next(bytes.NewReader(rec))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	s0, ok := pkt.(F3Sync)
	if !ok {
		t.Fatalf("got %T, want F3Sync", pkt)
	}
	if s0.Address != 16 {
		t.Errorf("address = %d, want 16", s0.Address)
	}
	if s0.Privilege != PrivilegeU {
		t.Errorf("privilege = %v, want U", s0.Privilege)
	}
}

func TestParseInvalidFormat(t *testing.T) {
	payload := "000000" + "00" // format=0, out of scope/invalid for this decoder
	rec := buildRecord(t, payload)

	_, err := NewParser().Next(bytes.NewReader(rec))
	var fe *FormatError
	if err == nil {
		t.Fatal("expected a FormatError, got nil")
	}
	if !isFormatError(err, &fe) {
		t.Fatalf("err = %v, want *FormatError", err)
	}
}

func isFormatError(err error, target **FormatError) bool {
	fe, ok := err.(*FormatError)
	if ok {
		*target = fe
	}
	return ok
}

func TestNextEOFAtBoundary(t *testing.T) {
	_, err := NewParser().Next(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestNextTruncatedRecord(t *testing.T) {
	_, err := NewParser().Next(bytes.NewReader(make([]byte, 10)))
	if err == nil {
		t.Fatal("expected a framing error")
	}
	var fe *FramingError
	if fe2, ok := err.(*FramingError); !ok {
		t.Fatalf("err = %v (%T), want *FramingError", err, err)
	} else {
		fe = fe2
	}
	if fe.Read != 10 || fe.Want != ChunkSize {
		t.Errorf("fe = %+v", fe)
	}
}
