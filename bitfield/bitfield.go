// Package bitfield implements the small bit-level primitives the E-Trace
// wire format is built out of: byte sequences rendered as MSB-first bit
// strings, sign extension, two's complement, and the length tables the
// packet parser needs to size a branch map or a compressed address before
// it can read one.
package bitfield

import (
	"math/big"
	"strconv"
)

// Bits converts a byte sequence into its MSB-first binary representation,
// eight characters per byte. The packet parser indexes fields from the
// tail of this string, matching the wire format's field layout.
func Bits(data []byte) string {
	buf := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			if b&(1<<uint(i)) != 0 {
				buf = append(buf, '1')
			} else {
				buf = append(buf, '0')
			}
		}
	}
	return string(buf)
}

// Tail returns the width-bit field starting offset bits from the end of
// bits, i.e. the Go equivalent of Python's bits[-(offset+width):-offset].
func Tail(bits string, offset, width int) string {
	end := len(bits) - offset
	start := end - width
	return bits[start:end]
}

// RoundUp8 rounds n up to the next multiple of 8.
func RoundUp8(n int) int {
	return ((n + 7) / 8) * 8
}

// SignExtend prepends copies of bits' most significant bit until it is
// targetLen long. If bits is already at least that long, it is returned
// unchanged.
func SignExtend(bits string, targetLen int) string {
	if len(bits) >= targetLen || len(bits) == 0 {
		return bits
	}
	msb := bits[0]
	ext := make([]byte, targetLen-len(bits))
	for i := range ext {
		ext[i] = msb
	}
	return string(ext) + bits
}

// TwosComplement interprets bits as a two's complement integer: a leading
// 1 bit means the value is negative. An empty string is 0.
//
// bits is routinely XLEN+1 wide (a sign-extended 64-bit address plus its
// guard bit), so the magnitude doesn't fit a fixed-64-bit parse the way a
// plain ParseUint would need: a negative value's full bit string, read as
// unsigned, exceeds 2^64-1 and a fixed-width parser rejects it outright.
// big.Int has no such width limit, so the sign bit is subtracted out
// there instead.
func TwosComplement(bits string) int64 {
	if bits == "" {
		return 0
	}
	v, ok := new(big.Int).SetString(bits, 2)
	if !ok {
		// bits is always a string of '0'/'1' produced by this package, so
		// a parse failure here means a caller handed us something else.
		panic("bitfield: TwosComplement: invalid bit string " + bits)
	}
	if bits[0] == '1' {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(bits))))
	}
	return v.Int64()
}

// ParseUint reads bits as an unsigned binary integer. An empty string is 0.
func ParseUint(bits string) uint64 {
	if bits == "" {
		return 0
	}
	v, err := strconv.ParseUint(bits, 2, 64)
	if err != nil {
		panic("bitfield: ParseUint: invalid bit string " + bits)
	}
	return v
}

// BranchMapLen returns the number of branch_map bits carried by a packet
// that reports branches pending branches, per the E-Trace length table.
// branches == 0 is the special "branch map is full, no address follows"
// case and maps to the maximum length, 31.
func BranchMapLen(branches int) int {
	switch {
	case branches == 0:
		return 31
	case branches == 1:
		return 1
	case branches <= 3:
		return 3
	case branches <= 7:
		return 7
	case branches <= 15:
		return 15
	default:
		return 31
	}
}

// AddressLen infers the length of a compressed address field and the
// padding preceding it, given the total payload length and the combined
// length of every other field in the payload (both in bits).
func AddressLen(payloadLen, knownFieldsLen int) (addressLen, padding int) {
	remaining := payloadLen - knownFieldsLen
	if remaining < 9 {
		return 0, remaining
	}
	addressLen = (remaining/8)*8 + 1
	padding = remaining - addressLen
	return addressLen, padding
}
