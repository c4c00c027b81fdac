package packet

import (
	"fmt"
	"io"

	"github.com/pulp-platform/rv-tracer/bitfield"
)

// Wire-format constants, as fixed by the E-Trace parameters this decoder
// is built against (time and context disabled, call-counter-size 0).
const (
	ChunkSize      = 40 // bytes per record (320 bits)
	PrivLen        = 2
	XLEN           = 64
	IoptionsLen    = 7
	QualStatusLen  = 2
	CallCounterExp = 0 // call_counter_size, an exponent: irdepth is 2^CallCounterExp bits wide
)

func irdepthLen() int { return 1 << CallCounterExp }

// FormatError reports a payload whose format or subformat tag is outside
// the known set. The stream is a binary protocol: per spec this is fatal,
// not a skip-and-continue.
type FormatError struct {
	Format    int
	Subformat int // -1 if the format itself was invalid
}

func (e *FormatError) Error() string {
	if e.Subformat < 0 {
		return fmt.Sprintf("packet: invalid format %d", e.Format)
	}
	return fmt.Sprintf("packet: invalid subformat %d for format %d", e.Subformat, e.Format)
}

// FramingError reports a record that did not end on the expected 40-byte
// boundary.
type FramingError struct {
	Read int
	Want int
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("packet: truncated record: read %d of %d bytes: %v", e.Read, e.Want, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// Parser decodes a stream of 40-byte records into Packets. It owns the
// "current ioptions" the wire format needs in order to interpret
// compressed addresses in F1/F2 packets: every F3 Subformat 3 (support)
// packet updates it, and it persists across calls to Next.
type Parser struct {
	ioptions Ioptions
}

// NewParser returns a Parser in the encoder's reset state: delta
// addressing enabled, no other ioptions set, until the first support
// packet says otherwise.
func NewParser() *Parser {
	return &Parser{ioptions: DefaultIoptions()}
}

// Ioptions returns the parser's current view of the encoder's operating
// mode, as last reported by a support packet.
func (p *Parser) Ioptions() Ioptions { return p.ioptions }

// Next reads exactly one 40-byte record from r and decodes it. It returns
// io.EOF once r is exhausted at a record boundary; a short final read is a
// *FramingError, since well-formed input always ends on a boundary.
func (p *Parser) Next(r io.Reader) (Packet, error) {
	chunk := make([]byte, ChunkSize)
	n, err := io.ReadFull(r, chunk)
	switch err {
	case nil:
	case io.EOF:
		return nil, io.EOF
	case io.ErrUnexpectedEOF:
		return nil, &FramingError{Read: n, Want: ChunkSize, Err: err}
	default:
		return nil, err
	}

	bits := bitfield.Bits(chunk)
	payload := extractPayload(bits)
	return p.parsePayload(payload)
}

// extractPayload pulls the right-aligned payload out of a 320-bit record:
// the low 5 bits of the trailing 8-bit header give the payload's byte
// length.
func extractPayload(bits string) string {
	header := bits[312:]
	payloadLen := int(bitfield.ParseUint(header[3:]))
	return bits[248-payloadLen*8 : 248]
}

func (p *Parser) parsePayload(payload string) (Packet, error) {
	format := Format(bitfield.ParseUint(bitfield.Tail(payload, 0, 2)))
	switch format {
	case FormatOne:
		return p.parseFormat1(payload)
	case FormatTwo:
		return p.parseFormat2(payload)
	case FormatThree:
		sub := Subformat(bitfield.ParseUint(bitfield.Tail(payload, 2, 2)))
		switch sub {
		case SubformatSync:
			return parseFormat3Sync(payload)
		case SubformatTrap:
			return parseFormat3Trap(payload)
		case SubformatContext:
			return parseFormat3Context(payload)
		case SubformatSupport:
			return p.parseFormat3Support(payload)
		default:
			return nil, &FormatError{Format: int(format), Subformat: int(sub)}
		}
	default:
		return nil, &FormatError{Format: int(format), Subformat: -1}
	}
}

func (p *Parser) decodeAddress(payload string, index, knownFieldsLen int) (address int64, newIndex int) {
	if p.ioptions.Has(DeltaAddress) {
		addrLen, _ := bitfield.AddressLen(len(payload), knownFieldsLen)
		extended := bitfield.SignExtend(bitfield.Tail(payload, index, addrLen), XLEN+1)
		return bitfield.TwosComplement(extended), index + addrLen
	}
	return int64(bitfield.ParseUint(bitfield.Tail(payload, index, XLEN))), index + XLEN
}

func (p *Parser) parseFormat1(payload string) (Packet, error) {
	index := 2
	branches := int(bitfield.ParseUint(bitfield.Tail(payload, index, 5)))
	index += 5

	branchMapLen := bitfield.BranchMapLen(branches)
	branchMap := uint32(bitfield.ParseUint(bitfield.Tail(payload, index, branchMapLen)))
	index += branchMapLen

	mapOnlyBytes := bitfield.RoundUp8(7+branchMapLen) / 8
	if mapOnlyBytes == len(payload)/8 {
		return F1{Branches: branches, BranchMap: branchMap}, nil
	}

	known := 10 + branchMapLen + irdepthLen()
	address, index := p.decodeAddress(payload, index, known)

	notify := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	updiscon := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	irreport := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	irdepth := uint32(bitfield.ParseUint(bitfield.Tail(payload, index, irdepthLen())))

	return F1{
		Branches: branches, BranchMap: branchMap, HasAddress: true,
		Address: address, Notify: notify, Updiscon: updiscon,
		Irreport: irreport, Irdepth: irdepth,
	}, nil
}

func (p *Parser) parseFormat2(payload string) (Packet, error) {
	index := 2
	known := 5 + irdepthLen()
	address, index := p.decodeAddress(payload, index, known)

	notify := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	updiscon := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	irreport := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	irdepth := uint32(bitfield.ParseUint(bitfield.Tail(payload, index, irdepthLen())))

	return F2{Address: address, Notify: notify, Updiscon: updiscon, Irreport: irreport, Irdepth: irdepth}, nil
}

func parseFormat3Sync(payload string) (Packet, error) {
	index := 4
	branch := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	priv := Privilege(bitfield.ParseUint(bitfield.Tail(payload, index, PrivLen)))
	index += PrivLen

	known := 5 + PrivLen
	addrLen, _ := bitfield.AddressLen(len(payload), known)
	address := bitfield.ParseUint(bitfield.Tail(payload, index, addrLen))

	return F3Sync{Branch: branch, Privilege: priv, Address: address}, nil
}

func parseFormat3Trap(payload string) (Packet, error) {
	index := 4
	branch := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	priv := Privilege(bitfield.ParseUint(bitfield.Tail(payload, index, PrivLen)))
	index += PrivLen

	ecause := bitfield.ParseUint(bitfield.Tail(payload, index, XLEN))
	index += XLEN
	interrupt := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	thaddr := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++

	known := 7 + PrivLen + 2*XLEN
	addrLen, padding := bitfield.AddressLen(len(payload), known)
	address := bitfield.ParseUint(bitfield.Tail(payload, index, addrLen))
	index += addrLen

	tval := bitfield.ParseUint(bitfield.Tail(payload, index, XLEN-padding))

	return F3Trap{
		Branch: branch, Privilege: priv, Ecause: ecause, Interrupt: interrupt,
		Thaddr: thaddr, Address: address, Tval: tval,
	}, nil
}

func parseFormat3Context(payload string) (Packet, error) {
	priv := Privilege(bitfield.ParseUint(bitfield.Tail(payload, 4, PrivLen)))
	return F3Context{Privilege: priv}, nil
}

var ioptionOrder = [IoptionsLen]Ioption{
	DeltaAddress, FullAddress, ImplicitException, SIJump,
	ImplicitReturn, BranchPrediction, JumpTargetCache,
}

func (p *Parser) parseFormat3Support(payload string) (Packet, error) {
	index := 4
	ienable := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	encoderMode := uint8(bitfield.ParseUint(bitfield.Tail(payload, index, 1)))
	index++
	qualStatus := QualStatus(bitfield.ParseUint(bitfield.Tail(payload, index, QualStatusLen)))
	index += QualStatusLen

	bits := bitfield.Tail(payload, index, IoptionsLen)
	var opts Ioptions
	for i, f := range ioptionOrder {
		opts.set(f, bits[i] == '1')
	}

	// This packet's ioptions become the parser's current ioptions for
	// every subsequent F1/F2 address it decodes.
	p.ioptions = opts

	return F3Support{Ienable: ienable, EncoderMode: encoderMode, QualStatus: qualStatus, Ioptions: opts}, nil
}
