// Package packet implements the E-Trace wire format: a bit-exact codec
// that turns fixed-size chunks of an encoder's byte stream into typed
// te_inst packets.
package packet

import "fmt"

// Format is the two-bit discriminator carried by every packet.
type Format uint8

const (
	FormatOne   Format = 1
	FormatTwo   Format = 2
	FormatThree Format = 3
)

// Subformat further discriminates a Format 3 packet.
type Subformat uint8

const (
	SubformatSync    Subformat = 0 // branch/address synchronization
	SubformatTrap    Subformat = 1 // exception/interrupt
	SubformatContext Subformat = 2 // privilege/context (unimplemented beyond privilege)
	SubformatSupport Subformat = 3 // encoder configuration
)

// Privilege is the encoder's reported privilege level.
type Privilege uint8

const (
	PrivilegeU  Privilege = 0
	PrivilegeS  Privilege = 1
	PrivilegeHS Privilege = 2
	PrivilegeM  Privilege = 3
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeU:
		return "U"
	case PrivilegeS:
		return "S"
	case PrivilegeHS:
		return "HS"
	case PrivilegeM:
		return "M"
	default:
		return fmt.Sprintf("Privilege(%d)", uint8(p))
	}
}

// QualStatus is the encoder's qualification-lifecycle state, carried by
// support packets.
type QualStatus uint8

const (
	QualStatusNoChange QualStatus = 0
	QualStatusEndedRep QualStatus = 1
	QualStatusTraceLost QualStatus = 2
	QualStatusEndedNTR QualStatus = 3
)

func (q QualStatus) String() string {
	switch q {
	case QualStatusNoChange:
		return "NO_CHANGE"
	case QualStatusEndedRep:
		return "ENDED_REP"
	case QualStatusTraceLost:
		return "TRACE_LOST"
	case QualStatusEndedNTR:
		return "ENDED_NTR"
	default:
		return fmt.Sprintf("QualStatus(%d)", uint8(q))
	}
}

// Ioption is one flag of the encoder's operating-mode bitmap.
type Ioption int

const (
	DeltaAddress Ioption = iota
	FullAddress
	ImplicitException
	SIJump
	ImplicitReturn
	BranchPrediction
	JumpTargetCache
)

// Ioptions is the encoder's active operating-mode bitmap, as reported by
// the most recent support packet. The zero value has every flag off;
// DefaultIoptions returns the encoder's reset state.
type Ioptions struct {
	flags [7]bool
}

// DefaultIoptions returns the ioptions set the encoder starts in before
// any support packet has been seen: delta addressing enabled, everything
// else off.
func DefaultIoptions() Ioptions {
	var o Ioptions
	o.flags[DeltaAddress] = true
	return o
}

func (o Ioptions) Has(f Ioption) bool { return o.flags[f] }

func (o *Ioptions) set(f Ioption, v bool) { o.flags[f] = v }

// Set overrides a single operating-mode flag. Exported for callers
// building a synthetic Ioptions value directly (tests, and any future
// caller that doesn't go through a parsed support packet).
func (o *Ioptions) Set(f Ioption, v bool) { o.set(f, v) }

// Packet is the tagged variant every wire packet implements.
type Packet interface {
	Format() Format
}

// Format3Packet narrows Packet to the Format 3 variants, which additionally
// carry a Subformat.
type Format3Packet interface {
	Packet
	Subformat() Subformat
}

// F1 is a Format 1 packet: reports one or more branch outcomes, optionally
// together with an address and the discontinuity metadata carried by F2.
type F1 struct {
	Branches  int    // number of branch outcomes the encoder is reporting, 0 means "branch_map full, no address"
	BranchMap uint32 // taken/not-taken outcomes, bit 0 is the next branch to resolve
	HasAddress bool  // false for the "branches + branch_map only" short form
	Address   int64
	Notify    uint8
	Updiscon  uint8
	Irreport  uint8
	Irdepth   uint32
}

func (F1) Format() Format { return FormatOne }

// F2 is a Format 2 packet: reports an address plus discontinuity metadata,
// with no branch information.
type F2 struct {
	Address  int64
	Notify   uint8
	Updiscon uint8
	Irreport uint8
	Irdepth  uint32
}

func (F2) Format() Format { return FormatTwo }

// F3Sync is a Format 3 Subformat 0 packet: branch/address synchronization.
type F3Sync struct {
	Branch    uint8
	Privilege Privilege
	Address   uint64
}

func (F3Sync) Format() Format       { return FormatThree }
func (F3Sync) Subformat() Subformat { return SubformatSync }

// F3Trap is a Format 3 Subformat 1 packet: a trap report.
type F3Trap struct {
	Branch    uint8
	Privilege Privilege
	Ecause    uint64
	Interrupt uint8
	Thaddr    uint8
	Address   uint64
	Tval      uint64
}

func (F3Trap) Format() Format       { return FormatThree }
func (F3Trap) Subformat() Subformat { return SubformatTrap }

// F3Context is a Format 3 Subformat 2 packet. Time/context fields are out
// of scope (the encoder is assumed to run with both disabled); only
// privilege survives.
type F3Context struct {
	Privilege Privilege
}

func (F3Context) Format() Format       { return FormatThree }
func (F3Context) Subformat() Subformat { return SubformatContext }

// F3Support is a Format 3 Subformat 3 packet: encoder configuration.
type F3Support struct {
	Ienable     uint8
	EncoderMode uint8
	QualStatus  QualStatus
	Ioptions    Ioptions
}

func (F3Support) Format() Format       { return FormatThree }
func (F3Support) Subformat() Subformat { return SubformatSupport }

// Preceding carries the three bits of a packet's predecessor that
// follow_execution_path needs to compare against. Threading this value
// alongside each packet replaces the original decoder's identity-indexed
// lookup into the full packet history.
type Preceding struct {
	Valid    bool
	Notify   uint8
	Updiscon uint8
	Irreport uint8
}

// Of returns the Preceding view of pkt, for use as the next packet's
// predecessor. Only F1 and F2 packets carry these fields; anything else
// produces an invalid Preceding (Valid == false); the trace processor
// treats an invalid predecessor's notify as differing and its
// updiscon/irreport as not matching.
func Of(pkt Packet) Preceding {
	switch p := pkt.(type) {
	case F1:
		if !p.HasAddress {
			return Preceding{}
		}
		return Preceding{Valid: true, Notify: p.Notify, Updiscon: p.Updiscon, Irreport: p.Irreport}
	case F2:
		return Preceding{Valid: true, Notify: p.Notify, Updiscon: p.Updiscon, Irreport: p.Irreport}
	default:
		return Preceding{}
	}
}
