// Package dap implements the ARM Debug Access Port communication interface:
// the per-DP bank-select state machine (C3), AP enumeration (C4), and the
// capability interfaces (Probe, SequenceProvider) that connect it to a raw
// transport and to chip-specific bring-up hooks.
package dap

import "fmt"

// DpAddress identifies a debug port, either the single implicit DP of a
// non-multidrop system or one DP on a multidrop SWD bus selected by its
// 32-bit TARGETID. Zero value is the default (non-multidrop) address.
//
// DpAddress is comparable and safe to use as a map key.
type DpAddress struct {
	multidrop bool
	targetID  uint32
}

// DefaultDpAddress returns the address of the (only) DP on a non-multidrop
// system.
func DefaultDpAddress() DpAddress { return DpAddress{} }

// MultidropDpAddress returns the address of a DP selected by targetID on a
// multidrop SWD bus.
func MultidropDpAddress(targetID uint32) DpAddress {
	return DpAddress{multidrop: true, targetID: targetID}
}

// IsMultidrop reports whether this address selects a DP via TARGETID.
func (a DpAddress) IsMultidrop() bool { return a.multidrop }

// TargetID returns the multidrop target ID and true, or (0, false) if a is
// the default address.
func (a DpAddress) TargetID() (uint32, bool) { return a.targetID, a.multidrop }

func (a DpAddress) String() string {
	if !a.multidrop {
		return "dp(default)"
	}
	return fmt.Sprintf("dp(targetid=0x%08x)", a.targetID)
}

// ApVersion distinguishes the two AP addressing schemes.
type ApVersion uint8

const (
	// ApV1 identifies an AP by an 8-bit sequential slot index.
	ApV1 ApVersion = iota
	// ApV2 identifies an AP by its base address in the ROM-table memory space.
	ApV2
)

// ApAddress identifies an access port, either by APv1 slot or by APv2 base
// address. The APv2 "root" address (Rust's V2(None)) is represented by
// hasBase == false.
//
// ApAddress is comparable and safe to use as a map key.
type ApAddress struct {
	version ApVersion
	slot    uint8
	base    uint64
	hasBase bool
}

// ApV1Address returns an APv1 address for the given 8-bit slot.
func ApV1Address(slot uint8) ApAddress {
	return ApAddress{version: ApV1, slot: slot}
}

// ApV2Address returns an APv2 address at the given ROM-table base offset.
func ApV2Address(base uint64) ApAddress {
	return ApAddress{version: ApV2, base: base, hasBase: true}
}

// ApV2Root returns the APv2 "root" address (no base selected yet).
func ApV2Root() ApAddress { return ApAddress{version: ApV2} }

// Version reports whether a is an APv1 or APv2 address.
func (a ApAddress) Version() ApVersion { return a.version }

// Slot returns the APv1 slot index and true, or (0, false) if a is not APv1.
func (a ApAddress) Slot() (uint8, bool) {
	if a.version != ApV1 {
		return 0, false
	}
	return a.slot, true
}

// Base returns the APv2 base address and true, or (0, false) if a is the
// APv2 root or not an APv2 address at all.
func (a ApAddress) Base() (uint64, bool) {
	if a.version != ApV2 || !a.hasBase {
		return 0, false
	}
	return a.base, true
}

func (a ApAddress) String() string {
	switch a.version {
	case ApV1:
		return fmt.Sprintf("ap(v1, slot=%d)", a.slot)
	default:
		if a.hasBase {
			return fmt.Sprintf("ap(v2, base=0x%x)", a.base)
		}
		return "ap(v2, root)"
	}
}

// FullyQualifiedApAddress is the primary key for AP-targeted operations: a
// DP address paired with an AP address on that DP.
type FullyQualifiedApAddress struct {
	Dp DpAddress
	Ap ApAddress
}

func (a FullyQualifiedApAddress) String() string {
	return fmt.Sprintf("%s/%s", a.Dp, a.Ap)
}

// DpRegisterAddress addresses a 4-byte-aligned DP register, optionally
// within a non-zero bank. A nil Bank means bank 0.
type DpRegisterAddress struct {
	Bank    *uint8
	Address uint8
}

// BankOrZero returns the register's bank, defaulting to 0 when Bank is nil.
func (r DpRegisterAddress) BankOrZero() uint8 {
	if r.Bank == nil {
		return 0
	}
	return *r.Bank
}

// Banked reports whether this register address participates in DP bank
// selection. Only addresses 0x0 and 0x4 are banked; 0x8 and 0xC are not.
func (r DpRegisterAddress) Banked() bool {
	return r.Address == 0x0 || r.Address == 0x4
}

// DpBank returns a DpRegisterAddress with the given bank.
func DpBank(bank uint8, address uint8) DpRegisterAddress {
	b := bank
	return DpRegisterAddress{Bank: &b, Address: address}
}

// DpRegisterAddressOf returns a DpRegisterAddress in the implicit bank-0.
func DpRegisterAddressOf(address uint8) DpRegisterAddress {
	return DpRegisterAddress{Address: address}
}

// Well-known DP register addresses (bank 0).
const (
	DPIDR    uint8 = 0x00
	AbortReg uint8 = 0x00 // write-only ABORT shares address 0x0 with read-only DPIDR
	CtrlStat uint8 = 0x04
	Select   uint8 = 0x08
	RdBuff   uint8 = 0x0C
	// TargetIDAddress is TARGETID's address within bank 2; use
	// DpBank(2, TargetIDAddress) to build the full DpRegisterAddress.
	TargetIDAddress uint8 = 0x04
)

// DpVersionKind enumerates the known DebugPortVersion tags.
type DpVersionKind uint8

const (
	DPv0 DpVersionKind = iota
	DPv1
	DPv2
	DPv3
	DPVersionUnsupported
)

// DebugPortVersion is the decoded DPIDR version field, with the raw byte
// preserved for unsupported/unknown values.
type DebugPortVersion struct {
	Kind        DpVersionKind
	Unsupported uint8 // valid only when Kind == DPVersionUnsupported
}

// ParseDebugPortVersion decodes the 4-bit VERSION field of DPIDR (bits 12:15).
func ParseDebugPortVersion(dpidr uint32) DebugPortVersion {
	version := uint8((dpidr >> 12) & 0xF)
	switch version {
	case 0:
		return DebugPortVersion{Kind: DPv0}
	case 1:
		return DebugPortVersion{Kind: DPv1}
	case 2:
		return DebugPortVersion{Kind: DPv2}
	case 3:
		return DebugPortVersion{Kind: DPv3}
	default:
		return DebugPortVersion{Kind: DPVersionUnsupported, Unsupported: version}
	}
}

// UsesWideSelect reports whether this DP version uses the wider DPv3-style
// SELECT/SELECT1 pair rather than the narrower DPv1-style single SELECT.
func (v DebugPortVersion) UsesWideSelect() bool { return v.Kind == DPv3 }

func (v DebugPortVersion) String() string {
	switch v.Kind {
	case DPv0:
		return "DPv0"
	case DPv1:
		return "DPv1"
	case DPv2:
		return "DPv2"
	case DPv3:
		return "DPv3"
	default:
		return fmt.Sprintf("unsupported(%d)", v.Unsupported)
	}
}
