package dap

import (
	"context"
	"fmt"
)

// Peripheral/Component ID register offsets relative to a CoreSight
// component's base address, per the standard CoreSight register layout.
// PIDR4 sits below PIDR0-3 in the component's memory map, not after them.
const (
	pidr4Offset = 0xFD0
	pidr0Offset = 0xFE0
	pidr1Offset = 0xFE4
	pidr2Offset = 0xFE8
	pidr3Offset = 0xFEC
)

// JEP106Code is a JEDEC JEP-106 manufacturer identification code: a
// continuation count (number of 0x7F continuation bytes) plus a 7-bit
// identity code.
type JEP106Code struct {
	Continuation uint8
	Identity     uint8
}

var jep106Names = map[JEP106Code]string{
	{Continuation: 0x4, Identity: 0x3B}: "ARM",
	{Continuation: 0x0, Identity: 0x41}: "Espressif",
	{Continuation: 0x0, Identity: 0x49}: "ST",
	{Continuation: 0x0, Identity: 0x4A}: "NXP",
	{Continuation: 0x2, Identity: 0x44}: "Nordic",
	{Continuation: 0x3, Identity: 0x45}: "SiFive",
}

// Name returns a best-effort human-readable vendor name, or a generic
// "unknown (cc=.., id=..)" string for codes not in the embedded table.
func (c JEP106Code) Name() string {
	if name, ok := jep106Names[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown (cc=0x%x, id=0x%x)", c.Continuation, c.Identity)
}

// ChipInfo is the decoded manufacturer/part identification of a CoreSight
// component, read from its Peripheral ID registers.
//
// This supplements AP enumeration (C4): spec.md's distillation of
// probe-rs's ArmChipInfo/read_chip_info_from_rom_table was dropped, and is
// reintroduced here per SPEC_FULL.md's "supplemented features" section.
type ChipInfo struct {
	Manufacturer JEP106Code
	Part         uint16
}

// ReadChipInfo reads the Peripheral ID registers of the component at
// baseComponent (typically a base address discovered while walking a ROM
// table via AccessPorts) and decodes its JEP106 manufacturer code and part
// number. Like the ROM table itself, Peripheral ID registers live in target
// memory space and are read through the root AP's MemoryInterface.
func ReadChipInfo(ctx context.Context, iface *Interface, dp DpAddress, baseComponent uint64) (ChipInfo, error) {
	mem := iface.MemoryInterfaceFor(FullyQualifiedApAddress{Dp: dp, Ap: ApV2Root()})

	pidr0, err := readWord(ctx, mem, baseComponent+pidr0Offset)
	if err != nil {
		return ChipInfo{}, err
	}
	pidr1, err := readWord(ctx, mem, baseComponent+pidr1Offset)
	if err != nil {
		return ChipInfo{}, err
	}
	pidr2, err := readWord(ctx, mem, baseComponent+pidr2Offset)
	if err != nil {
		return ChipInfo{}, err
	}
	_, err = readWord(ctx, mem, baseComponent+pidr3Offset)
	if err != nil {
		return ChipInfo{}, err
	}
	pidr4, err := readWord(ctx, mem, baseComponent+pidr4Offset)
	if err != nil {
		return ChipInfo{}, err
	}

	// JEP106 continuation count lives in PIDR4[3:0]; the 7-bit identity code
	// is split across PIDR2[2:0] (high 3 bits) and PIDR1[7:4] (low 4 bits);
	// the 12-bit part number is PIDR1[3:0] (high nibble) and PIDR0[7:0].
	continuation := uint8(pidr4 & 0xF)
	identity := uint8(pidr2&0x7)<<4 | uint8(pidr1>>4&0xF)
	part := uint16(pidr0&0xFF) | uint16(pidr1&0xF)<<8

	return ChipInfo{
		Manufacturer: JEP106Code{Continuation: continuation, Identity: identity},
		Part:         part,
	}, nil
}
