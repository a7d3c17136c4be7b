package dap

import (
	"context"
	"encoding/binary"
)

// idrRegister is the standard ADI AP Identification Register address,
// present in every AP's own low-level register bank (not target memory
// space) regardless of class.
const idrRegister uint64 = 0xFC

// AccessPorts enumerates the access ports attached to dp (spec.md 4.1, 4.2
// "AP enumeration"): APv1 systems get a sequential slot scan over the DP's
// own AP register space, APv2 systems get a ROM-table walk through target
// memory rooted at the DP's base AP.
func (i *Interface) AccessPorts(ctx context.Context, dp DpAddress) (map[FullyQualifiedApAddress]struct{}, error) {
	state, err := i.selectDP(ctx, dp)
	if err != nil {
		return nil, err
	}
	if state.version.UsesWideSelect() {
		return i.enumerateAPv2(ctx, dp, ApV2Root())
	}
	return i.enumerateAPv1(ctx, dp)
}

// enumerateAPv1 sequentially reads the IDR of AP slots 0..255, stopping at
// the first slot whose IDR is zero (spec.md 4.2). Slots are probed in
// ascending order, but the returned set is a map and carries no order; a
// slot with a non-zero IDR is present even if its class is unrecognized,
// per spec.md: filtering is the caller's job.
func (i *Interface) enumerateAPv1(ctx context.Context, dp DpAddress) (map[FullyQualifiedApAddress]struct{}, error) {
	result := make(map[FullyQualifiedApAddress]struct{})
	for slot := 0; slot < 256; slot++ {
		addr := FullyQualifiedApAddress{Dp: dp, Ap: ApV1Address(uint8(slot))}
		idr, err := i.ReadRawAPRegister(ctx, addr, idrRegister)
		if err != nil {
			return nil, err
		}
		if idr == 0 {
			break
		}
		result[addr] = struct{}{}
	}
	return result, nil
}

// CoreSight ROM table entry layout: bits[31:12] hold a signed OFFSET to the
// child component relative to the ROM table's own base, bit[1] is FORMAT
// (32-bit vs 8-bit entries; only 32-bit is supported here), bit[0] is
// PRESENT. An all-zero entry terminates the table.
//
// Unlike AP enumeration's IDR scan, ROM table components live in the flat
// target memory space reachable through a single root AP (spec.md:
// "Starting at the root component in the DP's AP memory space"), not in any
// per-AP low-level register bank. Reads therefore go through
// MemoryInterfaceFor on the root AP, at absolute addresses, rather than
// through ReadRawAPRegister with a re-selected AP per component.
const (
	romTableMaxEntries = 960 // CoreSight class-1 ROM tables hold up to 960 4-byte entries
	cidrOffset         = 0xFF4
	componentClassMask = 0xF0
	componentClassRom  = 0x10 // CIDR1[7:4] == 1 identifies a class-1 ROM table
)

// enumerateAPv2 walks the APv2 ROM table rooted at root (the DP's base AP),
// recursing into class-1 ROM-table child components and yielding every leaf
// component's full address (spec.md 4.2). Cycle-guarded by tracking every
// base address visited.
func (i *Interface) enumerateAPv2(ctx context.Context, dp DpAddress, root ApAddress) (map[FullyQualifiedApAddress]struct{}, error) {
	result := make(map[FullyQualifiedApAddress]struct{})
	visited := make(map[uint64]bool)

	base, ok := root.Base()
	if !ok {
		base = 0
	}

	mem := i.MemoryInterfaceFor(FullyQualifiedApAddress{Dp: dp, Ap: ApV2Root()})

	var walk func(base uint64) error
	walk = func(base uint64) error {
		if visited[base] {
			return nil
		}
		visited[base] = true

		for entryOffset := uint64(0); entryOffset < romTableMaxEntries*4; entryOffset += 4 {
			entry, err := readWord(ctx, mem, base+entryOffset)
			if err != nil {
				return err
			}
			if entry == 0 {
				break // terminator: no component or out-of-range base
			}
			if entry&0x1 == 0 {
				continue // not present
			}
			offset := int64(int32(entry &^ 0xFFF)) // sign-extended per CoreSight encoding
			childBase := uint64(int64(base) + offset)

			isRomTable, err := isClass1RomTable(ctx, mem, childBase)
			if err != nil {
				return err
			}
			if isRomTable {
				if err := walk(childBase); err != nil {
					return err
				}
				continue
			}
			result[FullyQualifiedApAddress{Dp: dp, Ap: ApV2Address(childBase)}] = struct{}{}
		}
		return nil
	}

	if err := walk(base); err != nil {
		return nil, err
	}
	return result, nil
}

func isClass1RomTable(ctx context.Context, mem MemoryInterface, base uint64) (bool, error) {
	cidr1, err := readWord(ctx, mem, base+cidrOffset)
	if err != nil {
		return false, err
	}
	return cidr1&componentClassMask == componentClassRom, nil
}

func readWord(ctx context.Context, mem MemoryInterface, address uint64) (uint32, error) {
	var buf [4]byte
	if err := mem.ReadMemory(ctx, address, Width32, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
