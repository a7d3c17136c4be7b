package dap

import "context"

// MemoryAccessWidth selects per the ADI MEM-AP transfer size.
type MemoryAccessWidth uint8

const (
	Width8 MemoryAccessWidth = iota
	Width16
	Width32
)

// MemoryInterface is the capability a resolved AP exposes for target memory
// access once bank-selection has been applied. It is the only point where
// the DAP layer crosses into higher-level target semantics (spec.md 4.1);
// the MEM-AP/ADI protocol details of TAR/DRW/BD programming are themselves
// out of scope (spec.md 1 excludes flash/memory-map concerns) — this type
// exists so AccessPorts results have a concrete next step without pulling a
// full memory-access driver into this library.
type MemoryInterface interface {
	ReadMemory(ctx context.Context, address uint64, width MemoryAccessWidth, out []byte) error
	WriteMemory(ctx context.Context, address uint64, width MemoryAccessWidth, data []byte) error
}

// memAp is a thin MemoryInterface adapter over an AP's raw register
// accesses (TAR=0x04, DRW=0x0C in both ADI v5/v6 MEM-AP layouts), used for
// both APv1 and APv2 addresses. It is not a full MEM-AP driver (auto-increment, banked-data registers, and
// bus-error sticky-bit handling are all out of scope per spec.md 1).
type memAp struct {
	iface *Interface
	addr  FullyQualifiedApAddress
}

const (
	memApCSW uint64 = 0x00
	memApTAR uint64 = 0x04
	memApDRW uint64 = 0x0C
)

func (m *memAp) ReadMemory(ctx context.Context, address uint64, width MemoryAccessWidth, out []byte) error {
	if err := m.iface.WriteRawAPRegister(ctx, m.addr, memApCSW, uint32(width)); err != nil {
		return err
	}
	if err := m.iface.WriteRawAPRegister(ctx, m.addr, memApTAR, uint32(address)); err != nil {
		return err
	}
	value, err := m.iface.ReadRawAPRegister(ctx, m.addr, memApDRW)
	if err != nil {
		return err
	}
	for idx := range out {
		if idx >= 4 {
			break
		}
		out[idx] = byte(value >> (8 * idx))
	}
	return nil
}

func (m *memAp) WriteMemory(ctx context.Context, address uint64, width MemoryAccessWidth, data []byte) error {
	if err := m.iface.WriteRawAPRegister(ctx, m.addr, memApCSW, uint32(width)); err != nil {
		return err
	}
	if err := m.iface.WriteRawAPRegister(ctx, m.addr, memApTAR, uint32(address)); err != nil {
		return err
	}
	var value uint32
	for idx := 0; idx < len(data) && idx < 4; idx++ {
		value |= uint32(data[idx]) << (8 * idx)
	}
	return m.iface.WriteRawAPRegister(ctx, m.addr, memApDRW, value)
}

// MemoryInterfaceFor builds a MemoryInterface for ap: an ADI v5 (MEM-AP v1)
// driver for APv1 addresses, an ADI v6 path for APv2 addresses (spec.md 4.1
// "Memory interface factory"). Both share the same register-offset adapter
// here since the v5/v6 distinction affects addressing (handled by
// FullyQualifiedApAddress/selectApAndApBank already) rather than the
// CSW/TAR/DRW protocol itself.
func (i *Interface) MemoryInterfaceFor(ap FullyQualifiedApAddress) MemoryInterface {
	return &memAp{iface: i, addr: ap}
}
