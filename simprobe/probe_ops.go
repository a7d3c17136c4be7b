package simprobe

import (
	"context"

	"github.com/kstephano/gdap/dap"
)

var _ dap.Probe = (*Probe)(nil)

// RawReadRegister implements dap.Probe.
func (p *Probe) RawReadRegister(ctx context.Context, addr dap.RegisterAddress) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dpFor(p.currentDPLocked())

	if !addr.IsAP() {
		return p.readDPLocked(d, addr.Addr())
	}
	return p.readAPLocked(d, addr.Addr()), nil
}

// RawWriteRegister implements dap.Probe.
func (p *Probe) RawWriteRegister(ctx context.Context, addr dap.RegisterAddress, value uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dpFor(p.currentDPLocked())

	if !addr.IsAP() {
		return p.writeDPLocked(d, addr.Addr(), value)
	}
	p.writeAPLocked(d, addr.Addr(), value)
	return nil
}

// RawReadBlock implements dap.Probe: len(values) repeated reads of the same
// address.
func (p *Probe) RawReadBlock(ctx context.Context, addr dap.RegisterAddress, values []uint32) error {
	for i := range values {
		v, err := p.RawReadRegister(ctx, addr)
		if err != nil {
			return err
		}
		values[i] = v
	}
	return nil
}

// RawWriteBlock implements dap.Probe: repeated writes of the same address.
func (p *Probe) RawWriteBlock(ctx context.Context, addr dap.RegisterAddress, values []uint32) error {
	for _, v := range values {
		if err := p.RawWriteRegister(ctx, addr, v); err != nil {
			return err
		}
	}
	return nil
}

// RawFlush implements dap.Probe; the simulator has no batching to flush.
func (p *Probe) RawFlush(ctx context.Context) error { return nil }

// SwjSequence implements dap.Probe; the simulator has no physical pins.
func (p *Probe) SwjSequence(ctx context.Context, bitLen uint8, bits uint64) error { return nil }

// SwjPins implements dap.Probe; echoes back pinOut, masked to the pins in
// pinSelect, as the sampled state.
func (p *Probe) SwjPins(ctx context.Context, pinOut, pinSelect uint32, waitUs uint32) (uint32, error) {
	return pinOut & pinSelect, nil
}

// CoreStatusNotification implements dap.Probe.
func (p *Probe) CoreStatusNotification(ctx context.Context, status dap.CoreStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCoreStatus = status
}

// currentDPLocked tracks which DP the probe last connected to. The
// simulator only needs this to decode AP bank state consistently; it
// defaults to DefaultDpAddress until a sequence hook selects otherwise.
func (p *Probe) currentDPLocked() dap.DpAddress {
	if p.current == nil {
		return dap.DefaultDpAddress()
	}
	return *p.current
}

func (p *Probe) readDPLocked(d *dpSim, addr uint8) (uint32, error) {
	bank := d.narrow & 0xF // DP_BANK_SEL lives in the same low nibble for both layouts
	if d.wide {
		bank = d.wideLow & 0xF
	}
	switch {
	case addr == 0x00:
		return d.dpidr, nil
	case addr == 0x04 && bank == 2:
		return d.targetID, nil
	case addr == 0x04:
		return d.ctrlStat, nil
	case addr == 0x08:
		if d.wide {
			return d.wideLow, nil
		}
		return d.narrow, nil
	case addr == 0x0C:
		return 0, nil // RDBUFF: last AP read result, unused by this simulator
	default:
		return 0, nil
	}
}

func (p *Probe) writeDPLocked(d *dpSim, addr uint8, value uint32) error {
	switch {
	case addr == 0x08:
		p.selectWrites++
		if d.wide {
			d.wideLow = value
			p.expectSelect1 = true
		} else {
			d.narrow = value
		}
		return nil
	case addr == 0x04 && p.expectSelect1 && d.wide:
		d.wideHigh = value
		p.expectSelect1 = false
		return nil
	case addr == 0x04:
		d.ctrlStat = value
		return nil
	default:
		return nil // ABORT and friends: accepted, no effect in simulation
	}
}

func (p *Probe) readAPLocked(d *dpSim, addr uint8) uint32 {
	const memApDRW uint8 = 0x0C
	if addr == memApDRW && d.apBankSel() == 0 {
		return d.mem[uint64(d.tar)]
	}
	var key uint64
	if d.wide {
		key = apRegKey(d.apV2Base(), uint64(d.apBankSel())<<4|uint64(addr))
	} else {
		key = apRegKey(uint64(d.apSel()), uint64(d.apBankSel())<<4|uint64(addr))
	}
	return d.apRegs[key]
}

func (p *Probe) writeAPLocked(d *dpSim, addr uint8, value uint32) {
	var key uint64
	if d.wide {
		key = apRegKey(d.apV2Base(), uint64(d.apBankSel())<<4|uint64(addr))
	} else {
		key = apRegKey(uint64(d.apSel()), uint64(d.apBankSel())<<4|uint64(addr))
	}
	d.apRegs[key] = value

	// TAR/DRW (the MEM-AP memory-access registers, always bank 0) mirror
	// into the flat target memory space so ReadMemory/WriteMemory
	// round-trip.
	const (
		memApTAR uint8 = 0x04
		memApDRW uint8 = 0x0C
	)
	if d.apBankSel() != 0 {
		return
	}
	switch addr {
	case memApTAR:
		d.tar = value
	case memApDRW:
		d.mem[uint64(d.tar)] = value
	}
}
