// Package simprobe implements an in-memory dap.Probe and dap.SequenceProvider
// for tests and the demo CLI. It plays the role the teacher repo's
// vm/devices.go HardwareDevice implementations play for the bytecode VM: a
// capability-interface-shaped stand-in for real hardware, guarded by a
// mutex the way consoleIO and systemTimer guard their shared state.
package simprobe

import (
	"sync"

	"github.com/kstephano/gdap/dap"
)

// dpSim is the simulated state of one DP: its fixed identity registers plus
// the SELECT/SELECT1 shadow the real hardware would latch, used to resolve
// which AP/bank a later AP register access actually targets.
type dpSim struct {
	dpidr    uint32
	targetID uint32
	ctrlStat uint32

	// select shadow, mirroring dap's selectCache layout.
	wide     bool
	narrow   uint32
	wideLow  uint32
	wideHigh uint32

	// apRegs is the AP's own low-level register bank (CSW/TAR/DRW/IDR),
	// keyed by (apSel or base)<<8 | localAddr.
	apRegs map[uint64]uint32

	// mem is the flat target memory space reachable through the root AP's
	// MemoryInterface (TAR/DRW), keyed by absolute address.
	mem map[uint64]uint32
	tar uint32 // last value latched into the MEM-AP's TAR register
}

func newDpSim(dpidr, targetID uint32) *dpSim {
	return &dpSim{
		dpidr:    dpidr,
		targetID: targetID,
		apRegs:   make(map[uint64]uint32),
		mem:      make(map[uint64]uint32),
	}
}

func (d *dpSim) apBankSel() uint8 {
	if d.wide {
		return uint8((d.wideLow >> 4) & 0xF)
	}
	return uint8((d.narrow >> 4) & 0xF)
}

func (d *dpSim) apSel() uint8 { return uint8(d.narrow >> 24) }

func (d *dpSim) apV2Base() uint64 {
	return (uint64(d.wideHigh) << 32) | uint64(d.wideLow&^0xF)
}

// Probe is an in-memory dap.Probe. It satisfies dap.Probe the same way the
// teacher's consoleIO/systemTimer satisfy HardwareDevice: a small state
// struct behind a mutex, with no real I/O beneath it.
type Probe struct {
	mu  sync.Mutex
	dps map[dap.DpAddress]*dpSim

	current         *dap.DpAddress // which DP the simulated wire is currently addressing
	selectWrites    int
	expectSelect1   bool // true right after a wide SELECT write, consumed by the next addr-0x04 write
	lastCoreStatus  dap.CoreStatus
	connectFailures map[dap.DpAddress]int // scripted DebugPortConnect failures remaining
}

// New returns a simulated probe with a single DefaultDpAddress DP reporting
// DPIDR/TARGETID of zero; call the Seed* helpers to script a scenario. The
// returned Probe does not implement dap.SwoProbe — see NewWithSwo for a
// probe that does, letting tests exercise both sides of the
// ArchitectureRequired capability check (spec.md 6).
func New() *Probe {
	p := &Probe{
		dps:             make(map[dap.DpAddress]*dpSim),
		connectFailures: make(map[dap.DpAddress]int),
	}
	p.dps[dap.DefaultDpAddress()] = newDpSim(0, 0)
	return p
}

// SeedDP registers (or overwrites) the DPIDR/TARGETID pair reported for dp.
func (p *Probe) SeedDP(dp dap.DpAddress, dpidr, targetID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dps[dp] = newDpSim(dpidr, targetID)
}

func (p *Probe) dpFor(dp dap.DpAddress) *dpSim {
	d, ok := p.dps[dp]
	if !ok {
		d = newDpSim(0, 0)
		p.dps[dp] = d
	}
	return d
}

// SeedAPRegisterV1 scripts the value read back from AP register regAddr of
// the APv1 slot on dp.
func (p *Probe) SeedAPRegisterV1(dp dap.DpAddress, slot uint8, regAddr uint64, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dpFor(dp)
	d.apRegs[apRegKey(uint64(slot), regAddr)] = value
}

// SeedMemory scripts the value read back from target memory address addr
// through dp's root AP (used for ROM-table entries and Peripheral ID
// registers discovered while walking APv2 components).
func (p *Probe) SeedMemory(dp dap.DpAddress, addr uint64, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dpFor(dp)
	d.mem[addr] = value
}

// FailNextConnect makes the next n calls to DebugPortConnect for dp fail,
// forcing the state machine down the DebugPortSetup fallback path.
func (p *Probe) FailNextConnect(dp dap.DpAddress, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectFailures[dp] = n
}

// SelectWriteCount returns how many times SELECT (DP register 0x08) has been
// written since construction, for the bank-cache-suppression test scenario
// (spec.md 8).
func (p *Probe) SelectWriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectWrites
}

// LastCoreStatus returns the most recent status passed to
// CoreStatusNotification.
func (p *Probe) LastCoreStatus() dap.CoreStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCoreStatus
}

func apRegKey(slotOrBase uint64, regAddr uint64) uint64 {
	return (slotOrBase << 8) | (regAddr & 0xFF)
}
