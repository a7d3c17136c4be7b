package dap

import (
	"context"
	"log/slog"
)

// Interface is the Initialized phase of the DAP state machine (spec.md
// 3, "DapInterface state"): it owns the attached probe, per-DP state, the
// currently active DP, the overrun-detect policy, and the sequence
// provider. It mediates every raw register access by applying cached
// bank-selection (spec.md 4.1).
//
// Interface is not safe for concurrent use from multiple goroutines: the
// concurrency model (spec.md 5) is a single logical actor holding the
// interface at a time, operations are strictly FIFO, and external
// synchronization (not internal locking) is the caller's responsibility —
// mirroring the teacher's convention of documenting non-thread-safe types
// rather than defensively locking them.
type Interface struct {
	probe            Probe // nil only transiently, see probeOrPanic
	currentDp        DpAddress
	dps              map[DpAddress]*dpState
	useOverrunDetect bool
	sequences        SequenceProvider
	logger           *slog.Logger
}

// WithLogger attaches a structured logger used for disconnect warnings (see
// spec.md 4.1 step 2). A nil logger restores slog.Default().
func (i *Interface) WithLogger(logger *slog.Logger) *Interface {
	i.logger = logger
	return i
}

func (i *Interface) log() *slog.Logger {
	if i.logger == nil {
		return slog.Default()
	}
	return i.logger
}

// probeOrPanic returns the attached probe, or panics if the interface is
// observed with no probe attached. This should be unreachable: the probe
// slot is only ever nil for the instant between Reinitialize/Close stealing
// it and either restoring it (on failure) or returning it to the caller (on
// success), and no other method is reachable during that instant because
// Go's single-goroutine-per-Interface contract forbids re-entry except
// through the sequence-provider callback paths those methods control
// directly.
func (i *Interface) probeOrPanic() Probe {
	if i.probe == nil {
		panic(errInconsistentState)
	}
	return i.probe
}

// CurrentDebugPort returns the DP this interface is currently addressing.
func (i *Interface) CurrentDebugPort() DpAddress { return i.currentDp }

// Flush forces the transport to complete any batched writes.
func (i *Interface) Flush(ctx context.Context) error {
	return i.probeOrPanic().RawFlush(ctx)
}

// selectDP is the gate for every access (spec.md 4.1 "DP switching"). It
// ensures dp is the currently connected DP with up-to-date version/select
// state and returns its dpState.
func (i *Interface) selectDP(ctx context.Context, dp DpAddress) (*dpState, error) {
	state, existed := i.dps[dp]

	if dp == i.currentDp && existed {
		return state, nil
	}

	probe := i.probeOrPanic()
	if err := probe.RawFlush(ctx); err != nil {
		return nil, err
	}

	if err := i.sequences.DebugPortConnect(ctx, probe, dp); err != nil {
		if err := i.sequences.DebugPortSetup(ctx, probe, dp); err != nil {
			return nil, err
		}
	}
	i.currentDp = dp

	justCreated := false
	if !existed {
		state = newDpState()
		i.dps[dp] = state
		justCreated = true
	}

	// DebugPortStart is re-run both on first bring-up of dp and whenever we
	// switch back to it, since intervening activity on another DP may have
	// desynchronized chip-specific state (spec.md 4.1).
	if err := i.sequences.DebugPortStart(ctx, i, dp); err != nil {
		return nil, err
	}

	if justCreated {
		dpidr, err := probe.RawReadRegister(ctx, DpRegister(DPIDR))
		if err != nil {
			return nil, err
		}
		state.version = ParseDebugPortVersion(dpidr)
		if state.version.UsesWideSelect() {
			state.select_.upgradeToWide()
		}

		ctrlStat, err := probe.RawReadRegister(ctx, DpRegister(CtrlStat))
		if err != nil {
			return nil, err
		}
		overrunSet := ctrlStat&0x1 != 0
		if overrunSet != i.useOverrunDetect {
			next := ctrlStat
			if i.useOverrunDetect {
				next |= 0x1
			} else {
				next &^= 0x1
			}
			if err := probe.RawWriteRegister(ctx, DpRegister(CtrlStat), next); err != nil {
				return nil, err
			}
		}
	}

	return state, nil
}

// selectDpAndDpBank ensures dp is selected and, if addr is a banked address,
// that the correct DP bank is latched, writing SELECT (and SELECT1 for
// DPv3) only when the cache disagrees (spec.md 4.1 rule 1, 8.2).
func (i *Interface) selectDpAndDpBank(ctx context.Context, dp DpAddress, addr DpRegisterAddress) error {
	state, err := i.selectDP(ctx, dp)
	if err != nil {
		return err
	}
	if !addr.Banked() {
		return nil
	}
	bank := addr.BankOrZero()
	if state.select_.dpBankSel() == bank {
		return nil
	}
	probe := i.probeOrPanic()
	next := state.select_.withDpBankSel(bank)
	if err := i.writeSelect(ctx, probe, next); err != nil {
		return err
	}
	state.select_ = next // cache updated only after the successful write
	return nil
}

// selectApAndApBank ensures ap's DP is selected and the SELECT register(s)
// address the given AP and register bank (spec.md 4.1 rule 2).
func (i *Interface) selectApAndApBank(ctx context.Context, ap FullyQualifiedApAddress, regAddr uint64) error {
	state, err := i.selectDP(ctx, ap.Dp)
	if err != nil {
		return err
	}

	switch ap.Ap.Version() {
	case ApV1:
		if state.select_.wide {
			return errApVersionMismatch
		}
		slot, _ := ap.Ap.Slot()
		apBankSel := uint8((regAddr >> 4) & 0xF)
		curSlot, curBank := state.select_.apV1Fields()
		if curSlot == slot && curBank == apBankSel {
			return nil
		}
		next := state.select_.withApV1Select(slot, apBankSel)
		probe := i.probeOrPanic()
		if err := i.writeSelect(ctx, probe, next); err != nil {
			return err
		}
		state.select_ = next
		return nil
	default: // ApV2
		if !state.select_.wide {
			return errApVersionMismatch
		}
		base, _ := ap.Ap.Base()
		full := base + regAddr
		if state.select_.apV2Addr() == full&^0xF {
			// DP_BANK_SEL rides along separately via selectDpAndDpBank on
			// the DP-register path; for AP access the low 4 bits of SELECT
			// are not meaningful beyond addressing, so compare the address
			// portion only.
			return nil
		}
		next := state.select_.withApV2Select(full)
		probe := i.probeOrPanic()
		if err := i.writeSelect(ctx, probe, next); err != nil {
			return err
		}
		state.select_ = next
		return nil
	}
}

// writeSelect issues the wire write(s) for a pending select-cache value. It
// never mutates the cache itself — callers do that only after this returns
// nil, preserving the "cache reflects only the last successful write"
// invariant (spec.md 4.1.a, 8.1).
func (i *Interface) writeSelect(ctx context.Context, probe Probe, next selectCache) error {
	if next.wide {
		if err := probe.RawWriteRegister(ctx, DpRegister(Select), next.wideLow); err != nil {
			return err
		}
		return probe.RawWriteRegister(ctx, DpRegister(0x04), next.wideHigh) // SELECT1, DPv3 bank 5
	}
	return probe.RawWriteRegister(ctx, DpRegister(Select), next.narrow)
}

// ReadRawDPRegister reads a DP register, applying bank selection first.
func (i *Interface) ReadRawDPRegister(ctx context.Context, dp DpAddress, addr DpRegisterAddress) (uint32, error) {
	if err := i.selectDpAndDpBank(ctx, dp, addr); err != nil {
		return 0, err
	}
	return i.probeOrPanic().RawReadRegister(ctx, DpRegister(addr.Address))
}

// WriteRawDPRegister writes a DP register, applying bank selection first.
func (i *Interface) WriteRawDPRegister(ctx context.Context, dp DpAddress, addr DpRegisterAddress, value uint32) error {
	if err := i.selectDpAndDpBank(ctx, dp, addr); err != nil {
		return err
	}
	return i.probeOrPanic().RawWriteRegister(ctx, DpRegister(addr.Address), value)
}

// ReadRawAPRegister reads a single AP register word.
func (i *Interface) ReadRawAPRegister(ctx context.Context, ap FullyQualifiedApAddress, regAddr uint64) (uint32, error) {
	if err := i.selectApAndApBank(ctx, ap, regAddr); err != nil {
		return 0, err
	}
	return i.probeOrPanic().RawReadRegister(ctx, ApRegister(uint8(regAddr&0xF)))
}

// ReadRawAPRegisterRepeated reads len(out) consecutive words from the same
// AP register address.
func (i *Interface) ReadRawAPRegisterRepeated(ctx context.Context, ap FullyQualifiedApAddress, regAddr uint64, out []uint32) error {
	if err := i.selectApAndApBank(ctx, ap, regAddr); err != nil {
		return err
	}
	return i.probeOrPanic().RawReadBlock(ctx, ApRegister(uint8(regAddr&0xF)), out)
}

// WriteRawAPRegister writes a single AP register word.
func (i *Interface) WriteRawAPRegister(ctx context.Context, ap FullyQualifiedApAddress, regAddr uint64, value uint32) error {
	if err := i.selectApAndApBank(ctx, ap, regAddr); err != nil {
		return err
	}
	return i.probeOrPanic().RawWriteRegister(ctx, ApRegister(uint8(regAddr&0xF)), value)
}

// WriteRawAPRegisterRepeated writes values to the same AP register address,
// in order.
func (i *Interface) WriteRawAPRegisterRepeated(ctx context.Context, ap FullyQualifiedApAddress, regAddr uint64, values []uint32) error {
	if err := i.selectApAndApBank(ctx, ap, regAddr); err != nil {
		return err
	}
	return i.probeOrPanic().RawWriteBlock(ctx, ApRegister(uint8(regAddr&0xF)), values)
}

// EnableSwo, DisableSwo and ReadSwoTimeout forward to the probe's optional
// SwoProbe capability, or fail with ArchitectureRequiredError if the probe
// does not implement it (spec.md 6).
func (i *Interface) EnableSwo(ctx context.Context, cfg SwoConfig) error {
	swo, ok := i.probeOrPanic().(SwoProbe)
	if !ok {
		return NewArchitectureRequiredError("ARMv7", "ARMv8")
	}
	return swo.EnableSwo(ctx, cfg)
}

func (i *Interface) DisableSwo(ctx context.Context) error {
	swo, ok := i.probeOrPanic().(SwoProbe)
	if !ok {
		return NewArchitectureRequiredError("ARMv7", "ARMv8")
	}
	return swo.DisableSwo(ctx)
}

func (i *Interface) ReadSwoTimeout(ctx context.Context, timeoutUs uint32) ([]byte, error) {
	swo, ok := i.probeOrPanic().(SwoProbe)
	if !ok {
		return nil, NewArchitectureRequiredError("ARMv7", "ARMv8")
	}
	return swo.ReadSwoTimeout(ctx, timeoutUs)
}

// Reinitialize tears down and re-runs the bring-up sequence for the current
// debug port (spec.md 4.1 "Reinitialize" / 9 "steal the resource, do work,
// put it back"). On success the interface is left usable on the same DP;
// on failure the probe is restored so the caller may retry or Close.
func (i *Interface) Reinitialize(ctx context.Context) error {
	probe := i.probeOrPanic()
	i.probe = nil // steal: no public method may observe a probe from here...

	i.disconnectAll(ctx, probe)

	newIface, failedProbe, err := trySetup(ctx, probe, i.sequences, i.currentDp, i.useOverrunDetect)
	if err != nil {
		i.probe = failedProbe // ...until we put it back, on either path.
		return err
	}
	*i = *newIface
	return nil
}

// Close shuts down all known DPs (spec.md 4.1 "Disconnect") and returns the
// raw probe to the caller. After Close, this Interface must not be used
// again.
func (i *Interface) Close(ctx context.Context) Probe {
	probe := i.probeOrPanic()
	i.probe = nil
	i.disconnectAll(ctx, probe)
	return probe
}

// disconnectAll implements spec.md 4.1's four-step disconnect sequence. It
// never returns an error: every step's failure is either ignored (step 1)
// or logged as a warning (step 2), because the caller has no way to react
// to a disconnect-path failure.
func (i *Interface) disconnectAll(ctx context.Context, probe Probe) {
	_ = i.sequences.DebugPortStop(ctx, probe, i.currentDp) // ignored, per spec

	for dp := range i.dps {
		if dp == i.currentDp {
			continue
		}
		if err := i.sequences.DebugPortConnect(ctx, probe, dp); err != nil {
			i.log().Warn("dap: failed to connect during disconnect", "dp", dp, "err", err)
			continue
		}
		if err := i.sequences.DebugPortStop(ctx, probe, dp); err != nil {
			i.log().Warn("dap: failed to stop debug port during disconnect", "dp", dp, "err", err)
		}
	}

	_ = probe.RawFlush(ctx)
	i.dps = make(map[DpAddress]*dpState)
}
