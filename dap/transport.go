package dap

import "context"

// RegisterAddress names a single raw register transaction target: either a
// DP register (addressed directly) or an AP register (addressed through
// whatever bank the state machine has already selected).
type RegisterAddress struct {
	isAP bool
	addr uint8
}

// DpRegister addresses a DP register at the given (already bank-relative)
// byte address.
func DpRegister(addr uint8) RegisterAddress { return RegisterAddress{addr: addr} }

// ApRegister addresses an AP register at the given (already bank-relative)
// byte address.
func ApRegister(addr uint8) RegisterAddress { return RegisterAddress{isAP: true, addr: addr} }

// IsAP reports whether this address targets an AP register rather than a DP
// register.
func (r RegisterAddress) IsAP() bool { return r.isAP }

// Addr returns the raw register address.
func (r RegisterAddress) Addr() uint8 { return r.addr }

// CoreStatus is an advisory notification passed down to the probe so it can
// drive status LEDs or similar; it carries no semantics the state machine
// itself interprets.
type CoreStatus uint8

const (
	CoreStatusUnknown CoreStatus = iota
	CoreStatusRunning
	CoreStatusHalted
	CoreStatusSleeping
)

// Probe is the capability interface the DAP state machine requires of a raw
// transport (C1, out of scope for this library — probes are supplied by the
// caller). Every method is a suspension point: it may block or fail and, per
// the cooperative single-actor scheduling model (spec.md 5), must not be
// called concurrently by more than one logical actor.
type Probe interface {
	// RawReadRegister performs a single DP or AP register read.
	RawReadRegister(ctx context.Context, addr RegisterAddress) (uint32, error)
	// RawWriteRegister performs a single DP or AP register write. The
	// transport may batch this write; RawFlush forces completion.
	RawWriteRegister(ctx context.Context, addr RegisterAddress, value uint32) error
	// RawReadBlock reads len(values) consecutive words from the same
	// register address (repeated access), filling values in order.
	RawReadBlock(ctx context.Context, addr RegisterAddress, values []uint32) error
	// RawWriteBlock writes values to the same register address, in order.
	RawWriteBlock(ctx context.Context, addr RegisterAddress, values []uint32) error
	// RawFlush forces the transport to complete any batched writes.
	RawFlush(ctx context.Context) error
	// SwjSequence clocks bitLen bits of bits (LSB first) out the SWJ pins.
	SwjSequence(ctx context.Context, bitLen uint8, bits uint64) error
	// SwjPins drives pinOut on the pins selected by pinSelect, waits up to
	// waitUs microseconds, and returns the pins sampled.
	SwjPins(ctx context.Context, pinOut, pinSelect uint32, waitUs uint32) (uint32, error)
	// CoreStatusNotification informs the probe of a core status change, for
	// probes that drive an activity indicator. Must not block meaningfully.
	CoreStatusNotification(ctx context.Context, status CoreStatus)
}

// SwoConfig configures Serial Wire Output trace capture.
type SwoConfig struct {
	BaudRate  uint32
	BufferKiB uint32
}

// SwoProbe is an optional capability a Probe may additionally implement.
// The state machine type-asserts for it and returns an
// ArchitectureRequiredError when the attached probe does not implement it.
type SwoProbe interface {
	EnableSwo(ctx context.Context, cfg SwoConfig) error
	DisableSwo(ctx context.Context) error
	ReadSwoTimeout(ctx context.Context, timeout uint32) ([]byte, error)
}

// SequenceProvider supplies the chip-specific bring-up/teardown hooks the
// state machine cannot itself know how to perform (C2, out of scope for this
// library beyond the interface it must satisfy). Implementations are shared
// (the same provider instance may be handed to several DAP interfaces) and
// must tolerate being invoked re-entrantly from within Interface.Reinitialize.
type SequenceProvider interface {
	// DebugPortSetup performs the heavier bring-up: dormant-mode wakeup and
	// line reset, followed by whatever is needed to address dp.
	DebugPortSetup(ctx context.Context, probe Probe, dp DpAddress) error
	// DebugPortConnect performs a lighter-weight reconnection to an
	// already-initialized wire, used as the first attempt on every DP
	// switch; callers fall back to DebugPortSetup on failure.
	DebugPortConnect(ctx context.Context, probe Probe, dp DpAddress) error
	// DebugPortStart runs any chip-specific register pokes needed once a DP
	// is selected. On a DP's first selection it runs before DPIDR is read,
	// so the DP's version is not yet known. It is given the Interface itself
	// (not just the Probe) because some sequences need to read/write
	// registers through the bank-selection machinery.
	DebugPortStart(ctx context.Context, iface *Interface, dp DpAddress) error
	// DebugPortStop shuts down dp; called during disconnect.
	DebugPortStop(ctx context.Context, probe Probe, dp DpAddress) error
}
