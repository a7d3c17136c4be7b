package dap

import "context"

// UninitializedInterface holds a probe that has not yet completed a DP
// handshake. It exposes no register operations; the only way forward is
// Initialize, which consumes it.
//
// This is the two-phase type-state gate from spec.md 9: "call read before
// init" is unrepresentable because Interface (the Initialized phase) simply
// has no constructor other than a successful Initialize.
type UninitializedInterface struct {
	probe            Probe
	useOverrunDetect bool
}

// NewUninitializedInterface wraps probe for bring-up. useOverrunDetect is
// the configured CTRL/STAT overrun-detect policy applied on every DP
// selected for the first time.
func NewUninitializedInterface(probe Probe, useOverrunDetect bool) *UninitializedInterface {
	return &UninitializedInterface{probe: probe, useOverrunDetect: useOverrunDetect}
}

// Initialize brings up dp via seq and returns the Initialized interface.
//
// On success, the returned *UninitializedInterface is nil and the caller
// must use the returned *Interface from then on. On failure, the returned
// *Interface is nil and the returned *UninitializedInterface carries the
// probe back intact so the caller may retry or give up without leaking it —
// the probe is never lost on a failed transition.
func (u *UninitializedInterface) Initialize(ctx context.Context, seq SequenceProvider, dp DpAddress) (*Interface, *UninitializedInterface, error) {
	iface, failedProbe, err := trySetup(ctx, u.probe, seq, dp, u.useOverrunDetect)
	if err != nil {
		return nil, NewUninitializedInterface(failedProbe, u.useOverrunDetect), err
	}
	return iface, nil, nil
}

// trySetup runs DebugPortSetup followed by the initial selectDP for dp. On
// any failure it returns the probe that was in play at the point of failure
// (never nil, never the zero value) so the caller can retry.
func trySetup(ctx context.Context, probe Probe, seq SequenceProvider, dp DpAddress, useOverrunDetect bool) (*Interface, Probe, error) {
	if err := seq.DebugPortSetup(ctx, probe, dp); err != nil {
		return nil, probe, err
	}
	iface := &Interface{
		probe:            probe,
		currentDp:        dp,
		dps:              make(map[DpAddress]*dpState),
		useOverrunDetect: useOverrunDetect,
		sequences:        seq,
	}
	if _, err := iface.selectDP(ctx, dp); err != nil {
		failedProbe := iface.probe
		iface.probe = nil // the half-built Interface must never be observed
		return nil, failedProbe, err
	}
	return iface, nil, nil
}
