package simprobe

import (
	"context"

	"github.com/kstephano/gdap/dap"
)

// Sequences is a dap.SequenceProvider whose hooks touch nothing but the
// simulated Probe's bookkeeping — no chip-specific register poking is in
// scope here (spec.md 1 excludes chip-specific sequences). It exists so
// tests and the demo CLI can drive a dap.Interface end to end without a
// real debug-sequence implementation.
type Sequences struct {
	probe *Probe
}

var _ dap.SequenceProvider = (*Sequences)(nil)

// NewSequences returns a SequenceProvider bound to probe, so its
// DebugPortSetup/DebugPortConnect hooks can record which DP the wire is
// addressing (mirroring what a real SWD/JTAG dormant-mode handshake would
// select).
func NewSequences(probe *Probe) *Sequences {
	return &Sequences{probe: probe}
}

func (s *Sequences) DebugPortSetup(ctx context.Context, probe dap.Probe, dp dap.DpAddress) error {
	s.probe.mu.Lock()
	defer s.probe.mu.Unlock()
	d := dp
	s.probe.current = &d
	s.probe.dpFor(dp) // ensure a dpSim exists
	return nil
}

func (s *Sequences) DebugPortConnect(ctx context.Context, probe dap.Probe, dp dap.DpAddress) error {
	s.probe.mu.Lock()
	defer s.probe.mu.Unlock()

	if remaining := s.probe.connectFailures[dp]; remaining > 0 {
		s.probe.connectFailures[dp] = remaining - 1
		return dap.ErrNoAcknowledge
	}

	d := dp
	s.probe.current = &d
	s.probe.dpFor(dp)
	return nil
}

func (s *Sequences) DebugPortStart(ctx context.Context, iface *dap.Interface, dp dap.DpAddress) error {
	return nil
}

func (s *Sequences) DebugPortStop(ctx context.Context, probe dap.Probe, dp dap.DpAddress) error {
	return nil
}
