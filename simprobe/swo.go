package simprobe

import (
	"context"
	"sync"

	"github.com/kstephano/gdap/dap"
)

// SwoCapable wraps a Probe with a dap.SwoProbe implementation. Whether SWO
// support exists is modeled as a distinct Go type (like the teacher's
// nodevice vs. real device types in vm/devices.go) rather than a runtime
// flag on Probe, so that a type assertion against dap.SwoProbe genuinely
// reflects what the simulated hardware supports.
type SwoCapable struct {
	*Probe

	mu      sync.Mutex
	enabled bool
	cfg     dap.SwoConfig
	buf     []byte
}

var _ dap.Probe = (*SwoCapable)(nil)
var _ dap.SwoProbe = (*SwoCapable)(nil)

// NewWithSwo returns a simulated probe that additionally implements
// dap.SwoProbe.
func NewWithSwo() *SwoCapable {
	return &SwoCapable{Probe: New()}
}

// SeedSwoTrace appends bytes that ReadSwoTimeout will return once SWO is
// enabled.
func (s *SwoCapable) SeedSwoTrace(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, data...)
}

func (s *SwoCapable) EnableSwo(ctx context.Context, cfg dap.SwoConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.cfg = cfg
	return nil
}

func (s *SwoCapable) DisableSwo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	return nil
}

func (s *SwoCapable) ReadSwoTimeout(ctx context.Context, timeoutUs uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil, nil
	}
	out := s.buf
	s.buf = nil
	return out, nil
}
