package dap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstephano/gdap/dap"
	"github.com/kstephano/gdap/simprobe"
)

// Scenario: synthetic PIDR decode (spec.md 8, SPEC_FULL.md C8). A component
// whose five Peripheral ID registers encode ARM's JEP106 code
// (continuation=0x4, identity=0x3B) and part number 0x4C4 must decode
// exactly that way: continuation from PIDR4[3:0], identity from
// PIDR2[2:0]<<4 | PIDR1[7:4], part from PIDR0[7:0] | PIDR1[3:0]<<8.
func TestReadChipInfoDecodesJEP106(t *testing.T) {
	const base = 0x2000

	probe := simprobe.New()
	dp := dap.DefaultDpAddress()
	const dpv3Dpidr = 0x3 << 12
	probe.SeedDP(dp, dpv3Dpidr, 0)

	probe.SeedMemory(dp, base+0xFE0, 0xC4) // PIDR0: part[7:0]
	probe.SeedMemory(dp, base+0xFE4, 0xB4) // PIDR1: identity[3:0]<<4 | part[11:8]
	probe.SeedMemory(dp, base+0xFE8, 0x13) // PIDR2: jedec-used<<3 | identity[6:4]
	probe.SeedMemory(dp, base+0xFEC, 0x00) // PIDR3: unused by this decoder
	probe.SeedMemory(dp, base+0xFD0, 0x04) // PIDR4: continuation[3:0]

	iface := newInitialized(t, probe, dp)

	info, err := dap.ReadChipInfo(context.Background(), iface, dp, base)
	require.NoError(t, err)
	assert.Equal(t, dap.JEP106Code{Continuation: 0x4, Identity: 0x3B}, info.Manufacturer)
	assert.Equal(t, "ARM", info.Manufacturer.Name())
	assert.Equal(t, uint16(0x4C4), info.Part)
}

// An unrecognized JEP106 code still decodes without error; Name falls back
// to a generic "unknown" string rather than failing.
func TestReadChipInfoUnknownManufacturer(t *testing.T) {
	const base = 0x4000

	probe := simprobe.New()
	dp := dap.DefaultDpAddress()
	probe.SeedDP(dp, 0x3<<12, 0)

	probe.SeedMemory(dp, base+0xFE0, 0x01)
	probe.SeedMemory(dp, base+0xFE4, 0x00)
	probe.SeedMemory(dp, base+0xFE8, 0x00)
	probe.SeedMemory(dp, base+0xFEC, 0x00)
	probe.SeedMemory(dp, base+0xFD0, 0x00)

	iface := newInitialized(t, probe, dp)

	info, err := dap.ReadChipInfo(context.Background(), iface, dp, base)
	require.NoError(t, err)
	assert.Contains(t, info.Manufacturer.Name(), "unknown")
}
