package dap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstephano/gdap/dap"
	"github.com/kstephano/gdap/simprobe"
)

// Scenario: APv2 ROM-table walk (spec.md 8, 4.2). The root table at base 0
// has two entries: one pointing at a nested class-1 ROM table (which itself
// has one leaf entry), one pointing directly at a leaf. AccessPorts must
// recurse into the nested table and return exactly the two leaf addresses.
func TestAPEnumerationV2WalksRomTable(t *testing.T) {
	probe := simprobe.New()
	dp := dap.DefaultDpAddress()
	const dpv3Dpidr = 0x3 << 12
	probe.SeedDP(dp, dpv3Dpidr, 0)

	// Root table (base 0x0):
	//   entry 0 -> offset 0x1000 (nested ROM table)
	//   entry 1 -> offset 0x3000 (leaf)
	//   entry 2 -> 0 (terminator)
	probe.SeedMemory(dp, 0x0000, 0x1000|0x3)
	probe.SeedMemory(dp, 0x0004, 0x3000|0x3)
	probe.SeedMemory(dp, 0x0008, 0x00000000)

	// CIDR1 at 0x1000+0xFF4 identifies it as a class-1 ROM table.
	probe.SeedMemory(dp, 0x1000+0xFF4, 0x10)

	// Nested table (base 0x1000):
	//   entry 0 -> offset 0x4000 (leaf at 0x5000)
	//   entry 1 -> 0 (terminator)
	probe.SeedMemory(dp, 0x1000, 0x4000|0x3)
	probe.SeedMemory(dp, 0x1004, 0x00000000)

	// Leaves at 0x3000 and 0x5000 leave their CIDR1 unseeded (reads back 0),
	// so they are not misclassified as nested ROM tables.

	iface := newInitialized(t, probe, dp)
	aps, err := iface.AccessPorts(context.Background(), dp)
	require.NoError(t, err)

	expected := map[dap.FullyQualifiedApAddress]struct{}{
		{Dp: dp, Ap: dap.ApV2Address(0x3000)}: {},
		{Dp: dp, Ap: dap.ApV2Address(0x5000)}: {},
	}
	assert.Equal(t, expected, aps)
}

// A root table with no present entries yields an empty AP set, not an
// error.
func TestAPEnumerationV2EmptyTable(t *testing.T) {
	probe := simprobe.New()
	dp := dap.DefaultDpAddress()
	probe.SeedDP(dp, 0x3<<12, 0)
	probe.SeedMemory(dp, 0x0000, 0x00000000)

	iface := newInitialized(t, probe, dp)
	aps, err := iface.AccessPorts(context.Background(), dp)
	require.NoError(t, err)
	assert.Empty(t, aps)
}
