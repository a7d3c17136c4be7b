package sourceinfo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstephano/gdap/sourceinfo"
)

// Scenario: prologue-end for C99 via DWARF's own prologue_end flag (spec.md
// 8). The first two rows set up the stack frame; row 2 carries
// prologue_end; everything before it must be RolePrologue.
func TestPrologueEndDwarfFlag(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 10, IsStmt: true},
		{Address: 0x1004, FileIndex: 1, Line: 10, IsStmt: true},
		{Address: 0x1008, FileIndex: 1, Line: 11, IsStmt: true, PrologueEnd: true},
		{Address: 0x100C, FileIndex: 1, Line: 12, IsStmt: true},
		{Address: 0x1010, FileIndex: 1, Line: 12, EndSequence: true},
	}

	seq := sourceinfo.DecomposeSequence(rows, nil)
	require.NotEmpty(t, seq.Blocks)

	prologue := seq.Blocks[0]
	for _, inst := range prologue.Instructions {
		assert.Equal(t, sourceinfo.RolePrologue, inst.Role)
	}
	first, _, ok := prologue.IncludedAddresses()
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), first)

	found := false
	for _, b := range seq.Blocks {
		for _, inst := range b.Instructions {
			if inst.Address == 0x1008 {
				assert.Equal(t, sourceinfo.RoleHaltPoint, inst.Role)
				found = true
			}
		}
	}
	assert.True(t, found, "expected the prologue_end row to be classified as a halt point")
}

// Scenario: prologue-end via the GCC/C99 heuristic when no row carries
// DWARF's prologue_end flag — the first row whose line differs from the
// function's entry line starts the post-prologue block.
func TestPrologueEndHeuristicFallback(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x2000, FileIndex: 1, Line: 20, IsStmt: true},
		{Address: 0x2004, FileIndex: 1, Line: 20, IsStmt: true},
		{Address: 0x2008, FileIndex: 1, Line: 21, IsStmt: true},
		{Address: 0x200C, FileIndex: 1, Line: 21, EndSequence: true},
	}

	seq := sourceinfo.DecomposeSequence(rows, nil)
	var roleOf = map[uint64]sourceinfo.InstructionRole{}
	for _, b := range seq.Blocks {
		for _, inst := range b.Instructions {
			roleOf[inst.Address] = inst.Role
		}
	}
	assert.Equal(t, sourceinfo.RolePrologue, roleOf[0x2000])
	assert.Equal(t, sourceinfo.RolePrologue, roleOf[0x2004])
	assert.Equal(t, sourceinfo.RoleHaltPoint, roleOf[0x2008])
}

// Scenario: inlined-region boundary (spec.md 8) — a block covering an
// inlined call must end exactly at the inlined function's high_pc, and the
// following block must be marked IsInlined == false once control returns to
// the outer function.
func TestInlinedRegionBoundary(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x3000, FileIndex: 1, Line: 5, IsStmt: true, PrologueEnd: true},
		{Address: 0x3004, FileIndex: 2, Line: 100, IsStmt: true}, // enters inlined callee
		{Address: 0x3008, FileIndex: 2, Line: 101, IsStmt: true}, // still inlined
		{Address: 0x300C, FileIndex: 1, Line: 6, IsStmt: true},   // back in outer function
		{Address: 0x3010, FileIndex: 1, Line: 6, EndSequence: true},
	}

	lookup := func(addr uint64) sourceinfo.FunctionBoundary {
		if addr >= 0x3004 && addr < 0x300C {
			return sourceinfo.FunctionBoundary{FuncID: 99, IsInline: true, HighPC: 0x300C, Found: true}
		}
		return sourceinfo.FunctionBoundary{}
	}

	seq := sourceinfo.DecomposeSequence(rows, lookup)

	var inlinedBlock, outerBlock *sourceinfo.Block
	for i := range seq.Blocks {
		b := &seq.Blocks[i]
		first, _, ok := b.IncludedAddresses()
		if !ok {
			continue
		}
		if first == 0x3004 {
			inlinedBlock = b
		}
		if first == 0x300C {
			outerBlock = b
		}
	}
	require.NotNil(t, inlinedBlock)
	require.NotNil(t, outerBlock)
	assert.True(t, inlinedBlock.IsInlined)
	assert.False(t, outerBlock.IsInlined)

	_, last, ok := inlinedBlock.IncludedAddresses()
	require.True(t, ok)
	assert.Less(t, last, uint64(0x300C))
}

// Scenario: breakpoint by source location (spec.md 8) via Block.MatchLocation
// directly, since a full DebugInfo requires a real ELF/DWARF image.
func TestMatchLocationBySourceLine(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x4000, FileIndex: 3, Line: 50, IsStmt: true, PrologueEnd: true},
		{Address: 0x4004, FileIndex: 3, Line: 51, IsStmt: true, Column: 5},
		{Address: 0x4008, FileIndex: 3, Line: 51, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)

	fi := uint64(3)
	var found *sourceinfo.Instruction
	for _, b := range seq.Blocks {
		if inst := b.MatchLocation(&fi, 51, nil); inst != nil {
			found = inst
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, uint64(0x4004), found.Address)
}

// Invariant 3 (spec.md 8): block address ranges are monotonically ordered
// and never overlap.
func TestBlockMonotonicityAndNonOverlap(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 1, IsStmt: true, PrologueEnd: true},
		{Address: 0x1004, FileIndex: 1, Line: 2, IsStmt: true},
		{Address: 0x1008, FileIndex: 1, Line: 3, IsStmt: true},
		{Address: 0x100C, FileIndex: 1, Line: 4, EpilogueBegin: true},
		{Address: 0x1010, FileIndex: 1, Line: 4, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)

	var lastEnd uint64
	for i, b := range seq.Blocks {
		first, last, ok := b.IncludedAddresses()
		require.True(t, ok)
		if i > 0 {
			assert.Greater(t, first, lastEnd, "block %d must start after the previous block's end", i)
		}
		assert.GreaterOrEqual(t, last, first)
		lastEnd = last
	}
}

// Invariant 4 (spec.md 8): decomposition preserves the instruction multiset
// exactly — no row is dropped, duplicated, or reordered, except that the
// trailing end_sequence row is consumed rather than materialized (spec.md
// 4.4, 8 invariant 5: "minus end_sequence rows").
func TestRoundTripInstructionMultiset(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 1, IsStmt: true, PrologueEnd: true},
		{Address: 0x1004, FileIndex: 1, Line: 2, IsStmt: true},
		{Address: 0x1008, FileIndex: 2, Line: 10, IsStmt: true},
		{Address: 0x100C, FileIndex: 2, Line: 10, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)

	var addrs []uint64
	for _, b := range seq.Blocks {
		for _, inst := range b.Instructions {
			addrs = append(addrs, inst.Address)
		}
	}
	require.Len(t, addrs, len(rows)-1)
	for i, r := range rows[:len(rows)-1] {
		assert.Equal(t, r.Address, addrs[i])
	}
	assert.Equal(t, rows[len(rows)-1].Address, seq.AddressRange[1])
}

// Invariant 5 (spec.md 8): every HaltPoint instruction is self-consistent —
// it always reports is_stmt semantics (RoleHaltPoint is never assigned to a
// prologue row).
func TestHaltPointSelfConsistency(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 1, IsStmt: true},
		{Address: 0x1004, FileIndex: 1, Line: 2, IsStmt: true, PrologueEnd: true},
		{Address: 0x1008, FileIndex: 1, Line: 2, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)
	isStmt := map[uint64]bool{}
	for _, r := range rows {
		isStmt[r.Address] = r.IsStmt
	}
	for _, b := range seq.Blocks {
		for _, inst := range b.Instructions {
			if inst.Role == sourceinfo.RoleHaltPoint {
				assert.True(t, isStmt[inst.Address], "halt point at 0x%x is not an is_stmt row", inst.Address)
				assert.GreaterOrEqual(t, inst.Address, uint64(0x1004), "prologue row 0x%x classified as halt point", inst.Address)
			}
		}
	}
}

// Invariant 7 (spec.md 8): LinkEdges only connects blocks across a rule-1/2/3
// boundary (spec.md 4.4 "edge linking"); a pure rule-5 (file/line) boundary
// between two halt points is left unresolved, since the actual control
// transfer there (call, branch, or fall-through) can't be inferred from the
// line table alone. The final block's StepsTo always points at the
// sequence's own end, since falling off the end is structurally certain.
func TestStepsToValidity(t *testing.T) {
	// rows 0-1: prologue (same line). row 2: prologue-complete (rule 1,
	// linkable). row 3: a further halt point on a different line than row 2
	// (rule 5, not linkable).
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 1, IsStmt: true},
		{Address: 0x1004, FileIndex: 1, Line: 1, IsStmt: true},
		{Address: 0x1008, FileIndex: 1, Line: 2, IsStmt: true},
		{Address: 0x100C, FileIndex: 1, Line: 3, IsStmt: true},
		{Address: 0x1010, FileIndex: 1, Line: 3, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)
	sourceinfo.LinkEdges(&seq)

	require.Len(t, seq.Blocks, 3)

	prologue, prologueEnd, rule5 := seq.Blocks[0], seq.Blocks[1], seq.Blocks[2]

	prologueEndFirst, _, ok := prologueEnd.IncludedAddresses()
	require.True(t, ok)
	require.NotNil(t, prologue.StepsTo, "rule-1 boundary must be linked")
	assert.Equal(t, prologueEndFirst, *prologue.StepsTo)
	require.NotNil(t, prologueEnd.SteppedFrom)

	assert.Nil(t, prologueEnd.StepsTo, "rule-5 boundary must not be linked")
	assert.Nil(t, rule5.SteppedFrom, "rule-5 boundary must not be linked")

	require.NotNil(t, rule5.StepsTo)
	assert.Equal(t, seq.AddressRange[1], *rule5.StepsTo)
}

// Counterpart to TestStepsToValidity: a rule-1 (prologue-complete) boundary
// is linkable, so LinkEdges must connect the prologue block to the block
// that follows it.
func TestStepsToValidityLinkableBoundary(t *testing.T) {
	rows := []sourceinfo.LineRow{
		{Address: 0x1000, FileIndex: 1, Line: 10, IsStmt: true},
		{Address: 0x1004, FileIndex: 1, Line: 10, IsStmt: true},
		{Address: 0x1008, FileIndex: 1, Line: 11, IsStmt: true, PrologueEnd: true},
		{Address: 0x100C, FileIndex: 1, Line: 11, EndSequence: true},
	}
	seq := sourceinfo.DecomposeSequence(rows, nil)
	sourceinfo.LinkEdges(&seq)

	require.Len(t, seq.Blocks, 2)
	require.NotNil(t, seq.Blocks[0].StepsTo)
	nextFirst, _, ok := seq.Blocks[1].IncludedAddresses()
	require.True(t, ok)
	assert.Equal(t, nextFirst, *seq.Blocks[0].StepsTo)
	require.NotNil(t, seq.Blocks[1].SteppedFrom)
}
