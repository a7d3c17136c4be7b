package sourceinfo

// LineRow is one row of a DWARF line-number program (spec.md 4.3), in the
// shape debug/dwarf's LineReader already produces. It is the sole input to
// the block decomposer: decomposition is a pure function of the row stream
// plus a function-boundary lookup (spec.md 9), so it needs no DWARF types at
// all and is independently testable with synthetic rows.
type LineRow struct {
	Address       uint64
	FileIndex     uint64
	Line          uint64
	Column        uint64
	IsStmt        bool
	PrologueEnd   bool
	EpilogueBegin bool
	EndSequence   bool
}

// FunctionBoundary reports what function (if any) covers an address, for the
// inline-region block-splitting rules.
type FunctionBoundary struct {
	FuncID   uint64
	IsInline bool
	HighPC   uint64
	Found    bool
}

// FunctionLookup resolves the innermost function (subprogram or
// inlined_subroutine) covering an address.
type FunctionLookup func(address uint64) FunctionBoundary

// gccC99PrologueEnd implements the GDB/GCC heuristic fallback for compilers
// that don't emit DW_LNS_set_prologue_end: the first is_stmt row whose line
// differs from the function's entry line, or the end_sequence row, whichever
// comes first (len(rows) if neither occurs). It does not look at the unit's
// source language or the row's file. probe-rs applies this only to
// DWARF line programs lacking any prologue_end flag in the whole sequence.
func gccC99PrologueEnd(rows []LineRow, entryLine uint64) int {
	for i, r := range rows {
		if r.EndSequence {
			return i
		}
		if r.IsStmt && r.Line != entryLine {
			return i
		}
	}
	return len(rows)
}

// sequenceHasPrologueEndFlag reports whether any row in the sequence carries
// DWARF's own prologue_end flag.
func sequenceHasPrologueEndFlag(rows []LineRow) bool {
	for _, r := range rows {
		if r.PrologueEnd {
			return true
		}
	}
	return false
}

// prologueCompleteIndex returns the index of the first row that is no longer
// part of the function prologue (spec.md 4.4): DWARF's own prologue_end flag
// if the sequence carries one anywhere, else the GCC/C99 heuristic. When
// neither fires before the end_sequence row, the result is that row's index
// (len(rows) if there is none), so every instruction is prologue.
func prologueCompleteIndex(rows []LineRow) int {
	if len(rows) == 0 {
		return 0
	}
	if sequenceHasPrologueEndFlag(rows) {
		for i, r := range rows {
			if r.PrologueEnd || r.EndSequence {
				return i
			}
		}
	}
	return gccC99PrologueEnd(rows, rows[0].Line)
}

// classifyRoles assigns an InstructionRole to every row of one LineSequence,
// given where the prologue ends.
func classifyRoles(rows []LineRow) []InstructionRole {
	roles := make([]InstructionRole, len(rows))
	prologueEnd := prologueCompleteIndex(rows)

	for i, r := range rows {
		switch {
		case i < prologueEnd:
			roles[i] = RolePrologue
		case r.EpilogueBegin:
			roles[i] = RoleEpilogueBegin
		case r.IsStmt:
			roles[i] = RoleHaltPoint
		default:
			roles[i] = RoleOther
		}
	}
	return roles
}

// effectiveLines resolves each row's line number, applying spec.md 4.4's
// inheritance workaround: a row with no line of its own inherits the
// preceding row's line if they share the same file and column (some
// compilers emit such rows for pure control-flow instructions that don't
// correspond to new source text).
func effectiveLines(rows []LineRow) []uint64 {
	lines := make([]uint64, len(rows))

	for i, r := range rows {
		if r.Line != 0 {
			lines[i] = r.Line
			continue
		}
		if i > 0 {
			prev := rows[i-1]
			if prev.Line != 0 && r.FileIndex == prev.FileIndex && r.Column == prev.Column {
				lines[i] = prev.Line
			}
		}
	}
	return lines
}

// DecomposeSequence turns one DWARF LineSequence's rows into a Sequence of
// Blocks (spec.md 4.4, C6). lookup resolves inline-region boundaries; pass
// nil if inline boundary rules should be skipped (no inlining in this unit).
//
// Block boundaries are introduced, in priority order, at:
//  1. the prologue-complete instruction (starts a new block)
//  2. an epilogue_begin row (starts a new block)
//  3. the end of an inlined region (high_pc of an inlined_subroutine)
//  4. the row about to step into a different inlined region than its
//     predecessor
//  5. a file/line change onto a halt-point (is_stmt) row from any
//     non-prologue row
//
// Only rule 1-3 boundaries are "linkable": LinkEdges connects the blocks on
// either side of them, because those transitions are structurally certain.
// Rule 4/5 boundaries leave the edge unresolved, since the actual control
// transfer there may be a call, branch, or fall-through LinkEdges cannot
// infer from the row stream alone.
//
// A trailing row carrying the DWARF end_sequence marker is consumed to
// close the sequence's address range and is never materialized as an
// Instruction (spec.md 4.4, 8 invariant 3).
//
// The returned Blocks are sorted by start address, per the invariant that
// block decomposition never reorders or drops instructions (spec.md 8
// invariants 3-4).
func DecomposeSequence(rows []LineRow, lookup FunctionLookup) Sequence {
	if len(rows) == 0 {
		return Sequence{}
	}

	instCount := len(rows)
	if rows[len(rows)-1].EndSequence {
		instCount--
	}

	first, last := rows[0].Address, rows[len(rows)-1].Address
	seq := Sequence{AddressRange: [2]uint64{first, last}}
	if instCount == 0 {
		return seq
	}

	roles := classifyRoles(rows)
	lines := effectiveLines(rows)
	boundaries := make([]bool, instCount)
	linkable := make([]bool, instCount)
	boundaries[0] = true

	prologueEnd := prologueCompleteIndex(rows)
	if prologueEnd > 0 && prologueEnd < instCount {
		boundaries[prologueEnd] = true
		linkable[prologueEnd] = true // rule 1
	}

	var prevInline *FunctionBoundary
	for i := 0; i < instCount; i++ {
		r := rows[i]
		if i == 0 {
			if lookup != nil {
				fb := lookup(r.Address)
				if fb.Found && fb.IsInline {
					prevInline = &fb
				}
			}
			continue
		}

		if roles[i] == RoleEpilogueBegin {
			boundaries[i] = true
			linkable[i] = true // rule 2
		}

		if lookup != nil {
			fb := lookup(r.Address)
			var cur *FunctionBoundary
			if fb.Found && fb.IsInline {
				cur = &fb
			}

			// Rule 3: end of an inlined region at its high_pc.
			if prevInline != nil && r.Address >= prevInline.HighPC {
				boundaries[i] = true
				linkable[i] = true
			}
			// Rule 4: stepping into a different inlined region. Not linkable:
			// the transfer into the inlined call site may be any kind of
			// control flow.
			if cur != nil && (prevInline == nil || cur.FuncID != prevInline.FuncID) {
				boundaries[i] = true
			}
			prevInline = cur
		}

		// Rule 5: file/line change onto a halt-point row from any
		// non-prologue row. Not linkable, for the same reason as rule 4.
		if roles[i] == RoleHaltPoint && roles[i-1] != RolePrologue {
			if rows[i].FileIndex != rows[i-1].FileIndex || rows[i].Line != rows[i-1].Line {
				boundaries[i] = true
			}
		}
	}

	var blocks []Block
	start := 0
	for i := 1; i <= instCount; i++ {
		if i == instCount || boundaries[i] {
			blocks = append(blocks, buildBlock(rows, roles, lines, lookup, start, i, linkable[start]))
			start = i
		}
	}

	seq.Blocks = blocks
	return seq
}

func buildBlock(rows []LineRow, roles []InstructionRole, lines []uint64, lookup FunctionLookup, start, end int, linkableFromPrev bool) Block {
	insts := make([]Instruction, 0, end-start)
	isInlined := false
	if lookup != nil {
		if fb := lookup(rows[start].Address); fb.Found && fb.IsInline {
			isInlined = true
		}
	}
	for i := start; i < end; i++ {
		insts = append(insts, Instruction{
			Address:   rows[i].Address,
			FileIndex: rows[i].FileIndex,
			Line:      lines[i],
			Column:    ColumnAt(rows[i].Column),
			Role:      roles[i],
		})
	}
	return Block{IsInlined: isInlined, Instructions: insts, linkableFromPrev: linkableFromPrev}
}

// LinkEdges populates SteppedFrom/StepsTo on consecutive blocks of a
// Sequence (spec.md 4.4's edge linking, invariant 7). Block i's StepsTo
// points at block i+1's first address only when block i+1 started at a
// rule-1/2/3 boundary (linkableFromPrev); rule-4/5 transitions are left
// unlinked, since the actual control transfer there cannot be inferred from
// the row stream alone. The final block's StepsTo always points at the
// sequence's own end address, since falling off the end of a sequence is
// structurally certain.
func LinkEdges(seq *Sequence) {
	for i := range seq.Blocks {
		first, _, ok := seq.Blocks[i].IncludedAddresses()
		if !ok {
			continue
		}
		if i+1 < len(seq.Blocks) {
			if !seq.Blocks[i+1].linkableFromPrev {
				continue
			}
			next, _, ok := seq.Blocks[i+1].IncludedAddresses()
			if ok {
				nextAddr := next
				seq.Blocks[i].StepsTo = &nextAddr
				prevAddr := first
				seq.Blocks[i+1].SteppedFrom = &prevAddr
			}
		} else {
			end := seq.AddressRange[1]
			seq.Blocks[i].StepsTo = &end
		}
	}
}
