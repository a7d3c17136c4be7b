// Package sourceinfo implements the DWARF-driven source-to-instruction
// resolver (spec.md C5-C7): a line-program ingester, a block decomposer that
// turns line-program rows into semantically meaningful basic blocks, and a
// breakpoint resolver that maps a program counter or (path, line, column)
// triple to a verified halt address.
package sourceinfo

import "fmt"

// ColumnType mirrors DWARF's column encoding: column 0 means "left edge of
// statement" (unknown/unspecified), any other value is an actual 1-based
// column number.
type ColumnType struct {
	isColumn bool
	value    uint64
}

// LeftEdge is the zero ColumnType: DWARF column 0.
var LeftEdge = ColumnType{}

// ColumnAt returns a ColumnType for a specific nonzero column.
func ColumnAt(column uint64) ColumnType {
	if column == 0 {
		return LeftEdge
	}
	return ColumnType{isColumn: true, value: column}
}

// IsLeftEdge reports whether this is DWARF column 0.
func (c ColumnType) IsLeftEdge() bool { return !c.isColumn }

// Value returns the column number and true, or (0, false) for LeftEdge.
func (c ColumnType) Value() (uint64, bool) { return c.value, c.isColumn }

func (c ColumnType) String() string {
	if !c.isColumn {
		return "left-edge"
	}
	return fmt.Sprintf("column %d", c.value)
}

// InstructionRole classifies one machine instruction's relationship to
// function prologue/epilogue and statement boundaries.
type InstructionRole uint8

const (
	// RolePrologue marks an instruction that is part of a function's
	// stack-setup code, before the prologue-complete predicate fires.
	RolePrologue InstructionRole = iota
	// RoleHaltPoint marks a legal debugger halt location at a statement
	// (is_stmt) boundary. Epilogue starts get RoleEpilogueBegin instead,
	// which IsHaltLocation also accepts.
	RoleHaltPoint
	// RoleEpilogueBegin marks the first instruction of a function's
	// teardown code.
	RoleEpilogueBegin
	// RoleOther marks an instruction that is none of the above (e.g. a
	// non-statement row mid-expression).
	RoleOther
)

// IsHaltLocation reports whether a debugger may legally stop at an
// instruction with this role.
func (r InstructionRole) IsHaltLocation() bool {
	return r == RoleHaltPoint || r == RoleEpilogueBegin
}

func (r InstructionRole) String() string {
	switch r {
	case RolePrologue:
		return "prologue"
	case RoleHaltPoint:
		return "halt-point"
	case RoleEpilogueBegin:
		return "epilogue-begin"
	default:
		return "other"
	}
}

// Instruction corresponds to one target machine instruction and one DWARF
// line-program row (spec.md 3). Line == 0 means the row carried no line
// number (DWARF's "unknown line" convention, mirroring Rust's
// Option<NonZeroU64>).
type Instruction struct {
	Address   uint64
	FileIndex uint64
	Line      uint64
	Column    ColumnType
	Role      InstructionRole
}

// HasLine reports whether Line carries a known line number.
func (i Instruction) HasLine() bool { return i.Line != 0 }

// Block is a maximal run of instructions within a Sequence with no
// intervening control-flow boundary discoverable from DWARF alone (spec.md
// 3, 4.4). SteppedFrom/StepsTo are advisory edge pointers; nil means
// "unknown".
type Block struct {
	IsInlined    bool
	Instructions []Instruction
	SteppedFrom  *uint64
	StepsTo      *uint64

	// linkableFromPrev records whether this block's start boundary came
	// from a rule-1/2/3 transition (prologue-complete, epilogue_begin, or
	// inlined-region end) as opposed to rule-4/5 (inline-region entry or a
	// bare file/line change). LinkEdges only connects the preceding block's
	// StepsTo/this block's SteppedFrom when this is true, since only those
	// transitions are structurally certain.
	linkableFromPrev bool
}

// IncludedAddresses returns the inclusive [first, last] address range the
// block covers, or ok=false for an empty block.
func (b Block) IncludedAddresses() (first, last uint64, ok bool) {
	if len(b.Instructions) == 0 {
		return 0, 0, false
	}
	return b.Instructions[0].Address, b.Instructions[len(b.Instructions)-1].Address, true
}

// ContainsAddress reports whether address falls within the block's included
// range.
func (b Block) ContainsAddress(address uint64) bool {
	first, last, ok := b.IncludedAddresses()
	if !ok {
		return false
	}
	return address >= first && address <= last
}

// MatchLocation finds the valid halt instruction matching fileIndex/line/
// column, per spec.md 4.4's two-tier preference (exact column match, then
// column-ignored). column == nil skips straight to the column-ignored match.
func (b Block) MatchLocation(fileIndex *uint64, line uint64, column *uint64) *Instruction {
	matchesFileLine := func(inst Instruction) bool {
		if !inst.Role.IsHaltLocation() {
			return false
		}
		if fileIndex == nil || inst.FileIndex != *fileIndex {
			return false
		}
		return inst.Line == line
	}

	if column != nil {
		want := ColumnAt(*column)
		for idx := range b.Instructions {
			inst := b.Instructions[idx]
			if matchesFileLine(inst) && inst.Column == want {
				return &b.Instructions[idx]
			}
		}
	}
	for idx := range b.Instructions {
		if matchesFileLine(b.Instructions[idx]) {
			return &b.Instructions[idx]
		}
	}
	return nil
}

// Sequence mirrors one DWARF LineSequence: a contiguous run of line-program
// rows terminated by end_sequence, decomposed into Blocks (spec.md 3).
type Sequence struct {
	AddressRange [2]uint64 // [start, end)
	Blocks       []Block
}

// HaltpointNearAddress returns the first HaltPoint instruction at or after
// address, or nil if none exists in this sequence (spec.md 4.5 for_address).
func (s Sequence) HaltpointNearAddress(address uint64) *Instruction {
	for bIdx := range s.Blocks {
		insts := s.Blocks[bIdx].Instructions
		for iIdx := range insts {
			inst := insts[iIdx]
			if inst.Role == RoleHaltPoint && inst.Address >= address {
				return &insts[iIdx]
			}
		}
	}
	return nil
}

// SourceLocation carries the resolved file/line/column of an instruction.
// DWARF may omit any field.
type SourceLocation struct {
	Line      *uint64
	Column    *ColumnType
	File      *string
	Directory *string
}

// VerifiedBreakpoint is a halt address together with its resolved source
// location (spec.md 3).
type VerifiedBreakpoint struct {
	Address        uint64
	SourceLocation SourceLocation
}

// Error reports a sourceinfo failure. Continuable mirrors spec.md 7's
// WarnAndContinue: the caller may fall back to instruction-level stepping
// rather than treating the failure as fatal.
type Error struct {
	Message     string
	Continuable bool
}

func (e *Error) Error() string { return e.Message }

func warnAndContinue(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...), Continuable: true}
}
