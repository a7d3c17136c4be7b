package sourceinfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// unitInfo is everything we keep per compilation unit after ingestion: its
// decoded line sequences, its file table (for path canonicalization), and
// the function DIE ranges used by the inline-boundary lookup.
type unitInfo struct {
	name      string
	compDir   string
	fileNames []*dwarf.LineFile
	sequences []Sequence
	functions []functionRange
}

type functionRange struct {
	lowPC, highPC uint64
	isInline      bool
	id            uint64
}

// DebugInfo is the ingested DWARF line/debug information for one ELF image
// (spec.md C5). It is built once via Load and is safe for concurrent
// read-only use thereafter (no method mutates it).
type DebugInfo struct {
	data  *dwarf.Data
	units []unitInfo
}

// Load reads DWARF debug information from an ELF file at path, using
// debug/elf and debug/dwarf. No viable third-party DWARF line-program
// library exists in the example pack (Delve vendors its own rather than
// depending on one), so this is a deliberate, documented stdlib fallback
// (SPEC_FULL.md Domain Stack).
func Load(elfPath string) (*DebugInfo, error) {
	f, err := elf.Open(elfPath)
	if err != nil {
		return nil, fmt.Errorf("sourceinfo: open %s: %w", elfPath, err)
	}
	defer f.Close()

	d, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("sourceinfo: read DWARF from %s: %w", elfPath, err)
	}

	di := &DebugInfo{data: d}
	reader := d.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("sourceinfo: walk DIEs: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		ui, err := ingestUnit(d, reader, entry)
		if err != nil {
			return nil, err
		}
		di.units = append(di.units, ui)
	}
	return di, nil
}

func ingestUnit(d *dwarf.Data, reader *dwarf.Reader, cu *dwarf.Entry) (unitInfo, error) {
	ui := unitInfo{
		name:    stringField(cu, dwarf.AttrName),
		compDir: stringField(cu, dwarf.AttrCompDir),
	}

	lr, err := d.LineReader(cu)
	if err != nil {
		return ui, fmt.Errorf("sourceinfo: line reader for unit %s: %w", ui.name, err)
	}

	ui.functions = collectFunctionRanges(reader, cu)

	if lr != nil {
		ui.fileNames = lr.Files()
		ui.sequences = ingestLineSequences(lr, ui.lookupFunction)
	}

	return ui, nil
}

func stringField(e *dwarf.Entry, attr dwarf.Attr) string {
	v := e.Val(attr)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ingestLineSequences drains a dwarf.LineReader into per-sequence LineRow
// slices, decomposes each into Blocks, and links edges.
func ingestLineSequences(lr *dwarf.LineReader, lookup FunctionLookup) []Sequence {
	var sequences []Sequence
	var rows []LineRow
	var entry dwarf.LineEntry

	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		rows = append(rows, LineRow{
			Address:       entry.Address,
			FileIndex:     fileIndexOf(entry.File, lr),
			Line:          uint64(entry.Line),
			Column:        uint64(entry.Column),
			IsStmt:        entry.IsStmt,
			PrologueEnd:   entry.PrologueEnd,
			EpilogueBegin: entry.EpilogueBegin,
			EndSequence:   entry.EndSequence,
		})
		if entry.EndSequence {
			seq := DecomposeSequence(rows, lookup)
			LinkEdges(&seq)
			sequences = append(sequences, seq)
			rows = nil
		}
	}
	return sequences
}

func fileIndexOf(file *dwarf.LineFile, lr *dwarf.LineReader) uint64 {
	if file == nil {
		return 0
	}
	for i, f := range lr.Files() {
		if f == file {
			return uint64(i)
		}
	}
	return 0
}

// collectFunctionRanges walks the children of a compile-unit DIE looking for
// DW_TAG_subprogram and DW_TAG_inlined_subroutine entries with concrete
// low_pc/high_pc attributes, for the block decomposer's inline-boundary
// lookup. The reader is positioned just after cu by the caller's Next loop,
// so this consumes the unit's subtree and leaves the reader at the next
// sibling compile unit.
func collectFunctionRanges(reader *dwarf.Reader, cu *dwarf.Entry) []functionRange {
	if !cu.Children {
		return nil
	}
	var ranges []functionRange
	var nextID uint64
	depth := 1 // inside cu's children
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag == 0 {
			depth--
			if depth == 0 {
				break
			}
			continue
		}
		if entry.Children {
			depth++
		}

		switch entry.Tag {
		case dwarf.TagSubprogram, dwarf.TagInlinedSubroutine:
			low, lowOk := entry.Val(dwarf.AttrLowpc).(uint64)
			high, highOk := highPCOf(entry, low)
			if lowOk && highOk {
				nextID++
				ranges = append(ranges, functionRange{
					lowPC:    low,
					highPC:   high,
					isInline: entry.Tag == dwarf.TagInlinedSubroutine,
					id:       nextID,
				})
			}
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].lowPC < ranges[j].lowPC })
	return ranges
}

// highPCOf decodes DW_AT_high_pc, which DWARF4+ may encode either as an
// absolute address (rare, class address) or as a size offset from low_pc
// (the common case, class constant).
func highPCOf(entry *dwarf.Entry, low uint64) (uint64, bool) {
	v := entry.Val(dwarf.AttrHighpc)
	switch x := v.(type) {
	case uint64:
		if x < low {
			return low + x, true
		}
		return x, true
	case int64:
		return low + uint64(x), true
	}
	return 0, false
}

// lookupFunction implements FunctionLookup over one unit's collected ranges,
// returning the innermost (smallest) covering range.
func (u unitInfo) lookupFunction(address uint64) FunctionBoundary {
	var best *functionRange
	for i := range u.functions {
		fr := u.functions[i]
		if address >= fr.lowPC && address < fr.highPC {
			if best == nil || (fr.highPC-fr.lowPC) < (best.highPC-best.lowPC) {
				best = &u.functions[i]
			}
		}
	}
	if best == nil {
		return FunctionBoundary{}
	}
	return FunctionBoundary{FuncID: best.id, IsInline: best.isInline, HighPC: best.highPC, Found: true}
}

// canonicalPath joins a line-table file's directory and name into an
// absolute, separator-normalized path, without resolving symlinks (spec.md
// 4.6: canonicalization is purely lexical).
func canonicalPath(compDir string, file *dwarf.LineFile) string {
	if file == nil {
		return ""
	}
	dir := file.Name
	if !filepath.IsAbs(dir) && compDir != "" {
		dir = filepath.Join(compDir, file.Name)
	}
	return filepath.Clean(dir)
}

// canonicalPathEq compares two paths the way probe-rs's canonical_path_eq
// does: lexical normalization (absolute, separator-normalized, cleaned), no
// symlink resolution. A relative path is made absolute against the current
// working directory.
func canonicalPathEq(a, b string) bool {
	a, b = filepath.Clean(normalizeSeparators(a)), filepath.Clean(normalizeSeparators(b))
	if abs, err := filepath.Abs(a); err == nil {
		a = abs
	}
	if abs, err := filepath.Abs(b); err == nil {
		b = abs
	}
	return a == b
}

func normalizeSeparators(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// SequenceFromAddress returns the Sequence containing address, across every
// compilation unit, or an error if none covers it (spec.md 4.5).
func (di *DebugInfo) SequenceFromAddress(address uint64) (Sequence, error) {
	for _, u := range di.units {
		for _, seq := range u.sequences {
			if address >= seq.AddressRange[0] && address < seq.AddressRange[1] {
				return seq, nil
			}
		}
	}
	return Sequence{}, warnAndContinue("sourceinfo: no sequence covers address 0x%x", address)
}

// SequencesForPath returns every Sequence belonging to a compilation unit
// whose file table contains a file canonically equal to path, along with
// that file's index within the unit's table (spec.md 4.6).
func (di *DebugInfo) SequencesForPath(p string) ([]Sequence, uint64, bool) {
	for _, u := range di.units {
		for idx, f := range u.fileNames {
			if f == nil {
				continue
			}
			if canonicalPathEq(p, canonicalPath(u.compDir, f)) {
				return u.sequences, uint64(idx), true
			}
		}
	}
	return nil, 0, false
}
