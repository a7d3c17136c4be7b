package sourceinfo

// ResolveForAddress finds the nearest legal halt instruction at or after
// address and returns it as a VerifiedBreakpoint (spec.md 4.5,
// VerifiedBreakpoint::for_address). Failure is continuable: the caller
// should fall back to instruction-level stepping rather than treating it as
// fatal.
func (di *DebugInfo) ResolveForAddress(address uint64) (VerifiedBreakpoint, error) {
	seq, err := di.SequenceFromAddress(address)
	if err != nil {
		return VerifiedBreakpoint{}, err
	}

	inst := seq.HaltpointNearAddress(address)
	if inst == nil {
		return VerifiedBreakpoint{}, warnAndContinue(
			"sourceinfo: no halt point at or after address 0x%x; consider instruction-level stepping", address)
	}

	return VerifiedBreakpoint{
		Address:        inst.Address,
		SourceLocation: di.sourceLocationFor(*inst),
	}, nil
}

// ResolveForSourceLocation finds the halt instruction matching a (path,
// line, column) source location, searching every compilation unit whose
// file table contains a canonically-equal path, across all of that unit's
// line sequences, returning the first match (spec.md 4.6,
// VerifiedBreakpoint::for_source_location). column == nil matches any
// column at that file/line.
func (di *DebugInfo) ResolveForSourceLocation(path string, line uint64, column *uint64) (VerifiedBreakpoint, error) {
	for _, u := range di.units {
		for idx, f := range u.fileNames {
			if f == nil || !canonicalPathEq(path, canonicalPath(u.compDir, f)) {
				continue
			}
			fi := uint64(idx)
			for _, seq := range u.sequences {
				for _, block := range seq.Blocks {
					if inst := block.MatchLocation(&fi, line, column); inst != nil {
						return VerifiedBreakpoint{
							Address:        inst.Address,
							SourceLocation: di.sourceLocationFor(*inst),
						}, nil
					}
				}
			}
		}
	}

	return VerifiedBreakpoint{}, newSourceLocationNotFound(path, line, column)
}

// newSourceLocationNotFound builds an error embedding the original
// (path, line, column) triple verbatim, per spec.md 7's requirement that a
// failed source lookup echoes exactly what the caller asked for.
func newSourceLocationNotFound(path string, line uint64, column *uint64) error {
	if column != nil {
		return warnAndContinue("sourceinfo: no halt point found at %s:%d:%d", path, line, *column)
	}
	return warnAndContinue("sourceinfo: no halt point found at %s:%d", path, line)
}

// sourceLocationFor resolves the file/directory strings for an instruction's
// FileIndex by searching the owning unit's file table.
func (di *DebugInfo) sourceLocationFor(inst Instruction) SourceLocation {
	line := inst.Line
	loc := SourceLocation{}
	if line != 0 {
		loc.Line = &line
	}
	if !inst.Column.IsLeftEdge() {
		col := inst.Column
		loc.Column = &col
	}

	for _, u := range di.units {
		owns := false
		for _, seq := range u.sequences {
			if inst.Address >= seq.AddressRange[0] && inst.Address < seq.AddressRange[1] {
				owns = true
				break
			}
		}
		if !owns || int(inst.FileIndex) >= len(u.fileNames) {
			continue
		}
		f := u.fileNames[inst.FileIndex]
		if f == nil {
			continue
		}
		name := f.Name
		dir := u.compDir
		loc.File = &name
		loc.Directory = &dir
		return loc
	}
	return loc
}
