package dap

// dpState holds per-DP state: the decoded DPIDR version (once known) and the
// SELECT cache. It is created lazily on first use of a DP and destroyed when
// the interface disconnects (see Interface.disconnectAll).
type dpState struct {
	version DebugPortVersion
	select_ selectCache
}

func newDpState() *dpState {
	return &dpState{select_: newSelectCacheNarrow()}
}
