// Package runstate holds the mutually exclusive run flags shared by the
// scanner, the indexers and the run-control surface.
package runstate

import "sync/atomic"

// Flags are the process-wide run flags. The zero value is ready to use.
//
// A run (scan followed by indexing) is admitted through TryBeginRun. The scan
// phase has its own flag so a scan requested outside a run is still exclusive.
// Stop is cooperative: workers poll StopRequested at file and directory
// boundaries, and the flag is cleared when the next run begins.
type Flags struct {
	run      atomic.Int32 // 0 = idle, 1 = a run holds the token
	scanning atomic.Bool
	indexing atomic.Bool
	stop     atomic.Bool
}

// TryBeginRun attempts to take the run token without blocking.
// Returns true if the caller now owns the run and must call EndRun.
func (f *Flags) TryBeginRun() bool {
	if !f.run.CompareAndSwap(0, 1) {
		return false
	}
	f.stop.Store(false)
	return true
}

// EndRun releases the run token and resets the phase flags.
// Must only be called by the goroutine that successfully began the run.
func (f *Flags) EndRun() {
	f.scanning.Store(false)
	f.indexing.Store(false)
	f.run.Store(0)
}

// TryBeginScan marks a scan in flight. Returns false if one already is.
func (f *Flags) TryBeginScan() bool {
	return f.scanning.CompareAndSwap(false, true)
}

// EndScan clears the scanning flag.
func (f *Flags) EndScan() {
	f.scanning.Store(false)
}

// SetIndexing marks the indexing phase.
func (f *Flags) SetIndexing(v bool) {
	f.indexing.Store(v)
}

func (f *Flags) Scanning() bool { return f.scanning.Load() }
func (f *Flags) Indexing() bool { return f.indexing.Load() }

// Busy reports whether a run or a standalone scan is in flight.
func (f *Flags) Busy() bool {
	return f.run.Load() == 1 || f.scanning.Load()
}

// RequestStop asks in-flight work to halt at the next boundary.
func (f *Flags) RequestStop() {
	f.stop.Store(true)
}

func (f *Flags) StopRequested() bool {
	return f.stop.Load()
}

func (f *Flags) ClearStop() {
	f.stop.Store(false)
}
