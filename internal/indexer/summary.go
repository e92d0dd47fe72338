package indexer

import (
	"sync/atomic"
	"time"

	"github.com/dshills/filesift/pkg/types"
)

// EmbeddingProgress tracks one category's share of an indexing run.
// All methods are safe for concurrent use.
type EmbeddingProgress struct {
	total     atomic.Int64
	processed atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	started atomic.Int64 // unix nanos, 0 when not running
	elapsed atomic.Int64 // nanos accumulated by finished phases
}

// ProgressSnapshot is a point-in-time copy of EmbeddingProgress
type ProgressSnapshot struct {
	Total     int64         `json:"total"`
	Processed int64         `json:"processed"`
	Success   int64         `json:"success"`
	Failed    int64         `json:"failed"`
	Skipped   int64         `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

func (p *EmbeddingProgress) AddTotal(n int64) { p.total.Add(n) }
func (p *EmbeddingProgress) IncProcessed()    { p.processed.Add(1) }
func (p *EmbeddingProgress) IncSuccess()      { p.success.Add(1) }
func (p *EmbeddingProgress) IncFailed()       { p.failed.Add(1) }
func (p *EmbeddingProgress) IncSkipped()      { p.skipped.Add(1) }

// Start begins timing a phase
func (p *EmbeddingProgress) Start() {
	p.started.CompareAndSwap(0, time.Now().UnixNano())
}

// Stop ends the current phase and accumulates its duration
func (p *EmbeddingProgress) Stop() {
	if start := p.started.Swap(0); start != 0 {
		p.elapsed.Add(time.Now().UnixNano() - start)
	}
}

// Snapshot returns the current counters. A running phase is included in the
// duration.
func (p *EmbeddingProgress) Snapshot() ProgressSnapshot {
	d := time.Duration(p.elapsed.Load())
	if start := p.started.Load(); start != 0 {
		d += time.Duration(time.Now().UnixNano() - start)
	}
	return ProgressSnapshot{
		Total:     p.total.Load(),
		Processed: p.processed.Load(),
		Success:   p.success.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
		Duration:  d,
	}
}

func (p *EmbeddingProgress) reset() {
	p.total.Store(0)
	p.processed.Store(0)
	p.success.Store(0)
	p.failed.Store(0)
	p.skipped.Store(0)
	p.started.Store(0)
	p.elapsed.Store(0)
}

// Summary holds the progress of every indexed category for the current run
type Summary struct {
	Document EmbeddingProgress
	Image    EmbeddingProgress
	Audio    EmbeddingProgress

	scanned atomic.Int64
}

// For returns the progress tracker of category, or nil for categories that
// are never indexed
func (s *Summary) For(category types.FileCategory) *EmbeddingProgress {
	switch category {
	case types.CategoryDocument:
		return &s.Document
	case types.CategoryImage:
		return &s.Image
	case types.CategoryAudio:
		return &s.Audio
	default:
		return nil
	}
}

// SetScanned records how many candidate files the run's scan saw
func (s *Summary) SetScanned(n int64) { s.scanned.Store(n) }

// Scanned returns the value recorded by SetScanned
func (s *Summary) Scanned() int64 { return s.scanned.Load() }

// Totals sums every category
func (s *Summary) Totals() ProgressSnapshot {
	var out ProgressSnapshot
	for _, p := range []*EmbeddingProgress{&s.Document, &s.Image, &s.Audio} {
		snap := p.Snapshot()
		out.Total += snap.Total
		out.Processed += snap.Processed
		out.Success += snap.Success
		out.Failed += snap.Failed
		out.Skipped += snap.Skipped
		out.Duration += snap.Duration
	}
	return out
}

// Reset zeroes every counter for a new run
func (s *Summary) Reset() {
	s.Document.reset()
	s.Image.reset()
	s.Audio.reset()
	s.scanned.Store(0)
}

// Apply copies the totals into task
func (s *Summary) Apply(task *types.IndexingTask) {
	t := s.Totals()
	task.Total = t.Total
	task.Processed = t.Processed
	task.Success = t.Success
	task.Failed = t.Failed
	task.Skipped = t.Skipped
}
