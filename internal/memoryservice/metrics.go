package memoryservice

import "sync/atomic"

// Metrics is the §4.8 process-wide, lock-free counter bundle.
type Metrics struct {
	documentsIndexed atomic.Uint64
	chunksIndexed    atomic.Uint64
	lastChunkSize    atomic.Uint64
	lastChunkSizeSet atomic.Bool
}

// MetricsSnapshot is a point-in-time read of Metrics; cross-field
// consistency is not guaranteed, only per-field atomicity (§4.8).
type MetricsSnapshot struct {
	DocumentsIndexed uint64
	ChunksIndexed    uint64
	LastChunkSize    *uint64
}

// RecordDocument increments the document and chunk counters and sets the
// last observed chunk-size budget.
func (m *Metrics) RecordDocument(chunkCount, chunkSize int) {
	m.documentsIndexed.Add(1)
	if chunkCount > 0 {
		m.chunksIndexed.Add(uint64(chunkCount))
	}
	m.lastChunkSize.Store(uint64(chunkSize))
	m.lastChunkSizeSet.Store(true)
}

// Snapshot returns a consistent-per-field read of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DocumentsIndexed: m.documentsIndexed.Load(),
		ChunksIndexed:    m.chunksIndexed.Load(),
	}
	if m.lastChunkSizeSet.Load() {
		v := m.lastChunkSize.Load()
		snap.LastChunkSize = &v
	}
	return snap
}
