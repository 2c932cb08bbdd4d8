// Package metrics records where a task read its blocks from.
//
// Executors call Record once per block read. The job master gives every
// task its own Recorder, resets it when the task starts, and folds the
// snapshot into per-master totals when the task ends.
package metrics

import (
	"context"
	"sync"
)

// BlockSource is where a block was served from.
type BlockSource string

const (
	SourceNodeLocal BlockSource = "NODE_LOCAL"
	SourceRemote    BlockSource = "REMOTE"
	SourceUFS       BlockSource = "UFS"
)

// CacheMetrics counts block reads by source.
type CacheMetrics struct {
	BlocksRead       int64 `json:"blocks_read"`
	LocalBlocksRead  int64 `json:"local_blocks_read"`
	RemoteBlocksRead int64 `json:"remote_blocks_read"`
	UfsBlocksRead    int64 `json:"ufs_blocks_read"`
}

// Add returns the sum of m and o.
func (m CacheMetrics) Add(o CacheMetrics) CacheMetrics {
	return CacheMetrics{
		BlocksRead:       m.BlocksRead + o.BlocksRead,
		LocalBlocksRead:  m.LocalBlocksRead + o.LocalBlocksRead,
		RemoteBlocksRead: m.RemoteBlocksRead + o.RemoteBlocksRead,
		UfsBlocksRead:    m.UfsBlocksRead + o.UfsBlocksRead,
	}
}

// CacheHitRatio is the share of blocks not read from the UFS.
func (m CacheMetrics) CacheHitRatio() float64 {
	if m.BlocksRead == 0 {
		return 0
	}
	return float64(m.BlocksRead-m.UfsBlocksRead) / float64(m.BlocksRead)
}

// Recorder accumulates CacheMetrics. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex
	m  CacheMetrics
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Reset zeroes every counter.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.m = CacheMetrics{}
	r.mu.Unlock()
}

// Record counts one block read. Unknown sources count as UFS reads.
func (r *Recorder) Record(src BlockSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m.BlocksRead++
	switch src {
	case SourceNodeLocal:
		r.m.LocalBlocksRead++
	case SourceRemote:
		r.m.RemoteBlocksRead++
	default:
		r.m.UfsBlocksRead++
	}
}

// Merge adds a snapshot taken from another recorder.
func (r *Recorder) Merge(m CacheMetrics) {
	r.mu.Lock()
	r.m = r.m.Add(m)
	r.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (r *Recorder) Snapshot() CacheMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}

type recorderKey struct{}

// WithRecorder attaches r to ctx.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// FromContext returns the recorder attached to ctx, or nil.
func FromContext(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// Record counts one block read on the recorder in ctx, if any.
func Record(ctx context.Context, src BlockSource) {
	if r := FromContext(ctx); r != nil {
		r.Record(src)
	}
}
