package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/state"
)

// DryRun logs what would be written instead of writing it.
type DryRun struct {
	counts map[string]int
	logger *zap.Logger
	mu     sync.Mutex
}

// NewDryRun creates a DryRun sink that logs to logger.
func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{
		counts: map[string]int{},
		logger: logger,
	}
}

// WriteSchema logs the schema that would be written.
func (d *DryRun) WriteSchema(_ context.Context, stream string, _ map[string]any, keyFields []string) error {
	d.logger.Info("[DRY-RUN] would write schema",
		zap.String("stream", stream),
		zap.Strings("key_properties", keyFields))
	return nil
}

// WriteRecord counts the record.
func (d *DryRun) WriteRecord(_ context.Context, stream string, _ map[string]any, _ time.Time) error {
	d.mu.Lock()
	d.counts[stream]++
	n := d.counts[stream]
	d.mu.Unlock()

	d.logger.Debug("[DRY-RUN] would write record",
		zap.String("stream", stream),
		zap.Int("count", n))
	return nil
}

// WriteState logs the watermark document that would be written.
func (d *DryRun) WriteState(_ context.Context, st *state.State) error {
	d.logger.Info("[DRY-RUN] would write state",
		zap.String("currently_syncing", st.CurrentlySyncing),
		zap.Int("bookmarks", len(st.Bookmarks)))
	return nil
}

// Counts returns the number of records seen per stream.
func (d *DryRun) Counts() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}
