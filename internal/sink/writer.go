// Package sink writes the sync output stream: schema, record and state
// messages as JSON lines.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/peteski22/adsbridge/internal/state"
)

// Message types.
const (
	TypeRecord = "RECORD"
	TypeSchema = "SCHEMA"
	TypeState  = "STATE"
)

// timeExtractedLayout is the layout of the time_extracted field.
const timeExtractedLayout = "2006-01-02T15:04:05.000000Z07:00"

type schemaMessage struct {
	KeyProperties []string       `json:"key_properties"`
	Schema        map[string]any `json:"schema"`
	Stream        string         `json:"stream"`
	Type          string         `json:"type"`
}

type recordMessage struct {
	Record        map[string]any `json:"record"`
	Stream        string         `json:"stream"`
	TimeExtracted string         `json:"time_extracted,omitempty"`
	Type          string         `json:"type"`
}

type stateMessage struct {
	Type  string       `json:"type"`
	Value *state.State `json:"value"`
}

// Writer encodes messages as one JSON object per line.
type Writer struct {
	counts map[string]int
	enc    *json.Encoder
	mu     sync.Mutex
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return &Writer{
		counts: map[string]int{},
		enc:    enc,
	}
}

// WriteSchema writes a SCHEMA message for stream.
func (w *Writer) WriteSchema(_ context.Context, stream string, schema map[string]any, keyFields []string) error {
	if keyFields == nil {
		keyFields = []string{}
	}
	return w.write(schemaMessage{
		KeyProperties: keyFields,
		Schema:        schema,
		Stream:        stream,
		Type:          TypeSchema,
	})
}

// WriteRecord writes a RECORD message for stream. A zero extractedAt omits time_extracted.
func (w *Writer) WriteRecord(_ context.Context, stream string, record map[string]any, extractedAt time.Time) error {
	msg := recordMessage{
		Record: record,
		Stream: stream,
		Type:   TypeRecord,
	}
	if !extractedAt.IsZero() {
		msg.TimeExtracted = extractedAt.UTC().Format(timeExtractedLayout)
	}

	if err := w.write(msg); err != nil {
		return err
	}

	w.mu.Lock()
	w.counts[stream]++
	w.mu.Unlock()
	return nil
}

// WriteState writes a STATE message carrying the whole state document.
func (w *Writer) WriteState(_ context.Context, st *state.State) error {
	return w.write(stateMessage{Type: TypeState, Value: st})
}

// Counts returns the number of records written per stream.
func (w *Writer) Counts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

func (w *Writer) write(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}
