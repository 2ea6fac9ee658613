package tracelog

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Tracer receives trace events. Implementations must be safe for
// concurrent use; Log must not block the MQTT callbacks that call it.
type Tracer interface {
	Log(event Event)
}

// NoopTracer discards all events. Usable as a zero value.
type NoopTracer struct{}

// Log discards the event.
func (NoopTracer) Log(Event) {}

var _ Tracer = NoopTracer{}

// FileTracer appends trace events to a CBOR file.
type FileTracer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewFileTracer opens (or creates) the trace file for appending.
func NewFileTracer(path string) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileTracer{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Log writes an event. Encoding errors are swallowed: tracing must never
// disrupt the bridge.
func (t *FileTracer) Log(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	_ = t.encoder.Encode(event)
}

// Close closes the trace file. Safe to call more than once; later Log
// calls are ignored.
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.file.Close()
}

var _ Tracer = (*FileTracer)(nil)
