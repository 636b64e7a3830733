package record

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Recorder owns the enabled-key schema, the sink binding, and the record
// being accumulated for the current iteration. Schema updates always
// succeed, sink bound or not; only emission is gated on a bound sink. The
// mutex keeps control calls (EnableKeys, SetFile, Close) from interleaving
// with an in-flight append or flush.
type Recorder struct {
	mu      sync.Mutex
	schema  *Schema
	current map[string]Value
	sink    Sink
	file    string
}

// NewRecorder returns a recorder with an empty schema and no sink bound.
func NewRecorder() *Recorder {
	return &Recorder{
		schema:  NewSchema(),
		current: make(map[string]Value),
	}
}

// EnableKeys adds keys (qualified by prefix, if any) to the schema.
// Idempotent. Works whether or not a sink is bound: records emitted after a
// later SetFile include keys enabled before it.
func (r *Recorder) EnableKeys(keys []string, prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schema.Enable(keys, prefix)
}

// Append stages a value for the current iteration's record. Keys that were
// never enabled are dropped silently. A value outside the supported scalar
// kinds fails with ErrUnsupportedValueKind regardless of the key.
func (r *Recorder) Append(key string, value any, prefix string) error {
	v, err := ValueOf(value)
	if err != nil {
		return err
	}
	qualified := Qualify(prefix, key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.schema.Enabled(qualified) {
		return nil
	}
	r.current[qualified] = v
	return nil
}

// Flush emits the accumulated record to the bound sink and clears it. With
// no sink bound the record is cleared without serialization. An empty record
// is not emitted.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.current) == 0 {
		return nil
	}
	rec := r.current
	r.current = make(map[string]Value)
	if r.sink == nil {
		return nil
	}
	return r.sink.Write(rec)
}

// SetFile closes the current sink, draining buffered records, then opens a
// new sink for path. Records appended before the call land in the old sink,
// records after in the new one. An empty path just unbinds.
func (r *Recorder) SetFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			logrus.Warnf("closing record sink %q: %v", r.file, err)
		}
		r.sink = nil
		r.file = ""
	}
	if path == "" {
		return nil
	}
	sink, err := Open(path, r.schema)
	if err != nil {
		return err
	}
	r.sink = sink
	r.file = path
	return nil
}

// File returns the path of the bound sink, or "" when recording is disabled.
func (r *Recorder) File() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file
}

// Recording reports whether a sink is currently bound.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Close drains and releases the bound sink. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return nil
	}
	err := r.sink.Close()
	r.sink = nil
	r.file = ""
	return err
}
