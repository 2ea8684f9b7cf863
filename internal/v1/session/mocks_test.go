package session

import (
	"fmt"
	"sync"
	"time"
)

// fakeConn records everything the handler sends. Pointer identity doubles as
// the connection identity.
type fakeConn struct {
	name string

	mu       sync.Mutex
	texts    []string
	jsons    []any
	binaries [][]byte
	closed   bool
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name}
}

func (f *fakeConn) SendText(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, msg)
}

func (f *fakeConn) SendJSON(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsons = append(f.jsons, v)
}

func (f *fakeConn) SendBinary(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.binaries = append(f.binaries, cp)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

func (f *fakeConn) sentBinaries() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.binaries))
	copy(out, f.binaries)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// jsonTypes returns the "type" field of every JSON message sent so far.
func (f *fakeConn) jsonTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.jsons))
	for _, v := range f.jsons {
		types = append(types, messageTypeOf(v))
	}
	return types
}

// lastSnapshot returns the most recent queue snapshot sent to this
// connection.
func (f *fakeConn) lastSnapshot() (queueSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jsons) - 1; i >= 0; i-- {
		if snap, ok := f.jsons[i].(queueSnapshot); ok {
			return snap, true
		}
	}
	return queueSnapshot{}, false
}

// lastError returns the most recent error ack sent to this connection.
func (f *fakeConn) lastError() (errorMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jsons) - 1; i >= 0; i-- {
		if msg, ok := f.jsons[i].(errorMessage); ok {
			return msg, true
		}
	}
	return errorMessage{}, false
}

func messageTypeOf(v any) string {
	switch m := v.(type) {
	case controlMessage:
		return m.Type
	case fromMessage:
		return m.Type
	case errorMessage:
		return m.Type
	case queueSnapshot:
		return m.Type
	case map[string]any:
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return ""
}

// fakeSink records flushed captures.
type fakeSink struct {
	mu    sync.Mutex
	saved []savedFile
}

type savedFile struct {
	name string
	data []byte
}

func (s *fakeSink) Save(filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedFile{name: filename, data: data})
}

func (s *fakeSink) files() []savedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]savedFile, len(s.saved))
	copy(out, s.saved)
	return out
}

// newTestHandler builds a handler with a deterministic clock and key
// suffixes ("aaaaa", "aaaab", ...) so capture filenames and client keys are
// predictable.
func newTestHandler(sink Sink) *Handler {
	h := NewHandler("ABC123", sink)

	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	suffix := 0
	h.keySuffix = func() string {
		s := fmt.Sprintf("aa%c%c%c",
			'a'+(suffix/26/26)%26,
			'a'+(suffix/26)%26,
			'a'+suffix%26)
		suffix++
		return s
	}
	return h
}
