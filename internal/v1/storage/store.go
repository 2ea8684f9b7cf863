// Package storage holds recorded capture files between room expiry and
// download, and optional forwarding of captures to a cloud endpoint.
package storage

import (
	"sync"
)

// File is one recorded speaking turn. Name carries the capture timestamp and
// client key, so lexicographic-by-timestamp ordering reconstructs the session.
type File struct {
	Name string
	Data []byte
}

// MemoryStore keeps a room's capture files in memory until the download
// cooldown purges them. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	files []File
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save appends one capture file. The data slice is owned by the store after
// the call.
func (s *MemoryStore) Save(filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, File{Name: filename, Data: data})
}

// Files returns a snapshot of the stored files in save order.
func (s *MemoryStore) Files() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]File, len(s.files))
	copy(out, s.files)
	return out
}

// Len returns the number of stored files.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// TotalBytes returns the summed payload size of all stored files.
func (s *MemoryStore) TotalBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, f := range s.files {
		total += len(f.Data)
	}
	return total
}

// MultiSink fans one capture out to several sinks, e.g. the in-memory store
// plus a cloud uploader.
type MultiSink []interface{ Save(filename string, data []byte) }

// Save forwards the capture to every sink.
func (m MultiSink) Save(filename string, data []byte) {
	for _, sink := range m {
		sink.Save(filename, data)
	}
}
