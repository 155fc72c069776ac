package iptrace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// IndexDir holds the file index, relative to the storage directory.
// It is kept apart from TraceDir so index files never look like host logs.
// Index files are per-machine state and belong in the checkout's .gitignore.
var IndexDir = filepath.Join(".iptrace", "index")

// IndexEntry is the cached tail of a host's log.
// LogSize is the size of the log when the entry was taken;
// an entry is only trusted while the log still has that size.
type IndexEntry struct {
	Record  Record `json:"record"`
	LogSize int64  `json:"log_size"`
}

// MemoryIndex is an Index held in process memory.
// It is safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]IndexEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]IndexEntry)}
}

func (m *MemoryIndex) Get(ctx context.Context, host string) (IndexEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[host]
	return e, ok, nil
}

func (m *MemoryIndex) Put(ctx context.Context, host string, e IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[host] = e
	return nil
}

// FileIndex stores one small JSON file per host under Dir/.iptrace/index.
type FileIndex struct {
	Dir string
}

func NewFileIndex(dir string) *FileIndex {
	return &FileIndex{Dir: dir}
}

func (fi *FileIndex) path(host string) string {
	return filepath.Join(fi.Dir, IndexDir, host+".json")
}

func (fi *FileIndex) Get(ctx context.Context, host string) (IndexEntry, bool, error) {
	if err := ValidHost(host); err != nil {
		return IndexEntry{}, false, err
	}
	b, err := os.ReadFile(fi.path(host))
	if errors.Is(err, fs.ErrNotExist) {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("error reading index: %w", err)
	}
	var e IndexEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return IndexEntry{}, false, fmt.Errorf("error decoding index for %s: %w", host, err)
	}
	return e, true, nil
}

// Put replaces the entry for host. The file is written to a temporary name and renamed into place.
func (fi *FileIndex) Put(ctx context.Context, host string, e IndexEntry) error {
	if err := ValidHost(host); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error encoding index: %w", err)
	}
	dir := filepath.Join(fi.Dir, IndexDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, host+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fi.path(host)); err != nil {
		return fmt.Errorf("error replacing index file: %w", err)
	}
	return nil
}

// IndexedHistory is a FileHistory that consults an Index before scanning a log.
// The log stays authoritative: index errors are logged and the log is read instead.
type IndexedHistory struct {
	*FileHistory
	index  Index
	logger *log.Logger
}

func NewIndexedHistory(h *FileHistory, index Index) *IndexedHistory {
	return &IndexedHistory{FileHistory: h, index: index, logger: discard}
}

func (ih *IndexedHistory) SetLogger(l *log.Logger) { ih.logger = l }

func (ih *IndexedHistory) ReadLast(ctx context.Context, host string) (Record, bool, error) {
	if err := ValidHost(host); err != nil {
		return Record{}, false, err
	}
	size, err := ih.size(host)
	if err != nil {
		return Record{}, false, fmt.Errorf("error reading log size: %w", err)
	}
	if size == 0 {
		return Record{}, false, nil
	}

	e, ok, err := ih.index.Get(ctx, host)
	switch {
	case err != nil:
		ih.logger.Printf("index lookup for %s failed: %s", host, err)
	case ok && e.LogSize == size:
		return e.Record, true, nil
	case ok:
		ih.logger.Printf("index for %s is stale (log size %d, indexed %d)", host, size, e.LogSize)
	}

	rec, ok, err := ih.FileHistory.ReadLast(ctx, host)
	if err != nil || !ok {
		return rec, ok, err
	}
	ih.put(ctx, host, IndexEntry{Record: rec, LogSize: size})
	return rec, true, nil
}

func (ih *IndexedHistory) Append(ctx context.Context, host string, rec Record) error {
	size, err := ih.append(host, rec)
	if err != nil {
		return err
	}
	ih.put(ctx, host, IndexEntry{Record: rec, LogSize: size})
	return nil
}

func (ih *IndexedHistory) put(ctx context.Context, host string, e IndexEntry) {
	if err := ih.index.Put(ctx, host, e); err != nil {
		ih.logger.Printf("index update for %s failed: %s", host, err)
	}
}
