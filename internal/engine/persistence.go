// Package engine provides the durable backends for the record store.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/celerix-dev/celerix-records/pkg/engine"
)

// SnapshotFile is the name of the snapshot inside the data directory.
const SnapshotFile = "records.json"

// Persistence handles the disk I/O for the MemStore
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	lastSeq uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	p := &Persistence{DataDir: dir}

	// Pick up the stored seq so a stale save into an existing file is refused
	// before anything has been loaded. Decode errors surface later from Load.
	if content, err := os.ReadFile(filepath.Join(dir, SnapshotFile)); err == nil {
		var head struct {
			Seq uint64 `json:"seq"`
		}
		if json.Unmarshal(content, &head) == nil {
			p.lastSeq = head.Seq
		}
	}
	return p, nil
}

// Save writes the snapshot to disk atomically. Snapshots older than the last
// one written are rejected with engine.ErrStaleSnapshot.
func (p *Persistence) Save(snap *engine.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Seq != 0 && snap.Seq <= p.lastSeq {
		return fmt.Errorf("%w: seq %d, last written %d", engine.ErrStaleSnapshot, snap.Seq, p.lastSeq)
	}

	filePath := filepath.Join(p.DataDir, SnapshotFile)
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.WriteFile(tempPath, bytes, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	// Rename is atomic: a crash leaves either the old file or the new one.
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	p.lastSeq = snap.Seq
	return nil
}

// Load reads the snapshot from disk. It returns nil, nil when none exists.
func (p *Persistence) Load() (*engine.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(p.DataDir, SnapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	snap := engine.NewSnapshot()
	if err := json.Unmarshal(content, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	p.lastSeq = snap.Seq
	return snap, nil
}
