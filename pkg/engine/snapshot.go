package engine

import (
	"fmt"

	"github.com/celerix-dev/celerix-records/pkg/schema"
)

// Snapshot is the persisted shape of a MemStore: the three maps, the id
// counter, the capacity and the authority reference.
//
// Seq counts committed mutations and lets persisters discard stale saves.
type Snapshot struct {
	Seq        uint64                     `json:"seq"`
	NextID     uint64                     `json:"next_id"`
	MaxRecords uint64                     `json:"max_records"`
	Authority  schema.Principal           `json:"authority,omitempty"`
	Records    map[uint64]schema.Record   `json:"records"`
	Index      map[schema.Hash]uint64     `json:"index"`
	Metadata   map[uint64]schema.Metadata `json:"metadata"`
}

// NewSnapshot returns an empty snapshot with allocated maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Records:  make(map[uint64]schema.Record),
		Index:    make(map[schema.Hash]uint64),
		Metadata: make(map[uint64]schema.Metadata),
	}
}

// Verify checks that the snapshot satisfies every store invariant.
func (s *Snapshot) Verify() error {
	if uint64(len(s.Records)) != s.NextID {
		return fmt.Errorf("snapshot has %d records but next id %d", len(s.Records), s.NextID)
	}
	if len(s.Metadata) != len(s.Records) {
		return fmt.Errorf("snapshot has %d metadata entries for %d records", len(s.Metadata), len(s.Records))
	}
	if len(s.Index) != len(s.Records) {
		return fmt.Errorf("snapshot has %d index entries for %d records", len(s.Index), len(s.Records))
	}
	if s.MaxRecords != 0 && s.NextID > s.MaxRecords {
		return fmt.Errorf("snapshot holds %d records, above capacity %d", s.NextID, s.MaxRecords)
	}
	if s.Authority == BurnPrincipal {
		return fmt.Errorf("snapshot authority is the burn principal")
	}
	for id := uint64(0); id < s.NextID; id++ {
		rec, ok := s.Records[id]
		if !ok {
			return fmt.Errorf("record %d missing", id)
		}
		if rec.ID != id {
			return fmt.Errorf("record keyed %d carries id %d", id, rec.ID)
		}
		if _, ok := s.Metadata[id]; !ok {
			return fmt.Errorf("metadata for record %d missing", id)
		}
		indexed, ok := s.Index[rec.Hash]
		if !ok || indexed != id {
			return fmt.Errorf("hash %s of record %d not indexed", rec.Hash, id)
		}
	}
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Seq:        s.Seq,
		NextID:     s.NextID,
		MaxRecords: s.MaxRecords,
		Authority:  s.Authority,
		Records:    make(map[uint64]schema.Record, len(s.Records)),
		Index:      make(map[schema.Hash]uint64, len(s.Index)),
		Metadata:   make(map[uint64]schema.Metadata, len(s.Metadata)),
	}
	for k, v := range s.Records {
		out.Records[k] = v
	}
	for k, v := range s.Index {
		out.Index[k] = v
	}
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return out
}
