package sdk

import "github.com/celerix-dev/celerix-records/pkg/schema"

// --- Functional Interfaces (Interface Segregation) ---

// RecordReader defines the pure lookups. Absent records are reported as nil
// results; errors are reserved for transport failures.
type RecordReader interface {
	GetRecord(id uint64) (*schema.Record, error)
	GetRecordByHash(hash []byte) (*schema.Record, error)
	GetRecordMetadata(id uint64) (*schema.Metadata, error)
	IsRecordRegistered(hash []byte) (bool, error)
	GetRecordCount() (uint64, error)
}

// RecordWriter defines the mutating operations, made on behalf of the
// store's bound caller.
type RecordWriter interface {
	StoreRecord(req schema.NewRecord) (uint64, error)
	UpdateRecordMetadata(id uint64, upd schema.MetadataUpdate) error
	IncrementAccessCount(id uint64) error
}

// AuthorityRegistry manages the write-once authority reference.
type AuthorityRegistry interface {
	SetAuthorityContract(p schema.Principal) error
	GetAuthorityContract() (schema.Principal, bool, error)
}

// --- Composite Interfaces ---

// RecordStore is the primary interface for interacting with the record store.
// Both the embedded engine session and the remote network client implement it.
type RecordStore interface {
	RecordReader
	RecordWriter
	AuthorityRegistry

	// Height returns the store's current logical height; new records need a
	// timestamp at or above it.
	Height() (uint64, error)
	Close() error
}
