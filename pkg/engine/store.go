// Package engine implements the record store: the id, hash and metadata maps,
// the validation rules and the ownership checks.
package engine

import (
	"errors"

	"github.com/celerix-dev/celerix-records/pkg/schema"
)

// Bounds enforced by validation.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxRecordSize        = 1048576
	MaxVersion           = 100
)

// DefaultMaxRecords is the capacity used when none is configured.
const DefaultMaxRecords uint64 = 10000

// BurnPrincipal is the reserved identity that can never be an authority.
const BurnPrincipal schema.Principal = "SP000000000000000000002Q6VF78"

// Env is supplied by the execution environment to every state-changing call.
type Env struct {
	Caller schema.Principal
	Height uint64
}

// ErrStaleSnapshot is returned by a Persister asked to save a snapshot whose
// Seq is not newer than the one it already holds. Nothing is written.
var ErrStaleSnapshot = errors.New("snapshot is older than the stored state")

// Persister saves snapshots of the store. Implementations must tolerate
// snapshots arriving out of order, keep the one with the highest Seq and
// reject older ones with ErrStaleSnapshot.
type Persister interface {
	Save(snap *Snapshot) error
}

// Loader restores a previously saved snapshot. A nil snapshot with a nil
// error means nothing was saved yet.
type Loader interface {
	Load() (*Snapshot, error)
}
