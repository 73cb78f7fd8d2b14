package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/sirupsen/logrus"
)

// MemStore is the authoritative in-memory record store.
//
// All mutations run under the write lock and either commit to every map or to
// none. Lookups take the read lock and never observe a partial update.
type MemStore struct {
	mu    sync.RWMutex
	state *Snapshot

	persister Persister
	log       logrus.FieldLogger
	observe   func(op string, err error)
	wg        sync.WaitGroup
}

// Option configures a MemStore.
type Option func(*storeOptions)

type storeOptions struct {
	maxRecords uint64
	log        logrus.FieldLogger
	observe    func(op string, err error)
}

// WithMaxRecords sets the capacity bound. It overrides the capacity stored in
// a restored snapshot.
func WithMaxRecords(n uint64) Option {
	return func(o *storeOptions) { o.maxRecords = n }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *storeOptions) { o.log = l }
}

// WithObserver registers fn to be called after every mutating operation with
// the operation name and its result.
func WithObserver(fn func(op string, err error)) Option {
	return func(o *storeOptions) { o.observe = fn }
}

// NewMemStore initializes a store.
// It accepts an existing snapshot (from a Loader) and a persister; both may be nil.
func NewMemStore(initial *Snapshot, p Persister, opts ...Option) (*MemStore, error) {
	o := storeOptions{
		log:     logrus.StandardLogger(),
		observe: func(string, error) {},
	}
	for _, opt := range opts {
		opt(&o)
	}

	var state *Snapshot
	if initial != nil {
		if err := initial.Verify(); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		state = initial.clone()
	} else {
		state = NewSnapshot()
	}

	switch {
	case o.maxRecords > 0:
		state.MaxRecords = o.maxRecords
	case state.MaxRecords == 0:
		state.MaxRecords = DefaultMaxRecords
	}
	if state.NextID > state.MaxRecords {
		return nil, fmt.Errorf("restore snapshot: %d records exceed capacity %d", state.NextID, state.MaxRecords)
	}

	return &MemStore{
		state:     state,
		persister: p,
		log:       o.log,
		observe:   o.observe,
	}, nil
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// StoreRecord validates req and registers it under the next id, owned by
// env.Caller.
func (m *MemStore) StoreRecord(env Env, req schema.NewRecord) (uint64, error) {
	var id uint64
	err := m.mutate("store_record", func(s *Snapshot) error {
		if s.NextID >= s.MaxRecords {
			return ErrMaxRecordsExceeded
		}
		hash, key, err := validateNewRecord(env.Height, req)
		if err != nil {
			return err
		}
		if _, exists := s.Index[hash]; exists {
			return ErrRecordAlreadyExists
		}

		id = s.NextID
		s.Records[id] = schema.Record{
			ID: id,
			Identity: schema.Identity{
				Owner:         env.Caller,
				Hash:          hash,
				Timestamp:     req.Timestamp,
				Size:          req.Size,
				EncryptionKey: key,
				Version:       req.Version,
			},
			Presentation: schema.Presentation{
				Title:    req.Title,
				Category: req.Category,
				Status:   req.Status,
			},
		}
		s.Index[hash] = id
		s.Metadata[id] = schema.Metadata{
			Description: req.Description,
			LastUpdated: env.Height,
		}
		s.NextID++
		return nil
	})
	return id, err
}

// UpdateRecordMetadata replaces the presentation fields and the description
// of record id. Only the owner may update.
func (m *MemStore) UpdateRecordMetadata(env Env, id uint64, upd schema.MetadataUpdate) error {
	return m.mutate("update_record_metadata", func(s *Snapshot) error {
		rec, ok := s.Records[id]
		meta, okMeta := s.Metadata[id]
		if !ok || !okMeta {
			return ErrRecordNotFound
		}
		if rec.Owner != env.Caller {
			return ErrNotAuthorized
		}
		if err := validateUpdate(upd); err != nil {
			return err
		}

		rec.Presentation = upd.Presentation
		meta.Description = upd.Description
		meta.LastUpdated = env.Height
		s.Records[id] = rec
		s.Metadata[id] = meta
		return nil
	})
}

// IncrementAccessCount bumps the access counter of record id by one.
func (m *MemStore) IncrementAccessCount(id uint64) error {
	return m.mutate("increment_access_count", func(s *Snapshot) error {
		_, ok := s.Records[id]
		meta, okMeta := s.Metadata[id]
		if !ok || !okMeta {
			return ErrRecordNotFound
		}
		meta.AccessCount++
		s.Metadata[id] = meta
		return nil
	})
}

// SetAuthorityContract records p as the authority. It succeeds at most once.
func (m *MemStore) SetAuthorityContract(p schema.Principal) error {
	return m.mutate("set_authority_contract", func(s *Snapshot) error {
		if !validAuthority(p) || s.Authority != "" {
			return ErrInvalidAuthority
		}
		s.Authority = p
		return nil
	})
}

// GetAuthorityContract returns the authority, if one was set.
func (m *MemStore) GetAuthorityContract() (schema.Principal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Authority, m.state.Authority != ""
}

// GetRecord returns a copy of record id, or nil.
func (m *MemStore) GetRecord(id uint64) *schema.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.state.Records[id]
	if !ok {
		return nil
	}
	return &rec
}

// GetRecordByHash resolves hash through the index. It returns nil for
// malformed or unknown hashes.
func (m *MemStore) GetRecordByHash(hash []byte) *schema.Record {
	h, ok := schema.HashFromBytes(hash)
	if !ok {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.state.Index[h]
	if !ok {
		return nil
	}
	rec, ok := m.state.Records[id]
	if !ok || rec.Hash != h {
		return nil
	}
	return &rec
}

// GetRecordMetadata returns a copy of the metadata of record id, or nil.
func (m *MemStore) GetRecordMetadata(id uint64) *schema.Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.state.Metadata[id]
	if !ok {
		return nil
	}
	return &meta
}

// IsRecordRegistered reports whether hash is in the index.
func (m *MemStore) IsRecordRegistered(hash []byte) bool {
	h, ok := schema.HashFromBytes(hash)
	if !ok {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok = m.state.Index[h]
	return ok
}

// GetRecordCount returns the number of stored records.
func (m *MemStore) GetRecordCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.NextID
}

// Capacity returns the configured maximum number of records.
func (m *MemStore) Capacity() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.MaxRecords
}

// Snapshot returns a deep copy of the current state.
func (m *MemStore) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// mutate runs fn under the write lock. fn must validate everything before it
// writes; on error nothing may have been changed.
func (m *MemStore) mutate(op string, fn func(s *Snapshot) error) error {
	m.mu.Lock()
	err := fn(m.state)
	var snap *Snapshot
	if err == nil {
		m.state.Seq++
		if m.persister != nil {
			// Deep copy the state to save safely in background
			snap = m.state.clone()
		}
	}
	m.mu.Unlock()

	m.observe(op, err)

	if snap != nil {
		m.wg.Add(1)
		go func(s *Snapshot) {
			defer m.wg.Done()
			err := m.persister.Save(s)
			if errors.Is(err, ErrStaleSnapshot) {
				// A newer save already landed.
				return
			}
			if err != nil {
				m.log.WithError(err).WithField("seq", s.Seq).Error("failed to persist snapshot")
			}
		}(snap)
	}
	return err
}
