package engine

import "github.com/celerix-dev/celerix-records/pkg/schema"

// Host plays the execution environment for an embedded store: it owns the
// clock and stamps every call with the current height.
type Host struct {
	store *MemStore
	clock Clock
}

// NewHost pairs a store with a clock.
func NewHost(store *MemStore, clock Clock) *Host {
	return &Host{store: store, clock: clock}
}

// Store returns the underlying store.
func (h *Host) Store() *MemStore { return h.store }

// Height returns the current logical height.
func (h *Host) Height() uint64 { return h.clock.Height() }

// As returns a session whose calls are made on behalf of caller.
func (h *Host) As(caller schema.Principal) *Session {
	return &Session{host: h, caller: caller}
}

// Session is a caller-pinned view of a store. It satisfies sdk.RecordStore, so
// embedded and remote stores are interchangeable for applications.
type Session struct {
	host   *Host
	caller schema.Principal
}

// Caller returns the identity this session acts as.
func (s *Session) Caller() schema.Principal { return s.caller }

func (s *Session) env() Env {
	return Env{Caller: s.caller, Height: s.host.clock.Height()}
}

func (s *Session) StoreRecord(req schema.NewRecord) (uint64, error) {
	return s.host.store.StoreRecord(s.env(), req)
}

func (s *Session) UpdateRecordMetadata(id uint64, upd schema.MetadataUpdate) error {
	return s.host.store.UpdateRecordMetadata(s.env(), id, upd)
}

func (s *Session) IncrementAccessCount(id uint64) error {
	return s.host.store.IncrementAccessCount(id)
}

func (s *Session) GetRecord(id uint64) (*schema.Record, error) {
	return s.host.store.GetRecord(id), nil
}

func (s *Session) GetRecordByHash(hash []byte) (*schema.Record, error) {
	return s.host.store.GetRecordByHash(hash), nil
}

func (s *Session) GetRecordMetadata(id uint64) (*schema.Metadata, error) {
	return s.host.store.GetRecordMetadata(id), nil
}

func (s *Session) IsRecordRegistered(hash []byte) (bool, error) {
	return s.host.store.IsRecordRegistered(hash), nil
}

func (s *Session) GetRecordCount() (uint64, error) {
	return s.host.store.GetRecordCount(), nil
}

func (s *Session) SetAuthorityContract(p schema.Principal) error {
	return s.host.store.SetAuthorityContract(p)
}

func (s *Session) GetAuthorityContract() (schema.Principal, bool, error) {
	p, ok := s.host.store.GetAuthorityContract()
	return p, ok, nil
}

func (s *Session) Height() (uint64, error) {
	return s.host.clock.Height(), nil
}

// Close is a no-op for embedded sessions.
func (s *Session) Close() error { return nil }
