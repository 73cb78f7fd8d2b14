package sdk

import (
	"os"

	internalengine "github.com/celerix-dev/celerix-records/internal/engine"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
)

// Environment variables consulted by New.
const (
	EnvStoreAddr  = "RECORDSTORE_ADDR"
	EnvDisableTLS = "RECORDSTORE_SERVER_DISABLE_TLS"
)

// New initializes a store for caller based on the environment.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(dataDir string, caller schema.Principal) (RecordStore, error) {
	// 1. Check if a remote store is defined in the environment
	if remoteAddr := os.Getenv(EnvStoreAddr); remoteAddr != "" {
		client, err := Connect(remoteAddr, caller, DialOptions{
			DisableTLS: os.Getenv(EnvDisableTLS) == "true",
		})
		if err == nil {
			return client, nil
		}
		// Unreachable daemon: fall back to local
	}

	// 2. Fallback to embedded mode.
	// This uses the same engine the server uses, but inside the app process.
	p, err := internalengine.NewPersistence(dataDir)
	if err != nil {
		return nil, err
	}

	snap, err := p.Load()
	if err != nil {
		return nil, err
	}

	store, err := engine.NewMemStore(snap, p)
	if err != nil {
		return nil, err
	}
	host := engine.NewHost(store, engine.NewMonotonicClock())
	return &embedded{Session: host.As(caller), store: store}, nil
}

// embedded is an in-process store whose Close flushes pending writes.
type embedded struct {
	*engine.Session
	store *engine.MemStore
}

func (e *embedded) Close() error {
	e.store.Wait()
	return nil
}
