package engine

import (
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-records/pkg/engine"
)

// Migrate copies the state held by src into dst. This works for:
// - JSON -> SQLite (the "Upgrade")
// - SQLite -> JSON (the "Backup/Export")
//
// The snapshot is verified before anything is written, so a corrupt source
// never reaches the destination. It returns the number of records copied.
func Migrate(src engine.Loader, dst engine.Persister) (int, error) {
	snap, err := src.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load source: %w", err)
	}
	if snap == nil {
		return 0, nil
	}

	if err := snap.Verify(); err != nil {
		return 0, fmt.Errorf("source snapshot is inconsistent: %w", err)
	}

	if err := dst.Save(snap); err != nil {
		if errors.Is(err, engine.ErrStaleSnapshot) {
			return 0, fmt.Errorf("destination holds newer state, refusing to migrate: %w", err)
		}
		return 0, fmt.Errorf("failed to save to destination: %w", err)
	}
	return len(snap.Records), nil
}
