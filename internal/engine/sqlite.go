package engine

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLitePersistence stores snapshots in a SQLite database, one row per record.
//
// Unsigned values are stored as their int64 bit pattern so the full uint64
// range round-trips.
type SQLitePersistence struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// This function is idempotent.
func OpenSQLite(path string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &SQLitePersistence{db: db}, nil
}

// Close closes the database connection.
func (p *SQLitePersistence) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Save replaces the stored state with snap inside one transaction. A snapshot
// whose Seq is not newer than the stored one is rejected with
// engine.ErrStaleSnapshot.
func (p *SQLitePersistence) Save(snap *engine.Snapshot) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var stored int64
	err = tx.QueryRow(`SELECT seq FROM store_state WHERE id = 0`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("save snapshot: read seq: %w", err)
	case snap.Seq != 0 && snap.Seq <= uint64(stored):
		return fmt.Errorf("%w: seq %d, stored %d", engine.ErrStaleSnapshot, snap.Seq, stored)
	}

	for _, stmt := range []string{
		`DELETE FROM record_metadata`,
		`DELETE FROM record_index`,
		`DELETE FROM records`,
		`DELETE FROM store_state`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO store_state (id, seq, next_id, max_records, authority) VALUES (0, ?, ?, ?, ?)`,
		int64(snap.Seq), int64(snap.NextID), int64(snap.MaxRecords), string(snap.Authority),
	); err != nil {
		return fmt.Errorf("save snapshot: state: %w", err)
	}

	insRecord, err := tx.Prepare(`
		INSERT INTO records
		(id, owner, record_hash, title, timestamp, category, size, status, encryption_key, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer insRecord.Close()

	insMeta, err := tx.Prepare(`
		INSERT INTO record_metadata (record_id, description, last_updated, access_count)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer insMeta.Close()

	insIndex, err := tx.Prepare(`INSERT INTO record_index (record_hash, record_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer insIndex.Close()

	for id, rec := range snap.Records {
		if _, err := insRecord.Exec(
			int64(id), string(rec.Owner), rec.Hash[:], rec.Title, int64(rec.Timestamp),
			string(rec.Category), int64(rec.Size), rec.Status, rec.EncryptionKey[:], int64(rec.Version),
		); err != nil {
			return fmt.Errorf("save snapshot: record %d: %w", id, err)
		}
	}
	for id, meta := range snap.Metadata {
		if _, err := insMeta.Exec(
			int64(id), meta.Description, int64(meta.LastUpdated), int64(meta.AccessCount),
		); err != nil {
			return fmt.Errorf("save snapshot: metadata %d: %w", id, err)
		}
	}
	for hash, id := range snap.Index {
		if _, err := insIndex.Exec(hash[:], int64(id)); err != nil {
			return fmt.Errorf("save snapshot: index %s: %w", hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. It returns nil, nil on an empty database.
func (p *SQLitePersistence) Load() (*engine.Snapshot, error) {
	snap := engine.NewSnapshot()

	var seq, nextID, maxRecords int64
	var authority string
	err := p.db.QueryRow(
		`SELECT seq, next_id, max_records, authority FROM store_state WHERE id = 0`,
	).Scan(&seq, &nextID, &maxRecords, &authority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: state: %w", err)
	}
	snap.Seq = uint64(seq)
	snap.NextID = uint64(nextID)
	snap.MaxRecords = uint64(maxRecords)
	snap.Authority = schema.Principal(authority)

	if err := p.loadRecords(snap); err != nil {
		return nil, err
	}
	if err := p.loadMetadata(snap); err != nil {
		return nil, err
	}
	if err := p.loadIndex(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *SQLitePersistence) loadRecords(snap *engine.Snapshot) error {
	rows, err := p.db.Query(`
		SELECT id, owner, record_hash, title, timestamp, category, size, status, encryption_key, version
		FROM records ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("load snapshot: records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, timestamp, size, version int64
			owner, title, category       string
			hashBytes, keyBytes          []byte
			status                       bool
		)
		if err := rows.Scan(&id, &owner, &hashBytes, &title, &timestamp, &category, &size, &status, &keyBytes, &version); err != nil {
			return fmt.Errorf("load snapshot: scan record: %w", err)
		}
		hash, ok := schema.HashFromBytes(hashBytes)
		if !ok {
			return fmt.Errorf("load snapshot: record %d has %d byte hash", id, len(hashBytes))
		}
		key, ok := schema.KeyFromBytes(keyBytes)
		if !ok {
			return fmt.Errorf("load snapshot: record %d has %d byte key", id, len(keyBytes))
		}
		snap.Records[uint64(id)] = schema.Record{
			ID: uint64(id),
			Identity: schema.Identity{
				Owner:         schema.Principal(owner),
				Hash:          hash,
				Timestamp:     uint64(timestamp),
				Size:          uint64(size),
				EncryptionKey: key,
				Version:       uint32(version),
			},
			Presentation: schema.Presentation{
				Title:    title,
				Category: schema.Category(category),
				Status:   status,
			},
		}
	}
	return rows.Err()
}

func (p *SQLitePersistence) loadMetadata(snap *engine.Snapshot) error {
	rows, err := p.db.Query(`
		SELECT record_id, description, last_updated, access_count
		FROM record_metadata ORDER BY record_id ASC`)
	if err != nil {
		return fmt.Errorf("load snapshot: metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, lastUpdated, accessCount int64
		var description string
		if err := rows.Scan(&id, &description, &lastUpdated, &accessCount); err != nil {
			return fmt.Errorf("load snapshot: scan metadata: %w", err)
		}
		snap.Metadata[uint64(id)] = schema.Metadata{
			Description: description,
			LastUpdated: uint64(lastUpdated),
			AccessCount: uint64(accessCount),
		}
	}
	return rows.Err()
}

func (p *SQLitePersistence) loadIndex(snap *engine.Snapshot) error {
	rows, err := p.db.Query(`SELECT record_hash, record_id FROM record_index`)
	if err != nil {
		return fmt.Errorf("load snapshot: index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hashBytes []byte
		var id int64
		if err := rows.Scan(&hashBytes, &id); err != nil {
			return fmt.Errorf("load snapshot: scan index: %w", err)
		}
		hash, ok := schema.HashFromBytes(hashBytes)
		if !ok {
			return fmt.Errorf("load snapshot: index entry has %d byte hash", len(hashBytes))
		}
		snap.Index[hash] = uint64(id)
	}
	return rows.Err()
}
