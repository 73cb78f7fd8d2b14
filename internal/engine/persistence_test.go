package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedStore(t *testing.T, p engine.Persister) *engine.MemStore {
	t.Helper()
	ms, err := engine.NewMemStore(nil, p, engine.WithMaxRecords(25))
	require.NoError(t, err)

	for i := byte(1); i <= 3; i++ {
		_, err := ms.StoreRecord(engine.Env{Caller: "ST1TEST", Height: 10}, schema.NewRecord{
			Hash:          bytes.Repeat([]byte{i}, 32),
			Title:         "Scan",
			Timestamp:     ^uint64(0),
			Category:      schema.CategoryImaging,
			Size:          2048,
			EncryptionKey: bytes.Repeat([]byte{0xAA}, 32),
			Version:       3,
			Description:   "ct",
		})
		require.NoError(t, err)
	}
	require.NoError(t, ms.IncrementAccessCount(1))
	require.NoError(t, ms.SetAuthorityContract("ST2TEST"))
	ms.Wait()
	return ms
}

func TestPersistence_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPersistence(dir)
	require.NoError(t, err)

	ms := populatedStore(t, p)

	p2, err := NewPersistence(dir)
	require.NoError(t, err)
	snap, err := p2.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, ms.Snapshot(), snap)

	restored, err := engine.NewMemStore(snap, nil)
	require.NoError(t, err)
	assert.True(t, restored.IsRecordRegistered(bytes.Repeat([]byte{2}, 32)))
	assert.Equal(t, uint64(1), restored.GetRecordMetadata(1).AccessCount)
	assert.Equal(t, uint64(25), restored.Capacity())

	_, err = os.Stat(filepath.Join(dir, SnapshotFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestPersistence_LoadEmpty(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	snap, err := p.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestPersistence_DropsStaleSnapshots(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	newer := engine.NewSnapshot()
	newer.Seq = 5
	newer.MaxRecords = 7
	older := engine.NewSnapshot()
	older.Seq = 4
	older.MaxRecords = 99

	require.NoError(t, p.Save(newer))
	assert.ErrorIs(t, p.Save(older), engine.ErrStaleSnapshot)

	snap, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Seq)
	assert.Equal(t, uint64(7), snap.MaxRecords)
}

func TestPersistence_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte("{not json"), 0600))

	p, err := NewPersistence(dir)
	require.NoError(t, err)
	_, err = p.Load()
	assert.Error(t, err)
}

func TestSQLitePersistence_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	p, err := OpenSQLite(path)
	require.NoError(t, err)
	defer p.Close()

	ms := populatedStore(t, p)

	snap, err := p.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, ms.Snapshot(), snap)
	assert.Equal(t, ^uint64(0), snap.Records[0].Timestamp)
}

func TestSQLitePersistence_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	for i := 0; i < 3; i++ {
		p, err := OpenSQLite(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, p.Close())
	}

	p, err := OpenSQLite(path)
	require.NoError(t, err)
	defer p.Close()
	snap, err := p.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLitePersistence_DropsStaleSnapshots(t *testing.T) {
	p, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer p.Close()

	newer := engine.NewSnapshot()
	newer.Seq = 3
	older := engine.NewSnapshot()
	older.Seq = 2
	older.Authority = "ST9"

	require.NoError(t, p.Save(newer))
	assert.ErrorIs(t, p.Save(older), engine.ErrStaleSnapshot)

	snap, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Empty(t, snap.Authority)
}

func TestMigrate_JSONToSQLite(t *testing.T) {
	src, err := NewPersistence(t.TempDir())
	require.NoError(t, err)
	ms := populatedStore(t, src)

	dst, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer dst.Close()

	n, err := Migrate(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := dst.Load()
	require.NoError(t, err)
	assert.Equal(t, ms.Snapshot(), snap)
}

func TestMigrate_EmptySource(t *testing.T) {
	src, err := NewPersistence(t.TempDir())
	require.NoError(t, err)
	dst, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	n, err := Migrate(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type staticLoader struct{ snap *engine.Snapshot }

func (l staticLoader) Load() (*engine.Snapshot, error) { return l.snap, nil }

func TestMigrate_RejectsInconsistentSource(t *testing.T) {
	bad := engine.NewSnapshot()
	bad.NextID = 1

	dst, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	_, err = Migrate(staticLoader{bad}, dst)
	assert.Error(t, err)

	snap, err := dst.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMigrate_RefusesNewerDestination(t *testing.T) {
	dst, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer dst.Close()

	existing := engine.NewSnapshot()
	existing.Seq = 50
	require.NoError(t, dst.Save(existing))

	src := engine.NewSnapshot()
	src.Seq = 3
	src.Authority = "ST9SRC"

	n, err := Migrate(staticLoader{src}, dst)
	assert.ErrorIs(t, err, engine.ErrStaleSnapshot)
	assert.Equal(t, 0, n)

	snap, err := dst.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), snap.Seq)
	assert.Empty(t, snap.Authority)
}

func TestMigrate_RefusesNewerJSONDestination(t *testing.T) {
	dir := t.TempDir()
	existing, err := NewPersistence(dir)
	require.NoError(t, err)
	newer := engine.NewSnapshot()
	newer.Seq = 40
	require.NoError(t, existing.Save(newer))

	// A fresh handle over the same directory has loaded nothing yet.
	dst, err := NewPersistence(dir)
	require.NoError(t, err)

	src := engine.NewSnapshot()
	src.Seq = 2
	src.Authority = "ST9SRC"

	_, err = Migrate(staticLoader{src}, dst)
	assert.ErrorIs(t, err, engine.ErrStaleSnapshot)

	snap, err := dst.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(40), snap.Seq)
	assert.Empty(t, snap.Authority)
}
