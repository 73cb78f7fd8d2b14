package sdk_test

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-records/internal/server"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/celerix-dev/celerix-records/pkg/sdk"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sdk.RecordStore = (*engine.Session)(nil)

func startDaemon(t *testing.T) (string, *engine.ManualClock) {
	t.Helper()
	store, err := engine.NewMemStore(nil, nil)
	require.NoError(t, err)
	clock := engine.NewManualClock(0)
	router := server.NewRouter(engine.NewHost(store, clock), logrus.New())
	go router.Listen("0")

	for i := 0; i < 20; i++ {
		time.Sleep(25 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			t.Cleanup(func() { router.Stop() })
			return fmt.Sprintf("127.0.0.1:%d", addr.(*net.TCPAddr).Port), clock
		}
	}
	t.Fatal("server did not start in time")
	return "", nil
}

func sampleRecord(hashByte byte) schema.NewRecord {
	return schema.NewRecord{
		Hash:          bytes.Repeat([]byte{hashByte}, 32),
		Title:         "Blood Test",
		Timestamp:     100,
		Category:      schema.CategoryLabResults,
		Size:          1024,
		Status:        true,
		EncryptionKey: bytes.Repeat([]byte{0x02}, 32),
		Version:       1,
		Description:   "Test results",
	}
}

// exerciseStore runs the same scenario against any RecordStore.
func exerciseStore(t *testing.T, owner, other sdk.RecordStore) {
	id, err := owner.StoreRecord(sampleRecord(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	_, err = owner.StoreRecord(sampleRecord(1))
	assert.ErrorIs(t, err, engine.ErrRecordAlreadyExists)

	bad := sampleRecord(2)
	bad.Hash = bad.Hash[:31]
	_, err = owner.StoreRecord(bad)
	assert.ErrorIs(t, err, engine.ErrInvalidRecordHash)

	rec, err := other.GetRecord(0)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Blood Test", rec.Title)

	missing, err := other.GetRecord(42)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byHash, err := other.GetRecordByHash(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, rec.Hash, byHash.Hash)

	ok, err := other.IsRecordRegistered(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, other.IncrementAccessCount(0))
	meta, err := owner.GetRecordMetadata(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), meta.AccessCount)

	upd := schema.MetadataUpdate{
		Presentation: schema.Presentation{Title: "Updated Test", Category: schema.CategoryPrescriptions},
		Description:  "New description",
	}
	assert.ErrorIs(t, other.UpdateRecordMetadata(0, upd), engine.ErrNotAuthorized)
	require.NoError(t, owner.UpdateRecordMetadata(0, upd))
	rec, err = other.GetRecord(0)
	require.NoError(t, err)
	assert.Equal(t, "Updated Test", rec.Title)
	assert.False(t, rec.Status)

	n, err := other.GetRecordCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	require.NoError(t, owner.SetAuthorityContract("ST2TEST"))
	assert.ErrorIs(t, other.SetAuthorityContract("ST3TEST"), engine.ErrInvalidAuthority)
	p, set, err := other.GetAuthorityContract()
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, schema.Principal("ST2TEST"), p)
}

func TestClient_Remote(t *testing.T) {
	addr, clock := startDaemon(t)

	owner, err := sdk.Connect(addr, "ST1TEST", sdk.DialOptions{DisableTLS: true})
	require.NoError(t, err)
	defer owner.Close()
	other, err := sdk.Connect(addr, "ST2FAKE", sdk.DialOptions{DisableTLS: true})
	require.NoError(t, err)
	defer other.Close()

	exerciseStore(t, owner, other)

	clock.Advance(7)
	h, err := owner.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), h)
}

func TestClient_ReadOnlyCannotMutate(t *testing.T) {
	addr, _ := startDaemon(t)
	c, err := sdk.Connect(addr, "", sdk.DialOptions{DisableTLS: true})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.StoreRecord(sampleRecord(1))
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)
}

func TestEmbeddedSessions(t *testing.T) {
	store, err := engine.NewMemStore(nil, nil)
	require.NoError(t, err)
	host := engine.NewHost(store, engine.NewManualClock(0))
	exerciseStore(t, host.As("ST1TEST"), host.As("ST2FAKE"))
}

func TestNew_EmbeddedFallback(t *testing.T) {
	t.Setenv(sdk.EnvStoreAddr, "")
	dir := t.TempDir()

	s, err := sdk.New(dir, "ST1TEST")
	require.NoError(t, err)
	h, err := s.Height()
	require.NoError(t, err)
	req := sampleRecord(1)
	req.Timestamp = h + 1000
	_, err = s.StoreRecord(req)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sdk.New(dir, "ST1TEST")
	require.NoError(t, err)
	defer reopened.Close()
	ok, err := reopened.IsRecordRegistered(req.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_UnreachableRemoteFallsBack(t *testing.T) {
	t.Setenv(sdk.EnvStoreAddr, "127.0.0.1:1")
	t.Setenv(sdk.EnvDisableTLS, "true")

	s, err := sdk.New(t.TempDir(), "ST1TEST")
	require.NoError(t, err)
	defer s.Close()
	_, isClient := s.(*sdk.Client)
	assert.False(t, isClient)
}

func TestParseError(t *testing.T) {
	assert.Same(t, engine.ErrRecordNotFound, sdk.ParseError(sdk.FormatError(engine.ErrRecordNotFound)))

	wrapped := fmt.Errorf("%w: AUTH required", engine.ErrNotAuthorized)
	got := sdk.ParseError(sdk.FormatError(wrapped))
	assert.ErrorIs(t, got, engine.ErrNotAuthorized)
	assert.Equal(t, wrapped.Error(), got.Error())

	plain := sdk.ParseError(sdk.FormatError(errors.New("unknown command X")))
	assert.EqualError(t, plain, "unknown command X")
	_, isDomain := engine.CodeOf(plain)
	assert.False(t, isDomain)
}
