package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-records/internal/server"
	"github.com/celerix-dev/celerix-records/internal/vault"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDaemon(t *testing.T) (string, *engine.MemStore) {
	t.Helper()
	store, err := engine.NewMemStore(nil, nil)
	require.NoError(t, err)
	router := server.NewRouter(engine.NewHost(store, engine.NewManualClock(10)), logrus.New())
	go router.Listen("0")

	for i := 0; i < 20; i++ {
		time.Sleep(25 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			t.Cleanup(func() { router.Stop() })
			return fmt.Sprintf("127.0.0.1:%d", addr.(*net.TCPAddr).Port), store
		}
	}
	t.Fatal("server did not start in time")
	return "", nil
}

func run(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--addr", addr, "--disable-tls"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStoreFromFile(t *testing.T) {
	addr, store := startDaemon(t)
	body := []byte("lab report body")
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, body, 0600))

	out, err := run(t, addr, "store", "--caller", "ST1TEST", "--file", path,
		"--title", "Blood Test", "--category", "lab-results", "--description", "Test results")
	require.NoError(t, err, out)

	var res struct {
		ID            uint64 `json:"id"`
		RecordHash    string `json:"record_hash"`
		EncryptionKey string `json:"encryption_key"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint64(0), res.ID)
	assert.Equal(t, vault.Fingerprint(body).String(), res.RecordHash)
	assert.Len(t, res.EncryptionKey, 64)

	rec := store.GetRecord(0)
	require.NotNil(t, rec)
	assert.Equal(t, schema.Principal("ST1TEST"), rec.Owner)
	assert.Equal(t, uint64(len(body)), rec.Size)
	assert.Equal(t, uint64(10), rec.Timestamp, "timestamp defaults to the current height")
	assert.Equal(t, res.EncryptionKey, rec.EncryptionKey.String())

	out, err = run(t, addr, "registered", res.RecordHash)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, addr, "get-hash", res.RecordHash)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Blood Test"`)
}

func TestRecordLifecycle(t *testing.T) {
	addr, store := startDaemon(t)
	hash := strings.Repeat("ab", 32)

	_, err := run(t, addr, "store", "--hash", hash, "--size", "5", "--title", "x", "--category", "imaging")
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)

	_, err = run(t, addr, "store", "--caller", "ST1TEST", "--hash", hash, "--size", "5",
		"--title", "Scan", "--category", "imaging", "--key", strings.Repeat("02", 32))
	require.NoError(t, err)

	_, err = run(t, addr, "store", "--caller", "ST1TEST", "--hash", hash, "--size", "5",
		"--title", "Scan", "--category", "imaging")
	assert.ErrorIs(t, err, engine.ErrRecordAlreadyExists)

	out, err := run(t, addr, "count")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, addr, "touch", "0", "--caller", "ST2FAKE")
	require.NoError(t, err)
	out, err = run(t, addr, "meta", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `"access_count": 1`)

	_, err = run(t, addr, "update", "0", "--caller", "ST2FAKE", "--title", "Hijack", "--category", "imaging")
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)
	_, err = run(t, addr, "update", "0", "--caller", "ST1TEST", "--title", "CT Scan", "--category", "diagnoses", "--status")
	require.NoError(t, err)
	assert.Equal(t, "CT Scan", store.GetRecord(0).Title)
	assert.True(t, store.GetRecord(0).Status)

	out, err = run(t, addr, "get", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `"category": "diagnoses"`)

	_, err = run(t, addr, "get", "9")
	assert.Error(t, err)
	_, err = run(t, addr, "get", "abc")
	assert.Error(t, err)
}

func TestAuthorityAndHeight(t *testing.T) {
	addr, _ := startDaemon(t)

	_, err := run(t, addr, "set-authority", "--caller", "ST1TEST", string(engine.BurnPrincipal))
	assert.ErrorIs(t, err, engine.ErrInvalidAuthority)
	_, err = run(t, addr, "set-authority", "--caller", "ST1TEST", "ST2TEST")
	require.NoError(t, err)

	out, err := run(t, addr, "authority")
	require.NoError(t, err)
	assert.Contains(t, out, `"principal": "ST2TEST"`)
	assert.Contains(t, out, `"set": true`)

	out, err = run(t, addr, "height")
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)
}

func TestSealOpen(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	sealed := filepath.Join(dir, "sealed")
	opened := filepath.Join(dir, "opened")
	require.NoError(t, os.WriteFile(plain, []byte("confidential"), 0600))
	key := strings.Repeat("07", 32)

	_, err := run(t, "unused:0", "seal", "--key", key, "--in", plain, "--out", sealed)
	require.NoError(t, err)
	_, err = run(t, "unused:0", "open", "--key", key, "--in", sealed, "--out", opened)
	require.NoError(t, err)

	got, err := os.ReadFile(opened)
	require.NoError(t, err)
	assert.Equal(t, "confidential", string(got))

	_, err = run(t, "unused:0", "open", "--key", strings.Repeat("08", 32), "--in", sealed, "--out", opened)
	assert.ErrorIs(t, err, vault.ErrOpenFailed)

	_, err = run(t, "unused:0", "seal", "--key", "0102", "--in", plain, "--out", sealed)
	assert.Error(t, err)
}
