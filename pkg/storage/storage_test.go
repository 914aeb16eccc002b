package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordvault/pkg/keys"
)

func openMem(t *testing.T, fs vfs.FS) *PebbleSubstrate {
	t.Helper()
	s, err := OpenPebbleSubstrate("vault", &pebble.Options{FS: fs}, false)
	require.NoError(t, err)
	return s
}

func TestPebbleSubstrate_CommitLoad(t *testing.T) {
	s := openMem(t, vfs.NewMem())
	defer s.Close()

	key, err := keys.NewOwner()
	require.NoError(t, err)

	_, err = s.Load(key)
	assert.True(t, errors.Is(err, ErrNotFound))

	snap := Snapshot{Schema: "ticket", Capacity: 64, Data: []byte{1, 2, 3}}
	id := ksuid.New()
	require.NoError(t, s.Commit(key, &snap, id, []byte(`{"op":"initialize"}`)))

	loaded, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	receipt, err := s.Receipt(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"initialize"}`, string(receipt))

	_, err = s.Receipt(ksuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPebbleSubstrate_ReceiptOnly(t *testing.T) {
	s := openMem(t, vfs.NewMem())
	defer s.Close()

	key, err := keys.NewOwner()
	require.NoError(t, err)

	id := ksuid.New()
	require.NoError(t, s.Commit(key, nil, id, []byte("failed")))

	_, err = s.Load(key)
	assert.True(t, errors.Is(err, ErrNotFound), "receipt-only commit must not create an allocation")

	receipt, err := s.Receipt(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("failed"), receipt)
}

func TestPebbleSubstrate_ForEachAfterReopen(t *testing.T) {
	fs := vfs.NewMem()
	s := openMem(t, fs)

	want := make(map[keys.Address]Snapshot)
	for i := 0; i < 5; i++ {
		key, err := keys.NewOwner()
		require.NoError(t, err)
		snap := Snapshot{Schema: "numbers", Capacity: 16 + i, Data: make([]byte, 4+i)}
		want[key] = snap
		require.NoError(t, s.Commit(key, &snap, ksuid.New(), []byte("r")))
	}
	require.NoError(t, s.Close())

	s = openMem(t, fs)
	defer s.Close()

	got := make(map[keys.Address]Snapshot)
	err := s.ForEach(func(key keys.Address, snap Snapshot) error {
		got[key] = snap
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPebbleSubstrate_OnDisk(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "vault_storage_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	s, err := NewPebbleSubstrate(tmpDir)
	require.NoError(t, err)

	key, err := keys.NewOwner()
	require.NoError(t, err)
	snap := Snapshot{Schema: "ticket", Capacity: 8, Data: []byte{}}
	require.NoError(t, s.Commit(key, &snap, ksuid.New(), nil))
	require.NoError(t, s.Close())

	s, err = NewPebbleSubstrate(tmpDir)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Capacity)
	assert.Empty(t, loaded.Data)
}

func TestUnmarshalSnapshot_Corrupt(t *testing.T) {
	_, err := unmarshalSnapshot([]byte{1, 2})
	assert.True(t, errors.Is(err, ErrCorruptSnapshot))

	bad := Snapshot{Schema: "x", Capacity: 1, Data: []byte{1, 2, 3}}.marshal()
	_, err = unmarshalSnapshot(bad)
	assert.True(t, errors.Is(err, ErrCorruptSnapshot))
}
