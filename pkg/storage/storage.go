// Package storage persists record allocations and operation receipts in pebble.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/recordvault/pkg/keys"
)

var (
	// ErrNotFound is returned when no entry exists for a key or receipt ID
	ErrNotFound = errors.New("not found")

	// ErrCorruptSnapshot is returned when a stored allocation cannot be parsed
	ErrCorruptSnapshot = errors.New("corrupt allocation snapshot")
)

// Key prefixes
var (
	allocPrefix   = []byte("a/")
	receiptPrefix = []byte("r/")
)

// Snapshot is the persisted form of one allocation
type Snapshot struct {
	Schema   string
	Capacity int
	Data     []byte // live bytes only
}

// Encoded form: [Capacity(4)][SchemaLen(2)][Schema][Data]
func (s Snapshot) marshal() []byte {
	buf := make([]byte, 6+len(s.Schema)+len(s.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(s.Capacity))
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(s.Schema)))
	copy(buf[6:], s.Schema)
	copy(buf[6+len(s.Schema):], s.Data)
	return buf
}

func unmarshalSnapshot(b []byte) (Snapshot, error) {
	if len(b) < 6 {
		return Snapshot{}, fmt.Errorf("%w: %d bytes", ErrCorruptSnapshot, len(b))
	}
	capacity := int(binary.LittleEndian.Uint32(b[0:]))
	nameLen := int(binary.LittleEndian.Uint16(b[4:]))
	if len(b) < 6+nameLen {
		return Snapshot{}, fmt.Errorf("%w: schema name truncated", ErrCorruptSnapshot)
	}
	data := make([]byte, len(b)-6-nameLen)
	copy(data, b[6+nameLen:])
	if len(data) > capacity {
		return Snapshot{}, fmt.Errorf("%w: length %d exceeds capacity %d", ErrCorruptSnapshot, len(data), capacity)
	}
	return Snapshot{
		Schema:   string(b[6 : 6+nameLen]),
		Capacity: capacity,
		Data:     data,
	}, nil
}

// PebbleSubstrate stores allocations and receipts in a pebble database
type PebbleSubstrate struct {
	db   *pebble.DB
	sync bool
}

// NewPebbleSubstrate opens or creates a database at path
func NewPebbleSubstrate(path string) (*PebbleSubstrate, error) {
	return OpenPebbleSubstrate(path, &pebble.Options{}, true)
}

// OpenPebbleSubstrate opens a database with explicit options. sync selects
// pebble.Sync writes.
func OpenPebbleSubstrate(path string, opts *pebble.Options, sync bool) (*PebbleSubstrate, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &PebbleSubstrate{db: db, sync: sync}, nil
}

func (s *PebbleSubstrate) writeOptions() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func allocKey(key keys.Address) []byte {
	return append(append([]byte(nil), allocPrefix...), key.Bytes()...)
}

func receiptKey(id ksuid.KSUID) []byte {
	return append(append([]byte(nil), receiptPrefix...), id.Bytes()...)
}

// Commit writes an allocation snapshot and its receipt in one batch.
// A nil snapshot records only the receipt.
func (s *PebbleSubstrate) Commit(key keys.Address, snap *Snapshot, id ksuid.KSUID, receipt []byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if snap != nil {
		if err := batch.Set(allocKey(key), snap.marshal(), nil); err != nil {
			return err
		}
	}
	if receipt != nil {
		if err := batch.Set(receiptKey(id), receipt, nil); err != nil {
			return err
		}
	}
	return batch.Commit(s.writeOptions())
}

// Load reads the snapshot stored for key
func (s *PebbleSubstrate) Load(key keys.Address) (Snapshot, error) {
	data, closer, err := s.db.Get(allocKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	defer closer.Close()

	return unmarshalSnapshot(data)
}

// ForEach calls fn for every stored allocation in key order
func (s *PebbleSubstrate) ForEach(fn func(key keys.Address, snap Snapshot) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: allocPrefix,
		UpperBound: []byte("a0"), // '0' follows '/'
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		raw := iter.Key()
		if len(raw) != len(allocPrefix)+32 {
			return fmt.Errorf("%w: bad key length %d", ErrCorruptSnapshot, len(raw))
		}
		var key keys.Address
		copy(key[:], raw[len(allocPrefix):])

		snap, err := unmarshalSnapshot(iter.Value())
		if err != nil {
			return fmt.Errorf("allocation %s: %w", key, err)
		}
		if err := fn(key, snap); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Receipt reads a stored receipt
func (s *PebbleSubstrate) Receipt(id ksuid.KSUID) ([]byte, error) {
	data, closer, err := s.db.Get(receiptKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Close closes the database
func (s *PebbleSubstrate) Close() error {
	return s.db.Close()
}
