package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/alloc"
	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
	"github.com/ssargent/recordvault/pkg/storage"
)

// RecordStore owns every record allocation and serializes operations per key
type RecordStore struct {
	manager   *alloc.Manager
	substrate Substrate
	logger    *zap.Logger

	dir   *directory
	locks *lockTable

	codecs     map[string]*codec.RecordCodec
	codecMutex sync.RWMutex

	closed bool
	mutex  sync.RWMutex
}

// New creates a record store. Call Open to load records from the substrate.
func New(cfg Config) (*RecordStore, error) {
	limits := cfg.Limits
	if limits == (policy.Limits{}) {
		limits = policy.DefaultLimits()
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RecordStore{
		manager:   alloc.NewManager(policy.NewEnforcer(limits), logger),
		substrate: cfg.Substrate,
		logger:    logger,
		dir:       newDirectory(),
		locks:     newLockTable(),
		codecs:    make(map[string]*codec.RecordCodec),
	}

	for _, schema := range cfg.Schemas {
		if err := s.RegisterSchema(schema); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RegisterSchema makes a schema available to Initialize and Open. Registering
// an identical schema twice is a no-op.
func (s *RecordStore) RegisterSchema(schema *codec.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSchema, err)
	}

	s.codecMutex.Lock()
	defer s.codecMutex.Unlock()

	if existing, ok := s.codecs[schema.Name]; ok {
		if reflect.DeepEqual(existing.Schema(), schema) {
			return nil
		}
		return fmt.Errorf("schema %s is already registered with a different layout", schema.Name)
	}
	s.codecs[schema.Name] = codec.NewRecordCodec(schema)
	return nil
}

// Schema returns a registered schema by name
func (s *RecordStore) Schema(name string) (*codec.Schema, bool) {
	c, ok := s.codec(name)
	if !ok {
		return nil, false
	}
	return c.Schema(), true
}

// Schemas returns the registered schemas sorted by name
func (s *RecordStore) Schemas() []*codec.Schema {
	s.codecMutex.RLock()
	out := make([]*codec.Schema, 0, len(s.codecs))
	for _, c := range s.codecs {
		out = append(out, c.Schema())
	}
	s.codecMutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *RecordStore) codec(name string) (*codec.RecordCodec, bool) {
	s.codecMutex.RLock()
	defer s.codecMutex.RUnlock()
	c, ok := s.codecs[name]
	return c, ok
}

// Limits returns the growth ceilings in force
func (s *RecordStore) Limits() policy.Limits {
	return s.manager.Enforcer().Limits()
}

// Open loads every persisted allocation from the substrate and returns the
// number of records loaded
func (s *RecordStore) Open() (int, error) {
	if s.substrate == nil {
		return 0, nil
	}

	loaded := 0
	err := s.substrate.ForEach(func(key keys.Address, snap storage.Snapshot) error {
		c, ok := s.codec(snap.Schema)
		if !ok {
			return fmt.Errorf("%w: record %s uses %q", ErrUnknownSchema, key, snap.Schema)
		}
		if _, err := c.Decode(snap.Data); err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		a, err := s.manager.Restore(snap.Capacity, snap.Data)
		if err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		s.dir.Put(key, &entry{codec: c, alloc: a})
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to load records: %w", err)
	}

	s.logger.Info("record store opened", zap.Int("records", loaded))
	return loaded, nil
}

// Close closes the substrate. Further operations fail with ErrClosed.
func (s *RecordStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.substrate != nil {
		return s.substrate.Close()
	}
	return nil
}

// lock takes the per-key lock, failing if the store is closed
func (s *RecordStore) lock(key keys.Address) (func(), error) {
	s.mutex.RLock()
	if s.closed {
		s.mutex.RUnlock()
		return nil, ErrClosed
	}
	unlock := s.locks.acquire(key)
	return func() {
		unlock()
		s.mutex.RUnlock()
	}, nil
}

// Initialize creates the record at key in an allocation of exactly capacity bytes
func (s *RecordStore) Initialize(key keys.Address, rec *codec.Record, capacity int) (*Receipt, error) {
	receipt := newReceipt("initialize", key)

	unlock, err := s.lock(key)
	if err != nil {
		return receipt, err
	}
	defer unlock()

	if s.dir.Has(key) {
		return receipt, s.fail(receipt, fmt.Errorf("%w: %s", ErrAlreadyExists, key))
	}
	if rec == nil || rec.Schema == nil {
		return receipt, s.fail(receipt, fmt.Errorf("%w: record has no schema", ErrUnknownSchema))
	}
	c, ok := s.codec(rec.Schema.Name)
	if !ok {
		return receipt, s.fail(receipt, fmt.Errorf("%w: %q", ErrUnknownSchema, rec.Schema.Name))
	}

	encoded, err := c.Encode(rec)
	if err != nil {
		return receipt, s.fail(receipt, err)
	}
	receipt.logf("encoded %s record: %d bytes, requested capacity %d", c.Schema().Name, len(encoded), capacity)
	if capacity < len(encoded) {
		return receipt, s.fail(receipt, fmt.Errorf("%w: capacity %d, record needs %d bytes", ErrInsufficientCapacity, capacity, len(encoded)))
	}

	a, err := s.manager.Allocate(capacity)
	if err != nil {
		return receipt, s.fail(receipt, err)
	}
	if err := s.manager.WriteFull(a, encoded); err != nil {
		s.manager.Release(a)
		return receipt, s.fail(receipt, err)
	}

	e := &entry{codec: c, alloc: a}
	receipt.logf("allocated %d bytes, length %d", capacity, len(encoded))
	if err := s.commit(receipt, e); err != nil {
		s.manager.Release(a)
		return receipt, err
	}
	s.dir.Put(key, e)

	s.logger.Debug("record initialized",
		zap.Stringer("key", key),
		zap.String("schema", c.Schema().Name),
		zap.Int("capacity", capacity))
	return receipt, nil
}

// Append adds elements to a sequence of the record at key. An empty sequence
// name selects the schema's only sequence. When the new encoding exceeds the
// allocation, capacity is grown by exactly the deficit under ctx; a rejected
// growth leaves the stored record unchanged.
func (s *RecordStore) Append(key keys.Address, sequence string, elements []uint64, ctx policy.Context) (*Receipt, error) {
	receipt := newReceipt("append", key)

	unlock, err := s.lock(key)
	if err != nil {
		return receipt, err
	}
	defer unlock()

	e, ok := s.dir.Get(key)
	if !ok {
		return receipt, s.fail(receipt, fmt.Errorf("%w: %s", ErrNotFound, key))
	}

	rec, err := e.codec.Decode(s.manager.Read(e.alloc))
	if err != nil {
		return receipt, s.fail(receipt, err)
	}

	idx, err := sequenceIndex(rec.Schema, sequence)
	if err != nil {
		return receipt, s.fail(receipt, err)
	}
	def := rec.Schema.Sequences[idx]
	seq := rec.Sequences[idx]

	requested := len(elements) * def.ElemWidth
	receipt.logf("%s before append: length %d, capacity %d", def.Name, seq.Len(), seq.Cap())
	receipt.logf("appending %d elements: %d bytes (%.2f KiB) in %s context",
		len(elements), requested, float64(requested)/1024, ctx)

	if len(elements) == 0 {
		receipt.logf("nothing to append")
		return receipt, s.commit(receipt, nil)
	}

	rec.Sequences[idx] = seq.Extend(elements)
	encoded, err := e.codec.Encode(rec)
	if err != nil {
		return receipt, s.fail(receipt, err)
	}

	before := s.manager.Snapshot(e.alloc)
	if deficit := len(encoded) - before.Capacity; deficit > 0 {
		receipt.logf("encoded size %d exceeds capacity %d: growing by %d bytes", len(encoded), before.Capacity, deficit)
		if err := s.manager.Grow(e.alloc, deficit, ctx); err != nil {
			if reason, ok := policy.RejectionReason(err); ok {
				receipt.logf("growth rejected: %s", reason)
				s.logger.Warn("append rejected",
					zap.Stringer("key", key),
					zap.Int("requested", deficit),
					zap.Int("limit", limitFor(err)),
					zap.Stringer("context", ctx),
					zap.Stringer("reason", reason))
			}
			return receipt, s.fail(receipt, err)
		}
		receipt.logf("growth allowed: capacity %d", e.alloc.Stat().Capacity)
	} else {
		receipt.logf("encoded size %d fits capacity %d: no growth needed", len(encoded), before.Capacity)
	}

	if err := s.manager.WriteFull(e.alloc, encoded); err != nil {
		s.manager.Revert(e.alloc, before)
		return receipt, s.fail(receipt, err)
	}

	after := rec.Sequences[idx]
	receipt.logf("%s after append: length %d, capacity %d", def.Name, after.Len(), after.Cap())

	if err := s.commit(receipt, e); err != nil {
		s.manager.Revert(e.alloc, before)
		return receipt, err
	}

	s.logger.Debug("record appended",
		zap.Stringer("key", key),
		zap.String("sequence", def.Name),
		zap.Int("elements", len(elements)),
		zap.Int("length", len(encoded)))
	return receipt, nil
}

// Update assigns scalar fields of the record at key. Updates are applied in
// declared field order and the record is written once.
func (s *RecordStore) Update(key keys.Address, updates []FieldUpdate) (*Receipt, error) {
	receipt := newReceipt("update", key)

	unlock, err := s.lock(key)
	if err != nil {
		return receipt, err
	}
	defer unlock()

	e, ok := s.dir.Get(key)
	if !ok {
		return receipt, s.fail(receipt, fmt.Errorf("%w: %s", ErrNotFound, key))
	}

	rec, err := e.codec.Decode(s.manager.Read(e.alloc))
	if err != nil {
		return receipt, s.fail(receipt, err)
	}

	schema := rec.Schema
	ordered := make([]FieldUpdate, len(updates))
	copy(ordered, updates)
	for _, u := range ordered {
		if schema.FieldIndex(u.Name) < 0 {
			if schema.SequenceIndex(u.Name) >= 0 {
				return receipt, s.fail(receipt, fmt.Errorf("%w: sequence %q can only be appended to", codec.ErrInvalidValue, u.Name))
			}
			return receipt, s.fail(receipt, fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, schema.Name, u.Name))
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return schema.FieldIndex(ordered[i].Name) < schema.FieldIndex(ordered[j].Name)
	})

	for _, u := range ordered {
		if err := rec.SetField(u.Name, u.Value); err != nil {
			return receipt, s.fail(receipt, err)
		}
		receipt.logf("set %s = %s", u.Name, u.Value)
	}

	encoded, err := e.codec.Encode(rec)
	if err != nil {
		return receipt, s.fail(receipt, err)
	}

	before := s.manager.Snapshot(e.alloc)
	if err := s.manager.WriteFull(e.alloc, encoded); err != nil {
		return receipt, s.fail(receipt, err)
	}
	receipt.logf("updated %d fields", len(ordered))

	if err := s.commit(receipt, e); err != nil {
		s.manager.Revert(e.alloc, before)
		return receipt, err
	}
	return receipt, nil
}

// Read decodes the record at key
func (s *RecordStore) Read(key keys.Address) (*codec.Record, error) {
	unlock, err := s.lock(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, ok := s.dir.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e.codec.Decode(s.manager.Read(e.alloc))
}

// FieldEquals reports whether the named field of the record at key equals v
func (s *RecordStore) FieldEquals(key keys.Address, field string, v codec.Value) (bool, error) {
	rec, err := s.Read(key)
	if err != nil {
		return false, err
	}
	current, ok := rec.Field(field)
	if !ok {
		return false, fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, rec.Schema.Name, field)
	}
	return current.Equal(v), nil
}

// Stat returns the schema and allocation sizes of the record at key
func (s *RecordStore) Stat(key keys.Address) (RecordStat, error) {
	e, ok := s.dir.Get(key)
	if !ok {
		return RecordStat{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	st := e.alloc.Stat()
	return RecordStat{
		Schema:   e.codec.Schema().Name,
		Capacity: st.Capacity,
		Length:   st.Length,
	}, nil
}

// Keys returns every initialized key
func (s *RecordStore) Keys() []keys.Address {
	return s.dir.Keys()
}

// Count returns the number of records
func (s *RecordStore) Count() int {
	return s.dir.Size()
}

// AllocatedBytes returns the total capacity held by records
func (s *RecordStore) AllocatedBytes() int64 {
	return s.manager.AllocatedBytes()
}

// Receipt fetches a stored receipt
func (s *RecordStore) Receipt(id ksuid.KSUID) (*Receipt, error) {
	if s.substrate == nil {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}
	data, err := s.substrate.Receipt(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode receipt %s: %w", id, err)
	}
	return &r, nil
}

// commit marks the receipt successful and persists it together with e's
// allocation. A nil entry persists only the receipt.
func (s *RecordStore) commit(receipt *Receipt, e *entry) error {
	receipt.Success = true
	if s.substrate == nil {
		return nil
	}

	var snap *storage.Snapshot
	if e != nil {
		img := s.manager.Snapshot(e.alloc)
		snap = &storage.Snapshot{
			Schema:   e.codec.Schema().Name,
			Capacity: img.Capacity,
			Data:     img.Live,
		}
	}

	blob, err := json.Marshal(receipt)
	if err != nil {
		return s.fail(receipt, fmt.Errorf("failed to encode receipt: %w", err))
	}
	if err := s.substrate.Commit(receipt.Key, snap, receipt.ID, blob); err != nil {
		receipt.Success = false
		receipt.Error = err.Error()
		receipt.Code = Kind(err)
		receipt.logf("persist failed: %v", err)
		s.logger.Error("failed to persist record",
			zap.Stringer("key", receipt.Key),
			zap.String("operation", receipt.Operation),
			zap.Error(err))
		return fmt.Errorf("failed to persist %s: %w", receipt.Operation, err)
	}
	return nil
}

// fail marks the receipt failed, stores it when possible and returns err
func (s *RecordStore) fail(receipt *Receipt, err error) error {
	receipt.Success = false
	receipt.Error = err.Error()
	receipt.Code = Kind(err)
	receipt.logf("failed: %v", err)

	if s.substrate != nil {
		if blob, merr := json.Marshal(receipt); merr == nil {
			if cerr := s.substrate.Commit(receipt.Key, nil, receipt.ID, blob); cerr != nil {
				s.logger.Error("failed to store receipt", zap.Stringer("id", receipt.ID), zap.Error(cerr))
			}
		}
	}

	s.logger.Debug("operation failed",
		zap.String("operation", receipt.Operation),
		zap.Stringer("key", receipt.Key),
		zap.String("code", receipt.Code),
		zap.Error(err))
	return err
}

func sequenceIndex(schema *codec.Schema, name string) (int, error) {
	if name == "" {
		if len(schema.Sequences) == 1 {
			return 0, nil
		}
		return -1, fmt.Errorf("%w: schema %s has %d sequences, name one", ErrUnknownSequence, schema.Name, len(schema.Sequences))
	}
	idx := schema.SequenceIndex(name)
	if idx < 0 {
		return -1, fmt.Errorf("%w: schema %s has no sequence %q", ErrUnknownSequence, schema.Name, name)
	}
	return idx, nil
}

func limitFor(err error) int {
	var rej *policy.RejectionError
	if errors.As(err, &rej) {
		return rej.Limit
	}
	return 0
}
