package store

import (
	"fmt"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
	"github.com/ssargent/recordvault/pkg/storage"
)

// Config holds configuration for the record store
type Config struct {
	Limits    policy.Limits    // Growth ceilings
	Schemas   []*codec.Schema  // Schemas available at open
	Substrate Substrate        // Durable backing, nil for memory only
	Logger    *zap.Logger      // nil disables logging
}

// Substrate persists allocations and receipts
type Substrate interface {
	Commit(key keys.Address, snap *storage.Snapshot, id ksuid.KSUID, receipt []byte) error
	ForEach(fn func(key keys.Address, snap storage.Snapshot) error) error
	Receipt(id ksuid.KSUID) ([]byte, error)
	Close() error
}

// FieldUpdate assigns one scalar field
type FieldUpdate struct {
	Name  string
	Value codec.Value
}

// RecordStat describes the allocation behind a record
type RecordStat struct {
	Schema   string `json:"schema"`
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
}

// Receipt is the outcome of one mutating operation
type Receipt struct {
	ID        ksuid.KSUID  `json:"id"`
	Operation string       `json:"operation"`
	Key       keys.Address `json:"key"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
	Code      string       `json:"code,omitempty"`
	Logs      []string     `json:"logs"`
}

func newReceipt(op string, key keys.Address) *Receipt {
	return &Receipt{
		ID:        ksuid.New(),
		Operation: op,
		Key:       key,
		Logs:      []string{},
	}
}

func (r *Receipt) logf(format string, args ...interface{}) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

// Errors
var (
	ErrNotFound             = &StoreError{"record not found"}
	ErrAlreadyExists        = &StoreError{"record already exists"}
	ErrInsufficientCapacity = &StoreError{"capacity is smaller than the encoded record"}
	ErrUnknownSchema        = &StoreError{"unknown schema"}
	ErrUnknownSequence      = &StoreError{"unknown sequence"}
	ErrClosed               = &StoreError{"store is closed"}
)

// StoreError represents a record store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
