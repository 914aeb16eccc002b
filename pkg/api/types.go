package api

import (
	"github.com/segmentio/ksuid"

	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
	"github.com/ssargent/recordvault/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port    int
	Bind    string
	APIKey  string
	Deriver *keys.Deriver
}

// RecordService defines the record store operations exposed over HTTP
type RecordService interface {
	Initialize(key keys.Address, rec *codec.Record, capacity int) (*store.Receipt, error)
	Append(key keys.Address, sequence string, elements []uint64, ctx policy.Context) (*store.Receipt, error)
	Update(key keys.Address, updates []store.FieldUpdate) (*store.Receipt, error)
	Read(key keys.Address) (*codec.Record, error)
	FieldEquals(key keys.Address, field string, v codec.Value) (bool, error)
	Stat(key keys.Address) (store.RecordStat, error)
	Keys() []keys.Address
	Count() int
	AllocatedBytes() int64
	Schema(name string) (*codec.Schema, bool)
	Schemas() []*codec.Schema
	Receipt(id ksuid.KSUID) (*store.Receipt, error)
	Limits() policy.Limits
}

// InitializeRequest creates a record
type InitializeRequest struct {
	Schema    string              `json:"schema"`
	Fields    map[string]any      `json:"fields,omitempty"`
	Sequences map[string][]uint64 `json:"sequences,omitempty"`
	Capacity  int                 `json:"capacity,omitempty"`
	Reserve   map[string]int      `json:"reserve,omitempty"`
}

// AppendRequest adds elements to a sequence
type AppendRequest struct {
	Sequence string   `json:"sequence,omitempty"`
	Elements []uint64 `json:"elements"`
	Context  string   `json:"context,omitempty"` // "top-level" or "nested"
}

// UpdateRequest assigns scalar fields
type UpdateRequest struct {
	Fields map[string]any `json:"fields"`
}

// DeriveRequest asks for a record address
type DeriveRequest struct {
	Namespace string `json:"namespace"`
	Owner     string `json:"owner"`
}

// DeriveResponse is a derived record address
type DeriveResponse struct {
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
	ProgramID string `json:"program_id"`
}

// FieldEqualsResponse answers an equality check
type FieldEqualsResponse struct {
	Field string `json:"field"`
	Equal bool   `json:"equal"`
}

// SchemaView is the JSON form of a schema
type SchemaView struct {
	Name       string         `json:"name"`
	Fields     []FieldView    `json:"fields"`
	Sequences  []SequenceView `json:"sequences"`
	FixedWidth int            `json:"fixed_width"`
}

// FieldView describes one scalar field
type FieldView struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Width    int      `json:"width"`
	Variants []string `json:"variants,omitempty"`
}

// SequenceView describes one sequence
type SequenceView struct {
	Name      string `json:"name"`
	ElemWidth int    `json:"elem_width"`
}

// StatsResponse summarizes the store
type StatsResponse struct {
	Records         int   `json:"records"`
	AllocatedBytes  int64 `json:"allocated_bytes"`
	MaxRecordSize   int   `json:"max_record_size"`
	MaxNestedGrowth int   `json:"max_nested_growth"`
}
