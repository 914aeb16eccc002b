// Package policy decides whether a backing allocation may grow.
//
// Two independent rules apply to every growth request:
//
//  1. The resulting capacity may not exceed Limits.MaxRecordSize.
//  2. In a Nested context a single growth may not exceed Limits.MaxNestedGrowth.
//
// Both rules are evaluated for every request. The limits are injected so
// tests and alternative platforms can use other ceilings.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Platform defaults
const (
	DefaultMaxRecordSize   = 10 * 1024 * 1024
	DefaultMaxNestedGrowth = 10 * 1024
)

// Context tells the enforcer whether a request runs at the outermost call or
// inside a delegated one
type Context uint8

const (
	TopLevel Context = iota
	Nested
)

func (c Context) String() string {
	if c == Nested {
		return "nested"
	}
	return "top-level"
}

// ParseContext converts "top-level" or "nested" into a Context
func ParseContext(s string) (Context, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "top-level", "toplevel", "top_level":
		return TopLevel, nil
	case "nested":
		return Nested, nil
	}
	return TopLevel, fmt.Errorf("unknown execution context %q", s)
}

// Limits holds the growth ceilings
type Limits struct {
	MaxRecordSize   int `yaml:"max_record_size"`
	MaxNestedGrowth int `yaml:"max_nested_growth"`
}

// DefaultLimits returns the platform ceilings: 10 MiB per record, 10 KiB per
// nested growth
func DefaultLimits() Limits {
	return Limits{
		MaxRecordSize:   DefaultMaxRecordSize,
		MaxNestedGrowth: DefaultMaxNestedGrowth,
	}
}

// Validate checks that the limits are usable
func (l Limits) Validate() error {
	if l.MaxRecordSize <= 0 {
		return fmt.Errorf("max record size must be positive, got %d", l.MaxRecordSize)
	}
	if l.MaxNestedGrowth <= 0 {
		return fmt.Errorf("max nested growth must be positive, got %d", l.MaxNestedGrowth)
	}
	if l.MaxNestedGrowth > l.MaxRecordSize {
		return fmt.Errorf("max nested growth %d exceeds max record size %d", l.MaxNestedGrowth, l.MaxRecordSize)
	}
	return nil
}

// Reason identifies the rule a request violated
type Reason uint8

const (
	ReasonNone Reason = iota
	ExceedsMaxRecordSize
	ExceedsNestedGrowthLimit
)

func (r Reason) String() string {
	switch r {
	case ExceedsMaxRecordSize:
		return "exceeds max record size"
	case ExceedsNestedGrowthLimit:
		return "exceeds nested growth limit"
	}
	return "none"
}

// Code returns the reason as a stable identifier
func (r Reason) Code() string {
	switch r {
	case ExceedsMaxRecordSize:
		return "exceeds_max_record_size"
	case ExceedsNestedGrowthLimit:
		return "exceeds_nested_growth_limit"
	}
	return "none"
}

// Decision is the outcome of a check
type Decision struct {
	Allowed    bool
	Violations []Reason // in rule order
}

// Reason returns the first violated rule, or ReasonNone
func (d Decision) Reason() Reason {
	if len(d.Violations) == 0 {
		return ReasonNone
	}
	return d.Violations[0]
}

// Enforcer applies Limits to growth requests
type Enforcer struct {
	limits Limits
}

// NewEnforcer creates an enforcer for the limits
func NewEnforcer(limits Limits) *Enforcer {
	return &Enforcer{limits: limits}
}

// Limits returns the configured ceilings
func (e *Enforcer) Limits() Limits {
	return e.limits
}

// Check evaluates both rules for growing currentCapacity by delta bytes
func (e *Enforcer) Check(currentCapacity, delta int, ctx Context) Decision {
	var d Decision

	// Rule 1: absolute ceiling, overflow-safe
	if delta > e.limits.MaxRecordSize-currentCapacity {
		d.Violations = append(d.Violations, ExceedsMaxRecordSize)
	}

	// Rule 2: per-call ceiling inside delegated calls
	if ctx == Nested && delta > e.limits.MaxNestedGrowth {
		d.Violations = append(d.Violations, ExceedsNestedGrowthLimit)
	}

	d.Allowed = len(d.Violations) == 0
	return d
}

// ErrGrowthRejected matches every *RejectionError
var ErrGrowthRejected = errors.New("growth rejected")

// RejectionError describes a rejected growth request
type RejectionError struct {
	Reason          Reason
	Violations      []Reason
	Context         Context
	CurrentCapacity int
	Requested       int
	Limit           int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("growth rejected: %s (requested %d bytes in %s context, capacity %d, limit %d)",
		e.Reason, e.Requested, e.Context, e.CurrentCapacity, e.Limit)
}

// Is lets errors.Is(err, ErrGrowthRejected) match
func (e *RejectionError) Is(target error) bool {
	return target == ErrGrowthRejected
}

// Reject converts a denied decision into a *RejectionError
func (e *Enforcer) Reject(d Decision, currentCapacity, delta int, ctx Context) *RejectionError {
	limit := e.limits.MaxRecordSize
	if d.Reason() == ExceedsNestedGrowthLimit {
		limit = e.limits.MaxNestedGrowth
	}
	return &RejectionError{
		Reason:          d.Reason(),
		Violations:      d.Violations,
		Context:         ctx,
		CurrentCapacity: currentCapacity,
		Requested:       delta,
		Limit:           limit,
	}
}

// RejectionReason extracts the violated rule from err
func RejectionReason(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return ReasonNone, false
}
