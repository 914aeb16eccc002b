// Package alloc manages fixed-capacity backing buffers for records.
//
// An Allocation owns a zero-filled buffer of exactly Capacity bytes, of which
// the first Length bytes hold live data. Capacity changes only through
// Manager.Grow, which consults the growth policy first and either applies the
// whole increase or nothing.
package alloc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/policy"
)

var (
	// ErrCapacityExceeded is returned when an allocation would exceed the maximum record size
	ErrCapacityExceeded = errors.New("capacity exceeds maximum record size")

	// ErrLengthExceedsCapacity is returned when live data does not fit the allocation
	ErrLengthExceedsCapacity = errors.New("length exceeds capacity")

	// ErrInvalidGrowth is returned for negative growth requests
	ErrInvalidGrowth = errors.New("growth must not be negative")
)

// Stat is a consistent view of an allocation's sizes
type Stat struct {
	Capacity int `json:"capacity"`
	Length   int `json:"length"`
}

// Image is a copy of an allocation's state, used to undo a mutation
type Image struct {
	Capacity int
	Live     []byte
}

// Allocation is a handle to one backing buffer
type Allocation struct {
	mutex  sync.RWMutex
	buf    []byte // len(buf) is the capacity
	length int
}

// Stat returns capacity and length under one lock
func (a *Allocation) Stat() Stat {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return Stat{Capacity: len(a.buf), Length: a.length}
}

// Manager creates and mutates allocations
type Manager struct {
	enforcer  *policy.Enforcer
	logger    *zap.Logger
	allocated atomic.Int64
}

// NewManager creates a manager that checks growth against enforcer
func NewManager(enforcer *policy.Enforcer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{enforcer: enforcer, logger: logger}
}

// Enforcer returns the policy used by Grow
func (m *Manager) Enforcer() *policy.Enforcer {
	return m.enforcer
}

// Allocate reserves a zero-filled buffer of exactly capacity bytes
func (m *Manager) Allocate(capacity int) (*Allocation, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrCapacityExceeded, capacity)
	}
	if max := m.enforcer.Limits().MaxRecordSize; capacity > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, capacity, max)
	}

	a := &Allocation{buf: make([]byte, capacity)}
	m.allocated.Add(int64(capacity))
	return a, nil
}

// Restore rebuilds an allocation from persisted state
func (m *Manager) Restore(capacity int, live []byte) (*Allocation, error) {
	a, err := m.Allocate(capacity)
	if err != nil {
		return nil, err
	}
	if err := m.WriteFull(a, live); err != nil {
		m.allocated.Add(-int64(capacity))
		return nil, err
	}
	return a, nil
}

// Read returns a copy of the live bytes
func (m *Manager) Read(a *Allocation) []byte {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	out := make([]byte, a.length)
	copy(out, a.buf[:a.length])
	return out
}

// WriteFull replaces the live bytes. Bytes past the new length are zeroed.
func (m *Manager) WriteFull(a *Allocation, data []byte) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if len(data) > len(a.buf) {
		return fmt.Errorf("%w: %d > %d", ErrLengthExceedsCapacity, len(data), len(a.buf))
	}

	copy(a.buf, data)
	if len(data) < a.length {
		clear(a.buf[len(data):a.length])
	}
	a.length = len(data)
	return nil
}

// Grow increases capacity by exactly additional bytes if the policy allows
// it. Length is unchanged. On rejection the allocation is untouched and the
// error is a *policy.RejectionError.
func (m *Manager) Grow(a *Allocation, additional int, ctx policy.Context) error {
	if additional < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGrowth, additional)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	current := len(a.buf)
	decision := m.enforcer.Check(current, additional, ctx)
	if !decision.Allowed {
		m.logger.Warn("growth rejected",
			zap.Int("capacity", current),
			zap.Int("requested", additional),
			zap.Stringer("context", ctx),
			zap.Stringer("reason", decision.Reason()))
		return m.enforcer.Reject(decision, current, additional, ctx)
	}
	if additional == 0 {
		return nil
	}

	buf := make([]byte, current+additional)
	copy(buf, a.buf[:a.length])
	a.buf = buf
	m.allocated.Add(int64(additional))

	m.logger.Debug("allocation grown",
		zap.Int("from", current),
		zap.Int("to", len(buf)),
		zap.Stringer("context", ctx))
	return nil
}

// Snapshot copies the allocation's state
func (m *Manager) Snapshot(a *Allocation) Image {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	live := make([]byte, a.length)
	copy(live, a.buf[:a.length])
	return Image{Capacity: len(a.buf), Live: live}
}

// Revert puts an allocation back to a snapshot taken earlier
func (m *Manager) Revert(a *Allocation, img Image) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if len(a.buf) != img.Capacity {
		m.allocated.Add(int64(img.Capacity - len(a.buf)))
		a.buf = make([]byte, img.Capacity)
	} else {
		clear(a.buf)
	}
	copy(a.buf, img.Live)
	a.length = len(img.Live)
}

// Release forgets an allocation's bytes in the allocated total
func (m *Manager) Release(a *Allocation) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	m.allocated.Add(-int64(len(a.buf)))
	a.buf = nil
	a.length = 0
}

// AllocatedBytes returns the total capacity of live allocations
func (m *Manager) AllocatedBytes() int64 {
	return m.allocated.Load()
}
