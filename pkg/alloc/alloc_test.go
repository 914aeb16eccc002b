package alloc

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordvault/pkg/policy"
)

func newTestManager() *Manager {
	return NewManager(policy.NewEnforcer(policy.DefaultLimits()), nil)
}

func TestManager_Allocate(t *testing.T) {
	m := newTestManager()

	a, err := m.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, Stat{Capacity: 64, Length: 0}, a.Stat())
	assert.Empty(t, m.Read(a))
	assert.Equal(t, int64(64), m.AllocatedBytes())

	_, err = m.Allocate(policy.DefaultMaxRecordSize)
	assert.NoError(t, err)

	_, err = m.Allocate(policy.DefaultMaxRecordSize + 1)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	_, err = m.Allocate(-1)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
}

func TestManager_WriteFull(t *testing.T) {
	m := newTestManager()
	a, err := m.Allocate(8)
	require.NoError(t, err)

	require.NoError(t, m.WriteFull(a, []byte{1, 2, 3, 4, 5}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, m.Read(a))
	assert.Equal(t, 5, a.Stat().Length)

	// Shrinking the live portion zeroes the tail
	require.NoError(t, m.WriteFull(a, []byte{9}))
	assert.Equal(t, []byte{9}, m.Read(a))
	assert.Equal(t, make([]byte, 7), a.buf[1:])

	err = m.WriteFull(a, make([]byte, 9))
	assert.True(t, errors.Is(err, ErrLengthExceedsCapacity))
	assert.Equal(t, []byte{9}, m.Read(a), "failed write must not change live data")

	require.NoError(t, m.WriteFull(a, bytes.Repeat([]byte{7}, 8)))
	assert.Equal(t, Stat{Capacity: 8, Length: 8}, a.Stat())
}

func TestManager_Grow(t *testing.T) {
	m := newTestManager()

	t.Run("top-level growth keeps length", func(t *testing.T) {
		a, err := m.Allocate(16)
		require.NoError(t, err)
		require.NoError(t, m.WriteFull(a, []byte("0123456789abcdef")))

		require.NoError(t, m.Grow(a, 20000, policy.TopLevel))
		assert.Equal(t, Stat{Capacity: 20016, Length: 16}, a.Stat())
		assert.Equal(t, []byte("0123456789abcdef"), m.Read(a))
	})

	t.Run("nested growth at limit", func(t *testing.T) {
		a, err := m.Allocate(16)
		require.NoError(t, err)
		require.NoError(t, m.Grow(a, 10240, policy.Nested))
		assert.Equal(t, 16+10240, a.Stat().Capacity)
	})

	t.Run("nested growth over limit is atomic", func(t *testing.T) {
		a, err := m.Allocate(16)
		require.NoError(t, err)
		require.NoError(t, m.WriteFull(a, []byte{1, 2, 3}))

		err = m.Grow(a, 10241, policy.Nested)
		require.Error(t, err)
		assert.True(t, errors.Is(err, policy.ErrGrowthRejected))
		reason, _ := policy.RejectionReason(err)
		assert.Equal(t, policy.ExceedsNestedGrowthLimit, reason)

		assert.Equal(t, Stat{Capacity: 16, Length: 3}, a.Stat())
		assert.Equal(t, []byte{1, 2, 3}, m.Read(a))
	})

	t.Run("absolute ceiling", func(t *testing.T) {
		a, err := m.Allocate(policy.DefaultMaxRecordSize - 10)
		require.NoError(t, err)

		err = m.Grow(a, 11, policy.TopLevel)
		reason, ok := policy.RejectionReason(err)
		require.True(t, ok)
		assert.Equal(t, policy.ExceedsMaxRecordSize, reason)
		assert.Equal(t, policy.DefaultMaxRecordSize-10, a.Stat().Capacity)

		require.NoError(t, m.Grow(a, 10, policy.TopLevel))
		assert.Equal(t, policy.DefaultMaxRecordSize, a.Stat().Capacity)
	})

	t.Run("negative growth", func(t *testing.T) {
		a, err := m.Allocate(4)
		require.NoError(t, err)
		assert.True(t, errors.Is(m.Grow(a, -1, policy.TopLevel), ErrInvalidGrowth))
	})
}

func TestManager_SnapshotRevert(t *testing.T) {
	m := newTestManager()
	a, err := m.Allocate(4)
	require.NoError(t, err)
	require.NoError(t, m.WriteFull(a, []byte{1, 2}))

	img := m.Snapshot(a)
	require.NoError(t, m.Grow(a, 100, policy.TopLevel))
	require.NoError(t, m.WriteFull(a, bytes.Repeat([]byte{5}, 50)))

	m.Revert(a, img)
	assert.Equal(t, Stat{Capacity: 4, Length: 2}, a.Stat())
	assert.Equal(t, []byte{1, 2}, m.Read(a))
	assert.Equal(t, int64(4), m.AllocatedBytes())

	m.Release(a)
	assert.Equal(t, int64(0), m.AllocatedBytes())
}

func TestManager_Restore(t *testing.T) {
	m := newTestManager()

	a, err := m.Restore(32, []byte("live"))
	require.NoError(t, err)
	assert.Equal(t, Stat{Capacity: 32, Length: 4}, a.Stat())

	_, err = m.Restore(2, []byte("live"))
	assert.True(t, errors.Is(err, ErrLengthExceedsCapacity))
	assert.Equal(t, int64(32), m.AllocatedBytes())
}

func TestManager_ConcurrentGrowAndRead(t *testing.T) {
	m := newTestManager()
	a, err := m.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, m.WriteFull(a, []byte{1, 2, 3, 4}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Grow(a, 4, policy.Nested))
		}()
		go func() {
			defer wg.Done()
			s := a.Stat()
			assert.LessOrEqual(t, s.Length, s.Capacity)
			assert.Equal(t, []byte{1, 2, 3, 4}, m.Read(a))
		}()
	}
	wg.Wait()

	assert.Equal(t, Stat{Capacity: 8 + 8*4, Length: 4}, a.Stat())
}
