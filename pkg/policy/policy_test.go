package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforcer_Check(t *testing.T) {
	e := NewEnforcer(DefaultLimits())

	testCases := []struct {
		name       string
		capacity   int
		delta      int
		ctx        Context
		allowed    bool
		violations []Reason
	}{
		{name: "nested at limit", capacity: 16, delta: 10240, ctx: Nested, allowed: true},
		{name: "nested one over", capacity: 16, delta: 10241, ctx: Nested, violations: []Reason{ExceedsNestedGrowthLimit}},
		{name: "top-level over nested limit", capacity: 16, delta: 10241, ctx: TopLevel, allowed: true},
		{name: "nested scenario", capacity: 16, delta: 10244, ctx: Nested, violations: []Reason{ExceedsNestedGrowthLimit}},
		{name: "top-level to exact max", capacity: 1024, delta: DefaultMaxRecordSize - 1024, ctx: TopLevel, allowed: true},
		{name: "top-level past max", capacity: 1024, delta: DefaultMaxRecordSize - 1023, ctx: TopLevel, violations: []Reason{ExceedsMaxRecordSize}},
		{
			name:       "both rules",
			capacity:   DefaultMaxRecordSize - 100,
			delta:      20000,
			ctx:        Nested,
			violations: []Reason{ExceedsMaxRecordSize, ExceedsNestedGrowthLimit},
		},
		{name: "zero growth", capacity: 0, delta: 0, ctx: Nested, allowed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Check(tc.capacity, tc.delta, tc.ctx)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.violations, d.Violations)
			if !tc.allowed {
				assert.Equal(t, tc.violations[0], d.Reason())
			} else {
				assert.Equal(t, ReasonNone, d.Reason())
			}
		})
	}
}

func TestEnforcer_InjectedLimits(t *testing.T) {
	e := NewEnforcer(Limits{MaxRecordSize: 100, MaxNestedGrowth: 10})

	assert.True(t, e.Check(50, 10, Nested).Allowed)
	assert.Equal(t, ExceedsNestedGrowthLimit, e.Check(50, 11, Nested).Reason())
	assert.True(t, e.Check(50, 50, TopLevel).Allowed)
	assert.Equal(t, ExceedsMaxRecordSize, e.Check(50, 51, TopLevel).Reason())
}

func TestEnforcer_Reject(t *testing.T) {
	e := NewEnforcer(DefaultLimits())
	d := e.Check(16, 10244, Nested)
	require.False(t, d.Allowed)

	var err error = e.Reject(d, 16, 10244, Nested)
	assert.True(t, errors.Is(err, ErrGrowthRejected))
	assert.Contains(t, err.Error(), "exceeds nested growth limit")

	reason, ok := RejectionReason(err)
	assert.True(t, ok)
	assert.Equal(t, ExceedsNestedGrowthLimit, reason)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 10240, rej.Limit)
	assert.Equal(t, 10244, rej.Requested)
}

func TestLimits_Validate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{MaxRecordSize: 0, MaxNestedGrowth: 1}.Validate())
	assert.Error(t, Limits{MaxRecordSize: 10, MaxNestedGrowth: 0}.Validate())
	assert.Error(t, Limits{MaxRecordSize: 10, MaxNestedGrowth: 11}.Validate())
}

func TestParseContext(t *testing.T) {
	ctx, err := ParseContext("nested")
	require.NoError(t, err)
	assert.Equal(t, Nested, ctx)

	ctx, err = ParseContext("top-level")
	require.NoError(t, err)
	assert.Equal(t, TopLevel, ctx)

	ctx, err = ParseContext("")
	require.NoError(t, err)
	assert.Equal(t, TopLevel, ctx)

	_, err = ParseContext("sideways")
	assert.Error(t, err)

	assert.Equal(t, "nested", Nested.String())
	assert.Equal(t, "top-level", TopLevel.String())
}
