package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultOptionsMatchesDefaultsTable(t *testing.T) {
	o := NewDefaultOptions()
	require.Equal(t, DefaultHashBits, o.HashBits)
	require.Equal(t, DefaultGroupBits, o.GroupBits)
	require.Equal(t, DefaultFreeTableCount, o.FreeTableCount)
	require.False(t, o.SeqnumEnabled)
}

func TestWithHashBitsClampsOutOfRangeValues(t *testing.T) {
	o := NewDefaultOptions()
	WithHashBits(MaxHashBits + 10)(&o)
	require.Equal(t, DefaultHashBits, o.HashBits, "an out-of-range value must be rejected, not clamped in")

	WithHashBits(MinHashBits)(&o)
	require.Equal(t, MinHashBits, o.HashBits)
}

func TestWithGrowthFactorRejectsNonExpanding(t *testing.T) {
	o := NewDefaultOptions()
	WithGrowthFactor(1.0)(&o)
	require.Equal(t, DefaultGrowthFactor, o.GrowthFactor, "a growth factor of 1.0 or less must be rejected")

	WithGrowthFactor(2.0)(&o)
	require.Equal(t, 2.0, o.GrowthFactor)
}

func TestWithFreeTableCountRejectsOutOfRange(t *testing.T) {
	o := NewDefaultOptions()
	WithFreeTableCount(0)(&o)
	require.Equal(t, DefaultFreeTableCount, o.FreeTableCount)

	WithFreeTableCount(MaxFreeTableCount + 1)(&o)
	require.Equal(t, DefaultFreeTableCount, o.FreeTableCount)

	WithFreeTableCount(8)(&o)
	require.Equal(t, 8, o.FreeTableCount)
}

func TestWithDefaultOptionsResetsOverrides(t *testing.T) {
	o := NewDefaultOptions()
	WithNoSync(true)(&o)
	WithSeqnum(true)(&o)
	require.True(t, o.NoSync)

	WithDefaultOptions()(&o)
	require.Equal(t, NewDefaultOptions(), o)
}

func TestWithLockWaitTimeoutRejectsNegative(t *testing.T) {
	o := NewDefaultOptions()
	WithLockWaitTimeout(5 * time.Second)(&o)
	require.Equal(t, 5*time.Second, o.LockWaitTimeout)

	WithLockWaitTimeout(-1)(&o)
	require.Equal(t, 5*time.Second, o.LockWaitTimeout)
}
