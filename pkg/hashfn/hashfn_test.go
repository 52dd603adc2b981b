package hashfn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsDeterministic(t *testing.T) {
	a := Default([]byte("hello world"), 42)
	b := Default([]byte("hello world"), 42)
	require.Equal(t, a, b)
}

func TestDefaultDiffersBySeed(t *testing.T) {
	a := Default([]byte("hello world"), 1)
	b := Default([]byte("hello world"), 2)
	require.NotEqual(t, a, b)
}

func TestSelfCheckRoundTrip(t *testing.T) {
	const seed = uint64(7)
	test := SelfCheck(Default, seed)
	require.True(t, VerifySelfCheck(Default, seed, test))
}

func TestVerifySelfCheckRejectsMismatchedFunc(t *testing.T) {
	const seed = uint64(7)
	test := SelfCheck(Default, seed)

	var alwaysZero Func = func(data []byte, seed uint64) uint64 { return 0 }
	require.False(t, VerifySelfCheck(alwaysZero, seed, test))
}
