package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewReturnsUsableLogger(t *testing.T) {
	l := New("tdb-test")
	require.NotNil(t, l)
	l.Infow("hello", "k", "v")
}

func TestNewFromCoreUsesSuppliedCore(t *testing.T) {
	l := NewFromCore("tdb-test", zapcore.NewNopCore())
	require.NotNil(t, l)
}

func TestNewFromCoreFallsBackToDefaultWhenNil(t *testing.T) {
	l := NewFromCore("tdb-test", nil)
	require.NotNil(t, l)
}

func TestNopDiscardsOutput(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	l.Infow("should not panic")
}
