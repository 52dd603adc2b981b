package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetErrorCodeDispatchesByType(t *testing.T) {
	require.Equal(t, ErrorCodeNoExist, GetErrorCode(NewKeyNotFoundError("k")))
	require.Equal(t, ErrorCodeOOM, GetErrorCode(NewOOMError(128)))
	require.Equal(t, ErrorCodeLock, GetErrorCode(NewWouldBlockError("chain")))
	require.Equal(t, ErrorCodeNesting, GetErrorCode(NewNestingError()))
}

func TestGetErrorCodeFallsBackToInternal(t *testing.T) {
	require.Equal(t, ErrorCodeInternal, GetErrorCode(nil))
}

func TestGetErrorDetailsCollectsStructuredFields(t *testing.T) {
	err := NewStorageError(nil, ErrorCodeIO, "write failed").
		WithOffset(64).WithLength(16).WithDetail("operation", "write")
	details := GetErrorDetails(err)
	require.Equal(t, "write", details["operation"])
}

func TestIsHashIndexError(t *testing.T) {
	err := NewKeyExistsError("k")
	require.True(t, IsHashIndexError(err))
	require.False(t, IsStorageError(err))
}

func TestAsLockError(t *testing.T) {
	err := NewReadOnlyError("store")
	lockErr, ok := AsLockError(err)
	require.True(t, ok)
	require.Equal(t, ErrorCodeReadOnly, lockErr.Code())
}

func TestClassifyFileOpenErrorWrapsPermissionDenied(t *testing.T) {
	wrapped := ClassifyFileOpenError(&fakePermissionError{}, "/no/such/db")
	require.Equal(t, ErrorCodeIO, GetErrorCode(wrapped))
}

type fakePermissionError struct{}

func (f *fakePermissionError) Error() string { return "permission denied" }
