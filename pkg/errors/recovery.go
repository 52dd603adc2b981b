package errors

// RecoveryError is a specialized error type for the transaction overlay
// and recovery log: failures preparing, committing, cancelling or
// replaying a recovery record.
type RecoveryError struct {
	*baseError

	// Offset of the recovery record involved, 0 if none was installed yet.
	recoveryOffset int64

	// Which phase failed: "start", "prepare", "commit", "cancel", "replay".
	phase string
}

// NewRecoveryError creates a new recovery-specific error.
func NewRecoveryError(err error, code ErrorCode, msg string) *RecoveryError {
	return &RecoveryError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the RecoveryError type.
func (re *RecoveryError) WithMessage(msg string) *RecoveryError {
	re.baseError.WithMessage(msg)
	return re
}

// WithDetail adds contextual information while maintaining the RecoveryError type.
func (re *RecoveryError) WithDetail(key string, value any) *RecoveryError {
	re.baseError.WithDetail(key, value)
	return re
}

// WithRecoveryOffset records the offset of the recovery record involved.
func (re *RecoveryError) WithRecoveryOffset(offset int64) *RecoveryError {
	re.recoveryOffset = offset
	return re
}

// WithPhase records which transaction phase failed.
func (re *RecoveryError) WithPhase(phase string) *RecoveryError {
	re.phase = phase
	return re
}

// RecoveryOffset returns the offset of the recovery record involved.
func (re *RecoveryError) RecoveryOffset() int64 {
	return re.recoveryOffset
}

// Phase returns the transaction phase that failed.
func (re *RecoveryError) Phase() string {
	return re.phase
}

// NewNestingError creates the NESTING error for a refused nested
// transaction_start. No attribute disables nesting, so pkg/tdb does not
// call it.
func NewNestingError() *RecoveryError {
	return NewRecoveryError(nil, ErrorCodeNesting, "transaction already in progress").
		WithPhase("start")
}
