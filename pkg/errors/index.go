package errors

// HashIndexError provides specialized error handling for hash-index
// operations: top-level table, group probing, sublevel promotion.
type HashIndexError struct {
	*baseError

	// Identifies which key was being processed when the error occurred.
	key string

	// Which top-level hash group (bucket run) the key hashed into.
	group uint64

	// Which index operation was being performed: "lookup", "insert",
	// "delete", "expand", "promote-sublevel".
	operation string

	// Depth of the sublevel chain at the time of the error, if relevant.
	sublevelDepth int
}

// NewHashIndexError creates a new hash-index-specific error.
func NewHashIndexError(err error, code ErrorCode, msg string) *HashIndexError {
	return &HashIndexError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the HashIndexError type.
func (ie *HashIndexError) WithMessage(msg string) *HashIndexError {
	ie.baseError.WithMessage(msg)
	return ie
}

// WithCode sets the error code while preserving the HashIndexError type.
func (ie *HashIndexError) WithCode(code ErrorCode) *HashIndexError {
	ie.baseError.WithCode(code)
	return ie
}

// WithDetail adds contextual information while maintaining the HashIndexError type.
func (ie *HashIndexError) WithDetail(key string, value any) *HashIndexError {
	ie.baseError.WithDetail(key, value)
	return ie
}

// WithKey records which key was being processed when the error occurred.
func (ie *HashIndexError) WithKey(key string) *HashIndexError {
	ie.key = key
	return ie
}

// WithGroup captures which top-level hash group was involved.
func (ie *HashIndexError) WithGroup(group uint64) *HashIndexError {
	ie.group = group
	return ie
}

// WithOperation records what index operation was being performed.
func (ie *HashIndexError) WithOperation(operation string) *HashIndexError {
	ie.operation = operation
	return ie
}

// WithSublevelDepth captures how deep the sublevel chain was at the time
// of the error.
func (ie *HashIndexError) WithSublevelDepth(depth int) *HashIndexError {
	ie.sublevelDepth = depth
	return ie
}

// Key returns the key that was being processed when the error occurred.
func (ie *HashIndexError) Key() string {
	return ie.key
}

// Group returns the top-level hash group associated with the error.
func (ie *HashIndexError) Group() uint64 {
	return ie.group
}

// Operation returns the name of the operation that was being performed.
func (ie *HashIndexError) Operation() string {
	return ie.operation
}

// SublevelDepth returns the sublevel chain depth at the time of the error.
func (ie *HashIndexError) SublevelDepth() int {
	return ie.sublevelDepth
}

// NewKeyNotFoundError creates the NOEXIST error for a missing key.
func NewKeyNotFoundError(key string) *HashIndexError {
	return NewHashIndexError(nil, ErrorCodeNoExist, "key not found").
		WithKey(key).
		WithOperation("lookup")
}

// NewKeyExistsError creates the EXISTS error store(INSERT) returns when the
// key is already present.
func NewKeyExistsError(key string) *HashIndexError {
	return NewHashIndexError(nil, ErrorCodeExists, "key already exists").
		WithKey(key).
		WithOperation("insert")
}

// NewHashChainCorruptError creates the CORRUPT error for a probe chain
// that wrapped unboundedly within a group.
func NewHashChainCorruptError(group uint64, depth int) *HashIndexError {
	return NewHashIndexError(nil, ErrorCodeCorrupt, "hash chain did not terminate").
		WithGroup(group).
		WithOperation("lookup").
		WithSublevelDepth(depth)
}

// NewSublevelOOMError creates the OOM error for an allocation failure during
// sublevel promotion.
func NewSublevelOOMError(group uint64, depth int) *HashIndexError {
	return NewHashIndexError(nil, ErrorCodeOOM, "failed to allocate sublevel hash table").
		WithGroup(group).
		WithOperation("promote-sublevel").
		WithSublevelDepth(depth)
}
