package tdb

import (
	stderrors "errors"

	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

// Traverse calls fn with every live key and value, in hash order. It
// does not hold any lock across calls to fn; fn itself may call
// ChainLock if it needs to coordinate with a concurrent delete of the
// entry currently being visited. Returning an error from fn stops the
// traversal and propagates that error.
func (h *Handle) Traverse(fn func(key, value []byte) error) error {
	return h.index.Traverse(func(hash, recOffset uint64) error {
		_, key, value, err := h.readRecord(recOffset)
		if err != nil {
			return err
		}
		return fn(key, value)
	})
}

// FirstKey returns the first key visited by Traverse's iteration order,
// or NOEXIST if the database is empty.
func (h *Handle) FirstKey() ([]byte, error) {
	var first []byte
	err := h.Traverse(func(key, _ []byte) error {
		first = append([]byte(nil), key...)
		return errStopTraversal
	})
	if err != nil && err != errStopTraversal {
		return nil, err
	}
	if first == nil {
		return nil, errors.NewKeyNotFoundError("")
	}
	return first, nil
}

// NextKey returns the key that follows prevKey in Traverse's iteration
// order, or NOEXIST if prevKey was the last one (or isn't present).
//
// This walks the whole index to find prevKey and then reads one more
// entry, which is O(n) rather than O(1); a hash-ordered walk has no cheap
// "next" without a persistent cursor, so this trades iteration speed for
// not needing any additional per-handle state.
func (h *Handle) NextKey(prevKey []byte) ([]byte, error) {
	found := false
	var next []byte
	err := h.Traverse(func(key, _ []byte) error {
		if found {
			next = append([]byte(nil), key...)
			return errStopTraversal
		}
		if string(key) == string(prevKey) {
			found = true
		}
		return nil
	})
	if err != nil && err != errStopTraversal {
		return nil, err
	}
	if next == nil {
		return nil, errors.NewKeyNotFoundError(string(prevKey))
	}
	return next, nil
}

// errStopTraversal is a sentinel fn returns to end Traverse early
// without that early stop being reported as a real failure.
var errStopTraversal = stderrors.New("tdb: traversal stopped early")
