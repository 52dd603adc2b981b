package tdb

import "github.com/iamNilotpal/tdbgo/pkg/errors"

// TransactionStart begins a transaction on this handle. Every Store,
// Delete, Fetch, and free-space or hash-index mutation performed while a
// transaction is open is transparently redirected through the
// transaction's overlay (internal/txlog installs its hooks on the shared
// *fileio.File), so nothing becomes durable until TransactionCommit.
// Starting a transaction while one is already open on this handle nests
// it instead of opening a second, independent one.
func (h *Handle) TransactionStart() error {
	if h.readOnly {
		return errors.NewReadOnlyError("transaction_start")
	}
	txn, err := h.log.Begin()
	if err != nil {
		return err
	}
	h.activeTxn = txn
	return nil
}

// TransactionPrepareCommit writes the recovery record covering every
// buffered write's before-image and syncs it, without yet applying the
// writes themselves. Calling it before TransactionCommit lets a caller
// separate the durability point from the apply point; calling
// TransactionCommit directly without it is also valid; Commit always runs
// it, again if the caller already did.
func (h *Handle) TransactionPrepareCommit() error {
	if h.activeTxn == nil {
		return errors.NewRecoveryError(nil, errors.ErrorCodeInvalidInput, "no transaction is open").WithPhase("prepare")
	}
	return h.activeTxn.PrepareCommit()
}

// TransactionCommit applies every buffered write, syncs, and invalidates
// the recovery record, making the transaction durable.
func (h *Handle) TransactionCommit() error {
	if h.activeTxn == nil {
		return errors.NewRecoveryError(nil, errors.ErrorCodeInvalidInput, "no transaction is open").WithPhase("commit")
	}
	if err := h.activeTxn.PrepareCommit(); err != nil {
		return err
	}
	txn := h.activeTxn
	if err := txn.Commit(); err != nil {
		return err
	}
	if h.log.Depth() == 0 {
		h.activeTxn = nil
	}
	return nil
}

// TransactionCancel discards every buffered write. See internal/txlog's
// Cancel for the documented nested-cancel-propagates-to-outer behavior.
func (h *Handle) TransactionCancel() error {
	if h.activeTxn == nil {
		return errors.NewRecoveryError(nil, errors.ErrorCodeInvalidInput, "no transaction is open").WithPhase("cancel")
	}
	txn := h.activeTxn
	if err := txn.Cancel(); err != nil {
		return err
	}
	if h.log.Depth() == 0 {
		h.activeTxn = nil
	}
	return nil
}
