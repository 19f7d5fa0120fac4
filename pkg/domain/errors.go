package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the stores, the lending coordinator and the RPC
// facade. Stores translate driver errors into these before returning.
var (
	// ErrBadRequest indicates malformed or absent input.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound indicates the addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey indicates a uniqueness violation on create.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrPatronIneligible indicates a business-rule rejection, distinct
	// from the patron being missing.
	ErrPatronIneligible = errors.New("patron not eligible")
	// ErrConflict indicates the observed state changed under a conditional
	// update, e.g. two workers racing to check out the same book.
	ErrConflict = errors.New("state conflict")
	// ErrStoreUnavailable indicates a transient infrastructure fault. The
	// coordinator propagates it and never retries on its own.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// PartialFailureError reports that a two-store operation diverged: one store
// accepted its write and the other did not. Compensated tells whether the
// first write was successfully reverted; when false the stores are still
// divergent and the operator must reconcile.
type PartialFailureError struct {
	Op              string
	BookID          string
	PatronID        string
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *PartialFailureError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("partial failure during %s of book %s for patron %s (book state reverted): %v",
			e.Op, e.BookID, e.PatronID, e.Cause)
	}
	return fmt.Sprintf("partial failure during %s of book %s for patron %s (stores divergent, revert failed: %v): %v",
		e.Op, e.BookID, e.PatronID, e.CompensationErr, e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}
