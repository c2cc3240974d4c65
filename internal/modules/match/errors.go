// README: Error taxonomy for match lifecycle operations.
package match

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("match not found")
	// ErrAlreadyEngaged: the (request, trip) pair or the trip already holds
	// a live match. Capacity is all-or-nothing while a match is in flight.
	ErrAlreadyEngaged = errors.New("a live match already exists for this pairing")
	ErrForbidden      = errors.New("caller is not a party to this match")
	// ErrConflict: a concurrent transition won the status guard. The caller
	// should re-read the match; retrying the same transition is usually wrong.
	ErrConflict = errors.New("match state changed concurrently")
	// ErrNotOpen: one side of the proposed pairing is no longer open.
	ErrNotOpen = errors.New("request or trip is not open")
	// ErrIncompatible: the pairing fails the compatibility predicate.
	ErrIncompatible = errors.New("request and trip are not compatible")
	// ErrNoPaymentSession: payment was never initiated for this match.
	ErrNoPaymentSession = errors.New("payment session not initiated")
	// ErrPaymentPending: the processor has not settled the hold yet.
	ErrPaymentPending = errors.New("payment confirmation still pending")
	// ErrHoldFailed: the processor reported the hold as failed.
	ErrHoldFailed = errors.New("payment hold failed")
	// ErrStoreUnavailable wraps batch-write failures; the whole transition
	// was a no-op and may be retried wholesale.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InvalidTransitionError reports an attempted transition missing from the
// table. It is a programmer or UI defect, never retried.
type InvalidTransitionError struct {
	From      State
	Attempted State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from (%s,%s) to (%s,%s)",
		e.From.Status, e.From.Payment, e.Attempted.Status, e.Attempted.Payment)
}

// AlreadyResolvedError reports a lost dispute-resolution race. Current is
// the state the winner produced, so the UI can show what actually happened
// instead of a stale assumption. It does not imply retryability.
type AlreadyResolvedError struct {
	Current State
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("dispute already resolved; match is (%s,%s)",
		e.Current.Status, e.Current.Payment)
}

// PaymentGatewayError reports a processor failure during release or refund.
// The match state is guaranteed unchanged; the caller retries with backoff.
type PaymentGatewayError struct {
	Op  string
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }
