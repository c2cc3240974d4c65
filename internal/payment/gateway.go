// README: Payment gateway adapter contract; the lifecycle manager trusts its verdicts.
package payment

import (
	"context"

	"bookferry/internal/types"
)

type HoldStatus string

const (
	HoldSucceeded HoldStatus = "succeeded"
	HoldFailed    HoldStatus = "failed"
	HoldPending   HoldStatus = "pending"
)

// Gateway wraps the external payment processor. Session refs are opaque and
// are the idempotency handle for release/refund: repeating either call with
// the same ref after a success must report success again, not move funds twice.
type Gateway interface {
	// CreateHold opens a checkout session escrowing amount from the payer.
	CreateHold(ctx context.Context, amount types.Money, payerRef string, matchID types.ID) (string, error)
	// ConfirmHold retrieves the outcome of a checkout session.
	ConfirmHold(ctx context.Context, sessionRef string) (HoldStatus, error)
	// Release disburses held funds to the traveler.
	Release(ctx context.Context, sessionRef string) error
	// Refund returns held funds to the requester.
	Refund(ctx context.Context, sessionRef string) error
}
