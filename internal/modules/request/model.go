// README: Request aggregate: books wanted in a destination city by a deadline.
package request

import (
	"time"

	"bookferry/internal/types"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusMatched   Status = "matched"
	StatusWithdrawn Status = "withdrawn"
)

type BookItem struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
}

type Request struct {
	ID              types.ID
	UserID          types.ID
	DestinationCity string
	Deadline        time.Time
	WeightKg        float64
	Books           []BookItem
	Status          Status
	CreatedAt       time.Time
}

// Validate checks the structural invariants of a request. It is applied both
// to caller input and to rows scanned back from the store, so a corrupt row
// surfaces as a ValidationError instead of flowing into matching.
func (r *Request) Validate() error {
	if r.UserID == "" {
		return types.Invalid("userId", "is required")
	}
	if r.DestinationCity == "" {
		return types.Invalid("destinationCity", "is required")
	}
	if r.WeightKg <= 0 {
		return types.Invalid("weightKg", "must be positive")
	}
	if r.Deadline.IsZero() {
		return types.Invalid("deadline", "is required")
	}
	if len(r.Books) == 0 {
		return types.Invalid("books", "must contain at least one item")
	}
	for _, b := range r.Books {
		if b.Title == "" {
			return types.Invalid("books.title", "is required")
		}
		if b.Quantity < 1 {
			return types.Invalid("books.quantity", "must be at least 1")
		}
	}
	return nil
}
