// README: Common value objects shared across modules.
package types

import "fmt"

// ID is an opaque entity identifier.
type ID string

// Money is an amount in minor units of a currency.
type Money struct {
	Amount   int64
	Currency string
}

func (m Money) IsPositive() bool {
	return m.Amount > 0 && m.Currency != ""
}

// ValidationError reports malformed caller input. It names the offending
// field so the defect can be traced to its origin; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q %s", e.Field, e.Reason)
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
