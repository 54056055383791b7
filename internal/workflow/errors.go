// Package workflow holds the business rules of the devis → facture
// lifecycle: the quote status guard, the invoice status rules and the
// total calculator. Everything here is pure and safe to call before any
// write.
package workflow

import "errors"

// Error kinds. Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
)
