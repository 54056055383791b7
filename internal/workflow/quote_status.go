package workflow

import (
	"fmt"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
)

// QuoteAction is a request to move a quote forward.
type QuoteAction string

const (
	ActionSubmit          QuoteAction = "submit"
	ActionValidateApprove QuoteAction = "validate_approve"
	ActionValidateReject  QuoteAction = "validate_reject"
	ActionClientAccept    QuoteAction = "client_accept"
	ActionClientReject    QuoteAction = "client_reject"
	ActionInvoice         QuoteAction = "invoice"
)

// AllQuoteActions lists every action.
var AllQuoteActions = []QuoteAction{
	ActionSubmit,
	ActionValidateApprove,
	ActionValidateReject,
	ActionClientAccept,
	ActionClientReject,
	ActionInvoice,
}

type transition struct {
	from       models.QuoteStatus
	to         models.QuoteStatus
	capability authz.Capability
}

// Each action has exactly one legal source state.
var quoteTransitions = map[QuoteAction]transition{
	ActionSubmit:          {models.QuoteStatusDraft, models.QuoteStatusSent, authz.QuoteSubmit},
	ActionValidateApprove: {models.QuoteStatusSent, models.QuoteStatusApprovedDG, authz.QuoteValidate},
	ActionValidateReject:  {models.QuoteStatusSent, models.QuoteStatusRejectedDG, authz.QuoteValidate},
	ActionClientAccept:    {models.QuoteStatusApprovedDG, models.QuoteStatusAcceptedClient, authz.QuoteRespond},
	ActionClientReject:    {models.QuoteStatusApprovedDG, models.QuoteStatusRejectedClient, authz.QuoteRespond},
	ActionInvoice:         {models.QuoteStatusAcceptedClient, models.QuoteStatusInvoiced, authz.InvoiceCreate},
}

// CanTransition reports whether role may apply action to a quote in status.
func CanTransition(status models.QuoteStatus, action QuoteAction, role models.UserRole) bool {
	_, err := Transition(status, action, role)
	return err == nil
}

// Transition returns the status a quote moves to. The source state is
// checked before the role, so a wrong state is always ErrInvalidTransition.
func Transition(status models.QuoteStatus, action QuoteAction, role models.UserRole) (models.QuoteStatus, error) {
	t, ok := quoteTransitions[action]
	if !ok {
		return status, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if status != t.from {
		return status, fmt.Errorf("%w: cannot %s a quote in status %s", ErrInvalidTransition, action, status)
	}
	if !authz.Allowed(role, t.capability) {
		return status, fmt.Errorf("%w: role %q cannot %s a quote", ErrForbidden, role, action)
	}
	return t.to, nil
}

// SourceStatus returns the only status action can be applied from.
func SourceStatus(action QuoteAction) (models.QuoteStatus, bool) {
	t, ok := quoteTransitions[action]
	return t.from, ok
}

// CanEdit reports whether a quote in status may still be modified.
func CanEdit(status models.QuoteStatus) bool {
	switch status {
	case models.QuoteStatusDraft, models.QuoteStatusRejectedDG, models.QuoteStatusRejectedClient:
		return true
	}
	return false
}

// CanDelete uses the same set as CanEdit. Quotes outside it are kept forever.
func CanDelete(status models.QuoteStatus) bool {
	return CanEdit(status)
}

// CanInvoice reports whether an invoice can be derived from the quote.
func CanInvoice(status models.QuoteStatus, invoiceID *uint) bool {
	return status == models.QuoteStatusAcceptedClient && invoiceID == nil
}

// CheckInvoiceable returns the error matching why CanInvoice is false.
// An already linked invoice is a Conflict; any other status is an
// invalid transition.
func CheckInvoiceable(status models.QuoteStatus, invoiceID *uint) error {
	if invoiceID != nil || status == models.QuoteStatusInvoiced {
		return fmt.Errorf("%w: quote already invoiced", ErrConflict)
	}
	if status != models.QuoteStatusAcceptedClient {
		return fmt.Errorf("%w: only a quote accepted by the client can be invoiced (status %s)", ErrInvalidTransition, status)
	}
	return nil
}
