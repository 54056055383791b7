package workflow

import (
	"fmt"

	"progitek/server/internal/models"
)

// Invoices only move forward. payee and annulee are terminal.
var invoiceTransitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusIssued:  {models.InvoiceStatusSent, models.InvoiceStatusOverdue, models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:    {models.InvoiceStatusOverdue, models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
	models.InvoiceStatusOverdue: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// CanInvoiceTransition reports whether an invoice may go from one status to another.
func CanInvoiceTransition(from, to models.InvoiceStatus) bool {
	for _, s := range invoiceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckInvoiceTransition is CanInvoiceTransition with a typed error.
func CheckInvoiceTransition(from, to models.InvoiceStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown invoice status %q", ErrValidation, to)
	}
	if !CanInvoiceTransition(from, to) {
		return fmt.Errorf("%w: invoice cannot go from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// InvoiceEditable reports whether invoice fields may still change.
func InvoiceEditable(status models.InvoiceStatus) bool {
	return status != models.InvoiceStatusPaid && status != models.InvoiceStatusCancelled
}
