package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progitek/server/internal/models"
)

var allRoles = []models.UserRole{
	models.RoleAdmin,
	models.RoleDG,
	models.RoleCommercial,
	models.RoleComptable,
	models.RoleTechnicien,
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from   models.QuoteStatus
		action QuoteAction
		role   models.UserRole
		want   models.QuoteStatus
	}{
		{models.QuoteStatusDraft, ActionSubmit, models.RoleCommercial, models.QuoteStatusSent},
		{models.QuoteStatusSent, ActionValidateApprove, models.RoleDG, models.QuoteStatusApprovedDG},
		{models.QuoteStatusSent, ActionValidateReject, models.RoleAdmin, models.QuoteStatusRejectedDG},
		{models.QuoteStatusApprovedDG, ActionClientAccept, models.RoleTechnicien, models.QuoteStatusAcceptedClient},
		{models.QuoteStatusApprovedDG, ActionClientReject, models.RoleComptable, models.QuoteStatusRejectedClient},
		{models.QuoteStatusAcceptedClient, ActionInvoice, models.RoleComptable, models.QuoteStatusInvoiced},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := Transition(tt.from, tt.action, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, CanTransition(tt.from, tt.action, tt.role))
		})
	}
}

func TestCanTransitionRejectsEveryUnlistedPair(t *testing.T) {
	for _, status := range models.AllQuoteStatuses {
		for _, action := range AllQuoteActions {
			source, _ := SourceStatus(action)
			for _, role := range allRoles {
				if status == source {
					continue
				}
				assert.False(t, CanTransition(status, action, role), "%s --%s--> as %s", status, action, role)
				_, err := Transition(status, action, role)
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		}
	}
}

func TestInvoicedQuoteIsTerminal(t *testing.T) {
	for _, action := range AllQuoteActions {
		for _, role := range allRoles {
			assert.False(t, CanTransition(models.QuoteStatusInvoiced, action, role))
		}
	}
}

func TestValidateFromDraftIsInvalidTransition(t *testing.T) {
	_, err := Transition(models.QuoteStatusDraft, ActionValidateApprove, models.RoleDG)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrForbidden))
}

func TestValidationRequiresDGOrAdmin(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleCommercial, models.RoleComptable, models.RoleTechnicien} {
		_, err := Transition(models.QuoteStatusSent, ActionValidateApprove, role)
		assert.ErrorIs(t, err, ErrForbidden, "role %s", role)
		_, err = Transition(models.QuoteStatusSent, ActionValidateReject, role)
		assert.ErrorIs(t, err, ErrForbidden, "role %s", role)
	}
}

func TestUnknownAction(t *testing.T) {
	_, err := Transition(models.QuoteStatusDraft, "archive", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCanEditAndDelete(t *testing.T) {
	editable := map[models.QuoteStatus]bool{
		models.QuoteStatusDraft:          true,
		models.QuoteStatusRejectedDG:     true,
		models.QuoteStatusRejectedClient: true,
	}
	for _, status := range models.AllQuoteStatuses {
		assert.Equal(t, editable[status], CanEdit(status), "edit %s", status)
		assert.Equal(t, editable[status], CanDelete(status), "delete %s", status)
	}
}

func TestCanInvoice(t *testing.T) {
	id := uint(7)
	assert.True(t, CanInvoice(models.QuoteStatusAcceptedClient, nil))
	assert.False(t, CanInvoice(models.QuoteStatusAcceptedClient, &id))
	for _, status := range models.AllQuoteStatuses {
		if status == models.QuoteStatusAcceptedClient {
			continue
		}
		assert.False(t, CanInvoice(status, nil), "status %s", status)
	}

	assert.NoError(t, CheckInvoiceable(models.QuoteStatusAcceptedClient, nil))
	assert.ErrorIs(t, CheckInvoiceable(models.QuoteStatusAcceptedClient, &id), ErrConflict)
	assert.ErrorIs(t, CheckInvoiceable(models.QuoteStatusInvoiced, &id), ErrConflict)
	assert.ErrorIs(t, CheckInvoiceable(models.QuoteStatusApprovedDG, nil), ErrInvalidTransition)
}
