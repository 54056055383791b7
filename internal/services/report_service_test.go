package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"progitek/server/internal/models"
)

func TestDashboardAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.quotes.Create(ctx, f.sales, scenarioInput(f.client.ID))
	require.NoError(t, err)

	paidQuote := f.acceptedQuote(t)
	paid, err := f.invoices.CreateFromQuote(ctx, f.comptable, paidQuote.ID, nil)
	require.NoError(t, err)
	_, err = f.invoices.MarkPaid(ctx, f.comptable, paid.ID, PaymentInput{Method: models.PaymentMethodTransfer})
	require.NoError(t, err)

	openQuote := f.acceptedQuote(t)
	_, err = f.invoices.CreateFromQuote(ctx, f.comptable, openQuote.ID, nil)
	require.NoError(t, err)

	_ = f.acceptedQuote(t)

	d, err := f.reports.Dashboard(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 4, d.QuotesTotal)
	assert.EqualValues(t, 1, d.QuotesByStatus[models.QuoteStatusDraft])
	assert.EqualValues(t, 2, d.QuotesByStatus[models.QuoteStatusInvoiced])
	assert.EqualValues(t, 1, d.QuotesByStatus[models.QuoteStatusAcceptedClient])
	assert.EqualValues(t, 0, d.QuotesByStatus[models.QuoteStatusRejectedDG])
	assert.EqualValues(t, 2, d.InvoicesTotal)
	assert.Equal(t, 295.0, d.RevenuePaid)
	assert.Equal(t, 295.0, d.Outstanding)
	assert.Equal(t, 295.0, d.PipelineTTC)
	assert.Equal(t, 50.0, d.ConversionRate)
	assert.EqualValues(t, 1, d.ClientsActive)
}

func TestExportInvoicesXLSX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		q := f.acceptedQuote(t)
		_, err := f.invoices.CreateFromQuote(ctx, f.comptable, q.ID, nil)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := f.reports.ExportInvoicesXLSX(ctx, InvoiceFilter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Factures")
	require.NoError(t, err)
	require.Len(t, rows, 4) // header, 2 invoices, total
	assert.Equal(t, "Numéro", rows[0][0])
	assert.Contains(t, rows[1][0], "FAC-")
	assert.Equal(t, "Acme SARL", rows[1][1])
	assert.Contains(t, rows[1][2], "DEV-")
	assert.Equal(t, "590", rows[3][11])

	lines, err := book.GetRows("Lignes")
	require.NoError(t, err)
	assert.Len(t, lines, 5)
}
