package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

func TestAttachDocumentToQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.quotes.Create(ctx, f.sales, scenarioInput(f.client.ID))
	require.NoError(t, err)

	doc, err := f.documents.Attach(ctx, f.tech, DocumentInput{
		EntityType: models.DocumentEntityQuote,
		EntityID:   q.ID,
		Category:   models.DocumentPhoto,
		FileName:   "site.jpg",
		StorageURL: "https://files.progitek.test/quotes/site.jpg",
		MimeType:   "Image/JPEG",
		SizeBytes:  2048,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPhoto, doc.Category)
	assert.Equal(t, "image/jpeg", doc.MimeType)
	assert.Equal(t, f.tech.UserID, doc.UploadedByID)
	require.NotNil(t, doc.UploadedBy)

	notes, err := f.notifier.List(ctx, f.sales.UserID, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationDocumentAdded, notes[0].Type)
	assert.Equal(t, fmt.Sprintf("/devis/%d", q.ID), notes[0].Link)

	docs, err := f.documents.List(ctx, models.DocumentEntityQuote, q.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestAttachDocumentDefaultsCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.documents.Attach(ctx, f.sales, DocumentInput{
		EntityType: models.DocumentEntityClient,
		EntityID:   f.client.ID,
		FileName:   "kbis.pdf",
		StorageURL: "s3://progitek-docs/clients/kbis.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentOther, doc.Category)

	// attaching to your own record does not notify anybody
	unread, err := f.notifier.UnreadCount(ctx, f.sales.UserID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestAttachDocumentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := func() DocumentInput {
		return DocumentInput{
			EntityType: models.DocumentEntityClient,
			EntityID:   f.client.ID,
			FileName:   "contrat.pdf",
			StorageURL: "https://files.progitek.test/contrat.pdf",
		}
	}
	cases := []struct {
		name   string
		mutate func(*DocumentInput)
		want   error
	}{
		{"unknown entity type", func(in *DocumentInput) { in.EntityType = "user" }, workflow.ErrValidation},
		{"missing entity id", func(in *DocumentInput) { in.EntityID = 0 }, workflow.ErrValidation},
		{"unknown category", func(in *DocumentInput) { in.Category = "secret" }, workflow.ErrValidation},
		{"empty file name", func(in *DocumentInput) { in.FileName = " " }, workflow.ErrValidation},
		{"file name with path", func(in *DocumentInput) { in.FileName = "../etc/passwd" }, workflow.ErrValidation},
		{"relative url", func(in *DocumentInput) { in.StorageURL = "/tmp/contrat.pdf" }, workflow.ErrValidation},
		{"javascript url", func(in *DocumentInput) { in.StorageURL = "javascript:alert(1)" }, workflow.ErrValidation},
		{"negative size", func(in *DocumentInput) { in.SizeBytes = -1 }, workflow.ErrValidation},
		{"oversized", func(in *DocumentInput) { in.SizeBytes = maxDocumentSize + 1 }, workflow.ErrValidation},
		{"missing client", func(in *DocumentInput) { in.EntityID = 9999 }, workflow.ErrNotFound},
		{"missing invoice", func(in *DocumentInput) {
			in.EntityType = models.DocumentEntityInvoice
			in.EntityID = 9999
		}, workflow.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			_, err := f.documents.Attach(ctx, f.sales, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.documents.List(ctx, "user", 1)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestDeleteDocumentRequiresUploaderOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attach := func() *models.Document {
		doc, err := f.documents.Attach(ctx, f.tech, DocumentInput{
			EntityType: models.DocumentEntityClient,
			EntityID:   f.client.ID,
			FileName:   "bon.pdf",
			StorageURL: "https://files.progitek.test/bon.pdf",
		})
		require.NoError(t, err)
		return doc
	}

	doc := attach()
	err := f.documents.Delete(ctx, f.sales, doc.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	require.NoError(t, f.documents.Delete(ctx, f.tech, doc.ID))
	_, err = f.documents.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	other := attach()
	require.NoError(t, f.documents.Delete(ctx, f.admin, other.ID))

	logs, err := f.audit.List(ctx, AuditFilter{EntityType: "document", ActionType: AuditDelete})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
