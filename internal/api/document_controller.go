package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

// DocumentController exposes file references attached to business records.
type DocumentController struct {
	documents *services.DocumentService
}

// NewDocumentController creates a DocumentController.
func NewDocumentController(documents *services.DocumentService) *DocumentController {
	return &DocumentController{documents: documents}
}

// GetDocuments lists the documents of one record.
// GET /api/v1/documents?entity_type=quote&entity_id=12
func (dc *DocumentController) GetDocuments(c *gin.Context) {
	entity := models.DocumentEntity(c.Query("entity_type"))
	docs, err := dc.documents.List(c.Request.Context(), entity, queryUint(c, "entity_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, docs)
}

// GetDocument returns one document.
// GET /api/v1/documents/:id
func (dc *DocumentController) GetDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := dc.documents.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, doc)
}

// AttachDocument records a file reference.
// POST /api/v1/documents
func (dc *DocumentController) AttachDocument(c *gin.Context) {
	var req services.DocumentInput
	if !bindJSON(c, &req) {
		return
	}
	doc, err := dc.documents.Attach(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, doc)
}

// DeleteDocument removes a file reference.
// DELETE /api/v1/documents/:id
func (dc *DocumentController) DeleteDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dc.documents.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Document supprimé")
}
