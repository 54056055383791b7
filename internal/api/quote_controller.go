package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
	"progitek/server/internal/workflow"
)

// QuoteController exposes devis and their workflow actions.
type QuoteController struct {
	quotes   *services.QuoteService
	invoices *services.InvoiceService
}

// NewQuoteController creates a QuoteController.
func NewQuoteController(quotes *services.QuoteService, invoices *services.InvoiceService) *QuoteController {
	return &QuoteController{quotes: quotes, invoices: invoices}
}

type quoteRequest struct {
	ClientID    uint                 `json:"client_id"`
	MissionID   *uint                `json:"mission_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	TaxRate     *float64             `json:"tax_rate"`
	ValidUntil  *flexTime            `json:"valid_until"`
	Lines       []workflow.LineInput `json:"lines"`
}

func (r quoteRequest) input() services.QuoteInput {
	return services.QuoteInput{
		ClientID:    r.ClientID,
		MissionID:   r.MissionID,
		Title:       r.Title,
		Description: r.Description,
		TaxRate:     r.TaxRate,
		ValidUntil:  r.ValidUntil.ptr(),
		Lines:       r.Lines,
	}
}

// ValidateRequest is the DG decision.
type ValidateRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Comment string `json:"comment"`
}

// ClientResponseRequest is the answer of the client.
type ClientResponseRequest struct {
	Accept  *bool  `json:"accept" binding:"required"`
	Comment string `json:"comment"`
}

// CreateInvoiceRequest optionally overrides the due date.
type CreateInvoiceRequest struct {
	DueDate *flexTime `json:"due_date"`
}

// GetQuotes lists quotes.
// GET /api/v1/devis?status=&client_id=&mission_id=&search=&mine=1&expired=1&limit=&offset=
func (qc *QuoteController) GetQuotes(c *gin.Context) {
	f := services.QuoteFilter{
		Status:    models.QuoteStatus(c.Query("status")),
		ClientID:  queryUint(c, "client_id"),
		MissionID: queryUint(c, "mission_id"),
		Search:    c.Query("search"),
		Expired:   queryBool(c, "expired"),
		Limit:     queryInt(c, "limit"),
		Offset:    queryInt(c, "offset"),
	}
	if queryBool(c, "mine") {
		f.CreatedByID = actorFrom(c).UserID
	}
	quotes, total, err := qc.quotes.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, Page{Items: quotes, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetQuote returns a quote with its lines.
// GET /api/v1/devis/:id
func (qc *QuoteController) GetQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quote, err := qc.quotes.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quote)
}

// CreateQuote stores a draft quote and computes its totals.
// POST /api/v1/devis
func (qc *QuoteController) CreateQuote(c *gin.Context) {
	var req quoteRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := qc.quotes.Create(c.Request.Context(), actorFrom(c), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, quote)
}

// UpdateQuote replaces the content of an editable quote.
// PUT /api/v1/devis/:id
func (qc *QuoteController) UpdateQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req quoteRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := qc.quotes.Update(c.Request.Context(), actorFrom(c), id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quote)
}

// DeleteQuote removes a draft quote.
// DELETE /api/v1/devis/:id
func (qc *QuoteController) DeleteQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := qc.quotes.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Devis supprimé")
}

// SubmitQuote sends a draft to the DG.
// POST /api/v1/devis/:id/submit
func (qc *QuoteController) SubmitQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quote, err := qc.quotes.Submit(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quote)
}

// ValidateQuote records the DG decision.
// POST /api/v1/devis/:id/validate
func (qc *QuoteController) ValidateQuote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ValidateRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := qc.quotes.Validate(c.Request.Context(), actorFrom(c), id, *req.Approve, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quote)
}

// ClientResponse records the client decision.
// POST /api/v1/devis/:id/client-response
func (qc *QuoteController) ClientResponse(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ClientResponseRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := qc.quotes.RespondClient(c.Request.Context(), actorFrom(c), id, *req.Accept, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quote)
}

// CreateInvoice derives the invoice of an accepted quote.
// POST /api/v1/devis/:id/facture
func (qc *QuoteController) CreateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	invoice, err := qc.invoices.CreateFromQuote(c.Request.Context(), actorFrom(c), id, req.DueDate.ptr())
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, invoice)
}
