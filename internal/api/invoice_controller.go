package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

// InvoiceController exposes factures.
type InvoiceController struct {
	invoices *services.InvoiceService
}

// NewInvoiceController creates an InvoiceController.
func NewInvoiceController(invoices *services.InvoiceService) *InvoiceController {
	return &InvoiceController{invoices: invoices}
}

type invoiceUpdateRequest struct {
	DueDate        *flexTime             `json:"due_date"`
	PaymentMethod  *models.PaymentMethod `json:"payment_method"`
	TransactionRef *string               `json:"transaction_ref"`
}

// StatusRequest is the payload of POST /factures/:id/status.
type StatusRequest struct {
	Status models.InvoiceStatus `json:"status" binding:"required"`
}

type paymentRequest struct {
	PaidAt         *flexTime            `json:"paid_at"`
	Method         models.PaymentMethod `json:"payment_method" binding:"required"`
	TransactionRef string               `json:"transaction_ref"`
}

func invoiceFilter(c *gin.Context) services.InvoiceFilter {
	return services.InvoiceFilter{
		Status:   models.InvoiceStatus(c.Query("status")),
		ClientID: queryUint(c, "client_id"),
		QuoteID:  queryUint(c, "quote_id"),
		From:     queryDate(c, "from"),
		To:       queryDate(c, "to"),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}
}

// GetInvoices lists invoices.
// GET /api/v1/factures?status=&client_id=&quote_id=&from=&to=&limit=&offset=
func (ic *InvoiceController) GetInvoices(c *gin.Context) {
	f := invoiceFilter(c)
	invoices, total, err := ic.invoices.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, Page{Items: invoices, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetInvoice returns an invoice with its lines.
// GET /api/v1/factures/:id
func (ic *InvoiceController) GetInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := ic.invoices.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, invoice)
}

// UpdateInvoice changes the fields still editable before payment.
// PUT /api/v1/factures/:id
func (ic *InvoiceController) UpdateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req invoiceUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := ic.invoices.Update(c.Request.Context(), actorFrom(c), id, services.InvoiceUpdateInput{
		DueDate:        req.DueDate.ptr(),
		PaymentMethod:  req.PaymentMethod,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, invoice)
}

// UpdateInvoiceStatus moves an invoice along its lifecycle.
// POST /api/v1/factures/:id/status
func (ic *InvoiceController) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := ic.invoices.UpdateStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, invoice)
}

// PayInvoice records the payment of an invoice.
// POST /api/v1/factures/:id/pay
func (ic *InvoiceController) PayInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req paymentRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := ic.invoices.MarkPaid(c.Request.Context(), actorFrom(c), id, services.PaymentInput{
		PaidAt:         req.PaidAt.ptr(),
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, invoice)
}
