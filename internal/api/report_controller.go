package api

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"progitek/server/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportController serves the dashboard and the excel export.
type ReportController struct {
	reports *services.ReportService
}

// NewReportController creates a ReportController.
func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// GetDashboard returns the pipeline aggregates. ?refresh=1 bypasses the cache.
// GET /api/v1/reports/dashboard
func (rc *ReportController) GetDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	if queryBool(c, "refresh") {
		rc.reports.InvalidateDashboard(ctx)
	}
	dashboard, err := rc.reports.Dashboard(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, dashboard)
}

// ExportInvoices streams the filtered invoices as an xlsx workbook.
// GET /api/v1/reports/factures.xlsx?status=&client_id=&from=&to=
func (rc *ReportController) ExportInvoices(c *gin.Context) {
	f := invoiceFilter(c)

	// built in memory so a failure can still be answered as JSON
	var buf bytes.Buffer
	n, err := rc.reports.ExportInvoicesXLSX(c.Request.Context(), f, &buf)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("factures-%s.xlsx", time.Now().Format("20060102-150405"))
	log.Printf("📊 Invoice export: %d invoice(s), %d bytes", n, buf.Len())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("X-Total-Count", strconv.Itoa(n))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
