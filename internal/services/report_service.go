package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"progitek/server/internal/models"
	"progitek/server/internal/utils"
)

const (
	dashboardCacheKey = "progitek:reports:dashboard"
	dashboardCacheTTL = 60 * time.Second
)

// Dashboard is the aggregated view of the devis → facture pipeline.
type Dashboard struct {
	QuotesByStatus   map[models.QuoteStatus]int64   `json:"quotes_by_status"`
	InvoicesByStatus map[models.InvoiceStatus]int64 `json:"invoices_by_status"`
	QuotesTotal      int64                          `json:"quotes_total"`
	InvoicesTotal    int64                          `json:"invoices_total"`
	RevenuePaid      float64                        `json:"revenue_paid"`
	Outstanding      float64                        `json:"outstanding"`
	PipelineTTC      float64                        `json:"pipeline_ttc"` // envoye + valide_dg + accepte_client
	ConversionRate   float64                        `json:"conversion_rate"`
	ClientsActive    int64                          `json:"clients_active"`
	MissionsOpen     int64                          `json:"missions_open"`
	GeneratedAt      time.Time                      `json:"generated_at"`
}

// ReportService computes dashboards and exports. The Redis cache is optional.
type ReportService struct {
	db       *gorm.DB
	cache    *utils.RedisClient
	invoices *InvoiceService
}

// NewReportService creates a ReportService. cache may be nil.
func NewReportService(db *gorm.DB, cache *utils.RedisClient, invoices *InvoiceService) *ReportService {
	return &ReportService{db: db, cache: cache, invoices: invoices}
}

type statusCount struct {
	Status string
	Count  int64
	Total  float64
}

// Dashboard returns the aggregates, served from Redis for up to a minute.
func (s *ReportService) Dashboard(ctx context.Context) (*Dashboard, error) {
	if s.cache != nil {
		var cached Dashboard
		err := s.cache.GetJSON(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !utils.IsMiss(err) {
			log.Printf("⚠️ Dashboard cache read failed: %v", err)
		}
	}

	d, err := s.computeDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, dashboardCacheKey, d, dashboardCacheTTL); err != nil {
			log.Printf("⚠️ Dashboard cache write failed: %v", err)
		}
	}
	return d, nil
}

// InvalidateDashboard drops the cached dashboard.
func (s *ReportService) InvalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardCacheKey); err != nil {
		log.Printf("⚠️ Dashboard cache invalidation failed: %v", err)
	}
}

func (s *ReportService) computeDashboard(ctx context.Context) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &Dashboard{
		QuotesByStatus:   make(map[models.QuoteStatus]int64, len(models.AllQuoteStatuses)),
		InvoicesByStatus: make(map[models.InvoiceStatus]int64, len(models.AllInvoiceStatuses)),
		GeneratedAt:      time.Now().UTC(),
	}
	for _, st := range models.AllQuoteStatuses {
		d.QuotesByStatus[st] = 0
	}
	for _, st := range models.AllInvoiceStatuses {
		d.InvoicesByStatus[st] = 0
	}

	var quoteRows []statusCount
	err := db.Model(&models.Quote{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_ttc), 0) AS total").
		Group("status").
		Scan(&quoteRows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate quotes: %w", err)
	}

	pipeline := decimal.Zero
	for _, r := range quoteRows {
		st := models.QuoteStatus(r.Status)
		d.QuotesByStatus[st] = r.Count
		d.QuotesTotal += r.Count
		switch st {
		case models.QuoteStatusSent, models.QuoteStatusApprovedDG, models.QuoteStatusAcceptedClient:
			pipeline = pipeline.Add(decimal.NewFromFloat(r.Total))
		}
	}

	var invoiceRows []statusCount
	err = db.Model(&models.Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_ttc), 0) AS total").
		Group("status").
		Scan(&invoiceRows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate invoices: %w", err)
	}

	paid, outstanding := decimal.Zero, decimal.Zero
	for _, r := range invoiceRows {
		st := models.InvoiceStatus(r.Status)
		d.InvoicesByStatus[st] = r.Count
		d.InvoicesTotal += r.Count
		switch st {
		case models.InvoiceStatusPaid:
			paid = paid.Add(decimal.NewFromFloat(r.Total))
		case models.InvoiceStatusIssued, models.InvoiceStatusSent, models.InvoiceStatusOverdue:
			outstanding = outstanding.Add(decimal.NewFromFloat(r.Total))
		}
	}

	d.RevenuePaid = paid.Round(2).InexactFloat64()
	d.Outstanding = outstanding.Round(2).InexactFloat64()
	d.PipelineTTC = pipeline.Round(2).InexactFloat64()
	if d.QuotesTotal > 0 {
		rate := decimal.NewFromInt(d.QuotesByStatus[models.QuoteStatusInvoiced]).
			Div(decimal.NewFromInt(d.QuotesTotal)).
			Mul(decimal.NewFromInt(100))
		d.ConversionRate = rate.Round(2).InexactFloat64()
	}

	if err := db.Model(&models.Client{}).Where("is_active = ?", true).Count(&d.ClientsActive).Error; err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}
	err = db.Model(&models.Mission{}).
		Where("status IN ?", []models.MissionStatus{models.MissionStatusPlanned, models.MissionStatusInProgress}).
		Count(&d.MissionsOpen).Error
	if err != nil {
		return nil, fmt.Errorf("count missions: %w", err)
	}

	return d, nil
}

var invoiceSheetHeader = []interface{}{
	"Numéro", "Client", "Devis", "Statut", "Émise le", "Échéance", "Payée le",
	"Mode de paiement", "Montant HT", "Taux TVA (%)", "TVA", "Montant TTC",
}

// ExportInvoicesXLSX writes an excel workbook with one row per invoice and a
// second sheet with the invoice lines.
func (s *ReportService) ExportInvoicesXLSX(ctx context.Context, f InvoiceFilter, w io.Writer) (int, error) {
	invoices, err := s.invoices.ListAll(ctx, f)
	if err != nil {
		return 0, err
	}

	quoteNumbers, err := s.quoteNumbers(ctx, invoices)
	if err != nil {
		return 0, err
	}

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			log.Printf("⚠️ Close workbook: %v", err)
		}
	}()

	const sheet, linesSheet = "Factures", "Lignes"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := book.NewSheet(linesSheet); err != nil {
		return 0, fmt.Errorf("create lines sheet: %w", err)
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E5E7EB"}, Pattern: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("header style: %w", err)
	}

	if err := book.SetSheetRow(sheet, "A1", &invoiceSheetHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	if err := book.SetCellStyle(sheet, "A1", "L1", headerStyle); err != nil {
		return 0, fmt.Errorf("style header: %w", err)
	}
	linesHeader := []interface{}{"Facture", "Position", "Désignation", "Quantité", "Prix unitaire", "Montant"}
	if err := book.SetSheetRow(linesSheet, "A1", &linesHeader); err != nil {
		return 0, fmt.Errorf("write lines header: %w", err)
	}
	if err := book.SetCellStyle(linesSheet, "A1", "F1", headerStyle); err != nil {
		return 0, fmt.Errorf("style lines header: %w", err)
	}

	total := decimal.Zero
	lineRow := 2
	for i, inv := range invoices {
		clientName := ""
		if inv.Client != nil {
			clientName = inv.Client.Name
		}
		paidAt := ""
		if inv.PaidAt != nil {
			paidAt = inv.PaidAt.Format("2006-01-02")
		}
		row := []interface{}{
			inv.Number, clientName, quoteNumbers[inv.QuoteID], string(inv.Status),
			inv.IssuedAt.Format("2006-01-02"), inv.DueDate.Format("2006-01-02"), paidAt,
			string(inv.PaymentMethod), inv.AmountHT, inv.TaxRate, inv.AmountTVA, inv.AmountTTC,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return 0, fmt.Errorf("write invoice %s: %w", inv.Number, err)
		}
		total = total.Add(decimal.NewFromFloat(inv.AmountTTC))

		for _, l := range inv.Lines {
			lr := []interface{}{inv.Number, l.Position, l.Designation, l.Quantity, l.UnitPrice, l.LineAmount}
			cell, _ := excelize.CoordinatesToCellName(1, lineRow)
			if err := book.SetSheetRow(linesSheet, cell, &lr); err != nil {
				return 0, fmt.Errorf("write lines of %s: %w", inv.Number, err)
			}
			lineRow++
		}
	}

	totalRow := len(invoices) + 2
	labelCell, _ := excelize.CoordinatesToCellName(11, totalRow)
	valueCell, _ := excelize.CoordinatesToCellName(12, totalRow)
	if err := book.SetCellValue(sheet, labelCell, "Total TTC"); err != nil {
		return 0, fmt.Errorf("write total: %w", err)
	}
	if err := book.SetCellValue(sheet, valueCell, total.InexactFloat64()); err != nil {
		return 0, fmt.Errorf("write total: %w", err)
	}
	if err := book.SetColWidth(sheet, "A", "L", 16); err != nil {
		return 0, fmt.Errorf("column width: %w", err)
	}

	if err := book.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(invoices), nil
}

func (s *ReportService) quoteNumbers(ctx context.Context, invoices []models.Invoice) (map[uint]string, error) {
	out := make(map[uint]string, len(invoices))
	if len(invoices) == 0 {
		return out, nil
	}
	ids := make([]uint, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.QuoteID
	}
	var quotes []models.Quote
	if err := s.db.WithContext(ctx).Unscoped().Select("id", "number").Where("id IN ?", ids).Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("load quote numbers: %w", err)
	}
	for _, q := range quotes {
		out[q.ID] = q.Number
	}
	return out, nil
}
