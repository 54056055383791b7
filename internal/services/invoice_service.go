package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/metrics"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// DefaultPaymentTerm is added to the issue date when no due date is given.
const DefaultPaymentTerm = 30 * 24 * time.Hour

// InvoiceService derives invoices from accepted quotes and tracks payment.
type InvoiceService struct {
	db        *gorm.DB
	numbering *NumberingService
	audit     Auditor
	notifier  Notifier
	events    EventPublisher
	now       func() time.Time
}

// NewInvoiceService creates an InvoiceService. A nil events publisher drops events.
func NewInvoiceService(db *gorm.DB, numbering *NumberingService, audit Auditor, notifier Notifier, events EventPublisher) *InvoiceService {
	if events == nil {
		events = NopPublisher{}
	}
	return &InvoiceService{
		db:        db,
		numbering: numbering,
		audit:     audit,
		notifier:  notifier,
		events:    events,
		now:       time.Now,
	}
}

// InvoiceFilter narrows List.
type InvoiceFilter struct {
	Status   models.InvoiceStatus
	ClientID uint
	QuoteID  uint
	From     *time.Time // issued at or after
	To       *time.Time // issued before
	Limit    int
	Offset   int
}

// PaymentInput records how an invoice was settled.
type PaymentInput struct {
	PaidAt         *time.Time           `json:"paid_at"`
	Method         models.PaymentMethod `json:"payment_method"`
	TransactionRef string               `json:"transaction_ref"`
}

// InvoiceUpdateInput holds the fields that stay editable until payment.
type InvoiceUpdateInput struct {
	DueDate        *time.Time            `json:"due_date"`
	PaymentMethod  *models.PaymentMethod `json:"payment_method"`
	TransactionRef *string               `json:"transaction_ref"`
}

var errQuoteAlreadyLinked = errors.New("quote already linked to an invoice")

// CreateFromQuote derives an invoice from a quote accepted by the client.
// Number, invoice, copied lines and the quote lock are written in one
// transaction: either the quote ends up facture with the new invoice id, or
// nothing is written.
func (s *InvoiceService) CreateFromQuote(ctx context.Context, actor Actor, quoteID uint, dueDate *time.Time) (*models.Invoice, error) {
	if err := actor.require(authz.InvoiceCreate); err != nil {
		return nil, err
	}

	var quote models.Quote
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&quote, quoteID).Error
	if err != nil {
		return nil, notFound(err, "quote", quoteID)
	}
	if err := workflow.CheckInvoiceable(quote.Status, quote.InvoiceID); err != nil {
		return nil, err
	}
	if _, err := workflow.Transition(quote.Status, workflow.ActionInvoice, actor.Role); err != nil {
		return nil, err
	}

	issuedAt := s.now()
	due := issuedAt.Add(DefaultPaymentTerm)
	if dueDate != nil {
		if truncateDay(*dueDate).Before(truncateDay(issuedAt)) {
			return nil, fmt.Errorf("%w: due date %s is before the issue date", workflow.ErrValidation, dueDate.Format("2006-01-02"))
		}
		due = *dueDate
	}

	var invoice models.Invoice
	for attempt := 0; attempt < numberAttempts; attempt++ {
		invoice = newInvoiceFromQuote(&quote, actor.UserID, issuedAt, due)
		err = s.createFromQuote(ctx, &quote, &invoice)
		if err == nil || !isUniqueViolation(err) {
			break
		}
		if strings.Contains(err.Error(), "quote_id") {
			err = fmt.Errorf("%w: quote %s already invoiced", workflow.ErrConflict, quote.Number)
			break
		}
		log.Printf("⚠️ Invoice number %s already taken, resyncing sequence: %v", invoice.Number, err)
		if _, rerr := s.numbering.Resync(s.db.WithContext(ctx), &models.Invoice{}, models.PrefixInvoice, issuedAt.Year()); rerr != nil {
			log.Printf("❌ %v", rerr)
		}
	}
	if errors.Is(err, errQuoteAlreadyLinked) {
		return nil, fmt.Errorf("%w: quote %s already invoiced", workflow.ErrConflict, quote.Number)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: no free invoice number: %v", workflow.ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}

	metrics.InvoicesCreated.Inc()
	metrics.QuoteTransitions.WithLabelValues(string(workflow.ActionInvoice)).Inc()
	log.Printf("✅ Invoice %s created from quote %s (TTC: %.2f)", invoice.Number, quote.Number, invoice.AmountTTC)

	s.audit.LogAction(ctx, auditEntry(actor, AuditInvoice, "quote", quote.ID, map[string]interface{}{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.Number,
	}))
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "invoice", invoice.ID, map[string]interface{}{
		"number":     invoice.Number,
		"quote_id":   quote.ID,
		"amount_ttc": invoice.AmountTTC,
	}))
	s.events.Publish(ctx, NewEvent(EventInvoiceCreated, invoice.ID, map[string]interface{}{
		"number":     invoice.Number,
		"quote_id":   quote.ID,
		"client_id":  invoice.ClientID,
		"amount_ttc": invoice.AmountTTC,
		"due_date":   invoice.DueDate,
	}))
	s.notifier.NotifyRoles(ctx, []models.UserRole{models.RoleComptable}, actor.UserID, NotificationInput{
		Type:    models.NotificationInvoiceCreated,
		Title:   "Nouvelle facture",
		Message: fmt.Sprintf("La facture %s a été émise à partir du devis %s.", invoice.Number, quote.Number),
		Link:    fmt.Sprintf("/factures/%d", invoice.ID),
	})

	return s.Get(ctx, invoice.ID)
}

func newInvoiceFromQuote(quote *models.Quote, createdBy uint, issuedAt, due time.Time) models.Invoice {
	lines := make([]models.InvoiceLine, len(quote.Lines))
	for i, l := range quote.Lines {
		lines[i] = models.InvoiceLine{
			Designation: l.Designation,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineAmount:  l.LineAmount,
			Position:    l.Position,
		}
	}
	return models.Invoice{
		ClientID:    quote.ClientID,
		QuoteID:     quote.ID,
		Status:      models.InvoiceStatusIssued,
		AmountHT:    quote.AmountHT,
		TaxRate:     quote.TaxRate,
		AmountTVA:   quote.AmountTVA,
		AmountTTC:   quote.AmountTTC,
		IssuedAt:    issuedAt,
		DueDate:     due,
		CreatedByID: createdBy,
		Lines:       lines,
	}
}

func (s *InvoiceService) createFromQuote(ctx context.Context, quote *models.Quote, invoice *models.Invoice) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			log.Printf("❌ Invoice transaction rolled back after panic: %v", r)
			panic(r)
		}
	}()

	number, err := s.numbering.Next(tx, models.PrefixInvoice, invoice.IssuedAt.Year())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("invoice number: %w", err)
	}
	invoice.Number = number

	if err := tx.Create(invoice).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("create invoice: %w", err)
	}

	// Lock the quote. The WHERE clause re-checks the precondition inside
	// the transaction so a concurrent derivation affects zero rows.
	res := tx.Model(&models.Quote{}).
		Where("id = ? AND status = ? AND invoice_id IS NULL", quote.ID, models.QuoteStatusAcceptedClient).
		Updates(map[string]interface{}{
			"status":     models.QuoteStatusInvoiced,
			"invoice_id": invoice.ID,
		})
	if res.Error != nil {
		tx.Rollback()
		return fmt.Errorf("lock quote: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		tx.Rollback()
		return errQuoteAlreadyLinked
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit invoice: %w", err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Get loads an invoice with its ordered lines and client.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Client").
		First(&invoice, id).Error
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &invoice, nil
}

// List returns invoices matching f, newest first, with the total count.
func (s *InvoiceService) List(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int64, error) {
	query := s.filtered(ctx, f)
	if query.Error != nil {
		return nil, 0, query.Error
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	var invoices []models.Invoice
	err := query.
		Preload("Client").
		Order("issued_at DESC, id DESC").
		Limit(pageLimit(f.Limit)).
		Offset(f.Offset).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, total, nil
}

// ListAll returns every invoice matching f with its lines, for exports.
func (s *InvoiceService) ListAll(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error) {
	query := s.filtered(ctx, f)
	if query.Error != nil {
		return nil, query.Error
	}
	var invoices []models.Invoice
	err := query.
		Preload("Client").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("issued_at ASC, id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

func (s *InvoiceService) filtered(ctx context.Context, f InvoiceFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Invoice{})
	if f.Status != "" {
		if !f.Status.Valid() {
			query.AddError(fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, f.Status))
			return query
		}
		query = query.Where("status = ?", f.Status)
	}
	if f.ClientID != 0 {
		query = query.Where("client_id = ?", f.ClientID)
	}
	if f.QuoteID != 0 {
		query = query.Where("quote_id = ?", f.QuoteID)
	}
	if f.From != nil {
		query = query.Where("issued_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("issued_at < ?", *f.To)
	}
	return query
}

// UpdateStatus moves an invoice forward. Moving to payee goes through MarkPaid.
func (s *InvoiceService) UpdateStatus(ctx context.Context, actor Actor, id uint, to models.InvoiceStatus) (*models.Invoice, error) {
	if to == models.InvoiceStatusPaid {
		return s.MarkPaid(ctx, actor, id, PaymentInput{})
	}
	if err := actor.require(authz.InvoiceUpdate); err != nil {
		return nil, err
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	if err := workflow.CheckInvoiceTransition(invoice.Status, to); err != nil {
		return nil, err
	}

	if err := s.conditionalStatus(ctx, &invoice, map[string]interface{}{"status": to}); err != nil {
		return nil, err
	}

	log.Printf("✅ Invoice %s: %s → %s", invoice.Number, invoice.Status, to)
	s.audit.LogAction(ctx, auditEntry(actor, AuditStatusChange, "invoice", id, map[string]interface{}{
		"from": invoice.Status,
		"to":   to,
	}))
	s.events.Publish(ctx, NewEvent(EventInvoiceStatus, id, map[string]interface{}{
		"number": invoice.Number,
		"from":   invoice.Status,
		"to":     to,
	}))
	return s.Get(ctx, id)
}

// MarkPaid settles an invoice. A paid invoice is immutable afterwards.
func (s *InvoiceService) MarkPaid(ctx context.Context, actor Actor, id uint, in PaymentInput) (*models.Invoice, error) {
	if err := actor.require(authz.InvoicePay); err != nil {
		return nil, err
	}
	if in.Method != "" && !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", workflow.ErrValidation, in.Method)
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	if err := workflow.CheckInvoiceTransition(invoice.Status, models.InvoiceStatusPaid); err != nil {
		return nil, err
	}

	paidAt := s.now()
	if in.PaidAt != nil {
		if truncateDay(*in.PaidAt).Before(truncateDay(invoice.IssuedAt)) {
			return nil, fmt.Errorf("%w: payment date is before the issue date", workflow.ErrValidation)
		}
		paidAt = *in.PaidAt
	}

	updates := map[string]interface{}{
		"status":  models.InvoiceStatusPaid,
		"paid_at": paidAt,
	}
	if in.Method != "" {
		updates["payment_method"] = in.Method
	}
	if ref := strings.TrimSpace(in.TransactionRef); ref != "" {
		updates["transaction_ref"] = ref
	}
	if err := s.conditionalStatus(ctx, &invoice, updates); err != nil {
		return nil, err
	}

	log.Printf("💰 Invoice %s paid (%.2f, %s)", invoice.Number, invoice.AmountTTC, in.Method)
	s.audit.LogAction(ctx, auditEntry(actor, AuditPayment, "invoice", id, map[string]interface{}{
		"from":            invoice.Status,
		"paid_at":         paidAt,
		"payment_method":  in.Method,
		"transaction_ref": in.TransactionRef,
	}))
	s.events.Publish(ctx, NewEvent(EventInvoicePaid, id, map[string]interface{}{
		"number":     invoice.Number,
		"amount_ttc": invoice.AmountTTC,
		"paid_at":    paidAt,
	}))
	if invoice.CreatedByID != 0 && invoice.CreatedByID != actor.UserID {
		if _, err := s.notifier.Notify(ctx, invoice.CreatedByID, NotificationInput{
			Type:    models.NotificationInvoicePaid,
			Title:   "Facture payée",
			Message: fmt.Sprintf("La facture %s a été réglée.", invoice.Number),
			Link:    fmt.Sprintf("/factures/%d", id),
		}); err != nil {
			log.Printf("⚠️ Payment notification for %s failed: %v", invoice.Number, err)
		}
	}

	return s.Get(ctx, id)
}

func (s *InvoiceService) conditionalStatus(ctx context.Context, invoice *models.Invoice, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, invoice.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update invoice: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: invoice %s changed concurrently", workflow.ErrConflict, invoice.Number)
	}
	return nil
}

// Update changes the editable fields of an unpaid, non cancelled invoice.
// Amounts and lines are frozen at creation and cannot be changed here.
func (s *InvoiceService) Update(ctx context.Context, actor Actor, id uint, in InvoiceUpdateInput) (*models.Invoice, error) {
	if err := actor.require(authz.InvoiceUpdate); err != nil {
		return nil, err
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	if !workflow.InvoiceEditable(invoice.Status) {
		return nil, fmt.Errorf("%w: invoice %s is %s and can no longer be modified", workflow.ErrInvalidTransition, invoice.Number, invoice.Status)
	}

	updates := map[string]interface{}{}
	if in.DueDate != nil {
		if truncateDay(*in.DueDate).Before(truncateDay(invoice.IssuedAt)) {
			return nil, fmt.Errorf("%w: due date is before the issue date", workflow.ErrValidation)
		}
		updates["due_date"] = *in.DueDate
	}
	if in.PaymentMethod != nil {
		if *in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
			return nil, fmt.Errorf("%w: unknown payment method %q", workflow.ErrValidation, *in.PaymentMethod)
		}
		updates["payment_method"] = *in.PaymentMethod
	}
	if in.TransactionRef != nil {
		updates["transaction_ref"] = strings.TrimSpace(*in.TransactionRef)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", workflow.ErrValidation)
	}

	if err := s.conditionalStatus(ctx, &invoice, updates); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "invoice", id, updates))
	return s.Get(ctx, id)
}

// MarkOverdue flags unpaid invoices whose due date is before now as
// en_retard and returns how many were moved.
func (s *InvoiceService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	var candidates []models.Invoice
	err := s.db.WithContext(ctx).
		Select("id", "number", "status", "due_date", "created_by_id").
		Where("status IN ? AND due_date < ?", []models.InvoiceStatus{models.InvoiceStatusIssued, models.InvoiceStatusSent}, now).
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("find overdue invoices: %w", err)
	}
	overdue := candidates[:0]
	for _, inv := range candidates {
		if inv.IsOverdue(now) {
			overdue = append(overdue, inv)
		}
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	ids := make([]uint, len(overdue))
	for i, inv := range overdue {
		ids[i] = inv.ID
	}
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id IN ? AND status IN ?", ids, []models.InvoiceStatus{models.InvoiceStatusIssued, models.InvoiceStatusSent}).
		Update("status", models.InvoiceStatusOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("mark overdue: %w", res.Error)
	}

	metrics.InvoicesOverdue.Add(float64(res.RowsAffected))
	log.Printf("⏰ %d invoice(s) moved to en_retard", res.RowsAffected)

	for _, inv := range overdue {
		s.audit.LogAction(ctx, AuditEntry{
			ActionType: AuditStatusChange,
			EntityType: "invoice",
			EntityID:   inv.ID,
			Details:    map[string]interface{}{"to": models.InvoiceStatusOverdue, "by": "overdue_sweep"},
		})
	}
	numbers := make([]string, len(overdue))
	for i, inv := range overdue {
		numbers[i] = inv.Number
	}
	s.notifier.NotifyRoles(ctx, []models.UserRole{models.RoleComptable, models.RoleAdmin}, 0, NotificationInput{
		Type:    models.NotificationInvoiceOverdue,
		Title:   "Factures en retard",
		Message: fmt.Sprintf("%d facture(s) dépassent leur échéance : %s", len(numbers), strings.Join(numbers, ", ")),
		Link:    "/factures?status=en_retard",
	})

	return res.RowsAffected, nil
}

// RunOverdueSweep calls MarkOverdue every interval until ctx is cancelled.
func (s *InvoiceService) RunOverdueSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.MarkOverdue(ctx, s.now()); err != nil {
				log.Printf("❌ Overdue sweep failed: %v", err)
			}
		}
	}
}
