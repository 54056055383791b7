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

// Notifier is the notification side of the business services.
type Notifier interface {
	Notify(ctx context.Context, userID uint, in NotificationInput) (*models.Notification, error)
	NotifyRoles(ctx context.Context, roles []models.UserRole, skipUserID uint, in NotificationInput) int
}

// QuoteService manages devis and their status workflow.
type QuoteService struct {
	db        *gorm.DB
	numbering *NumberingService
	audit     Auditor
	notifier  Notifier
	events    EventPublisher
	now       func() time.Time
}

// NewQuoteService creates a QuoteService. A nil events publisher drops events.
func NewQuoteService(db *gorm.DB, numbering *NumberingService, audit Auditor, notifier Notifier, events EventPublisher) *QuoteService {
	if events == nil {
		events = NopPublisher{}
	}
	return &QuoteService{
		db:        db,
		numbering: numbering,
		audit:     audit,
		notifier:  notifier,
		events:    events,
		now:       time.Now,
	}
}

// QuoteInput is the editable content of a quote.
type QuoteInput struct {
	ClientID    uint                 `json:"client_id"`
	MissionID   *uint                `json:"mission_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	TaxRate     *float64             `json:"tax_rate"`
	ValidUntil  *time.Time           `json:"valid_until"`
	Lines       []workflow.LineInput `json:"lines"`
}

// QuoteFilter narrows List.
type QuoteFilter struct {
	Status      models.QuoteStatus
	ClientID    uint
	MissionID   uint
	CreatedByID uint
	Search      string
	Expired     bool // only open quotes past their validity date
	Limit       int
	Offset      int
}

type preparedQuote struct {
	taxRate float64
	totals  workflow.Totals
	lines   []models.QuoteLine
}

// prepare validates in and computes totals and lines. It touches the
// database only to check the client and mission references.
func (s *QuoteService) prepare(ctx context.Context, in QuoteInput) (*preparedQuote, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", workflow.ErrValidation)
	}
	if in.ClientID == 0 {
		return nil, fmt.Errorf("%w: client_id is required", workflow.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: a quote needs at least one line", workflow.ErrValidation)
	}

	taxRate := workflow.DefaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}

	totals, err := workflow.ComputeTotals(in.Lines, taxRate)
	if err != nil {
		return nil, err
	}

	lines := make([]models.QuoteLine, len(in.Lines))
	for i, l := range in.Lines {
		designation := strings.TrimSpace(l.Designation)
		if designation == "" {
			return nil, fmt.Errorf("%w: line %d: designation is required", workflow.ErrValidation, i+1)
		}
		amount, err := workflow.ComputeLineAmount(l.Quantity, l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines[i] = models.QuoteLine{
			Designation: designation,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineAmount:  amount,
			Position:    i + 1,
		}
	}

	var client models.Client
	if err := s.db.WithContext(ctx).Select("id").First(&client, in.ClientID).Error; err != nil {
		return nil, notFound(err, "client", in.ClientID)
	}
	if in.MissionID != nil {
		var mission models.Mission
		if err := s.db.WithContext(ctx).Select("id", "client_id").First(&mission, *in.MissionID).Error; err != nil {
			return nil, notFound(err, "mission", *in.MissionID)
		}
		if mission.ClientID != in.ClientID {
			return nil, fmt.Errorf("%w: mission %d does not belong to client %d", workflow.ErrValidation, mission.ID, in.ClientID)
		}
	}

	return &preparedQuote{taxRate: taxRate, totals: totals, lines: lines}, nil
}

// checkValidUntil accepts today or later. Dates are compared by calendar
// day in UTC, so a date-only value for today is not "in the past".
func checkValidUntil(validUntil, now time.Time) error {
	if truncateDay(validUntil.UTC()).Before(truncateDay(now.UTC())) {
		return fmt.Errorf("%w: valid_until %s is in the past", workflow.ErrValidation, validUntil.Format("2006-01-02"))
	}
	return nil
}

// Create stores a new quote in status brouillon with a fresh DEV number.
func (s *QuoteService) Create(ctx context.Context, actor Actor, in QuoteInput) (*models.Quote, error) {
	if err := actor.require(authz.QuoteCreate); err != nil {
		return nil, err
	}
	p, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	validUntil := now.AddDate(0, 0, 30)
	if in.ValidUntil != nil {
		if err := checkValidUntil(*in.ValidUntil, now); err != nil {
			return nil, err
		}
		validUntil = *in.ValidUntil
	}

	var quote models.Quote
	for attempt := 0; attempt < numberAttempts; attempt++ {
		quote = models.Quote{
			ClientID:    in.ClientID,
			MissionID:   in.MissionID,
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Status:      models.QuoteStatusDraft,
			TaxRate:     p.taxRate,
			AmountHT:    p.totals.AmountHT,
			AmountTVA:   p.totals.AmountTVA,
			AmountTTC:   p.totals.AmountTTC,
			ValidUntil:  validUntil,
			CreatedByID: actor.UserID,
			Lines:       append([]models.QuoteLine(nil), p.lines...),
		}
		err = s.createQuote(ctx, &quote, now.Year())
		if err == nil || !isUniqueViolation(err) {
			break
		}
		log.Printf("⚠️ Quote number %s already taken, resyncing sequence: %v", quote.Number, err)
		if _, rerr := s.numbering.Resync(s.db.WithContext(ctx), &models.Quote{}, models.PrefixQuote, now.Year()); rerr != nil {
			log.Printf("❌ %v", rerr)
		}
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: no free quote number: %v", workflow.ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Quote created: %s (ID: %d, TTC: %.2f)", quote.Number, quote.ID, quote.AmountTTC)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "quote", quote.ID, map[string]interface{}{
		"number":     quote.Number,
		"amount_ttc": quote.AmountTTC,
	}))
	s.events.Publish(ctx, NewEvent(EventQuoteCreated, quote.ID, map[string]interface{}{
		"number":     quote.Number,
		"client_id":  quote.ClientID,
		"amount_ttc": quote.AmountTTC,
	}))

	return s.Get(ctx, quote.ID)
}

func (s *QuoteService) createQuote(ctx context.Context, quote *models.Quote, year int) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			log.Printf("❌ Quote transaction rolled back after panic: %v", r)
			panic(r)
		}
	}()

	number, err := s.numbering.Next(tx, models.PrefixQuote, year)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("quote number: %w", err)
	}
	quote.Number = number

	if err := tx.Create(quote).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("create quote: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit quote: %w", err)
	}
	return nil
}

// Get loads a quote with its ordered lines, client and mission.
func (s *QuoteService) Get(ctx context.Context, id uint) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Client").
		Preload("Mission").
		First(&quote, id).Error
	if err != nil {
		return nil, notFound(err, "quote", id)
	}
	quote.Expired = quote.IsExpired(s.now())
	return &quote, nil
}

// List returns quotes matching f, newest first, with the total count.
func (s *QuoteService) List(ctx context.Context, f QuoteFilter) ([]models.Quote, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Quote{})

	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, f.Status)
		}
		query = query.Where("status = ?", f.Status)
	}
	if f.ClientID != 0 {
		query = query.Where("client_id = ?", f.ClientID)
	}
	if f.MissionID != 0 {
		query = query.Where("mission_id = ?", f.MissionID)
	}
	if f.CreatedByID != 0 {
		query = query.Where("created_by_id = ?", f.CreatedByID)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(number) LIKE ? OR LOWER(title) LIKE ?", like, like)
	}

	now := s.now()
	if f.Expired {
		query = query.Where("status IN ? AND valid_until < ?", models.QuoteOpenStatuses, models.ExpiryCutoff(now))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count quotes: %w", err)
	}

	var quotes []models.Quote
	err := query.
		Preload("Client").
		Order("created_at DESC, id DESC").
		Limit(pageLimit(f.Limit)).
		Offset(f.Offset).
		Find(&quotes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	for i := range quotes {
		quotes[i].Expired = quotes[i].IsExpired(now)
	}
	return quotes, total, nil
}

// Update replaces the content and lines of an editable quote and recomputes
// the totals. Editing a refused quote brings it back to brouillon so it can
// be submitted again; the previous DG and client answers are cleared.
func (s *QuoteService) Update(ctx context.Context, actor Actor, id uint, in QuoteInput) (*models.Quote, error) {
	if err := actor.require(authz.QuoteUpdate); err != nil {
		return nil, err
	}

	var quote models.Quote
	if err := s.db.WithContext(ctx).First(&quote, id).Error; err != nil {
		return nil, notFound(err, "quote", id)
	}
	if !workflow.CanEdit(quote.Status) {
		return nil, fmt.Errorf("%w: quote %s cannot be edited in status %s", workflow.ErrInvalidTransition, quote.Number, quote.Status)
	}

	p, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"client_id":           in.ClientID,
		"mission_id":          in.MissionID,
		"title":               strings.TrimSpace(in.Title),
		"description":         in.Description,
		"tax_rate":            p.taxRate,
		"amount_ht":           p.totals.AmountHT,
		"amount_tva":          p.totals.AmountTVA,
		"amount_ttc":          p.totals.AmountTTC,
		"status":              models.QuoteStatusDraft,
		"dg_validated_at":     nil,
		"dg_comment":          "",
		"validated_by_id":     nil,
		"client_responded_at": nil,
		"client_comment":      "",
	}
	if in.ValidUntil != nil {
		if err := checkValidUntil(*in.ValidUntil, s.now()); err != nil {
			return nil, err
		}
		updates["valid_until"] = *in.ValidUntil
	}

	previous := quote.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Quote{}).
			Where("id = ? AND status = ?", id, previous).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update quote: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: quote %d changed concurrently", workflow.ErrConflict, id)
		}

		if err := tx.Where("quote_id = ?", id).Delete(&models.QuoteLine{}).Error; err != nil {
			return fmt.Errorf("delete quote lines: %w", err)
		}
		lines := p.lines
		for i := range lines {
			lines[i].QuoteID = id
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("create quote lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Quote updated: %s (ID: %d)", quote.Number, id)
	details := map[string]interface{}{"amount_ttc": p.totals.AmountTTC, "lines": len(p.lines)}
	if previous != models.QuoteStatusDraft {
		details["reopened_from"] = previous
	}
	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "quote", id, details))

	return s.Get(ctx, id)
}

// Delete removes an editable quote and its lines.
func (s *QuoteService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := actor.require(authz.QuoteDelete); err != nil {
		return err
	}

	var quote models.Quote
	if err := s.db.WithContext(ctx).First(&quote, id).Error; err != nil {
		return notFound(err, "quote", id)
	}
	if !workflow.CanDelete(quote.Status) {
		return fmt.Errorf("%w: quote %s cannot be deleted in status %s", workflow.ErrInvalidTransition, quote.Number, quote.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, quote.Status).Delete(&models.Quote{})
		if res.Error != nil {
			return fmt.Errorf("delete quote: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: quote %d changed concurrently", workflow.ErrConflict, id)
		}
		if err := tx.Where("quote_id = ?", id).Delete(&models.QuoteLine{}).Error; err != nil {
			return fmt.Errorf("delete quote lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("🗑️ Quote deleted: %s (ID: %d)", quote.Number, id)
	s.audit.LogAction(ctx, auditEntry(actor, AuditDelete, "quote", id, map[string]interface{}{"number": quote.Number}))
	return nil
}

// Submit sends a draft to the DG (brouillon → envoye).
func (s *QuoteService) Submit(ctx context.Context, actor Actor, id uint) (*models.Quote, error) {
	return s.apply(ctx, actor, id, workflow.ActionSubmit, "")
}

// Validate records the DG decision (envoye → valide_dg | refuse_dg).
func (s *QuoteService) Validate(ctx context.Context, actor Actor, id uint, approve bool, comment string) (*models.Quote, error) {
	action := workflow.ActionValidateReject
	if approve {
		action = workflow.ActionValidateApprove
	}
	return s.apply(ctx, actor, id, action, comment)
}

// RespondClient records the client answer (valide_dg → accepte_client | refuse_client).
func (s *QuoteService) RespondClient(ctx context.Context, actor Actor, id uint, accept bool, comment string) (*models.Quote, error) {
	action := workflow.ActionClientReject
	if accept {
		action = workflow.ActionClientAccept
	}
	return s.apply(ctx, actor, id, action, comment)
}

// apply runs the status guard, then writes conditionally on the status that
// was checked so that two concurrent transitions cannot both win.
func (s *QuoteService) apply(ctx context.Context, actor Actor, id uint, action workflow.QuoteAction, comment string) (*models.Quote, error) {
	if action == workflow.ActionInvoice {
		return nil, errors.New("invoice creation goes through InvoiceService.CreateFromQuote")
	}

	var quote models.Quote
	if err := s.db.WithContext(ctx).First(&quote, id).Error; err != nil {
		return nil, notFound(err, "quote", id)
	}

	to, err := workflow.Transition(quote.Status, action, actor.Role)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{"status": to}
	comment = strings.TrimSpace(comment)
	switch action {
	case workflow.ActionValidateApprove, workflow.ActionValidateReject:
		updates["dg_validated_at"] = now
		updates["dg_comment"] = comment
		updates["validated_by_id"] = actor.UserID
	case workflow.ActionClientAccept, workflow.ActionClientReject:
		updates["client_responded_at"] = now
		updates["client_comment"] = comment
	}

	res := s.db.WithContext(ctx).Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, quote.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update quote status: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: quote %s changed concurrently", workflow.ErrConflict, quote.Number)
	}

	metrics.QuoteTransitions.WithLabelValues(string(action)).Inc()
	log.Printf("✅ Quote %s: %s → %s (by user %d)", quote.Number, quote.Status, to, actor.UserID)

	s.audit.LogAction(ctx, auditEntry(actor, auditActionFor(action), "quote", id, map[string]interface{}{
		"from":    quote.Status,
		"to":      to,
		"comment": comment,
	}))
	s.events.Publish(ctx, NewEvent(EventQuoteStatusChanged, id, map[string]interface{}{
		"number": quote.Number,
		"from":   quote.Status,
		"to":     to,
		"action": action,
	}))
	s.notifyTransition(ctx, actor, &quote, action, comment)

	return s.Get(ctx, id)
}

func auditActionFor(action workflow.QuoteAction) string {
	switch action {
	case workflow.ActionSubmit:
		return AuditSubmit
	case workflow.ActionValidateApprove, workflow.ActionValidateReject:
		return AuditValidate
	case workflow.ActionClientAccept, workflow.ActionClientReject:
		return AuditClientResponse
	}
	return AuditStatusChange
}

func (s *QuoteService) notifyTransition(ctx context.Context, actor Actor, quote *models.Quote, action workflow.QuoteAction, comment string) {
	link := fmt.Sprintf("/devis/%d", quote.ID)
	switch action {
	case workflow.ActionSubmit:
		s.notifier.NotifyRoles(ctx, []models.UserRole{models.RoleDG, models.RoleAdmin}, actor.UserID, NotificationInput{
			Type:    models.NotificationQuoteSubmitted,
			Title:   "Devis à valider",
			Message: fmt.Sprintf("Le devis %s (%s) attend votre validation.", quote.Number, quote.Title),
			Link:    link,
			Email:   true,
		})
		return
	}

	var in NotificationInput
	switch action {
	case workflow.ActionValidateApprove:
		in = NotificationInput{Type: models.NotificationQuoteValidated, Title: "Devis validé",
			Message: fmt.Sprintf("Le devis %s a été validé par la direction.", quote.Number)}
	case workflow.ActionValidateReject:
		in = NotificationInput{Type: models.NotificationQuoteRejected, Title: "Devis refusé",
			Message: fmt.Sprintf("Le devis %s a été refusé par la direction.", quote.Number)}
	case workflow.ActionClientAccept:
		in = NotificationInput{Type: models.NotificationQuoteAnswered, Title: "Devis accepté par le client",
			Message: fmt.Sprintf("Le client a accepté le devis %s.", quote.Number)}
	case workflow.ActionClientReject:
		in = NotificationInput{Type: models.NotificationQuoteAnswered, Title: "Devis refusé par le client",
			Message: fmt.Sprintf("Le client a refusé le devis %s.", quote.Number)}
	default:
		return
	}
	if comment != "" {
		in.Message += " Commentaire : " + comment
	}
	in.Link = link
	in.Email = true

	if quote.CreatedByID != 0 && quote.CreatedByID != actor.UserID {
		if _, err := s.notifier.Notify(ctx, quote.CreatedByID, in); err != nil {
			log.Printf("⚠️ Notification for quote %s failed: %v", quote.Number, err)
		}
	}
}
