package models

import (
	"time"

	"gorm.io/gorm"
)

// QuoteStatus is the lifecycle state of a devis.
type QuoteStatus string

const (
	QuoteStatusDraft          QuoteStatus = "brouillon"      // being prepared
	QuoteStatusSent           QuoteStatus = "envoye"         // submitted to the DG
	QuoteStatusApprovedDG     QuoteStatus = "valide_dg"      // approved by the DG
	QuoteStatusRejectedDG     QuoteStatus = "refuse_dg"      // rejected by the DG, editable
	QuoteStatusAcceptedClient QuoteStatus = "accepte_client" // accepted by the client
	QuoteStatusRejectedClient QuoteStatus = "refuse_client"  // rejected by the client, editable
	QuoteStatusInvoiced       QuoteStatus = "facture"        // an invoice was derived, terminal
)

// AllQuoteStatuses lists every status in workflow order.
var AllQuoteStatuses = []QuoteStatus{
	QuoteStatusDraft,
	QuoteStatusSent,
	QuoteStatusApprovedDG,
	QuoteStatusRejectedDG,
	QuoteStatusAcceptedClient,
	QuoteStatusRejectedClient,
	QuoteStatusInvoiced,
}

// Valid reports whether s is a known status.
func (s QuoteStatus) Valid() bool {
	for _, known := range AllQuoteStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Quote is a devis: a priced proposal that needs DG then client approval
// before it can be invoiced.
type Quote struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	Number      string      `json:"number" gorm:"type:varchar(20);uniqueIndex;not null"` // DEV-2026-0001
	ClientID    uint        `json:"client_id" gorm:"not null;index"`
	Client      *Client     `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	MissionID   *uint       `json:"mission_id,omitempty" gorm:"index"`
	Mission     *Mission    `json:"mission,omitempty" gorm:"foreignKey:MissionID"`
	Title       string      `json:"title" gorm:"type:varchar(255);not null"`
	Description string      `json:"description" gorm:"type:text"`
	Status      QuoteStatus `json:"status" gorm:"type:varchar(20);not null;default:'brouillon';index"`

	TaxRate   float64 `json:"tax_rate" gorm:"type:numeric(5,2);not null;default:18"`
	AmountHT  float64 `json:"amount_ht" gorm:"type:numeric(18,4);not null;default:0"`
	AmountTVA float64 `json:"amount_tva" gorm:"type:numeric(18,4);not null;default:0"`
	AmountTTC float64 `json:"amount_ttc" gorm:"type:numeric(18,4);not null;default:0"`

	ValidUntil time.Time `json:"valid_until" gorm:"not null"`
	Expired    bool      `json:"expired" gorm:"-"` // computed on read

	DGValidatedAt     *time.Time `json:"dg_validated_at,omitempty"`
	DGComment         string     `json:"dg_comment,omitempty" gorm:"type:text"`
	ValidatedByID     *uint      `json:"validated_by_id,omitempty"`
	ClientRespondedAt *time.Time `json:"client_responded_at,omitempty"`
	ClientComment     string     `json:"client_comment,omitempty" gorm:"type:text"`

	// Set together with Status=facture, never cleared afterwards.
	InvoiceID *uint `json:"invoice_id,omitempty" gorm:"index"`

	CreatedByID uint           `json:"created_by_id" gorm:"not null;index"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Lines []QuoteLine `json:"lines" gorm:"foreignKey:QuoteID"`
}

func (Quote) TableName() string {
	return "quotes"
}

// BeforeCreate applies defaults.
func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.Status == "" {
		q.Status = QuoteStatusDraft
	}
	if q.ValidUntil.IsZero() {
		q.ValidUntil = time.Now().AddDate(0, 0, 30)
	}
	return nil
}

// QuoteOpenStatuses are the statuses still waiting for an answer. Only
// those can expire.
var QuoteOpenStatuses = []QuoteStatus{
	QuoteStatusDraft,
	QuoteStatusSent,
	QuoteStatusApprovedDG,
	QuoteStatusRejectedDG,
}

// ExpiryCutoff is the start of now's day in UTC. A quote whose ValidUntil
// is before it has expired: a quote valid until today is still valid today.
func ExpiryCutoff(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsExpired reports whether the validity date is past and the quote still
// waits for an answer.
func (q *Quote) IsExpired(now time.Time) bool {
	open := false
	for _, s := range QuoteOpenStatuses {
		if q.Status == s {
			open = true
			break
		}
	}
	return open && q.ValidUntil.Before(ExpiryCutoff(now))
}

// QuoteLine is one priced row of a quote. LineAmount = Quantity * UnitPrice.
type QuoteLine struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	QuoteID     uint    `json:"quote_id" gorm:"not null;index"`
	Designation string  `json:"designation" gorm:"type:varchar(500);not null"`
	Quantity    float64 `json:"quantity" gorm:"type:numeric(18,4);not null"`
	UnitPrice   float64 `json:"unit_price" gorm:"type:numeric(18,4);not null"`
	LineAmount  float64 `json:"line_amount" gorm:"type:numeric(18,4);not null"`
	Position    int     `json:"position" gorm:"not null"` // 1-based
}

func (QuoteLine) TableName() string {
	return "quote_lines"
}
