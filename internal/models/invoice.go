package models

import (
	"time"

	"gorm.io/gorm"
)

// InvoiceStatus is the lifecycle state of a facture.
type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "emise"     // created from an accepted quote
	InvoiceStatusSent      InvoiceStatus = "envoyee"   // sent to the client
	InvoiceStatusOverdue   InvoiceStatus = "en_retard" // unpaid after the due date
	InvoiceStatusPaid      InvoiceStatus = "payee"     // terminal, immutable
	InvoiceStatusCancelled InvoiceStatus = "annulee"   // terminal
)

// AllInvoiceStatuses lists every status.
var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusIssued,
	InvoiceStatusSent,
	InvoiceStatusOverdue,
	InvoiceStatusPaid,
	InvoiceStatusCancelled,
}

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	for _, known := range AllInvoiceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PaymentMethod is how an invoice was settled.
type PaymentMethod string

const (
	PaymentMethodTransfer    PaymentMethod = "virement"
	PaymentMethodCheck       PaymentMethod = "cheque"
	PaymentMethodCash        PaymentMethod = "especes"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "carte"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodTransfer, PaymentMethodCheck, PaymentMethodCash, PaymentMethodMobileMoney, PaymentMethodCard:
		return true
	}
	return false
}

// Invoice is a facture derived from exactly one accepted quote. Amounts and
// lines are copied at creation time and never follow the quote afterwards.
type Invoice struct {
	ID       uint          `json:"id" gorm:"primaryKey"`
	Number   string        `json:"number" gorm:"type:varchar(20);uniqueIndex;not null"` // FAC-2026-0001
	ClientID uint          `json:"client_id" gorm:"not null;index"`
	Client   *Client       `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	QuoteID  uint          `json:"quote_id" gorm:"not null;uniqueIndex"`
	Status   InvoiceStatus `json:"status" gorm:"type:varchar(20);not null;default:'emise';index"`

	AmountHT  float64 `json:"amount_ht" gorm:"type:numeric(18,4);not null"`
	TaxRate   float64 `json:"tax_rate" gorm:"type:numeric(5,2);not null"`
	AmountTVA float64 `json:"amount_tva" gorm:"type:numeric(18,4);not null"`
	AmountTTC float64 `json:"amount_ttc" gorm:"type:numeric(18,4);not null"`

	IssuedAt       time.Time     `json:"issued_at" gorm:"not null;index"`
	DueDate        time.Time     `json:"due_date" gorm:"not null;index"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	PaymentMethod  PaymentMethod `json:"payment_method,omitempty" gorm:"type:varchar(30)"`
	TransactionRef string        `json:"transaction_ref,omitempty" gorm:"type:varchar(120)"`

	CreatedByID uint           `json:"created_by_id" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Lines []InvoiceLine `json:"lines" gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// BeforeCreate applies defaults.
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.Status == "" {
		i.Status = InvoiceStatusIssued
	}
	if i.IssuedAt.IsZero() {
		i.IssuedAt = time.Now()
	}
	return nil
}

// IsOverdue reports whether the invoice should move to en_retard: still
// emise or envoyee and past its due date.
func (i *Invoice) IsOverdue(now time.Time) bool {
	switch i.Status {
	case InvoiceStatusIssued, InvoiceStatusSent:
		return now.After(i.DueDate)
	}
	return false
}

// InvoiceLine is an independent copy of a QuoteLine.
type InvoiceLine struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	InvoiceID   uint    `json:"invoice_id" gorm:"not null;index"`
	Designation string  `json:"designation" gorm:"type:varchar(500);not null"`
	Quantity    float64 `json:"quantity" gorm:"type:numeric(18,4);not null"`
	UnitPrice   float64 `json:"unit_price" gorm:"type:numeric(18,4);not null"`
	LineAmount  float64 `json:"line_amount" gorm:"type:numeric(18,4);not null"`
	Position    int     `json:"position" gorm:"not null"`
}

func (InvoiceLine) TableName() string {
	return "invoice_lines"
}
