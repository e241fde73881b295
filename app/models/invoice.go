package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses owned by the billing host.
const (
	InvoiceStatusUnpaid    = "Unpaid"
	InvoiceStatusPaid      = "Paid"
	InvoiceStatusCancelled = "Cancelled"
)

// Billing cycles that never qualify for automatic payment.
const (
	BillingCycleOneTime     = "One Time"
	BillingCycleFree        = "Free"
	BillingCycleFreeAccount = "Free Account"
)

// Invoice item types that reference a client service.
const (
	InvoiceItemTypeHosting = "Hosting"
	InvoiceItemTypeProduct = "Product"
	InvoiceItemTypeService = "Product/Service"
)

// Invoice mirrors the billing host's invoice table. The connector only
// reads it and applies status/notes/payment updates; the host owns the
// rest of the lifecycle.
type Invoice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Status    string          `gorm:"type:varchar(20);not null;default:'Unpaid';index" json:"status"`
	Notes     string          `gorm:"type:text" json:"notes"`
	Total     decimal.Decimal `gorm:"type:decimal(16,2);not null;default:0" json:"total"`
	Currency  string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	DueDate   time.Time       `gorm:"type:date;index" json:"due_date"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceItem links an invoice line to the client service it bills.
type InvoiceItem struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	InvoiceID uint   `gorm:"not null;index" json:"invoice_id"`
	Type      string `gorm:"type:varchar(30);not null" json:"type"`
	RelID     uint   `gorm:"not null;index" json:"rel_id"`
}

// ClientService carries the billing cycle the sweep filters on.
type ClientService struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	UserID       uint   `gorm:"not null;index" json:"user_id"`
	BillingCycle string `gorm:"type:varchar(30);not null;default:'Monthly'" json:"billing_cycle"`
}

// InvoicePayment is one recorded payment against an invoice. The
// transaction id is the processor's paymentId; the unique index is the
// guard against applying the same capture twice.
type InvoicePayment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InvoiceID     uint            `gorm:"not null;index:ux_invoice_payments_invoice_txn,unique,priority:1" json:"invoice_id"`
	TransactionID string          `gorm:"type:varchar(191);not null;index:ux_invoice_payments_invoice_txn,unique,priority:2" json:"transaction_id"`
	Gateway       string          `gorm:"type:varchar(50);not null;index" json:"gateway"`
	Amount        decimal.Decimal `gorm:"type:decimal(16,2);not null" json:"amount"`
	Fees          decimal.Decimal `gorm:"type:decimal(16,2);not null;default:0" json:"fees"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// IsRecurringCycle reports whether a billing cycle qualifies a service
// for auto-payment.
func IsRecurringCycle(cycle string) bool {
	switch cycle {
	case BillingCycleOneTime, BillingCycleFree, BillingCycleFreeAccount:
		return false
	default:
		return cycle != ""
	}
}
