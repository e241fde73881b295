package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/AmirHossein87/payment-plugins/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayName tags settings rows, payments and log entries written by
// this integration.
const GatewayName = "paymenthood"

// Credentials is the integration's configuration read from the host's
// gateway settings table. Any field may be empty on a fresh install.
type Credentials struct {
	AppID        string
	AccessToken  string
	WebhookToken string
	Activated    bool
}

// Complete reports whether the integration can talk to the processor
// and authenticate webhooks.
func (c Credentials) Complete() bool {
	return c.AppID != "" && c.AccessToken != "" && c.WebhookToken != ""
}

// CredentialStore reads and writes the integration's settings.
type CredentialStore interface {
	Credentials() (Credentials, error)
	SaveSetting(setting, value string) error
}

// InvoiceGateway is the host's invoice command surface as used by the
// reconciler and the sweep.
type InvoiceGateway interface {
	GetInvoice(id uint) (*models.Invoice, error)
	UpdateInvoiceNotes(id uint, notes string) error
	CancelInvoice(id uint, note string) error
	AddPayment(invoiceID uint, transactionID string, amount, fee decimal.Decimal, gatewayName string) error
	HasPaymentWithTransaction(invoiceID uint, transactionID string) (bool, error)
	InvoiceHasRecurringItem(invoiceID uint) (bool, error)
	ListUnpaidRecurringDue(asOf time.Time) ([]models.Invoice, error)
}

// WebhookEventStore journals webhook deliveries idempotently.
type WebhookEventStore interface {
	RecordDelivery(referenceID string, payload []byte, authValid bool) (*models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingErr error) error
}

// Repository is the GORM-backed implementation of all three stores.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Credentials() (Credentials, error) {
	var rows []models.GatewaySetting
	err := r.db.
		Where("gateway = ? AND setting IN ?", GatewayName,
			[]string{models.SettingAppID, models.SettingToken, models.SettingWebhookToken, models.SettingActivated}).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	for _, row := range rows {
		switch row.Setting {
		case models.SettingAppID:
			creds.AppID = row.Value
		case models.SettingToken:
			creds.AccessToken = row.Value
		case models.SettingWebhookToken:
			creds.WebhookToken = row.Value
		case models.SettingActivated:
			creds.Activated = row.Value == "1"
		}
	}
	return creds, nil
}

// SaveSetting upserts one logical setting. Historical installs contain
// duplicate rows for a setting, so the write first collapses them to
// the earliest row inside the same transaction.
func (r *Repository) SaveSetting(setting, value string) error {
	normalized := strings.ToLower(strings.TrimSpace(setting))

	return r.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.GatewaySetting
		if err := tx.
			Where("gateway = ? AND TRIM(LOWER(setting)) = ?", GatewayName, normalized).
			Order("id").
			Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return tx.Create(&models.GatewaySetting{
				Gateway: GatewayName,
				Setting: setting,
				Value:   value,
			}).Error
		}

		keep := rows[0]
		for _, extra := range rows[1:] {
			if err := tx.Delete(&models.GatewaySetting{}, extra.ID).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.GatewaySetting{}).Where("id = ?", keep.ID).
			Update("value", value).Error
	})
}

func (r *Repository) GetInvoice(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.First(&invoice, id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *Repository) UpdateInvoiceNotes(id uint, notes string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("notes", notes).Error
}

func (r *Repository) CancelInvoice(id uint, note string) error {
	updates := map[string]interface{}{"status": models.InvoiceStatusCancelled}
	if note != "" {
		updates["notes"] = note
	}
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) AddPayment(invoiceID uint, transactionID string, amount, fee decimal.Decimal, gatewayName string) error {
	payment := models.InvoicePayment{
		InvoiceID:     invoiceID,
		TransactionID: transactionID,
		Gateway:       gatewayName,
		Amount:        amount,
		Fees:          fee,
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Invoice{}).Where("id = ?", invoiceID).
			Update("status", models.InvoiceStatusPaid).Error
	})
}

func (r *Repository) HasPaymentWithTransaction(invoiceID uint, transactionID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.InvoicePayment{}).
		Where("invoice_id = ? AND transaction_id = ?", invoiceID, transactionID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) InvoiceHasRecurringItem(invoiceID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.InvoiceItem{}).
		Joins("JOIN client_services ON client_services.id = invoice_items.rel_id").
		Where("invoice_items.invoice_id = ?", invoiceID).
		Where("invoice_items.type IN ?", []string{models.InvoiceItemTypeHosting, models.InvoiceItemTypeProduct, models.InvoiceItemTypeService}).
		Where("client_services.billing_cycle NOT IN ?", []string{models.BillingCycleOneTime, models.BillingCycleFree, models.BillingCycleFreeAccount}).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) ListUnpaidRecurringDue(asOf time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Model(&models.Invoice{}).
		Distinct("invoices.*").
		Joins("JOIN invoice_items ON invoice_items.invoice_id = invoices.id").
		Joins("JOIN client_services ON client_services.id = invoice_items.rel_id").
		Where("invoices.status = ?", models.InvoiceStatusUnpaid).
		Where("invoices.due_date <= ?", asOf.Format("2006-01-02")).
		Where("invoice_items.type IN ?", []string{models.InvoiceItemTypeHosting, models.InvoiceItemTypeProduct, models.InvoiceItemTypeService}).
		Where("client_services.billing_cycle NOT IN ?", []string{models.BillingCycleOneTime, models.BillingCycleFree, models.BillingCycleFreeAccount}).
		Find(&invoices).Error
	return invoices, err
}

func (r *Repository) RecordDelivery(referenceID string, payload []byte, authValid bool) (*models.PaymentWebhookEvent, error) {
	sum := sha256.Sum256(payload)
	event := models.PaymentWebhookEvent{
		Gateway:     GatewayName,
		EventID:     "hash:" + hex.EncodeToString(sum[:]),
		ReferenceID: referenceID,
		PayloadJSON: string(payload),
		AuthValid:   authValid,
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(&event)
	if tx.Error != nil {
		return nil, tx.Error
	}

	var stored models.PaymentWebhookEvent
	if err := r.db.Where("gateway = ? AND event_id = ?", GatewayName, event.EventID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *Repository) MarkProcessed(id uint, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": errMsg,
		}).Error
}
