package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AmirHossein87/payment-plugins/app/models"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/env"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/modulelog"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/paymenthood"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Marker written into invoice notes the first time a provider state is
// seen; its presence suppresses further annotations.
const noteMarker = "Payment provider state"

// ErrNotConfigured is returned when the integration misses appId,
// token or webhookToken. Fail closed, no retry: the merchant has to
// re-run activation.
var ErrNotConfigured = errors.New("payment gateway not configured")

// PaymentClient is the processor surface the service depends on,
// satisfied by *paymenthood.Client and by test doubles.
type PaymentClient interface {
	FetchPaymentByReference(ctx context.Context, appID, accessToken, referenceID string) (*paymenthood.Payment, error)
	CreateHostedPayment(ctx context.Context, appID, accessToken string, req paymenthood.HostedPaymentRequest) (*paymenthood.HostedPaymentResponse, error)
	CreateAutoPayment(ctx context.Context, appID, accessToken string, req paymenthood.AutoPaymentRequest) (*paymenthood.AutoPaymentResponse, error)
	ListVerifiedPaymentMethods(ctx context.Context, appID, accessToken, customerID string) ([]paymenthood.PaymentMethod, error)
	FetchCustomerPanelURL(ctx context.Context, appID, accessToken, customerID string) (string, error)
	IssueBotToken(ctx context.Context, appID, authorizationCode string) (string, error)
	SyncWebhookConfig(ctx context.Context, appID, accessToken, webhookToken string) error
	ActivationURL(returnURL, appID string) string
}

// Result classifies a reconciliation run.
type Result string

const (
	ResultSuccess       Result = "success"
	ResultFailed        Result = "failed"
	ResultPending       Result = "pending"
	ResultUnauthorized  Result = "unauthorized"
	ResultNotConfigured Result = "not_configured"
	ResultRemoteError   Result = "remote_error"
	ResultBadReference  Result = "bad_reference"
)

// Outcome is what a reconciliation run tells its caller. RedirectURL
// is only set for outcomes a browser flow can land on.
type Outcome struct {
	Result       Result
	InvoiceID    uint
	PaymentState string
	RedirectURL  string
	Err          error
}

// ReconcileRequest carries the relevant parts of the inbound request
// explicitly, so the reconciler runs without a web server around it.
type ReconcileRequest struct {
	FromWebhook         bool
	AuthorizationHeader string
}

// Service orchestrates the callback reconciliation flow, the
// activation handshake, hosted/auto payment creation and the
// client-area lookups.
type Service struct {
	store    CredentialStore
	invoices InvoiceGateway
	events   WebhookEventStore
	client   PaymentClient

	systemURL string
}

// NewService wires the reconciler from injected collaborators.
func NewService(store CredentialStore, invoices InvoiceGateway, events WebhookEventStore, client PaymentClient, systemURL string) *Service {
	if systemURL != "" && !strings.HasSuffix(systemURL, "/") {
		systemURL += "/"
	}
	return &Service{
		store:     store,
		invoices:  invoices,
		events:    events,
		client:    client,
		systemURL: systemURL,
	}
}

// NewServiceFromDB builds the production service from a GORM handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	repo := NewRepository(db)
	return NewService(repo, repo, repo, paymenthood.NewClientFromEnv(), env.GetEnv("HOST_SYSTEM_URL", ""))
}

// Reconcile drives one payment-status reconciliation for an invoice:
// authenticate (webhook only), fetch the authoritative payment state,
// annotate the invoice once, then apply the matching transition.
// Ambiguous remote state never mutates the invoice.
func (s *Service) Reconcile(ctx context.Context, referenceID string, req ReconcileRequest) Outcome {
	creds, err := s.store.Credentials()
	if err != nil {
		modulelog.LogError("callback-load-credentials", map[string]string{"referenceId": referenceID}, err)
		return Outcome{Result: ResultNotConfigured, Err: err}
	}
	if !creds.Complete() {
		modulelog.Log("callback-missing-configuration", map[string]interface{}{
			"appId":                  creds.AppID,
			"tokenConfigured":        creds.AccessToken != "",
			"webhookTokenConfigured": creds.WebhookToken != "",
		}, nil)
		return Outcome{Result: ResultNotConfigured, Err: ErrNotConfigured}
	}

	if req.FromWebhook && !paymenthood.ValidateWebhookAuthorization(req.AuthorizationHeader, creds.WebhookToken) {
		modulelog.Log("callback-unauthorized", map[string]string{"referenceId": referenceID}, nil)
		return Outcome{Result: ResultUnauthorized}
	}

	invoiceID64, err := strconv.ParseUint(referenceID, 10, 32)
	if err != nil || invoiceID64 == 0 {
		modulelog.LogError("callback-bad-reference", map[string]string{"referenceId": referenceID}, err)
		return Outcome{Result: ResultBadReference, Err: fmt.Errorf("invalid reference id %q", referenceID)}
	}
	invoiceID := uint(invoiceID64)

	payment, err := s.client.FetchPaymentByReference(ctx, creds.AppID, creds.AccessToken, referenceID)
	if err != nil {
		modulelog.LogError("callback-fetch-payment", map[string]string{"referenceId": referenceID}, err)
		return Outcome{Result: ResultRemoteError, InvoiceID: invoiceID, Err: err}
	}

	state := payment.PaymentState
	if state == "" {
		state = "unknown"
	}
	s.annotateInvoiceOnce(invoiceID, state)

	switch state {
	case paymenthood.PaymentStateCaptured:
		transactionID := payment.PaymentID
		if transactionID == "" {
			transactionID = "N/A"
		}
		s.recordPaymentOnce(invoiceID, transactionID, payment.Amount)
		return Outcome{
			Result:       ResultSuccess,
			InvoiceID:    invoiceID,
			PaymentState: state,
			RedirectURL:  s.invoiceReturnURL(invoiceID, "paymentsuccess"),
		}

	case paymenthood.PaymentStateFailed:
		if err := s.invoices.CancelInvoice(invoiceID, "Payment failed via PaymentHood"); err != nil {
			modulelog.LogError("callback-cancel-invoice", map[string]uint{"invoiceId": invoiceID}, err)
		}
		modulelog.Log("callback-payment-failed", map[string]uint{"invoiceId": invoiceID}, nil)
		return Outcome{
			Result:       ResultFailed,
			InvoiceID:    invoiceID,
			PaymentState: state,
			RedirectURL:  s.invoiceReturnURL(invoiceID, "paymentfailed"),
		}

	default:
		modulelog.Log("callback-payment-pending", map[string]interface{}{"invoiceId": invoiceID, "paymentState": state}, nil)
		return Outcome{
			Result:       ResultPending,
			InvoiceID:    invoiceID,
			PaymentState: state,
			RedirectURL:  s.invoiceReturnURL(invoiceID, "paymentpending"),
		}
	}
}

// annotateInvoiceOnce appends the provider state to the invoice notes
// unless a prior annotation exists. Annotation failures are logged and
// never stop the reconciliation.
func (s *Service) annotateInvoiceOnce(invoiceID uint, state string) {
	notes := ""
	invoice, err := s.invoices.GetInvoice(invoiceID)
	if err != nil {
		modulelog.LogError("callback-load-invoice", map[string]uint{"invoiceId": invoiceID}, err)
	} else {
		notes = invoice.Notes
	}

	if strings.Contains(notes, noteMarker) {
		return
	}
	updated := notes + "\n" + noteMarker + ": " + state
	if err := s.invoices.UpdateInvoiceNotes(invoiceID, updated); err != nil {
		modulelog.LogError("callback-update-invoice-notes", map[string]interface{}{"invoiceId": invoiceID, "paymentState": state}, err)
	}
}

// recordPaymentOnce applies a captured payment guarded by the
// (invoice, transaction id) idempotency check. A failing host invoice
// API is logged only: the success response is still emitted so the
// processor does not re-trigger payment.
func (s *Service) recordPaymentOnce(invoiceID uint, transactionID string, amount decimal.Decimal) {
	exists, err := s.invoices.HasPaymentWithTransaction(invoiceID, transactionID)
	if err != nil {
		modulelog.LogError("callback-payment-lookup", map[string]interface{}{"invoiceId": invoiceID, "transactionId": transactionID}, err)
	}
	if exists {
		modulelog.Log("callback-payment-already-recorded", map[string]interface{}{"invoiceId": invoiceID, "transactionId": transactionID}, nil)
		return
	}
	if err := s.invoices.AddPayment(invoiceID, transactionID, amount, decimal.Zero, GatewayName); err != nil {
		modulelog.LogError("callback-add-payment", map[string]interface{}{
			"invoiceId":     invoiceID,
			"transactionId": transactionID,
			"amount":        amount.String(),
		}, err)
	}
}

func (s *Service) invoiceReturnURL(invoiceID uint, flag string) string {
	return fmt.Sprintf("%sviewinvoice.php?id=%d&%s=true", s.systemURL, invoiceID, flag)
}

// RecordWebhookDelivery journals a webhook delivery; best effort, the
// reconciliation does not depend on it.
func (s *Service) RecordWebhookDelivery(referenceID string, payload []byte, authValid bool) *models.PaymentWebhookEvent {
	event, err := s.events.RecordDelivery(referenceID, payload, authValid)
	if err != nil {
		modulelog.LogError("webhook-journal", map[string]string{"referenceId": referenceID}, err)
		return nil
	}
	return event
}

// MarkWebhookProcessed stores the processing result on a journaled
// delivery.
func (s *Service) MarkWebhookProcessed(event *models.PaymentWebhookEvent, processingErr error) {
	if event == nil {
		return
	}
	if err := s.events.MarkProcessed(event.ID, processingErr); err != nil {
		modulelog.LogError("webhook-journal-update", map[string]uint{"eventId": event.ID}, err)
	}
}

// CompleteActivation exchanges the one-time authorization code for a
// long-lived token, persists the credentials and syncs the webhook
// secret with the processor. Linear and non-retried; a failing step is
// logged and activation stays incomplete.
func (s *Service) CompleteActivation(ctx context.Context, appID, authorizationCode string) error {
	modulelog.Log("activation-return", map[string]string{"appId": appID}, nil)

	token, err := s.client.IssueBotToken(ctx, appID, authorizationCode)
	if err != nil {
		modulelog.LogError("activation-generate-bot-token", map[string]string{"appId": appID}, err)
		return err
	}

	// Settings writes are best effort: never abort the flow the
	// merchant is watching.
	for setting, value := range map[string]string{
		models.SettingAppID:     appID,
		models.SettingToken:     token,
		models.SettingActivated: "1",
	} {
		if err := s.store.SaveSetting(setting, value); err != nil {
			modulelog.LogError("activation-save-setting", map[string]string{"setting": setting}, err)
		}
	}

	return s.SyncWebhookConfig(ctx, appID, token)
}

// SyncWebhookConfig makes sure a webhook token exists locally and
// registers it with the processor.
func (s *Service) SyncWebhookConfig(ctx context.Context, appID, accessToken string) error {
	creds, err := s.store.Credentials()
	if err != nil {
		modulelog.LogError("webhook-sync-load-credentials", map[string]string{"appId": appID}, err)
		return err
	}

	webhookToken := creds.WebhookToken
	if webhookToken == "" {
		webhookToken, err = paymenthood.GenerateWebhookToken()
		if err != nil {
			modulelog.LogError("webhook-sync-generate-token", map[string]string{"appId": appID}, err)
			return err
		}
		if err := s.store.SaveSetting(models.SettingWebhookToken, webhookToken); err != nil {
			modulelog.LogError("webhook-sync-save-token", map[string]string{"appId": appID}, err)
		}
	}

	if err := s.client.SyncWebhookConfig(ctx, appID, accessToken, webhookToken); err != nil {
		modulelog.LogError("webhook-sync-register", map[string]string{"appId": appID}, err)
		return err
	}
	modulelog.Log("webhook-sync-registered", map[string]string{"appId": appID}, nil)
	return nil
}

// ActivationLink builds the consent URL for the admin activation page.
func (s *Service) ActivationLink(returnURL string) (string, Credentials, error) {
	creds, err := s.store.Credentials()
	if err != nil {
		return "", Credentials{}, err
	}
	return s.client.ActivationURL(returnURL, creds.AppID), creds, nil
}

// Deactivate flips the activation flag; credential rows are kept.
func (s *Service) Deactivate() error {
	modulelog.Log("deactivate", nil, nil)
	return s.store.SaveSetting(models.SettingActivated, "0")
}

// BeginHostedPayment creates a processor-hosted checkout for an unpaid
// invoice and returns the redirect target. A duplicate reference id
// cancels the invoice and surfaces paymenthood.ErrDuplicateReference.
func (s *Service) BeginHostedPayment(ctx context.Context, invoiceID uint, payerEmail string) (string, error) {
	creds, err := s.store.Credentials()
	if err != nil {
		return "", err
	}
	if !creds.Complete() {
		return "", ErrNotConfigured
	}

	invoice, err := s.invoices.GetInvoice(invoiceID)
	if err != nil {
		return "", err
	}

	hasRecurring, err := s.invoices.InvoiceHasRecurringItem(invoiceID)
	if err != nil {
		modulelog.LogError("hosted-payment-recurring-check", map[string]uint{"invoiceId": invoiceID}, err)
	}

	referenceID := strconv.FormatUint(uint64(invoiceID), 10)
	callbackURL := s.callbackURL() + "?invoiceid=" + referenceID

	resp, err := s.client.CreateHostedPayment(ctx, creds.AppID, creds.AccessToken, paymenthood.HostedPaymentRequest{
		ReferenceID: referenceID,
		Amount:      invoice.Total,
		Currency:    invoice.Currency,
		Customer: paymenthood.Customer{
			CustomerID: strconv.FormatUint(uint64(invoice.UserID), 10),
			Email:      payerEmail,
		},
		WebhookURL:         callbackURL,
		ReturnURL:          callbackURL,
		ShowPaymentMethods: hasRecurring,
	})
	if errors.Is(err, paymenthood.ErrDuplicateReference) {
		modulelog.Log("hosted-payment-duplicate-reference", map[string]uint{"invoiceId": invoiceID}, nil)
		if cancelErr := s.invoices.CancelInvoice(invoiceID, ""); cancelErr != nil {
			modulelog.LogError("hosted-payment-cancel-invoice", map[string]uint{"invoiceId": invoiceID}, cancelErr)
		}
		return "", err
	}
	if err != nil {
		modulelog.LogError("hosted-payment-create", map[string]uint{"invoiceId": invoiceID}, err)
		return "", err
	}
	if resp.RedirectURL == "" {
		return "", errors.New("payment gateway returned invalid response")
	}

	modulelog.Log("hosted-payment-redirect", map[string]string{"url": resp.RedirectURL}, nil)
	return resp.RedirectURL, nil
}

// SweepResult summarizes one unpaid-invoice sweep run.
type SweepResult struct {
	Attempted int
	Paid      int
	Failed    int
}

// ProcessUnpaidInvoices attempts an auto-payment for every unpaid,
// past-due invoice with a recurring item. One invoice's failure never
// aborts the sweep.
func (s *Service) ProcessUnpaidInvoices(ctx context.Context, asOf time.Time) SweepResult {
	var result SweepResult

	creds, err := s.store.Credentials()
	if err != nil || !creds.Complete() {
		modulelog.Log("sweep-skipped-not-configured", nil, nil)
		return result
	}

	invoices, err := s.invoices.ListUnpaidRecurringDue(asOf)
	if err != nil {
		modulelog.LogError("sweep-list-invoices", nil, err)
		return result
	}

	for _, invoice := range invoices {
		result.Attempted++
		if s.autoPayInvoice(ctx, creds, invoice) {
			result.Paid++
		} else {
			result.Failed++
		}
	}

	modulelog.Log("sweep-finished", nil, map[string]int{
		"attempted": result.Attempted,
		"paid":      result.Paid,
		"failed":    result.Failed,
	})
	return result
}

func (s *Service) autoPayInvoice(ctx context.Context, creds Credentials, invoice models.Invoice) bool {
	referenceID := strconv.FormatUint(uint64(invoice.ID), 10)
	modulelog.Log("sweep-auto-payment", map[string]interface{}{"invoiceId": invoice.ID, "clientId": invoice.UserID}, nil)

	resp, err := s.client.CreateAutoPayment(ctx, creds.AppID, creds.AccessToken, paymenthood.AutoPaymentRequest{
		ReferenceID: referenceID,
		Amount:      invoice.Total,
		Customer:    paymenthood.Customer{CustomerID: strconv.FormatUint(uint64(invoice.UserID), 10)},
	})
	if errors.Is(err, paymenthood.ErrDuplicateReference) {
		if cancelErr := s.invoices.CancelInvoice(invoice.ID, ""); cancelErr != nil {
			modulelog.LogError("sweep-cancel-invoice", map[string]uint{"invoiceId": invoice.ID}, cancelErr)
		}
		return false
	}
	if err != nil {
		modulelog.LogError("sweep-auto-payment", map[string]uint{"invoiceId": invoice.ID}, err)
		return false
	}

	transactionID := resp.PaymentID
	if transactionID == "" {
		transactionID = "paymenthood_" + uuid.NewString()
	}
	s.recordPaymentOnce(invoice.ID, transactionID, invoice.Total)
	return true
}

// VerifiedPaymentMethods lists the customer's verified payment methods
// for the client-area subscription page.
func (s *Service) VerifiedPaymentMethods(ctx context.Context, customerID string) ([]paymenthood.PaymentMethod, error) {
	creds, err := s.store.Credentials()
	if err != nil {
		return nil, err
	}
	if !creds.Complete() {
		return nil, ErrNotConfigured
	}
	return s.client.ListVerifiedPaymentMethods(ctx, creds.AppID, creds.AccessToken, customerID)
}

// CustomerPanelURL resolves the processor-hosted customer panel link.
func (s *Service) CustomerPanelURL(ctx context.Context, customerID string) (string, error) {
	creds, err := s.store.Credentials()
	if err != nil {
		return "", err
	}
	if !creds.Complete() {
		return "", ErrNotConfigured
	}
	return s.client.FetchCustomerPanelURL(ctx, creds.AppID, creds.AccessToken, customerID)
}

func (s *Service) callbackURL() string {
	return s.systemURL + "modules/gateways/callback/" + GatewayName
}
