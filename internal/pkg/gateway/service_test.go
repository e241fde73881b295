package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AmirHossein87/payment-plugins/app/models"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/paymenthood"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	creds    Credentials
	credsErr error
	saved    map[string]string
	saveErr  error
}

func (f *fakeStore) Credentials() (Credentials, error) {
	return f.creds, f.credsErr
}

func (f *fakeStore) SaveSetting(setting, value string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[setting] = value
	return nil
}

type recordedPayment struct {
	invoiceID     uint
	transactionID string
	amount        decimal.Decimal
	gateway       string
}

type fakeInvoices struct {
	invoices map[uint]*models.Invoice

	payments     []recordedPayment
	addErr       error
	hasPayment   bool
	cancelled    map[uint]string
	notesUpdates int
	hasRecurring bool
	due          []models.Invoice
}

func (f *fakeInvoices) GetInvoice(id uint) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, errors.New("invoice not found")
	}
	return inv, nil
}

func (f *fakeInvoices) UpdateInvoiceNotes(id uint, notes string) error {
	f.notesUpdates++
	if inv, ok := f.invoices[id]; ok {
		inv.Notes = notes
	}
	return nil
}

func (f *fakeInvoices) CancelInvoice(id uint, note string) error {
	if f.cancelled == nil {
		f.cancelled = map[uint]string{}
	}
	f.cancelled[id] = note
	if inv, ok := f.invoices[id]; ok {
		inv.Status = models.InvoiceStatusCancelled
	}
	return nil
}

func (f *fakeInvoices) AddPayment(invoiceID uint, transactionID string, amount, fee decimal.Decimal, gatewayName string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.payments = append(f.payments, recordedPayment{
		invoiceID:     invoiceID,
		transactionID: transactionID,
		amount:        amount,
		gateway:       gatewayName,
	})
	return nil
}

func (f *fakeInvoices) HasPaymentWithTransaction(invoiceID uint, transactionID string) (bool, error) {
	for _, p := range f.payments {
		if p.invoiceID == invoiceID && p.transactionID == transactionID {
			return true, nil
		}
	}
	return f.hasPayment, nil
}

func (f *fakeInvoices) InvoiceHasRecurringItem(invoiceID uint) (bool, error) {
	return f.hasRecurring, nil
}

func (f *fakeInvoices) ListUnpaidRecurringDue(asOf time.Time) ([]models.Invoice, error) {
	return f.due, nil
}

type fakeEvents struct {
	recorded  []string
	processed []uint
}

func (f *fakeEvents) RecordDelivery(referenceID string, payload []byte, authValid bool) (*models.PaymentWebhookEvent, error) {
	f.recorded = append(f.recorded, referenceID)
	return &models.PaymentWebhookEvent{ID: uint(len(f.recorded))}, nil
}

func (f *fakeEvents) MarkProcessed(id uint, processingErr error) error {
	f.processed = append(f.processed, id)
	return nil
}

type fakeClient struct {
	payment  *paymenthood.Payment
	fetchErr error
	fetches  int

	hostedResp *paymenthood.HostedPaymentResponse
	hostedErr  error
	hostedReq  paymenthood.HostedPaymentRequest

	autoResps map[string]*paymenthood.AutoPaymentResponse
	autoErrs  map[string]error
	autoCalls []string

	botToken    string
	botTokenErr error

	syncedWebhookToken string

	methods  []paymenthood.PaymentMethod
	panelURL string
}

func (f *fakeClient) FetchPaymentByReference(ctx context.Context, appID, accessToken, referenceID string) (*paymenthood.Payment, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payment, nil
}

func (f *fakeClient) CreateHostedPayment(ctx context.Context, appID, accessToken string, req paymenthood.HostedPaymentRequest) (*paymenthood.HostedPaymentResponse, error) {
	f.hostedReq = req
	if f.hostedErr != nil {
		return nil, f.hostedErr
	}
	return f.hostedResp, nil
}

func (f *fakeClient) CreateAutoPayment(ctx context.Context, appID, accessToken string, req paymenthood.AutoPaymentRequest) (*paymenthood.AutoPaymentResponse, error) {
	f.autoCalls = append(f.autoCalls, req.ReferenceID)
	if err := f.autoErrs[req.ReferenceID]; err != nil {
		return nil, err
	}
	if resp := f.autoResps[req.ReferenceID]; resp != nil {
		return resp, nil
	}
	return &paymenthood.AutoPaymentResponse{}, nil
}

func (f *fakeClient) ListVerifiedPaymentMethods(ctx context.Context, appID, accessToken, customerID string) ([]paymenthood.PaymentMethod, error) {
	return f.methods, nil
}

func (f *fakeClient) FetchCustomerPanelURL(ctx context.Context, appID, accessToken, customerID string) (string, error) {
	return f.panelURL, nil
}

func (f *fakeClient) IssueBotToken(ctx context.Context, appID, authorizationCode string) (string, error) {
	if f.botTokenErr != nil {
		return "", f.botTokenErr
	}
	return f.botToken, nil
}

func (f *fakeClient) SyncWebhookConfig(ctx context.Context, appID, accessToken, webhookToken string) error {
	f.syncedWebhookToken = webhookToken
	return nil
}

func (f *fakeClient) ActivationURL(returnURL, appID string) string {
	return "https://console.example/auth/signin?appId=" + appID
}

func configuredCreds() Credentials {
	return Credentials{
		AppID:        "app-1",
		AccessToken:  "tok-1",
		WebhookToken: "hook-secret",
		Activated:    true,
	}
}

func newTestService(store *fakeStore, invoices *fakeInvoices, client *fakeClient) *Service {
	return NewService(store, invoices, &fakeEvents{}, client, "https://billing.example/")
}

func unpaidInvoice(id uint) *models.Invoice {
	return &models.Invoice{
		ID:       id,
		UserID:   7,
		Status:   models.InvoiceStatusUnpaid,
		Total:    decimal.RequireFromString("49.99"),
		Currency: "EUR",
	}
}

func TestReconcile_CapturedRecordsPayment(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentID:    "px_1",
		PaymentState: paymenthood.PaymentStateCaptured,
		Amount:       decimal.RequireFromString("49.99"),
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("expected success, got %s (err=%v)", outcome.Result, outcome.Err)
	}
	if len(invoices.payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(invoices.payments))
	}
	p := invoices.payments[0]
	if p.invoiceID != 1001 || p.transactionID != "px_1" || p.gateway != GatewayName {
		t.Errorf("unexpected payment: %+v", p)
	}
	if !p.amount.Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("amount mismatch: %s", p.amount)
	}
	want := "https://billing.example/viewinvoice.php?id=1001&paymentsuccess=true"
	if outcome.RedirectURL != want {
		t.Errorf("redirect mismatch: %q", outcome.RedirectURL)
	}
}

func TestReconcile_CapturedWithoutPaymentIDFallsBack(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentState: paymenthood.PaymentStateCaptured,
		Amount:       decimal.RequireFromString("49.99"),
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if len(invoices.payments) != 1 || invoices.payments[0].transactionID != "N/A" {
		t.Fatalf("expected fallback transaction id, got %+v", invoices.payments)
	}
}

func TestReconcile_CapturedTwiceRecordsOnePayment(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentID:    "px_1",
		PaymentState: paymenthood.PaymentStateCaptured,
		Amount:       decimal.RequireFromString("49.99"),
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	first := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	second := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if first.Result != ResultSuccess || second.Result != ResultSuccess {
		t.Fatalf("both runs must report success: %s / %s", first.Result, second.Result)
	}
	if len(invoices.payments) != 1 {
		t.Fatalf("expected one payment after two reconciles, got %d", len(invoices.payments))
	}
}

func TestReconcile_AnnotatesNotesOnce(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentID:    "px_1",
		PaymentState: paymenthood.PaymentStateCaptured,
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if invoices.notesUpdates != 1 {
		t.Fatalf("expected a single note annotation, got %d updates", invoices.notesUpdates)
	}
	if !strings.Contains(invoices.invoices[1001].Notes, "Payment provider state: Captured") {
		t.Errorf("notes missing annotation: %q", invoices.invoices[1001].Notes)
	}
}

func TestReconcile_PaymentRecordFailureStillReportsSuccess(t *testing.T) {
	invoices := &fakeInvoices{
		invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)},
		addErr:   errors.New("invoice api unavailable"),
	}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentID:    "px_1",
		PaymentState: paymenthood.PaymentStateCaptured,
		Amount:       decimal.RequireFromString("49.99"),
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if outcome.Result != ResultSuccess {
		t.Fatalf("a failing payment write must not change the outcome, got %s", outcome.Result)
	}
	if !strings.HasSuffix(outcome.RedirectURL, "&paymentsuccess=true") {
		t.Errorf("redirect mismatch: %q", outcome.RedirectURL)
	}
	if len(invoices.payments) != 0 {
		t.Errorf("no payment must be recorded when the write fails")
	}
}

func TestReconcile_FailedCancelsInvoice(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentState: paymenthood.PaymentStateFailed,
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if outcome.Result != ResultFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Result)
	}
	if note := invoices.cancelled[1001]; note != "Payment failed via PaymentHood" {
		t.Errorf("cancel note mismatch: %q", note)
	}
	if len(invoices.payments) != 0 {
		t.Errorf("failed payment must not be recorded")
	}
	if !strings.HasSuffix(outcome.RedirectURL, "&paymentfailed=true") {
		t.Errorf("redirect mismatch: %q", outcome.RedirectURL)
	}
}

func TestReconcile_UnknownStateIsPending(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		ReferenceID:  "1001",
		PaymentState: "Authorized",
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if outcome.Result != ResultPending {
		t.Fatalf("expected pending outcome, got %s", outcome.Result)
	}
	if len(invoices.payments) != 0 || len(invoices.cancelled) != 0 {
		t.Errorf("pending state must not change the invoice")
	}
	if !strings.HasSuffix(outcome.RedirectURL, "&paymentpending=true") {
		t.Errorf("redirect mismatch: %q", outcome.RedirectURL)
	}
}

func TestReconcile_RemoteErrorLeavesInvoiceUntouched(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{fetchErr: &paymenthood.APIError{StatusCode: 500, Body: "boom"}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{})
	if outcome.Result != ResultRemoteError {
		t.Fatalf("expected remote error outcome, got %s", outcome.Result)
	}
	if outcome.Err == nil {
		t.Fatalf("expected error to surface")
	}
	if len(invoices.payments) != 0 || len(invoices.cancelled) != 0 || invoices.notesUpdates != 0 {
		t.Errorf("remote error must not mutate the invoice")
	}
}

func TestReconcile_WebhookRequiresValidAuthorization(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{PaymentState: paymenthood.PaymentStateCaptured}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{
		FromWebhook:         true,
		AuthorizationHeader: "Bearer wrong-secret",
	})
	if outcome.Result != ResultUnauthorized {
		t.Fatalf("expected unauthorized, got %s", outcome.Result)
	}
	if client.fetches != 0 {
		t.Errorf("unauthorized webhook must not reach the processor")
	}
	if len(invoices.payments) != 0 {
		t.Errorf("unauthorized webhook must not record payments")
	}
}

func TestReconcile_WebhookAuthorizedProceeds(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{
		PaymentID:    "px_1",
		PaymentState: paymenthood.PaymentStateCaptured,
		Amount:       decimal.RequireFromString("49.99"),
	}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{
		FromWebhook:         true,
		AuthorizationHeader: "Bearer hook-secret",
	})
	if outcome.Result != ResultSuccess {
		t.Fatalf("expected success, got %s", outcome.Result)
	}
}

func TestReconcile_MissingConfigurationFailsClosed(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{payment: &paymenthood.Payment{PaymentState: paymenthood.PaymentStateCaptured}}
	svc := newTestService(&fakeStore{creds: Credentials{AppID: "app-1"}}, invoices, client)

	outcome := svc.Reconcile(context.Background(), "1001", ReconcileRequest{FromWebhook: true, AuthorizationHeader: "Bearer hook-secret"})
	if outcome.Result != ResultNotConfigured {
		t.Fatalf("expected not configured, got %s", outcome.Result)
	}
	if !errors.Is(outcome.Err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", outcome.Err)
	}
	if client.fetches != 0 || len(invoices.payments) != 0 {
		t.Errorf("incomplete configuration must stop the flow")
	}
}

func TestReconcile_BadReference(t *testing.T) {
	svc := newTestService(&fakeStore{creds: configuredCreds()}, &fakeInvoices{}, &fakeClient{})

	for _, ref := range []string{"", "abc", "0", "-3"} {
		outcome := svc.Reconcile(context.Background(), ref, ReconcileRequest{})
		if outcome.Result != ResultBadReference {
			t.Errorf("reference %q: expected bad reference, got %s", ref, outcome.Result)
		}
	}
}

func TestBeginHostedPayment(t *testing.T) {
	invoices := &fakeInvoices{
		invoices:     map[uint]*models.Invoice{1001: unpaidInvoice(1001)},
		hasRecurring: true,
	}
	client := &fakeClient{hostedResp: &paymenthood.HostedPaymentResponse{RedirectURL: "https://pay.example/checkout/abc"}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	url, err := svc.BeginHostedPayment(context.Background(), 1001, "payer@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://pay.example/checkout/abc" {
		t.Errorf("redirect mismatch: %q", url)
	}

	req := client.hostedReq
	if req.ReferenceID != "1001" {
		t.Errorf("reference mismatch: %q", req.ReferenceID)
	}
	if !req.Amount.Equal(decimal.RequireFromString("49.99")) || req.Currency != "EUR" {
		t.Errorf("amount/currency mismatch: %s %s", req.Amount, req.Currency)
	}
	if !req.ShowPaymentMethods {
		t.Errorf("recurring invoice must offer payment method storage")
	}
	wantCallback := "https://billing.example/modules/gateways/callback/paymenthood?invoiceid=1001"
	if req.WebhookURL != wantCallback || req.ReturnURL != wantCallback {
		t.Errorf("callback mismatch: webhook=%q return=%q", req.WebhookURL, req.ReturnURL)
	}
	if req.Customer.CustomerID != "7" || req.Customer.Email != "payer@example.com" {
		t.Errorf("customer mismatch: %+v", req.Customer)
	}
}

func TestBeginHostedPayment_DuplicateReferenceCancelsInvoice(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{hostedErr: paymenthood.ErrDuplicateReference}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	_, err := svc.BeginHostedPayment(context.Background(), 1001, "payer@example.com")
	if !errors.Is(err, paymenthood.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference error, got %v", err)
	}
	if _, ok := invoices.cancelled[1001]; !ok {
		t.Errorf("duplicate reference must cancel the invoice")
	}
}

func TestBeginHostedPayment_EmptyRedirectIsError(t *testing.T) {
	invoices := &fakeInvoices{invoices: map[uint]*models.Invoice{1001: unpaidInvoice(1001)}}
	client := &fakeClient{hostedResp: &paymenthood.HostedPaymentResponse{}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	if _, err := svc.BeginHostedPayment(context.Background(), 1001, "payer@example.com"); err == nil {
		t.Fatalf("expected error for missing redirect url")
	}
}

func TestBeginHostedPayment_NotConfigured(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeInvoices{}, &fakeClient{})
	if _, err := svc.BeginHostedPayment(context.Background(), 1001, ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestProcessUnpaidInvoices_FailureDoesNotAbortSweep(t *testing.T) {
	a := *unpaidInvoice(2001)
	b := *unpaidInvoice(2002)
	invoices := &fakeInvoices{
		invoices: map[uint]*models.Invoice{2001: &a, 2002: &b},
		due:      []models.Invoice{a, b},
	}
	client := &fakeClient{
		autoErrs:  map[string]error{"2001": errors.New("charge declined")},
		autoResps: map[string]*paymenthood.AutoPaymentResponse{"2002": {PaymentID: "px_auto_2"}},
	}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	result := svc.ProcessUnpaidInvoices(context.Background(), time.Now())
	if result.Attempted != 2 || result.Paid != 1 || result.Failed != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if len(client.autoCalls) != 2 {
		t.Fatalf("both invoices must be attempted, got %v", client.autoCalls)
	}
	if len(invoices.payments) != 1 || invoices.payments[0].invoiceID != 2002 {
		t.Fatalf("expected one payment for invoice 2002, got %+v", invoices.payments)
	}
	if invoices.payments[0].transactionID != "px_auto_2" {
		t.Errorf("transaction mismatch: %q", invoices.payments[0].transactionID)
	}
}

func TestProcessUnpaidInvoices_MissingPaymentIDGetsGeneratedTransaction(t *testing.T) {
	inv := *unpaidInvoice(2001)
	invoices := &fakeInvoices{
		invoices: map[uint]*models.Invoice{2001: &inv},
		due:      []models.Invoice{inv},
	}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, &fakeClient{})

	svc.ProcessUnpaidInvoices(context.Background(), time.Now())
	if len(invoices.payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(invoices.payments))
	}
	txn := invoices.payments[0].transactionID
	if !strings.HasPrefix(txn, "paymenthood_") || len(txn) <= len("paymenthood_") {
		t.Errorf("expected generated transaction id, got %q", txn)
	}
}

func TestProcessUnpaidInvoices_DuplicateReferenceCancels(t *testing.T) {
	inv := *unpaidInvoice(2001)
	invoices := &fakeInvoices{
		invoices: map[uint]*models.Invoice{2001: &inv},
		due:      []models.Invoice{inv},
	}
	client := &fakeClient{autoErrs: map[string]error{"2001": paymenthood.ErrDuplicateReference}}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, invoices, client)

	result := svc.ProcessUnpaidInvoices(context.Background(), time.Now())
	if result.Failed != 1 {
		t.Fatalf("expected failure, got %+v", result)
	}
	if _, ok := invoices.cancelled[2001]; !ok {
		t.Errorf("duplicate reference must cancel the invoice")
	}
}

func TestProcessUnpaidInvoices_SkipsWhenNotConfigured(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(&fakeStore{}, &fakeInvoices{due: []models.Invoice{*unpaidInvoice(2001)}}, client)

	result := svc.ProcessUnpaidInvoices(context.Background(), time.Now())
	if result.Attempted != 0 || len(client.autoCalls) != 0 {
		t.Fatalf("sweep must be a no-op without configuration: %+v", result)
	}
}

func TestCompleteActivation(t *testing.T) {
	store := &fakeStore{creds: Credentials{}}
	client := &fakeClient{botToken: "long-lived-token"}
	svc := newTestService(store, &fakeInvoices{}, client)

	if err := svc.CompleteActivation(context.Background(), "app-1", "one-time-code"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.saved[models.SettingAppID] != "app-1" {
		t.Errorf("appId not saved: %v", store.saved)
	}
	if store.saved[models.SettingToken] != "long-lived-token" {
		t.Errorf("token not saved: %v", store.saved)
	}
	if store.saved[models.SettingActivated] != "1" {
		t.Errorf("activation flag not saved: %v", store.saved)
	}
	generated := store.saved[models.SettingWebhookToken]
	if len(generated) != 64 {
		t.Fatalf("expected generated webhook token, got %q", generated)
	}
	if client.syncedWebhookToken != generated {
		t.Errorf("webhook token not synced to processor: %q vs %q", client.syncedWebhookToken, generated)
	}
}

func TestCompleteActivation_KeepsExistingWebhookToken(t *testing.T) {
	store := &fakeStore{creds: Credentials{WebhookToken: "existing-secret"}}
	client := &fakeClient{botToken: "long-lived-token"}
	svc := newTestService(store, &fakeInvoices{}, client)

	if err := svc.CompleteActivation(context.Background(), "app-1", "one-time-code"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, rewritten := store.saved[models.SettingWebhookToken]; rewritten {
		t.Errorf("existing webhook token must not be replaced")
	}
	if client.syncedWebhookToken != "existing-secret" {
		t.Errorf("existing token must be synced, got %q", client.syncedWebhookToken)
	}
}

func TestCompleteActivation_SettingWriteFailureStillSyncsWebhook(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("settings table unavailable")}
	client := &fakeClient{botToken: "long-lived-token"}
	svc := newTestService(store, &fakeInvoices{}, client)

	if err := svc.CompleteActivation(context.Background(), "app-1", "one-time-code"); err != nil {
		t.Fatalf("settings writes are best effort, got %v", err)
	}
	if len(client.syncedWebhookToken) != 64 {
		t.Fatalf("webhook registration must still run, synced token %q", client.syncedWebhookToken)
	}
}

func TestCompleteActivation_TokenExchangeFailure(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{botTokenErr: errors.New("invalid authorization code")}
	svc := newTestService(store, &fakeInvoices{}, client)

	if err := svc.CompleteActivation(context.Background(), "app-1", "bad-code"); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.saved) != 0 {
		t.Errorf("no settings may be written on a failed exchange: %v", store.saved)
	}
}

func TestDeactivate(t *testing.T) {
	store := &fakeStore{creds: configuredCreds()}
	svc := newTestService(store, &fakeInvoices{}, &fakeClient{})

	if err := svc.Deactivate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.saved[models.SettingActivated] != "0" {
		t.Errorf("expected activation flag cleared, got %v", store.saved)
	}
}

func TestVerifiedPaymentMethods_RequiresConfiguration(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeInvoices{}, &fakeClient{})
	if _, err := svc.VerifiedPaymentMethods(context.Background(), "7"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCustomerPanelURL(t *testing.T) {
	client := &fakeClient{panelURL: "https://panel.example/customer/7"}
	svc := newTestService(&fakeStore{creds: configuredCreds()}, &fakeInvoices{}, client)

	url, err := svc.CustomerPanelURL(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://panel.example/customer/7" {
		t.Errorf("panel url mismatch: %q", url)
	}
}
