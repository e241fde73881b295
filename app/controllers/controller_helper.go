package controllers

import (
	"context"

	"github.com/AmirHossein87/payment-plugins/app/models"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/database"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/gateway"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/paymenthood"
	"github.com/go-playground/validator/v10"
)

// GatewayService is the part of the gateway service the HTTP layer
// uses. Kept as an interface so handler tests can stub it.
type GatewayService interface {
	Reconcile(ctx context.Context, referenceID string, req gateway.ReconcileRequest) gateway.Outcome
	RecordWebhookDelivery(referenceID string, payload []byte, authValid bool) *models.PaymentWebhookEvent
	MarkWebhookProcessed(event *models.PaymentWebhookEvent, processingErr error)
	CompleteActivation(ctx context.Context, appID, authorizationCode string) error
	Deactivate() error
	ActivationLink(returnURL string) (string, gateway.Credentials, error)
	BeginHostedPayment(ctx context.Context, invoiceID uint, payerEmail string) (string, error)
	VerifiedPaymentMethods(ctx context.Context, customerID string) ([]paymenthood.PaymentMethod, error)
	CustomerPanelURL(ctx context.Context, customerID string) (string, error)
}

var (
	gatewayService GatewayService
	validate       = validator.New()
)

// InitializeGatewayController wires the controllers to the production
// service. Called once during router setup.
func InitializeGatewayController() {
	gatewayService = gateway.NewServiceFromDB(database.GetDB())
}

// SetGatewayService replaces the service, used by handler tests.
func SetGatewayService(svc GatewayService) {
	gatewayService = svc
}
