package controllers

import (
	"encoding/json"

	"github.com/AmirHossein87/payment-plugins/internal/pkg/gateway"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/modulelog"
	"github.com/gofiber/fiber/v2"
)

// webhookEnvelope is the shape the processor posts: the payment record
// wrapped in a "payment" key. Only the reference id is used; payment
// state is always fetched back from the processor instead of trusted
// from the payload.
type webhookEnvelope struct {
	Payment struct {
		ReferenceID  string `json:"referenceId" validate:"required,numeric"`
		PaymentState string `json:"paymentState"`
		PaymentID    string `json:"paymentId"`
	} `json:"payment"`
}

// HandleGatewayWebhook processes a server-to-server payment
// notification.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	body := c.Body()
	modulelog.Log("webhook-received", string(body), nil)

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		modulelog.LogError("webhook-decode", string(body), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid payload",
		})
	}
	if err := validate.Struct(envelope); err != nil {
		modulelog.LogError("webhook-validate", string(body), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "missing or invalid referenceId",
		})
	}

	referenceID := envelope.Payment.ReferenceID
	outcome := gatewayService.Reconcile(c.UserContext(), referenceID, gateway.ReconcileRequest{
		FromWebhook:         true,
		AuthorizationHeader: c.Get(fiber.HeaderAuthorization),
	})

	authValid := outcome.Result != gateway.ResultUnauthorized
	event := gatewayService.RecordWebhookDelivery(referenceID, body, authValid)
	gatewayService.MarkWebhookProcessed(event, outcome.Err)

	switch outcome.Result {
	case gateway.ResultUnauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "unauthorized",
		})
	case gateway.ResultBadReference:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "unknown referenceId",
		})
	case gateway.ResultNotConfigured, gateway.ResultRemoteError:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "payment could not be verified",
		})
	default:
		// Success, failed and pending all acknowledge the delivery;
		// the invoice reflects whatever state the processor reported.
		return c.JSON(fiber.Map{"status": "success"})
	}
}

// HandleGatewayReturn serves the payer coming back from the hosted
// checkout. The invoice state is reconciled and the payer forwarded to
// the invoice page with the matching status flag.
func HandleGatewayReturn(c *fiber.Ctx) error {
	referenceID := c.Query("invoiceid")
	if referenceID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing invoiceid")
	}

	outcome := gatewayService.Reconcile(c.UserContext(), referenceID, gateway.ReconcileRequest{})
	if outcome.RedirectURL != "" {
		return c.Redirect(outcome.RedirectURL, fiber.StatusSeeOther)
	}

	switch outcome.Result {
	case gateway.ResultBadReference:
		return c.Status(fiber.StatusBadRequest).SendString("invalid invoiceid")
	default:
		return c.Status(fiber.StatusInternalServerError).SendString("payment could not be verified")
	}
}
