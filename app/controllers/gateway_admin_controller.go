package controllers

import (
	"strings"

	"github.com/AmirHossein87/payment-plugins/internal/pkg/modulelog"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

const adminGatewayPath = "/admin/gateways/paymenthood"

// HandleGatewayAdminPage renders the activation page. When the
// processor console redirects back with an appId and a one-time
// authorization code, the activation handshake runs first and the
// browser is sent back to the clean URL.
func HandleGatewayAdminPage(c *fiber.Ctx) error {
	appID := strings.TrimSpace(c.Query("appId"))
	authorizationCode := strings.TrimSpace(c.Query("authorizationCode"))

	if appID != "" && authorizationCode != "" {
		if err := gatewayService.CompleteActivation(c.UserContext(), appID, authorizationCode); err != nil {
			// Failure is already logged by the service; the page simply
			// shows the not-activated state again.
			return c.Redirect(adminGatewayPath, fiber.StatusSeeOther)
		}
		return flash.WithSuccess(c, fiber.Map{
			"type":    "success",
			"message": "PaymentHood activated",
		}).Redirect(adminGatewayPath)
	}

	returnURL := c.BaseURL() + adminGatewayPath
	activationURL, creds, err := gatewayService.ActivationLink(returnURL)
	if err != nil {
		modulelog.LogError("admin-activation-page", nil, err)
		return c.Status(fiber.StatusInternalServerError).SendString("gateway settings unavailable")
	}

	return c.Render("activation", fiber.Map{
		"Title":         "PaymentHood",
		"Activated":     creds.Activated && creds.Complete(),
		"AppID":         creds.AppID,
		"ActivationURL": activationURL,
		"Flash":         flash.Get(c),
	})
}

// HandleGatewayDeactivate clears the activation flag. Credentials stay
// stored so a later re-activation keeps the same webhook secret.
func HandleGatewayDeactivate(c *fiber.Ctx) error {
	if err := gatewayService.Deactivate(); err != nil {
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Deactivation failed",
		}).Redirect(adminGatewayPath)
	}
	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "PaymentHood deactivated",
	}).Redirect(adminGatewayPath)
}
