package controllers

import (
	"errors"
	"strconv"

	"github.com/AmirHossein87/payment-plugins/internal/pkg/gateway"
	"github.com/AmirHossein87/payment-plugins/internal/pkg/paymenthood"
	"github.com/gofiber/fiber/v2"
)

// HandleInvoicePay starts the hosted checkout for an invoice and
// forwards the payer to the processor's payment page.
func HandleInvoicePay(c *fiber.Ctx) error {
	invoiceID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || invoiceID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid invoice id",
		})
	}

	payerEmail := c.FormValue("email")
	redirectURL, err := gatewayService.BeginHostedPayment(c.UserContext(), uint(invoiceID), payerEmail)
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"message": "payment gateway not configured",
		})
	case errors.Is(err, paymenthood.ErrDuplicateReference):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":  "error",
			"message": "invoice reference already used, invoice was cancelled",
		})
	case err != nil:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status":  "error",
			"message": "payment could not be started",
		})
	}

	return c.Redirect(redirectURL, fiber.StatusSeeOther)
}

// HandleCustomerPanel forwards the customer to the processor-hosted
// payment method panel.
func HandleCustomerPanel(c *fiber.Ctx) error {
	customerID := c.Query("customerId")
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing customerId")
	}

	panelURL, err := gatewayService.CustomerPanelURL(c.UserContext(), customerID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).SendString("payment gateway not configured")
		}
		return c.Status(fiber.StatusBadGateway).SendString("customer panel unavailable")
	}
	return c.Redirect(panelURL, fiber.StatusSeeOther)
}

// HandleAPIPaymentMethods lists a customer's verified payment methods.
func HandleAPIPaymentMethods(c *fiber.Ctx) error {
	customerID := c.Query("customerId")
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "missing customerId",
		})
	}

	methods, err := gatewayService.VerifiedPaymentMethods(c.UserContext(), customerID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "error",
				"message": "payment gateway not configured",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status":  "error",
			"message": "payment methods unavailable",
		})
	}

	if methods == nil {
		methods = []paymenthood.PaymentMethod{}
	}
	return c.JSON(fiber.Map{
		"status":         "success",
		"paymentMethods": methods,
	})
}
