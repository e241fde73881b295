package paymenthood

import "github.com/shopspring/decimal"

// Payment states reported by the processor. Anything else is treated
// as still pending.
const (
	PaymentStateCaptured = "Captured"
	PaymentStateFailed   = "Failed"
)

// Payment is the authoritative payment record fetched from the
// processor. ReferenceID echoes the invoice id the payment was created
// with.
type Payment struct {
	ReferenceID  string          `json:"referenceId"`
	PaymentID    string          `json:"paymentId"`
	PaymentState string          `json:"paymentState"`
	Amount       decimal.Decimal `json:"amount"`
}

// Customer identifies the payer towards the processor.
type Customer struct {
	CustomerID string `json:"customerId"`
	Email      string `json:"email,omitempty"`
}

type customerOrder struct {
	Customer Customer `json:"customer"`
}

// Wire shapes for the create-payment endpoints. Amounts marshal as
// decimal strings, matching what the processor accepts.
type hostedPaymentPayload struct {
	ReferenceID        string          `json:"referenceId"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	AutoCapture        bool            `json:"autoCapture"`
	WebhookURL         string          `json:"webhookUrl"`
	ReturnURL          string          `json:"returnUrl"`
	ShowPaymentMethods bool            `json:"showAvailablePaymentMethodsInCheckout"`
	CustomerOrder      customerOrder   `json:"customerOrder"`
}

type autoPaymentPayload struct {
	ReferenceID   string          `json:"referenceId"`
	Amount        decimal.Decimal `json:"amount"`
	AutoCapture   bool            `json:"autoCapture"`
	CustomerOrder customerOrder   `json:"customerOrder"`
}

// HostedPaymentRequest creates a processor-hosted checkout page.
type HostedPaymentRequest struct {
	ReferenceID        string
	Amount             decimal.Decimal
	Currency           string
	Customer           Customer
	WebhookURL         string
	ReturnURL          string
	ShowPaymentMethods bool
}

// HostedPaymentResponse carries the checkout redirect target.
type HostedPaymentResponse struct {
	RedirectURL string `json:"redirectUrl"`
	Message     string `json:"Message"`
}

// AutoPaymentRequest charges a previously verified payment method
// without payer interaction.
type AutoPaymentRequest struct {
	ReferenceID string
	Amount      decimal.Decimal
	Customer    Customer
}

// AutoPaymentResponse reports the processor-side payment id.
type AutoPaymentResponse struct {
	PaymentID string `json:"paymentId"`
	Message   string `json:"Message"`
}

// PaymentMethod is one verified payment method of a customer,
// flattened across provider profiles.
type PaymentMethod struct {
	Provider            string `json:"provider"`
	PaymentMethodNumber string `json:"paymentMethodNumber"`
}
