package paymenthood

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AmirHossein87/payment-plugins/internal/pkg/env"
)

const (
	defaultAppAPIBaseURL     = "https://appapi.paymenthood.com/api"
	defaultPaymentAPIBaseURL = "https://api.paymenthood.com/api/v1"
	defaultConsoleAuthURL    = "https://console.paymenthood.com/auth/signin"

	duplicateReferenceMarker = "ProviderReferenceId already used"
)

// ErrDuplicateReference is returned when the processor reports that the
// reference id of a create-payment call was already used.
var ErrDuplicateReference = errors.New("paymenthood: provider reference id already used")

// APIError is a non-2xx or empty response from the processor. It keeps
// the raw status and body so callers can log exactly what came back.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paymenthood api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client is a thin wrapper over the processor's REST endpoints. Every
// call is a single attempt; retry policy belongs to the caller.
type Client struct {
	AppAPIBaseURL     string
	PaymentAPIBaseURL string
	ConsoleAuthURL    string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		AppAPIBaseURL:     strings.TrimRight(env.GetEnv("PAYMENTHOOD_APP_API_URL", defaultAppAPIBaseURL), "/"),
		PaymentAPIBaseURL: strings.TrimRight(env.GetEnv("PAYMENTHOOD_PAYMENT_API_URL", defaultPaymentAPIBaseURL), "/"),
		ConsoleAuthURL:    strings.TrimRight(env.GetEnv("PAYMENTHOOD_CONSOLE_AUTH_URL", defaultConsoleAuthURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// ActivationURL builds the hosted consent link the merchant opens to
// grant this integration access to their PaymentHood app.
func (c *Client) ActivationURL(returnURL, appID string) string {
	q := url.Values{}
	q.Set("returnUrl", returnURL)
	q.Set("appId", appID)
	q.Set("grantAuthorization", "true")
	return c.ConsoleAuthURL + "?" + q.Encode()
}

// IssueBotToken exchanges the one-time authorization code from the
// consent screen for a long-lived access token. The token comes back as
// a plain-text body.
func (c *Client) IssueBotToken(ctx context.Context, appID, authorizationCode string) (string, error) {
	if strings.TrimSpace(authorizationCode) == "" {
		return "", errors.New("authorization code is required")
	}
	endpoint := fmt.Sprintf("%s/apps/%s/generate-bot-token", c.AppAPIBaseURL, url.PathEscape(appID))
	body, err := c.do(ctx, http.MethodPost, endpoint, authorizationCode, nil)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", errors.New("bot token exchange returned empty token")
	}
	return token, nil
}

// SyncWebhookConfig tells the processor which bearer credential to
// present on future webhook deliveries.
func (c *Client) SyncWebhookConfig(ctx context.Context, appID, accessToken, webhookToken string) error {
	type settingValue struct {
		Value string `json:"value"`
	}
	payload := struct {
		Scheme    settingValue `json:"webhookAuthorizationHeaderScheme"`
		Parameter settingValue `json:"webhookAuthorizationHeaderParameter"`
	}{
		Scheme:    settingValue{Value: "Bearer"},
		Parameter: settingValue{Value: webhookToken},
	}
	endpoint := fmt.Sprintf("%s/apps/%s", c.AppAPIBaseURL, url.PathEscape(appID))
	_, err := c.do(ctx, http.MethodPatch, endpoint, accessToken, payload)
	return err
}

// FetchPaymentByReference loads the authoritative payment state for an
// invoice's reference id.
func (c *Client) FetchPaymentByReference(ctx context.Context, appID, accessToken, referenceID string) (*Payment, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/payments/referenceId:%s", c.PaymentAPIBaseURL, url.PathEscape(appID), url.PathEscape(referenceID))
	body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
	if err != nil {
		return nil, err
	}
	var out Payment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	return &out, nil
}

// CreateHostedPayment creates a hosted checkout page and returns its
// redirect URL.
func (c *Client) CreateHostedPayment(ctx context.Context, appID, accessToken string, req HostedPaymentRequest) (*HostedPaymentResponse, error) {
	payload := hostedPaymentPayload{
		ReferenceID:        req.ReferenceID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		AutoCapture:        true,
		WebhookURL:         req.WebhookURL,
		ReturnURL:          req.ReturnURL,
		ShowPaymentMethods: req.ShowPaymentMethods,
		CustomerOrder:      customerOrder{Customer: req.Customer},
	}
	endpoint := fmt.Sprintf("%s/apps/%s/payments/hosted-page", c.PaymentAPIBaseURL, url.PathEscape(appID))
	body, err := c.do(ctx, http.MethodPost, endpoint, accessToken, payload)
	if err != nil {
		return nil, err
	}
	var out HostedPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode hosted payment response: %w", err)
	}
	if strings.Contains(out.Message, duplicateReferenceMarker) {
		return nil, ErrDuplicateReference
	}
	return &out, nil
}

// CreateAutoPayment charges a verified payment method for a recurring
// invoice without payer interaction.
func (c *Client) CreateAutoPayment(ctx context.Context, appID, accessToken string, req AutoPaymentRequest) (*AutoPaymentResponse, error) {
	payload := autoPaymentPayload{
		ReferenceID:   req.ReferenceID,
		Amount:        req.Amount,
		AutoCapture:   true,
		CustomerOrder: customerOrder{Customer: req.Customer},
	}
	endpoint := fmt.Sprintf("%s/apps/%s/payments/auto-payment", c.PaymentAPIBaseURL, url.PathEscape(appID))
	body, err := c.do(ctx, http.MethodPost, endpoint, accessToken, payload)
	if err != nil {
		return nil, err
	}
	var out AutoPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode auto payment response: %w", err)
	}
	if strings.Contains(out.Message, duplicateReferenceMarker) {
		return nil, ErrDuplicateReference
	}
	return &out, nil
}

// ListVerifiedPaymentMethods returns the customer's verified payment
// methods, flattened to one entry per provider profile. Methods without
// profiles fall back to the payment method type itself.
func (c *Client) ListVerifiedPaymentMethods(ctx context.Context, appID, accessToken, customerID string) ([]PaymentMethod, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/customers/%s/payment-methods?onlyVerifiedPaymentMethods=true",
		c.PaymentAPIBaseURL, url.PathEscape(appID), url.PathEscape(customerID))
	body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		PaymentMethodNumber string `json:"paymentMethodNumber"`
		PaymentMethodType   string `json:"paymentMethodType"`
		ProviderProfiles    []struct {
			Provider string `json:"provider"`
		} `json:"providerProfiles"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode payment methods response: %w", err)
	}

	var methods []PaymentMethod
	for _, item := range raw {
		if len(item.ProviderProfiles) == 0 {
			methods = append(methods, PaymentMethod{
				Provider:            item.PaymentMethodType,
				PaymentMethodNumber: item.PaymentMethodNumber,
			})
			continue
		}
		for _, profile := range item.ProviderProfiles {
			methods = append(methods, PaymentMethod{
				Provider:            profile.Provider,
				PaymentMethodNumber: item.PaymentMethodNumber,
			})
		}
	}
	return methods, nil
}

// FetchCustomerPanelURL returns the customer's self-service panel link.
// The endpoint answers with a bare URL string, sometimes quoted.
func (c *Client) FetchCustomerPanelURL(ctx context.Context, appID, accessToken, customerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/apps/%s/customers/%s/panel-link",
		c.PaymentAPIBaseURL, url.PathEscape(appID), url.PathEscape(customerID))
	body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
	if err != nil {
		return "", err
	}
	panelURL := strings.Trim(strings.TrimSpace(string(body)), `"'`)
	if panelURL == "" {
		return "", errors.New("panel link response was empty")
	}
	return panelURL, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, bearer string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "text/plain")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(body) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
