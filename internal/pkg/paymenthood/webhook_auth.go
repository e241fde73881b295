package paymenthood

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const bearerPrefix = "Bearer "

// ValidateWebhookAuthorization checks the Authorization header of an
// inbound webhook against the locally stored shared secret. The header
// must be exactly "Bearer <token>". An empty expected token rejects
// everything: an unconfigured integration never accepts webhooks.
func ValidateWebhookAuthorization(authorizationHeader, expectedToken string) bool {
	if expectedToken == "" {
		return false
	}
	if !strings.HasPrefix(authorizationHeader, bearerPrefix) {
		return false
	}
	incoming := authorizationHeader[len(bearerPrefix):]
	return subtle.ConstantTimeCompare([]byte(incoming), []byte(expectedToken)) == 1
}

// GenerateWebhookToken creates the shared secret the processor must
// present on webhook deliveries: 32 random bytes, hex encoded.
func GenerateWebhookToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
