package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrInvalidEnvelope  = errors.New("invalid_webhook_envelope")
)

// ParseEvent decodes the webhook envelope. The event-specific object stays
// raw; handlers decode it by event type.
func ParseEvent(payload []byte) (*Event, error) {
	if !json.Valid(payload) {
		return nil, ErrInvalidEnvelope
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, ErrInvalidEnvelope
	}
	evt.Type = strings.TrimSpace(evt.Type)
	evt.EventID = strings.TrimSpace(evt.EventID)
	if evt.Type == "" || evt.EventID == "" {
		return nil, ErrInvalidEnvelope
	}
	return &evt, nil
}

// VerifySignature checks the HMAC-SHA256 signature Square computes over the
// notification URL concatenated with the raw body.
func VerifySignature(signature, notificationURL string, body []byte, signatureKey string) error {
	if signatureKey == "" {
		// Verification disabled (local development).
		return nil
	}
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrInvalidSignature
	}
	return nil
}
