package webfetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Challenge is the parsed body of an HTTP 402 response under the x402
// payment-required scheme.
type Challenge struct {
	X402Version int           `json:"x402Version"`
	Accepts     []Requirement `json:"accepts"`
}

// Requirement is one entry of a 402 challenge's accepted payment
// methods.
type Requirement struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Payment is the signed authorisation that gets base64-encoded into
// the X-PAYMENT retry header.
type Payment struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     PaymentPayload `json:"payload"`
}

// PaymentPayload carries the signature over the authorisation.
type PaymentPayload struct {
	Signature     string         `json:"signature"`
	Authorisation map[string]any `json:"authorisation"`
}

// Signer produces a signed payment for one of a challenge's
// requirements. A fetch running inside a worker process has no signer
// configured by design: payment signing cannot cross the worker
// boundary, so a worker-dispatched fetch always surfaces
// ErrSignerUnavailable instead of attempting to pay.
type Signer interface {
	Sign(ctx context.Context, req Requirement) (Payment, error)
}

// ParseChallenge decodes a 402 response body into a Challenge.
func ParseChallenge(body []byte) (Challenge, error) {
	var c Challenge
	if err := json.Unmarshal(body, &c); err != nil {
		return Challenge{}, fmt.Errorf("webfetch: parse x402 challenge: %w", err)
	}
	if len(c.Accepts) == 0 {
		return Challenge{}, fmt.Errorf("webfetch: x402 challenge has no accepted payment methods")
	}
	return c, nil
}

// EncodeHeader base64-encodes a Payment for the X-PAYMENT retry header.
func EncodeHeader(p Payment) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("webfetch: encode x402 payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
