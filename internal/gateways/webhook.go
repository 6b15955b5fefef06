package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const EventCheckoutCompleted = "checkout.session.completed"

// DefaultWebhookTolerance bounds how stale a signed timestamp may be.
// Anything older is treated as a possible replay.
const DefaultWebhookTolerance = 300 * time.Second

var ErrWebhookVerification = errors.New("webhook verification failed")

// Event is a parsed webhook notification from the payment processor.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// CheckoutSessionObject is the event payload for checkout notifications.
type CheckoutSessionObject struct {
	ID          string            `json:"id"`
	Customer    string            `json:"customer"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
}

// CheckoutSession decodes the event payload as a checkout session object.
func (e *Event) CheckoutSession() (*CheckoutSessionObject, error) {
	var obj CheckoutSessionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session object: %w", err)
	}
	return &obj, nil
}

// WebhookVerifier authenticates webhook deliveries. The signature header has
// the form "t=<unix_ts>,v1=<hex_hmac>[,v1=<hex_hmac>...]"; the digest is
// HMAC-SHA256 of "{timestamp}.{payload}" under the shared secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: DefaultWebhookTolerance,
	}
}

func (v *WebhookVerifier) VerifyAndParse(payload []byte, signatureHeader string) (*Event, error) {
	ts, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}

	age := time.Since(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance window", ErrWebhookVerification)
	}

	expected := ComputeSignature(v.secret, ts, payload)
	match := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			match = true
		}
	}
	if !match {
		return nil, fmt.Errorf("%w: no matching signature", ErrWebhookVerification)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed event payload: %v", ErrWebhookVerification, err)
	}
	return &event, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		ts         int64
		tsSeen     bool
		signatures []string
	)

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: malformed timestamp", ErrWebhookVerification)
			}
			ts = parsed
			tsSeen = true
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if !tsSeen || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed signature header", ErrWebhookVerification)
	}
	return ts, signatures, nil
}

// ComputeSignature returns the hex HMAC-SHA256 of "{ts}.{payload}". Shared
// with the payment simulator so it can produce valid deliveries.
func ComputeSignature(secret []byte, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
