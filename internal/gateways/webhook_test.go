package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signedHeader(t *testing.T, payload []byte, ts int64) string {
	t.Helper()
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature([]byte(testSecret), ts, payload))
}

func TestWebhookVerifier_ValidSignature(t *testing.T) {
	v := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1","amount_total":999,"metadata":{"user_id":"42","credits":"100"}}}}`)

	event, err := v.VerifyAndParse(payload, signedHeader(t, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)

	session, err := event.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "42", session.Metadata["user_id"])
	assert.Equal(t, "100", session.Metadata["credits"])
}

func TestWebhookVerifier_MultipleSignatures(t *testing.T) {
	v := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_2","type":"ping"}`)
	ts := time.Now().Unix()

	// an old-secret signature first, the valid one second
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", ts,
		ComputeSignature([]byte("whsec_rotated_out"), ts, payload),
		ComputeSignature([]byte(testSecret), ts, payload))

	event, err := v.VerifyAndParse(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_2", event.ID)
}

func TestWebhookVerifier_Rejections(t *testing.T) {
	v := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_3","type":"ping"}`)

	t.Run("stale timestamp", func(t *testing.T) {
		ts := time.Now().Add(-10 * time.Minute).Unix()
		_, err := v.VerifyAndParse(payload, signedHeader(t, payload, ts))
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("future timestamp", func(t *testing.T) {
		ts := time.Now().Add(10 * time.Minute).Unix()
		_, err := v.VerifyAndParse(payload, signedHeader(t, payload, ts))
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("wrong secret", func(t *testing.T) {
		ts := time.Now().Unix()
		header := fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature([]byte("whsec_wrong"), ts, payload))
		_, err := v.VerifyAndParse(payload, header)
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signedHeader(t, payload, time.Now().Unix())
		_, err := v.VerifyAndParse([]byte(`{"id":"evt_3","type":"pong"}`), header)
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("malformed header", func(t *testing.T) {
		for _, header := range []string{"", "garbage", "t=notanumber,v1=aa", "v1=aa", "t=123"} {
			_, err := v.VerifyAndParse(payload, header)
			assert.ErrorIs(t, err, ErrWebhookVerification, header)
		}
	})

	t.Run("valid signature over non-json payload", func(t *testing.T) {
		raw := []byte("not json")
		_, err := v.VerifyAndParse(raw, signedHeader(t, raw, time.Now().Unix()))
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})
}
