package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

func TestPaystackVerifySignature(t *testing.T) {
	s := NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, nil)
	body := []byte(`{"event":"charge.success","data":{"reference":"LAS-1"}}`)

	header := http.Header{}
	header.Set("x-paystack-signature", SignHMACSHA512(body, "sk_test_abc"))
	assert.True(t, s.VerifySignature(context.Background(), body, header))

	header.Set("x-paystack-signature", SignHMACSHA512(body, "sk_test_wrong"))
	assert.False(t, s.VerifySignature(context.Background(), body, header))

	header.Del("x-paystack-signature")
	assert.False(t, s.VerifySignature(context.Background(), body, header))
}

func TestPaystackVerifySignature_SkippedWithoutSecret(t *testing.T) {
	s := NewPaystackService(config.PaystackConfig{}, nil)
	assert.True(t, s.VerifySignature(context.Background(), []byte(`{}`), http.Header{}))
}

func TestPaystackParseNotification_ChargeSuccess(t *testing.T) {
	s := NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, nil)
	raw := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"reference": "LAS-65A1B2C3D4E5F6A7B8C9D0E1",
			"amount": 150000,
			"status": "success",
			"customer": {"email": "jane@x.com"},
			"paid_at": "2023-12-19T10:21:15.000Z"
		}
	}`)

	ev, err := s.ParseNotification(raw)
	require.NoError(t, err)

	assert.Equal(t, models.MethodPaystack, ev.Provider)
	assert.Equal(t, "LAS-65A1B2C3D4E5F6A7B8C9D0E1", ev.Reference)
	assert.True(t, ev.Succeeded)
	assert.Equal(t, "PSK-302961", ev.ReceiptNumber)
	assert.Equal(t, 1500.0, ev.Amount)
	assert.Equal(t, "jane@x.com", ev.PayerIdentity)
}

func TestPaystackParseNotification_ChargeFailed(t *testing.T) {
	s := NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, nil)
	raw := []byte(`{
		"event": "charge.failed",
		"data": {"id": 302962, "reference": "LAS-X", "status": "failed", "customer": {"email": "jane@x.com"}}
	}`)

	ev, err := s.ParseNotification(raw)
	require.NoError(t, err)
	assert.False(t, ev.Succeeded)
	assert.Equal(t, "LAS-X", ev.Reference)
	assert.Equal(t, "charge failed", ev.FailureReason)
}

func TestPaystackParseNotification_UnrelatedEventIgnored(t *testing.T) {
	s := NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, nil)
	raw := []byte(`{"event": "transfer.success", "data": {"reference": "TRF-1"}}`)

	ev, err := s.ParseNotification(raw)
	require.NoError(t, err)
	assert.Empty(t, ev.Reference, "unrelated events must not resolve to a transaction")
	assert.False(t, ev.Succeeded)
}
