package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

// memLedger is an in-memory services.TransactionLedger for handler tests.
type memLedger struct {
	byRef map[string]*models.Transaction
}

func newMemLedger(txs ...*models.Transaction) *memLedger {
	l := &memLedger{byRef: make(map[string]*models.Transaction)}
	for _, tx := range txs {
		l.byRef[tx.Reference] = tx
	}
	return l
}

func (l *memLedger) CreatePending(ctx context.Context, tx *models.Transaction) error {
	tx.Status = models.StatusPending
	l.byRef[tx.Reference] = tx
	return nil
}

func (l *memLedger) FindPending(ctx context.Context, reference, altRef string) (*models.Transaction, error) {
	for _, tx := range l.byRef {
		if tx.Status != models.StatusPending {
			continue
		}
		if (reference != "" && tx.Reference == reference) || (altRef != "" && tx.MerchantRef == altRef) {
			return tx, nil
		}
	}
	return nil, nil
}

func (l *memLedger) FindByCode(ctx context.Context, code string) (*models.Transaction, error) {
	for _, tx := range l.byRef {
		if tx.Reference == code || (tx.ReceiptNumber != "" && tx.ReceiptNumber == code) {
			return tx, nil
		}
	}
	return nil, nil
}

func (l *memLedger) ReceiptUsed(ctx context.Context, receipt string) (bool, error) {
	for _, tx := range l.byRef {
		if tx.Status == models.StatusCompleted && tx.ReceiptNumber == receipt {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) CompletePending(ctx context.Context, reference, receipt string) (bool, error) {
	tx, ok := l.byRef[reference]
	if !ok || tx.Status != models.StatusPending {
		return false, nil
	}
	tx.Status = models.StatusCompleted
	tx.ReceiptNumber = receipt
	tx.UpdatedAt = time.Now()
	return true, nil
}

func (l *memLedger) FailPending(ctx context.Context, reference, reason string) (bool, error) {
	tx, ok := l.byRef[reference]
	if !ok || tx.Status != models.StatusPending {
		return false, nil
	}
	tx.Status = models.StatusFailed
	tx.FailureReason = reason
	return true, nil
}

type memGrants struct {
	access map[string]bool
}

func (g *memGrants) GrantAccess(ctx context.Context, email, plan string) error {
	if g.access == nil {
		g.access = make(map[string]bool)
	}
	g.access[email] = true
	return nil
}

func newWebhookRouter(engine *services.ReconciliationEngine, adapters ...services.ProviderAdapter) *mux.Router {
	h := NewWebhookHandler(engine, adapters...)
	router := mux.NewRouter()
	router.HandleFunc("/api/payments/mpesa/callback", h.HandleProvider(models.MethodMpesa)).Methods("POST")
	router.HandleFunc("/api/payments/{provider}/webhook", h.Handle).Methods("POST")
	return router
}

func TestWebhook_PaystackBadSignatureRejected(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "LAS-1",
		AccountReference: "jane@x.com",
		PaymentMethod:    models.MethodPaystack,
		Status:           models.StatusPending,
	}
	ledger := newMemLedger(tx)
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(ledger, grants)
	paystack := services.NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, ledger)

	body := []byte(`{"event":"charge.success","data":{"id":1,"reference":"LAS-1","status":"success"}}`)
	req := httptest.NewRequest("POST", "/api/payments/paystack/webhook", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", services.SignHMACSHA512(body, "sk_test_wrong"))
	rec := httptest.NewRecorder()

	newWebhookRouter(engine, paystack).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.StatusPending, tx.Status, "rejected webhook must not mutate the ledger")
	assert.Empty(t, grants.access)
}

func TestWebhook_PaystackValidSignatureCompletes(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "LAS-1",
		AccountReference: "jane@x.com",
		Plan:             "regular",
		PaymentMethod:    models.MethodPaystack,
		Status:           models.StatusPending,
	}
	ledger := newMemLedger(tx)
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(ledger, grants)
	paystack := services.NewPaystackService(config.PaystackConfig{SecretKey: "sk_test_abc"}, ledger)

	body := []byte(`{"event":"charge.success","data":{"id":42,"reference":"LAS-1","status":"success","customer":{"email":"jane@x.com"}}}`)
	req := httptest.NewRequest("POST", "/api/payments/paystack/webhook", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", services.SignHMACSHA512(body, "sk_test_abc"))
	rec := httptest.NewRecorder()

	newWebhookRouter(engine, paystack).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.True(t, grants.access["jane@x.com"])
}

func TestWebhook_UnknownReferenceAcknowledged(t *testing.T) {
	ledger := newMemLedger()
	engine := services.NewReconciliationEngine(ledger, &memGrants{})
	mpesa := services.NewMpesaService(config.MpesaConfig{}, ledger)

	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_unknown","ResultCode":0}}}`)
	req := httptest.NewRequest("POST", "/api/payments/mpesa/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newWebhookRouter(engine, mpesa).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(services.OutcomeUnknown), resp["status"])
	assert.Empty(t, ledger.byRef)
}

func TestWebhook_MpesaCallbackGrantsAccess(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "ws_CO_191220231020363925",
		MerchantRef:      "29115-34620561-1",
		AccountReference: "jane@x.com",
		Plan:             "premium",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusPending,
		PhoneNumber:      "+254712345678",
	}
	ledger := newMemLedger(tx)
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(ledger, grants)
	mpesa := services.NewMpesaService(config.MpesaConfig{}, ledger)

	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220231020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":4500.00},
			{"Name":"MpesaReceiptNumber","Value":"QWE123"},
			{"Name":"PhoneNumber","Value":254712345678}
		]}
	}}}`)
	req := httptest.NewRequest("POST", "/api/payments/mpesa/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router := newWebhookRouter(engine, mpesa)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.Equal(t, "QWE123", tx.ReceiptNumber)
	assert.True(t, grants.access["jane@x.com"])

	// Replayed delivery is a no-op answered with success.
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest("POST", "/api/payments/mpesa/callback", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec2.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	assert.Equal(t, string(services.OutcomeDuplicate), resp["status"])
}

func TestWebhook_UnknownProviderNotFound(t *testing.T) {
	engine := services.NewReconciliationEngine(newMemLedger(), &memGrants{})
	req := httptest.NewRequest("POST", "/api/payments/stripe/webhook", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	newWebhookRouter(engine).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_MalformedPayloadAcknowledged(t *testing.T) {
	ledger := newMemLedger()
	engine := services.NewReconciliationEngine(ledger, &memGrants{})
	mpesa := services.NewMpesaService(config.MpesaConfig{}, ledger)

	req := httptest.NewRequest("POST", "/api/payments/mpesa/callback", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	newWebhookRouter(engine, mpesa).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "undecodable payloads are acknowledged, not retried")
}
