package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hunterkip/learnaisimply-sub000/internal/middleware"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

// stubChecker reports a fixed upstream status for manual verification.
type stubChecker struct {
	completed bool
	receipt   string
}

func (c *stubChecker) CheckStatus(ctx context.Context, tx *models.Transaction) (*services.ProviderStatus, error) {
	return &services.ProviderStatus{Completed: c.completed, ReceiptNumber: c.receipt}, nil
}

func verifyManualRequest(t *testing.T, h *PaymentHandler, email string, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/payments/verify-manual", bytes.NewReader(body))
	if email != "" {
		ctx := context.WithValue(req.Context(), middleware.UserContextKey, &middleware.Claims{Email: email})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h.VerifyManual(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestVerifyManual_RequiresAuthentication(t *testing.T) {
	engine := services.NewReconciliationEngine(newMemLedger(), &memGrants{})
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "", map[string]string{"code": "QWE123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyManual_GrantsAccessOnConfirmedPayment(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "WS_CO_191220231020363925",
		AccountReference: "jane@x.com",
		Plan:             "regular",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusPending,
		PhoneNumber:      "+254712345678",
	}
	ledger := newMemLedger(tx)
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(ledger, grants)
	engine.RegisterStatusChecker(models.MethodMpesa, &stubChecker{completed: true, receipt: "QWE123"})
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "jane@x.com", map[string]string{
		"code":        "ws_co_191220231020363925",
		"phoneNumber": "0712345678",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.Equal(t, "QWE123", tx.ReceiptNumber)
	assert.True(t, grants.access["jane@x.com"])
}

func TestVerifyManual_CodeOwnedByAnotherAccount(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "WS_CO_1",
		AccountReference: "jane@x.com",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusPending,
	}
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(newMemLedger(tx), grants)
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "mallory@x.com", map[string]string{"code": "WS_CO_1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "AlreadyUsedByAnotherAccount", resp["reason"])
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Empty(t, grants.access)
}

func TestVerifyManual_AlreadyVerifiedIsIdempotentSuccess(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "WS_CO_1",
		AccountReference: "jane@x.com",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusCompleted,
		ReceiptNumber:    "QWE123",
	}
	grants := &memGrants{}
	engine := services.NewReconciliationEngine(newMemLedger(tx), grants)
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "jane@x.com", map[string]string{"code": "WS_CO_1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Empty(t, grants.access, "a repeat verification must not re-grant")
}

func TestVerifyManual_UnknownCode(t *testing.T) {
	engine := services.NewReconciliationEngine(newMemLedger(), &memGrants{})
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "jane@x.com", map[string]string{"code": "NOPE123"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "NotFound", resp["reason"])
}

func TestVerifyManual_PendingUpstreamNotCompleted(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "WS_CO_1",
		AccountReference: "jane@x.com",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusPending,
	}
	engine := services.NewReconciliationEngine(newMemLedger(tx), &memGrants{})
	engine.RegisterStatusChecker(models.MethodMpesa, &stubChecker{completed: false})
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "jane@x.com", map[string]string{"code": "WS_CO_1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "NotYetCompleted", resp["reason"])
	assert.Equal(t, models.StatusPending, tx.Status)
}

func TestVerifyManual_PhoneMismatch(t *testing.T) {
	tx := &models.Transaction{
		Reference:        "WS_CO_1",
		AccountReference: "jane@x.com",
		PaymentMethod:    models.MethodMpesa,
		Status:           models.StatusPending,
		PhoneNumber:      "+254712345678",
	}
	engine := services.NewReconciliationEngine(newMemLedger(tx), &memGrants{})
	engine.RegisterStatusChecker(models.MethodMpesa, &stubChecker{completed: true, receipt: "QWE123"})
	h := NewPaymentHandler(engine, nil, nil, nil, nil, nil, nil)

	rec := verifyManualRequest(t, h, "jane@x.com", map[string]string{
		"code":        "WS_CO_1",
		"phoneNumber": "0799999999",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "PhoneMismatch", resp["reason"])
	assert.Equal(t, models.StatusPending, tx.Status)
}
