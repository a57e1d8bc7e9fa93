package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// PaystackService initializes hosted-checkout transactions with a
// self-generated reference, verifies webhook signatures, and translates
// charge events.
type PaystackService struct {
	ledger TransactionLedger
	cfg    config.PaystackConfig
	client *http.Client
}

func NewPaystackService(cfg config.PaystackConfig, ledger TransactionLedger) *PaystackService {
	return &PaystackService{
		ledger: ledger,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *PaystackService) Name() string { return models.MethodPaystack }

func (s *PaystackService) configured() bool {
	return s.cfg.SecretKey != ""
}

// Initialize creates a hosted checkout session. The reference is ours, so
// the pending transaction is keyed before the user ever reaches Paystack.
func (s *PaystackService) Initialize(ctx context.Context, plan *models.Plan, email string) (*InitiateResult, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	reference := "LAS-" + strings.ToUpper(primitive.NewObjectID().Hex())

	initReq := map[string]interface{}{
		"email":     strings.ToLower(strings.TrimSpace(email)),
		"amount":    int(plan.PriceKES * 100), // subunits
		"currency":  "KES",
		"reference": reference,
		"metadata": map[string]string{
			"plan": plan.Code,
		},
	}
	if s.cfg.CallbackURL != "" {
		initReq["callback_url"] = s.cfg.CallbackURL
	}
	reqBody, err := json.Marshal(initReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/transaction/initialize", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create initialize request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("Paystack initialize request failed: %v", err)
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("Paystack initialize failed with status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("initialize failed with status %d", resp.StatusCode)
	}

	var initResp struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, fmt.Errorf("failed to decode initialize response: %v", err)
	}
	if !initResp.Status || initResp.Data.AuthorizationURL == "" {
		return nil, errors.New("no authorization URL in response")
	}

	tx := &models.Transaction{
		Reference:        reference,
		AccountReference: strings.ToLower(strings.TrimSpace(email)),
		Amount:           plan.PriceKES,
		Currency:         "KES",
		Plan:             plan.Code,
		PaymentMethod:    models.MethodPaystack,
	}
	if err := s.ledger.CreatePending(ctx, tx); err != nil {
		return nil, err
	}

	return &InitiateResult{
		Reference:   reference,
		RedirectURL: initResp.Data.AuthorizationURL,
	}, nil
}

// VerifySignature checks the HMAC-SHA512 hex of the raw body against the
// x-paystack-signature header. No configured secret means verification is
// skipped, not failed.
func (s *PaystackService) VerifySignature(ctx context.Context, raw []byte, header http.Header) bool {
	if s.cfg.SecretKey == "" {
		return true
	}
	return VerifyHMACSHA512(raw, s.cfg.SecretKey, header.Get("x-paystack-signature"))
}

// ParseNotification translates charge events. charge.success is the success
// indicator; the numeric charge id is kept as the receipt.
func (s *PaystackService) ParseNotification(raw []byte) (NormalizedEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			ID        int64   `json:"id"`
			Reference string  `json:"reference"`
			Amount    float64 `json:"amount"`
			Status    string  `json:"status"`
			Customer  struct {
				Email string `json:"email"`
			} `json:"customer"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return NormalizedEvent{}, fmt.Errorf("invalid webhook payload: %v", err)
	}

	ev := NormalizedEvent{
		Provider:      models.MethodPaystack,
		Reference:     payload.Data.Reference,
		Amount:        payload.Data.Amount / 100,
		PayerIdentity: payload.Data.Customer.Email,
	}

	switch payload.Event {
	case "charge.success":
		ev.Succeeded = true
		if payload.Data.ID != 0 {
			ev.ReceiptNumber = "PSK-" + strconv.FormatInt(payload.Data.ID, 10)
		}
	case "charge.failed":
		ev.FailureReason = "charge " + payload.Data.Status
	default:
		// Transfers, disputes and other events are acknowledged untouched.
		ev.Reference = ""
	}

	return ev, nil
}

// CheckStatus verifies the transaction upstream for the manual fallback.
func (s *PaystackService) CheckStatus(ctx context.Context, tx *models.Transaction) (*ProviderStatus, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, "GET",
		s.cfg.BaseURL+"/transaction/verify/"+tx.Reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("verify failed with status %d: %s", resp.StatusCode, string(body))
	}

	var verifyResp struct {
		Status bool `json:"status"`
		Data   struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %v", err)
	}

	status := &ProviderStatus{Completed: verifyResp.Data.Status == "success"}
	if status.Completed && verifyResp.Data.ID != 0 {
		status.ReceiptNumber = "PSK-" + strconv.FormatInt(verifyResp.Data.ID, 10)
	}
	return status, nil
}
