package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// ErrInvalidPhone is returned when a phone number cannot be normalized to a
// Kenyan mobile number.
var ErrInvalidPhone = errors.New("invalid phone number")

// MpesaService drives the Daraja STK push flow: initiate a PIN prompt on the
// payer's phone, record the pending transaction, translate the asynchronous
// callback, and query push status for the manual fallback.
type MpesaService struct {
	ledger TransactionLedger
	cfg    config.MpesaConfig
	client *http.Client
}

func NewMpesaService(cfg config.MpesaConfig, ledger TransactionLedger) *MpesaService {
	return &MpesaService{
		ledger: ledger,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *MpesaService) Name() string { return models.MethodMpesa }

func (s *MpesaService) configured() bool {
	return s.cfg.ConsumerKey != "" && s.cfg.ConsumerSecret != "" && s.cfg.Shortcode != "" && s.cfg.Passkey != ""
}

// NormalizeMSISDN rewrites a Kenyan mobile number to the canonical
// +254XXXXXXXXX form. Accepts 07XXXXXXXX, 01XXXXXXXX, bare 7XXXXXXXX,
// 254XXXXXXXXX and +254XXXXXXXXX input styles.
func NormalizeMSISDN(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	digits := strings.TrimPrefix(cleaned, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		// already international
	case len(digits) == 10 && (strings.HasPrefix(digits, "07") || strings.HasPrefix(digits, "01")):
		digits = "254" + digits[1:]
	case len(digits) == 9 && (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")):
		digits = "254" + digits
	default:
		return "", ErrInvalidPhone
	}

	return "+" + digits, nil
}

func (s *MpesaService) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		s.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %v", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString(
		[]byte(s.cfg.ConsumerKey+":"+s.cfg.ConsumerSecret)))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %v", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// InitiateSTKPush triggers the PIN prompt on the payer's phone and persists
// the pending transaction keyed by CheckoutRequestID. No transaction is
// written when the push fails.
func (s *MpesaService) InitiateSTKPush(ctx context.Context, plan *models.Plan, email, phone string) (*InitiateResult, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	msisdn, err := NormalizeMSISDN(phone)
	if err != nil {
		return nil, err
	}
	partyA := strings.TrimPrefix(msisdn, "+")

	token, err := s.accessToken(ctx)
	if err != nil {
		log.Printf("M-Pesa token fetch failed: %v", err)
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(s.cfg.Shortcode + s.cfg.Passkey + timestamp))

	pushReq := map[string]interface{}{
		"BusinessShortCode": s.cfg.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int(plan.PriceKES),
		"PartyA":            partyA,
		"PartyB":            s.cfg.Shortcode,
		"PhoneNumber":       partyA,
		"CallBackURL":       s.cfg.CallbackURL,
		"AccountReference":  email,
		"TransactionDesc":   "Course plan " + plan.Code,
	}
	reqBody, err := json.Marshal(pushReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push request: %v", err)
	}
	log.Printf("M-Pesa STK push: shortcode=%s, msisdn=%s", s.cfg.Shortcode, maskPhone(partyA))

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create push request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("M-Pesa push request failed: %v", err)
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("M-Pesa push failed with status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("push failed with status %d", resp.StatusCode)
	}

	var pushResp struct {
		MerchantRequestID string `json:"MerchantRequestID"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		CustomerMessage   string `json:"CustomerMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %v", err)
	}
	if pushResp.ResponseCode != "0" || pushResp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("push rejected with response code %s", pushResp.ResponseCode)
	}

	tx := &models.Transaction{
		Reference:        pushResp.CheckoutRequestID,
		MerchantRef:      pushResp.MerchantRequestID,
		AccountReference: strings.ToLower(strings.TrimSpace(email)),
		Amount:           plan.PriceKES,
		Currency:         "KES",
		Plan:             plan.Code,
		PaymentMethod:    models.MethodMpesa,
		PhoneNumber:      msisdn,
	}
	if err := s.ledger.CreatePending(ctx, tx); err != nil {
		return nil, err
	}

	return &InitiateResult{
		Reference: pushResp.CheckoutRequestID,
		Prompt:    pushResp.CustomerMessage,
	}, nil
}

// VerifySignature applies the aggregator HMAC-SHA256 check on the callback
// when a secret is configured. Daraja does not sign callbacks itself, so an
// unset secret means verification is skipped rather than failed.
func (s *MpesaService) VerifySignature(ctx context.Context, raw []byte, header http.Header) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	return VerifyHMACSHA256(raw, s.cfg.WebhookSecret, header.Get("x-mpesa-signature"))
}

// ParseNotification extracts the STK callback fields. ResultCode 0 is the
// success indicator; MpesaReceiptNumber is the proof-of-payment code.
func (s *MpesaService) ParseNotification(raw []byte) (NormalizedEvent, error) {
	var payload struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string `json:"MerchantRequestID"`
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        int    `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []struct {
						Name  string      `json:"Name"`
						Value interface{} `json:"Value"`
					} `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return NormalizedEvent{}, fmt.Errorf("invalid callback payload: %v", err)
	}

	cb := payload.Body.StkCallback
	ev := NormalizedEvent{
		Provider:      models.MethodMpesa,
		Reference:     cb.CheckoutRequestID,
		AltReference:  cb.MerchantRequestID,
		Succeeded:     cb.ResultCode == 0,
		FailureReason: cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				ev.ReceiptNumber = strings.ToUpper(v)
			}
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				ev.Amount = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				ev.PayerIdentity = fmt.Sprintf("%.0f", v)
			case string:
				ev.PayerIdentity = v
			}
		}
	}

	return ev, nil
}

// CheckStatus queries the STK push result for the manual fallback. The query
// endpoint reports ResultCode as a string, unlike the callback.
func (s *MpesaService) CheckStatus(ctx context.Context, tx *models.Transaction) (*ProviderStatus, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(s.cfg.Shortcode + s.cfg.Passkey + timestamp))

	queryReq := map[string]interface{}{
		"BusinessShortCode": s.cfg.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": tx.Reference,
	}
	reqBody, err := json.Marshal(queryReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/mpesa/stkpushquery/v1/query", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create query request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status query failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status query failed with status %d: %s", resp.StatusCode, string(body))
	}

	var queryResp struct {
		ResultCode string `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %v", err)
	}

	return &ProviderStatus{Completed: queryResp.ResultCode == "0"}, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
