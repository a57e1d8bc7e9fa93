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
	"net/url"
	"strings"
	"time"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// PayPalService drives the Orders v2 flow: create an order and hand back the
// approval link, capture after approval, and translate capture webhooks.
type PayPalService struct {
	ledger TransactionLedger
	cfg    config.PayPalConfig
	client *http.Client
}

func NewPayPalService(cfg config.PayPalConfig, ledger TransactionLedger) *PayPalService {
	return &PayPalService{
		ledger: ledger,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *PayPalService) Name() string { return models.MethodPayPal }

func (s *PayPalService) configured() bool {
	return s.cfg.ClientID != "" && s.cfg.Secret != ""
}

func (s *PayPalService) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %v", err)
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

// CreateOrder creates a CAPTURE-intent order and persists the pending
// transaction keyed by the order id. The caller redirects the user to the
// returned approval link.
func (s *PayPalService) CreateOrder(ctx context.Context, plan *models.Plan, email string) (*InitiateResult, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		log.Printf("PayPal token fetch failed: %v", err)
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}

	orderReq := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"description": "Course plan " + plan.Code,
				"custom_id":   strings.ToLower(strings.TrimSpace(email)),
				"amount": map[string]string{
					"currency_code": "USD",
					"value":         fmt.Sprintf("%.2f", plan.PriceUSD),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": s.cfg.ReturnURL,
			"cancel_url": s.cfg.CancelURL,
		},
	}
	reqBody, err := json.Marshal(orderReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/v2/checkout/orders", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("PayPal order request failed: %v", err)
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("PayPal order failed with status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("order creation failed with status %d", resp.StatusCode)
	}

	var orderResp struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %v", err)
	}
	if orderResp.ID == "" {
		return nil, errors.New("no order id in response")
	}

	approveURL := ""
	for _, link := range orderResp.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, errors.New("no approval link in order response")
	}

	tx := &models.Transaction{
		Reference:        orderResp.ID,
		AccountReference: strings.ToLower(strings.TrimSpace(email)),
		Amount:           plan.PriceUSD,
		Currency:         "USD",
		Plan:             plan.Code,
		PaymentMethod:    models.MethodPayPal,
	}
	if err := s.ledger.CreatePending(ctx, tx); err != nil {
		return nil, err
	}

	return &InitiateResult{
		Reference:   orderResp.ID,
		RedirectURL: approveURL,
	}, nil
}

// CaptureOrder captures an approved order and returns the normalized event
// for the reconciliation engine. Used when the client returns from the
// approval redirect before the capture webhook lands.
func (s *PayPalService) CaptureOrder(ctx context.Context, orderID string) (NormalizedEvent, error) {
	if !s.configured() {
		return NormalizedEvent{}, ErrNotConfigured
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return NormalizedEvent{}, fmt.Errorf("provider unavailable: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/v2/checkout/orders/"+orderID+"/capture", bytes.NewBufferString("{}"))
	if err != nil {
		return NormalizedEvent{}, fmt.Errorf("failed to create capture request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return NormalizedEvent{}, fmt.Errorf("capture request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return NormalizedEvent{}, fmt.Errorf("capture failed with status %d: %s", resp.StatusCode, string(body))
	}

	var captureResp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&captureResp); err != nil {
		return NormalizedEvent{}, fmt.Errorf("failed to decode capture response: %v", err)
	}

	ev := NormalizedEvent{
		Provider:  models.MethodPayPal,
		Reference: captureResp.ID,
		Succeeded: captureResp.Status == "COMPLETED",
	}
	if !ev.Succeeded {
		ev.FailureReason = "capture status " + captureResp.Status
	}
	for _, unit := range captureResp.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				ev.ReceiptNumber = capture.ID
			}
		}
	}
	return ev, nil
}

// VerifySignature validates the webhook through PayPal's verification
// endpoint using the transmission headers. No configured webhook id means
// verification is skipped, not failed.
func (s *PayPalService) VerifySignature(ctx context.Context, raw []byte, header http.Header) bool {
	if s.cfg.WebhookID == "" {
		return true
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		log.Printf("PayPal signature verification: token fetch failed: %v", err)
		return false
	}

	verifyReq := map[string]interface{}{
		"transmission_id":   header.Get("paypal-transmission-id"),
		"transmission_time": header.Get("paypal-transmission-time"),
		"cert_url":          header.Get("paypal-cert-url"),
		"auth_algo":         header.Get("paypal-auth-algo"),
		"transmission_sig":  header.Get("paypal-transmission-sig"),
		"webhook_id":        s.cfg.WebhookID,
		"webhook_event":     json.RawMessage(raw),
	}
	reqBody, err := json.Marshal(verifyReq)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		s.cfg.BaseURL+"/v1/notifications/verify-webhook-signature", bytes.NewBuffer(reqBody))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("PayPal signature verification request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var verifyResp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return false
	}
	return verifyResp.VerificationStatus == "SUCCESS"
}

// ParseNotification translates capture webhooks. The order id is the ledger
// reference; the capture id becomes the receipt number.
func (s *PayPalService) ParseNotification(raw []byte) (NormalizedEvent, error) {
	var payload struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			Status            string `json:"status"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return NormalizedEvent{}, fmt.Errorf("invalid webhook payload: %v", err)
	}

	ev := NormalizedEvent{Provider: models.MethodPayPal}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		ev.Succeeded = payload.Resource.Status == "COMPLETED"
		ev.Reference = payload.Resource.SupplementaryData.RelatedIDs.OrderID
		ev.AltReference = payload.Resource.ID
		ev.ReceiptNumber = payload.Resource.ID
		if ev.Reference == "" {
			ev.Reference = payload.Resource.ID
		}
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		ev.Reference = payload.Resource.SupplementaryData.RelatedIDs.OrderID
		if ev.Reference == "" {
			ev.Reference = payload.Resource.ID
		}
		ev.FailureReason = payload.EventType
	default:
		// Other events (order approved, refunds) are acknowledged untouched;
		// completion rides on the capture event or the client-return capture.
	}

	return ev, nil
}

// CheckStatus reads the order for the manual fallback. An order is complete
// once its capture settled.
func (s *PayPalService) CheckStatus(ctx context.Context, tx *models.Transaction) (*ProviderStatus, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider unavailable: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET",
		s.cfg.BaseURL+"/v2/checkout/orders/"+tx.Reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create order lookup: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order lookup failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("order lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var orderResp struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %v", err)
	}

	status := &ProviderStatus{Completed: orderResp.Status == "COMPLETED"}
	for _, unit := range orderResp.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				status.ReceiptNumber = capture.ID
			}
		}
	}
	return status, nil
}
