package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Hunterkip/learnaisimply-sub000/internal/middleware"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

type PaymentHandler struct {
	engine   *services.ReconciliationEngine
	users    *services.UserService
	plans    *services.PlanService
	ledger   *services.TransactionService
	mpesa    *services.MpesaService
	paypal   *services.PayPalService
	paystack *services.PaystackService
}

func NewPaymentHandler(
	engine *services.ReconciliationEngine,
	users *services.UserService,
	plans *services.PlanService,
	ledger *services.TransactionService,
	mpesa *services.MpesaService,
	paypal *services.PayPalService,
	paystack *services.PaystackService,
) *PaymentHandler {
	return &PaymentHandler{
		engine:   engine,
		users:    users,
		plans:    plans,
		ledger:   ledger,
		mpesa:    mpesa,
		paypal:   paypal,
		paystack: paystack,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// Initiate starts a payment with the provider in the URL. The payer's email
// comes from the session, never the request body.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.CallerEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Authentication required",
		})
		return
	}

	var req struct {
		Plan        string `json:"plan"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "Invalid request body",
		})
		return
	}

	plan, err := h.plans.GetByCode(r.Context(), req.Plan)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "Unknown plan",
			})
			return
		}
		log.Printf("Failed to load plan %s: %v", req.Plan, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "message": "Failed to load plan",
		})
		return
	}

	provider := mux.Vars(r)["provider"]
	var result *services.InitiateResult
	switch provider {
	case models.MethodMpesa:
		result, err = h.mpesa.InitiateSTKPush(r.Context(), plan, email, req.PhoneNumber)
	case models.MethodPayPal:
		result, err = h.paypal.CreateOrder(r.Context(), plan, email)
	case models.MethodPaystack:
		result, err = h.paystack.Initialize(r.Context(), plan, email)
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false, "message": "Unknown payment provider",
		})
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotConfigured):
			// Full detail stays in server logs only.
			log.Printf("Payment initiation unavailable for %s: %v", provider, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success": false, "message": "Payment temporarily unavailable", "code": "ConfigurationError",
			})
		case errors.Is(err, services.ErrInvalidPhone):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "Invalid phone number", "code": "InvalidAddress",
			})
		default:
			log.Printf("Payment initiation failed for %s: %v", provider, err)
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"success": false, "message": "Payment could not be started, please try again", "code": "ProviderUnavailable",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"reference": result.Reference,
		"redirect":  result.RedirectURL,
		"prompt":    result.Prompt,
	})
}

// VerifyManual lets a user stuck waiting for a webhook supply their receipt
// or reference code. Caller identity comes from the session.
func (h *PaymentHandler) VerifyManual(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.CallerEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Authentication required",
		})
		return
	}

	var req struct {
		Code        string `json:"code"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "Invalid request body",
		})
		return
	}

	err := h.engine.VerifyManualCode(r.Context(), req.Code, req.PhoneNumber, email)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "message": "Payment verified, your access is active",
		})
	case errors.Is(err, services.ErrAlreadyProcessed):
		// Idempotent success from the user's perspective.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "message": "Payment already verified",
		})
	case errors.Is(err, services.ErrCodeNotFound):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false, "reason": "NotFound", "message": "No payment found for that code",
		})
	case errors.Is(err, services.ErrCodeOwnedByOther):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false, "reason": "AlreadyUsedByAnotherAccount", "message": "That code has already been used",
		})
	case errors.Is(err, services.ErrNotYetCompleted):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false, "reason": "NotYetCompleted", "message": "The payment has not completed yet, please try again shortly",
		})
	case errors.Is(err, services.ErrPhoneMismatch):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false, "reason": "PhoneMismatch", "message": "The phone number does not match this payment",
		})
	default:
		log.Printf("Manual verification failed for %s: %v", email, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "message": "Verification failed, please try again",
		})
	}
}

// Access is the idempotent read clients poll after initiating a payment.
func (h *PaymentHandler) Access(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.CallerEmail(r)
	if !ok {
		http.Error(w, `{"error":"Authentication required"}`, http.StatusUnauthorized)
		return
	}

	hasAccess, plan, err := h.users.AccessStatus(r.Context(), email)
	if err != nil {
		log.Printf("Failed to read access for %s: %v", email, err)
		http.Error(w, `{"error":"Failed to read access"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hasAccess": hasAccess,
		"plan":      plan,
	})
}

// CapturePayPal captures an approved order when the client returns from the
// redirect, then feeds the result through the same reconciliation engine the
// webhook uses.
func (h *PaymentHandler) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.CallerEmail(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Authentication required",
		})
		return
	}

	orderID := mux.Vars(r)["orderID"]
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "Order id is required",
		})
		return
	}

	ev, err := h.paypal.CaptureOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("PayPal capture failed for %s: %v", orderID, err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false, "message": "Capture failed, your payment may still complete automatically",
		})
		return
	}

	outcome, err := h.engine.ProcessEvent(r.Context(), ev)
	if err != nil {
		log.Printf("PayPal capture reconciliation failed for %s: %v", orderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "message": "Payment recorded but not yet reconciled",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": outcome == services.OutcomeCompleted || outcome == services.OutcomeDuplicate,
		"status":  string(outcome),
	})
}

// ListTransactions is the admin support listing over the ledger.
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	var statusPtr, startDatePtr, endDatePtr *string
	if statusFilter != "" {
		statusPtr = &statusFilter
	}
	if startDate != "" {
		startDatePtr = &startDate
	}
	if endDate != "" {
		endDatePtr = &endDate
	}

	txs, err := h.ledger.ListTransactions(r.Context(), statusPtr, startDatePtr, endDatePtr)
	if err != nil {
		log.Printf("Failed to fetch transactions: %v", err)
		http.Error(w, `{"error":"Failed to fetch transactions"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}
