package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

// WebhookHandler serves the inbound notification endpoints for every
// registered provider. Providers retry on non-2xx forever, so everything
// except an authentication failure is acknowledged with a 200: unknown
// references, duplicates, even internal errors after authentication. A
// missed grant is recoverable by support; a retry storm is not.
type WebhookHandler struct {
	engine   *services.ReconciliationEngine
	adapters map[string]services.ProviderAdapter
}

func NewWebhookHandler(engine *services.ReconciliationEngine, adapters ...services.ProviderAdapter) *WebhookHandler {
	byName := make(map[string]services.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &WebhookHandler{engine: engine, adapters: byName}
}

// Handle authenticates and reconciles one provider notification.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, mux.Vars(r)["provider"])
}

// HandleProvider serves a fixed-provider route such as the M-Pesa callback
// URL registered with Daraja.
func (h *WebhookHandler) HandleProvider(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handle(w, r, provider)
	}
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, provider string) {
	adapter, ok := h.adapters[provider]
	if !ok {
		http.Error(w, `{"error":"Unknown provider"}`, http.StatusNotFound)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[%s] failed to read webhook body: %v", provider, err)
		http.Error(w, `{"error":"Invalid body"}`, http.StatusBadRequest)
		return
	}

	if !adapter.VerifySignature(r.Context(), raw, r.Header) {
		log.Printf("[%s] webhook signature verification failed", provider)
		http.Error(w, `{"error":"Invalid signature"}`, http.StatusUnauthorized)
		return
	}

	ev, err := adapter.ParseNotification(raw)
	if err != nil {
		// Authenticated but undecodable. Acknowledge so the provider does
		// not retry a payload we will never be able to parse.
		log.Printf("[%s] failed to parse webhook: %v", provider, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	outcome, err := h.engine.ProcessEvent(r.Context(), ev)
	if err != nil {
		log.Printf("[%s] reconciliation error for reference=%s: %v", provider, ev.Reference, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "error_logged"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
