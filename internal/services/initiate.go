package services

// InitiateResult is what a provider adapter returns from a successful
// payment initiation: the ledger reference plus either a redirect URL
// (PayPal, Paystack) or an on-device prompt message (M-Pesa STK push).
type InitiateResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}
