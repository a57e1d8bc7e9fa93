package models

import (
	"time"
)

// Transaction statuses. Transitions are forward-only: a transaction leaves
// "pending" exactly once and never leaves "completed" or "failed".
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Supported payment methods.
const (
	MethodMpesa    = "mpesa"
	MethodPayPal   = "paypal"
	MethodPaystack = "paystack"
)

// Transaction is one attempted payment, keyed by the provider-assigned
// reference. ReceiptNumber is set on completion and acts as a uniqueness
// guard: at most one completed transaction may ever hold a given receipt.
type Transaction struct {
	ID               string    `bson:"_id,omitempty" json:"id"`
	Reference        string    `bson:"reference" json:"reference"`
	MerchantRef      string    `bson:"merchant_ref,omitempty" json:"merchant_ref,omitempty"`
	AccountReference string    `bson:"account_reference" json:"account_reference"`
	Amount           float64   `bson:"amount" json:"amount"`
	Currency         string    `bson:"currency" json:"currency"`
	Plan             string    `bson:"plan" json:"plan"`
	PaymentMethod    string    `bson:"payment_method" json:"payment_method"`
	Status           string    `bson:"status" json:"status"`
	ReceiptNumber    string    `bson:"receipt_number,omitempty" json:"receipt_number,omitempty"`
	FailureReason    string    `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	PhoneNumber      string    `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}
