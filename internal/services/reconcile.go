package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// Manual verification guard results, in the order the guards run.
var (
	ErrCodeNotFound     = errors.New("no payment found for that code")
	ErrCodeOwnedByOther = errors.New("code already used by another account")
	ErrAlreadyProcessed = errors.New("payment already verified")
	ErrNotYetCompleted  = errors.New("payment not yet completed")
	ErrPhoneMismatch    = errors.New("phone number does not match this payment")
)

// ErrNotConfigured is returned by an adapter missing its credentials.
// Handlers surface it as a generic "payment temporarily unavailable".
var ErrNotConfigured = errors.New("payment provider not configured")

// NormalizedEvent is a provider notification reduced to the fields the
// reconciliation engine cares about.
type NormalizedEvent struct {
	Provider      string
	Reference     string
	AltReference  string
	Succeeded     bool
	ReceiptNumber string
	Amount        float64
	PayerIdentity string
	FailureReason string
}

// Outcome classifies what ProcessEvent did. Every outcome except an internal
// error is acknowledged to the provider with a 2xx.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeFailed        Outcome = "failed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnknown       Outcome = "unknown"
	OutcomeGrantDeferred Outcome = "grant_deferred"
)

// TransactionLedger is the durable store of payment attempts.
type TransactionLedger interface {
	CreatePending(ctx context.Context, tx *models.Transaction) error
	FindPending(ctx context.Context, reference, altRef string) (*models.Transaction, error)
	FindByCode(ctx context.Context, code string) (*models.Transaction, error)
	ReceiptUsed(ctx context.Context, receipt string) (bool, error)
	CompletePending(ctx context.Context, reference, receipt string) (bool, error)
	FailPending(ctx context.Context, reference, reason string) (bool, error)
}

// AccessGranter applies the access side effect of a completed transaction.
type AccessGranter interface {
	GrantAccess(ctx context.Context, email, plan string) error
}

// ProviderStatus is the upstream view of a transaction, consulted by the
// manual verification path before completing a still-pending row.
type ProviderStatus struct {
	Completed     bool
	ReceiptNumber string
}

// StatusChecker queries the provider for the authoritative state of a
// transaction.
type StatusChecker interface {
	CheckStatus(ctx context.Context, tx *models.Transaction) (*ProviderStatus, error)
}

// ProviderAdapter translates provider-native webhook payloads for the engine.
type ProviderAdapter interface {
	Name() string
	VerifySignature(ctx context.Context, raw []byte, header http.Header) bool
	ParseNotification(raw []byte) (NormalizedEvent, error)
}

// Notifier sends the post-grant confirmation. Best effort.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, email, plan, receipt string) error
}

// ReconciliationEngine applies the shared verification and guard logic for
// all providers, on both the webhook path and the manual fallback.
type ReconciliationEngine struct {
	ledger   TransactionLedger
	grants   AccessGranter
	checkers map[string]StatusChecker
	notifier Notifier
}

func NewReconciliationEngine(ledger TransactionLedger, grants AccessGranter) *ReconciliationEngine {
	return &ReconciliationEngine{
		ledger:   ledger,
		grants:   grants,
		checkers: make(map[string]StatusChecker),
	}
}

// RegisterStatusChecker wires the manual fallback's upstream check for one
// payment method.
func (e *ReconciliationEngine) RegisterStatusChecker(method string, checker StatusChecker) {
	e.checkers[method] = checker
}

// SetNotifier enables the post-grant confirmation email.
func (e *ReconciliationEngine) SetNotifier(n Notifier) {
	e.notifier = n
}

// ProcessEvent resolves an authenticated provider notification against the
// ledger: duplicate-receipt guard, locate the pending row, apply the
// completed/failed transition exactly once, grant access. Webhooks may
// arrive for unknown or already-processed transactions; those are no-ops,
// not errors.
func (e *ReconciliationEngine) ProcessEvent(ctx context.Context, ev NormalizedEvent) (Outcome, error) {
	if ev.Reference == "" && ev.AltReference == "" {
		log.Printf("[%s] notification without reference, ignored", ev.Provider)
		return OutcomeUnknown, nil
	}

	if ev.Succeeded && ev.ReceiptNumber != "" {
		used, err := e.ledger.ReceiptUsed(ctx, ev.ReceiptNumber)
		if err != nil {
			return "", err
		}
		if used {
			log.Printf("[%s] receipt %s already processed, reference=%s", ev.Provider, ev.ReceiptNumber, ev.Reference)
			return OutcomeDuplicate, nil
		}
	}

	tx, err := e.ledger.FindPending(ctx, ev.Reference, ev.AltReference)
	if err != nil {
		return "", err
	}
	if tx == nil {
		log.Printf("[%s] no pending transaction for reference=%s alt=%s", ev.Provider, ev.Reference, ev.AltReference)
		return OutcomeUnknown, nil
	}

	if !ev.Succeeded {
		moved, err := e.ledger.FailPending(ctx, tx.Reference, ev.FailureReason)
		if err != nil {
			return "", err
		}
		if !moved {
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, nil
	}

	moved, err := e.ledger.CompletePending(ctx, tx.Reference, ev.ReceiptNumber)
	if err != nil {
		return "", err
	}
	if !moved {
		// Lost the race to a concurrent delivery of the same notification.
		return OutcomeDuplicate, nil
	}

	return e.applyGrant(ctx, tx, ev.ReceiptNumber), nil
}

// VerifyManualCode lets an authenticated user supply a provider receipt or
// reference code when the webhook is delayed. Same guards and transition as
// the webhook path, invoked synchronously. Guard failures are returned as
// the sentinel errors above; ErrAlreadyProcessed is an idempotent success
// from the user's perspective.
func (e *ReconciliationEngine) VerifyManualCode(ctx context.Context, code, phoneNumber, callerEmail string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ErrCodeNotFound
	}

	tx, err := e.ledger.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if tx == nil {
		return ErrCodeNotFound
	}

	if !strings.EqualFold(tx.AccountReference, strings.TrimSpace(callerEmail)) {
		log.Printf("Manual verification denied: code %s belongs to another account", code)
		return ErrCodeOwnedByOther
	}

	if tx.Status == models.StatusCompleted {
		// Grant was already applied with the completion; skip re-granting.
		return ErrAlreadyProcessed
	}
	if tx.Status == models.StatusFailed {
		return ErrNotYetCompleted
	}

	receipt := code
	if checker, ok := e.checkers[tx.PaymentMethod]; ok {
		status, err := checker.CheckStatus(ctx, tx)
		if err != nil {
			log.Printf("Manual verification: status check failed for %s: %v", tx.Reference, err)
			return fmt.Errorf("failed to confirm payment with provider: %v", err)
		}
		if !status.Completed {
			return ErrNotYetCompleted
		}
		if status.ReceiptNumber != "" {
			receipt = status.ReceiptNumber
		}
	}

	if tx.PaymentMethod == models.MethodMpesa && tx.PhoneNumber != "" {
		supplied, err := NormalizeMSISDN(phoneNumber)
		if err != nil || supplied != tx.PhoneNumber {
			return ErrPhoneMismatch
		}
	}

	if receipt != "" {
		used, err := e.ledger.ReceiptUsed(ctx, receipt)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyProcessed
		}
	}

	moved, err := e.ledger.CompletePending(ctx, tx.Reference, receipt)
	if err != nil {
		return err
	}
	if !moved {
		// A webhook beat us to it between lookup and update.
		return ErrAlreadyProcessed
	}

	e.applyGrant(ctx, tx, receipt)
	return nil
}

// applyGrant applies the access side effect of a completion. A missing or
// failing profile update leaves the transaction completed but ungranted,
// recoverable by support, and never fails the calling request.
func (e *ReconciliationEngine) applyGrant(ctx context.Context, tx *models.Transaction, receipt string) Outcome {
	if err := e.grants.GrantAccess(ctx, tx.AccountReference, tx.Plan); err != nil {
		log.Printf("Transaction %s completed but grant failed for %s: %v", tx.Reference, tx.AccountReference, err)
		return OutcomeGrantDeferred
	}

	if e.notifier != nil {
		if err := e.notifier.PaymentConfirmed(ctx, tx.AccountReference, tx.Plan, receipt); err != nil {
			log.Printf("Failed to send confirmation email to %s: %v", tx.AccountReference, err)
		}
	}

	return OutcomeCompleted
}
