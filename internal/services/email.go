package services

import (
	"context"
	"fmt"
	"log"

	"github.com/keighl/postmark"
)

// EmailService sends transactional mail through Postmark. Delivery is best
// effort; a failed confirmation never fails the payment that triggered it.
type EmailService struct {
	client *postmark.Client
	sender string
}

// NewEmailService returns nil when no API token is configured, which
// disables confirmation mail without affecting reconciliation.
func NewEmailService(apiToken, sender string) *EmailService {
	if apiToken == "" {
		return nil
	}
	return &EmailService{
		client: postmark.NewClient(apiToken, ""),
		sender: sender,
	}
}

// PaymentConfirmed sends the purchase confirmation after a grant is applied.
func (es *EmailService) PaymentConfirmed(ctx context.Context, email, plan, receipt string) error {
	htmlContent := fmt.Sprintf(
		"<strong>Thank you for your purchase!</strong><br><br>Your <strong>%s</strong> plan is now active and your course content is unlocked.<br>Payment reference: <strong>%s</strong>",
		plan, receipt,
	)

	_, err := es.client.SendEmail(postmark.Email{
		From:     es.sender,
		To:       email,
		Subject:  "Your course access is active",
		HtmlBody: htmlContent,
		TextBody: fmt.Sprintf("Thank you for your purchase! Your %s plan is now active. Payment reference: %s", plan, receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("Confirmation email sent to %s", email)
	return nil
}
