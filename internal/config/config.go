package config

import "os"

// MpesaConfig holds Daraja API credentials for STK push.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	BaseURL        string
	CallbackURL    string
	// WebhookSecret enables the aggregator HMAC check on the callback
	// endpoint. Daraja itself does not sign callbacks, so this is optional.
	WebhookSecret string
}

// PayPalConfig holds REST API credentials for the Orders v2 flow.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	BaseURL   string
	WebhookID string
	ReturnURL string
	CancelURL string
}

// PaystackConfig holds the secret key used for both API calls and
// webhook signature verification.
type PaystackConfig struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
}

type Config struct {
	Port     string
	MongoURI string
	DBName   string

	JWTSecret string

	PostmarkToken string
	EmailSender   string

	Mpesa    MpesaConfig
	PayPal   PayPalConfig
	Paystack PaystackConfig
}

// Load reads configuration from environment variables. Base URLs default to
// the providers' sandbox endpoints so a dev environment works out of the box.
func Load() *Config {
	return &Config{
		Port:     getenv("PORT", "8080"),
		MongoURI: os.Getenv("MONGOURI"),
		DBName:   getenv("DB_NAME", "learnaisimply"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PostmarkToken: os.Getenv("POSTMARK_API_TOKEN"),
		EmailSender:   os.Getenv("EMAIL_SENDER"),

		Mpesa: MpesaConfig{
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			Shortcode:      os.Getenv("MPESA_SHORTCODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			BaseURL:        getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			WebhookSecret:  os.Getenv("MPESA_WEBHOOK_SECRET"),
		},
		PayPal: PayPalConfig{
			ClientID:  os.Getenv("PAYPAL_CLIENT_ID"),
			Secret:    os.Getenv("PAYPAL_SECRET"),
			BaseURL:   getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			WebhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),
			ReturnURL: os.Getenv("PAYPAL_RETURN_URL"),
			CancelURL: os.Getenv("PAYPAL_CANCEL_URL"),
		},
		Paystack: PaystackConfig{
			SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
			BaseURL:     getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			CallbackURL: os.Getenv("PAYSTACK_CALLBACK_URL"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
