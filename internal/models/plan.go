package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Plan represents a purchasable course plan in the MongoDB database.
// Prices are stored per settlement currency: M-Pesa and Paystack charge in
// KES, PayPal in USD.
type Plan struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code        string             `bson:"code" json:"code"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	PriceKES    float64            `bson:"price_kes" json:"price_kes"`
	PriceUSD    float64            `bson:"price_usd" json:"price_usd"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
