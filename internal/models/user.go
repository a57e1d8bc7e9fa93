package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model. HasAccess and Plan are mutated only by the reconciliation
// engine on a completed payment.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName  string             `bson:"fullname" json:"fullname"`
	Email     string             `bson:"email" json:"email"`
	HPassword string             `bson:"password" json:"-"`
	HasAccess bool               `bson:"has_access" json:"has_access"`
	Plan      string             `bson:"plan,omitempty" json:"plan,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// UserRole assigns a capability to an account. Authorization checks consult
// this collection instead of a hardcoded admin list.
type UserRole struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Role      string             `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

const RoleAdmin = "admin"
