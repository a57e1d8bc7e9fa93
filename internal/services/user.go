package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// ErrUserNotFound is returned when no profile exists for an email. A grant
// hitting this is logged as a recoverable inconsistency, not a failure.
var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	collection *mongo.Collection
}

func NewUserService(db *mongo.Database) *UserService {
	return &UserService{collection: db.Collection("users")}
}

// EnsureIndexes creates a unique index on email.
func (s *UserService) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"email": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %v", err)
	}
	return nil
}

// CreateUser registers a new account. Access starts off; only a completed
// payment turns it on.
func (s *UserService) CreateUser(ctx context.Context, fullName, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	user := &models.User{
		ID:        primitive.NewObjectID(),
		FullName:  strings.TrimSpace(fullName),
		Email:     email,
		HPassword: string(hash),
		HasAccess: false,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.New("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %v", err)
	}

	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %v", err)
	}
	return &user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HPassword), []byte(password)); err != nil {
		return nil, errors.New("invalid password")
	}

	return user, nil
}

// GrantAccess turns on course access for the given email. Called only by the
// reconciliation engine as a side effect of a completed transaction.
func (s *UserService) GrantAccess(ctx context.Context, email, plan string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"email": strings.ToLower(strings.TrimSpace(email))},
		bson.M{"$set": bson.M{
			"has_access": true,
			"plan":       plan,
			"updated_at": time.Now(),
		}})
	if err != nil {
		log.Printf("Failed to grant access to %s: %v", email, err)
		return fmt.Errorf("failed to grant access: %v", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}

	log.Printf("Access granted: email=%s, plan=%s", email, plan)
	return nil
}

// AccessStatus is the idempotent read polled by clients after initiating a
// payment.
func (s *UserService) AccessStatus(ctx context.Context, email string) (bool, string, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return false, "", err
	}
	return user.HasAccess, user.Plan, nil
}

// RoleService looks up capabilities in the user_roles collection.
type RoleService struct {
	collection *mongo.Collection
}

func NewRoleService(db *mongo.Database) *RoleService {
	return &RoleService{collection: db.Collection("user_roles")}
}

func (s *RoleService) HasRole(ctx context.Context, email, role string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := bson.M{"email": strings.ToLower(strings.TrimSpace(email)), "role": role}
	count, err := s.collection.CountDocuments(ctx, query, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check role: %v", err)
	}
	return count > 0, nil
}
