package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

var ErrPlanNotFound = errors.New("plan not found")

// PlanService manages the purchasable plan catalog.
type PlanService struct {
	collection *mongo.Collection
}

func NewPlanService(db *mongo.Database) *PlanService {
	return &PlanService{collection: db.Collection("plans")}
}

// Seed inserts the default plans when the catalog is empty.
func (s *PlanService) Seed(ctx context.Context) error {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count plans: %v", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []interface{}{
		&models.Plan{
			ID:          primitive.NewObjectID(),
			Code:        "regular",
			Name:        "Regular",
			Description: "Full course access",
			PriceKES:    1500,
			PriceUSD:    12,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		},
		&models.Plan{
			ID:          primitive.NewObjectID(),
			Code:        "premium",
			Name:        "Premium",
			Description: "Full course access plus mentorship sessions",
			PriceKES:    4500,
			PriceUSD:    35,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		},
	}
	if _, err := s.collection.InsertMany(ctx, defaults); err != nil {
		return fmt.Errorf("failed to seed plans: %v", err)
	}
	return nil
}

func (s *PlanService) GetByCode(ctx context.Context, code string) (*models.Plan, error) {
	var plan models.Plan
	err := s.collection.FindOne(ctx, bson.M{"code": strings.ToLower(strings.TrimSpace(code))}).Decode(&plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to fetch plan: %v", err)
	}
	return &plan, nil
}

func (s *PlanService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	cur, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"price_kes": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %v", err)
	}

	var plans []models.Plan
	defer cur.Close(ctx)
	if err := cur.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %v", err)
	}

	return plans, nil
}

func (s *PlanService) CreatePlan(ctx context.Context, plan *models.Plan) (string, error) {
	plan.ID = primitive.NewObjectID()
	plan.Code = strings.ToLower(strings.TrimSpace(plan.Code))
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = time.Now()

	if plan.Code == "" || plan.Name == "" {
		return "", errors.New("plan code and name are required")
	}

	if _, err := s.collection.InsertOne(ctx, plan); err != nil {
		return "", fmt.Errorf("failed to create plan: %v", err)
	}
	return plan.ID.Hex(), nil
}

func (s *PlanService) UpdatePlan(ctx context.Context, id string, update *models.Plan) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid plan id: %v", err)
	}

	fields := bson.M{"updated_at": time.Now()}
	if update.Name != "" {
		fields["name"] = update.Name
	}
	if update.Description != "" {
		fields["description"] = update.Description
	}
	if update.PriceKES > 0 {
		fields["price_kes"] = update.PriceKES
	}
	if update.PriceUSD > 0 {
		fields["price_usd"] = update.PriceUSD
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update plan: %v", err)
	}
	if res.MatchedCount == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *PlanService) DeletePlan(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid plan id: %v", err)
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete plan: %v", err)
	}
	if res.DeletedCount == 0 {
		return ErrPlanNotFound
	}
	return nil
}
