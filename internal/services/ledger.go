package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
)

// TransactionService is the MongoDB-backed transaction ledger.
type TransactionService struct {
	db *mongo.Database
}

func NewTransactionService(db *mongo.Database) *TransactionService {
	return &TransactionService{db: db}
}

// EnsureIndexes creates necessary indexes for the transactions collection
func (s *TransactionService) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.M{"reference": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"merchant_ref": 1}},
		{Keys: bson.M{"receipt_number": 1}},
		{Keys: bson.M{"account_reference": 1, "created_at": -1}},
		{Keys: bson.M{"status": 1, "created_at": -1}},
	}
	_, err := s.db.Collection("transactions").Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		log.Printf("Failed to create indexes: %v", err)
		return fmt.Errorf("failed to create indexes: %v", err)
	}
	return nil
}

// CreatePending inserts a new pending transaction. Exactly one row is
// created per successful payment initiation.
func (s *TransactionService) CreatePending(ctx context.Context, tx *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if tx.ID == "" {
		tx.ID = primitive.NewObjectID().Hex()
	}
	tx.Status = models.StatusPending
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt

	if _, err := s.db.Collection("transactions").InsertOne(ctx, tx); err != nil {
		log.Printf("Failed to save transaction %s: %v", tx.Reference, err)
		return fmt.Errorf("failed to save transaction: %v", err)
	}

	log.Printf("Transaction created: reference=%s, method=%s, plan=%s", tx.Reference, tx.PaymentMethod, tx.Plan)
	return nil
}

// FindPending looks up a pending transaction by its reference or, when
// provided, the alternate provider id. Returns (nil, nil) when no pending
// row matches; webhooks for unknown references are acknowledged, not errored.
func (s *TransactionService) FindPending(ctx context.Context, reference, altRef string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []bson.M{}
	if reference != "" {
		keys = append(keys, bson.M{"reference": reference})
	}
	if altRef != "" {
		keys = append(keys, bson.M{"merchant_ref": altRef})
	}
	if len(keys) == 0 {
		return nil, nil
	}

	query := bson.M{"$or": keys, "status": models.StatusPending}

	var tx models.Transaction
	if err := s.db.Collection("transactions").FindOne(ctx, query).Decode(&tx); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		log.Printf("Failed to fetch transaction %s: %v", reference, err)
		return nil, fmt.Errorf("failed to fetch transaction: %v", err)
	}

	return &tx, nil
}

// FindByCode looks up a transaction whose reference or receipt number equals
// the supplied code. Used by the manual verification path.
func (s *TransactionService) FindByCode(ctx context.Context, code string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := bson.M{"$or": []bson.M{
		{"reference": code},
		{"receipt_number": code},
	}}

	var tx models.Transaction
	if err := s.db.Collection("transactions").FindOne(ctx, query).Decode(&tx); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		log.Printf("Failed to fetch transaction for code %s: %v", code, err)
		return nil, fmt.Errorf("failed to fetch transaction: %v", err)
	}

	return &tx, nil
}

// ReceiptUsed reports whether a completed transaction already holds the
// given receipt number.
func (s *TransactionService) ReceiptUsed(ctx context.Context, receipt string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := bson.M{"receipt_number": receipt, "status": models.StatusCompleted}
	count, err := s.db.Collection("transactions").CountDocuments(ctx, query, options.Count().SetLimit(1))
	if err != nil {
		log.Printf("Failed to check receipt %s: %v", receipt, err)
		return false, fmt.Errorf("failed to check receipt: %v", err)
	}
	return count > 0, nil
}

// CompletePending moves a transaction from pending to completed. The update
// is conditional on the row still being pending so two near-simultaneous
// deliveries for the same reference cannot both complete it. Reports whether
// this call performed the transition.
func (s *TransactionService) CompletePending(ctx context.Context, reference, receipt string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":     models.StatusCompleted,
		"updated_at": time.Now(),
	}}
	if receipt != "" {
		update["$set"].(bson.M)["receipt_number"] = receipt
	}

	res, err := s.db.Collection("transactions").UpdateOne(ctx,
		bson.M{"reference": reference, "status": models.StatusPending}, update)
	if err != nil {
		log.Printf("Failed to complete transaction %s: %v", reference, err)
		return false, fmt.Errorf("failed to complete transaction: %v", err)
	}

	if res.ModifiedCount == 0 {
		log.Printf("Transaction %s no longer pending, completion skipped", reference)
		return false, nil
	}
	log.Printf("Transaction completed: reference=%s, receipt=%s", reference, receipt)
	return true, nil
}

// FailPending moves a transaction from pending to failed, recording the
// provider's reason. Conditional on the row still being pending.
func (s *TransactionService) FailPending(ctx context.Context, reference, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.Collection("transactions").UpdateOne(ctx,
		bson.M{"reference": reference, "status": models.StatusPending},
		bson.M{"$set": bson.M{
			"status":         models.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		}})
	if err != nil {
		log.Printf("Failed to mark transaction %s failed: %v", reference, err)
		return false, fmt.Errorf("failed to update transaction: %v", err)
	}

	if res.ModifiedCount == 0 {
		log.Printf("Transaction %s no longer pending, failure skipped", reference)
		return false, nil
	}
	log.Printf("Transaction failed: reference=%s, reason=%s", reference, reason)
	return true, nil
}

// ListTransactions retrieves transactions with optional filtering by status
// and date range. Used by the admin support listing.
func (s *TransactionService) ListTransactions(ctx context.Context, statusFilter, startDate, endDate *string) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}

	if statusFilter != nil && *statusFilter != "" {
		if !map[string]bool{models.StatusPending: true, models.StatusCompleted: true, models.StatusFailed: true}[*statusFilter] {
			log.Printf("Invalid status filter: %s", *statusFilter)
			return nil, fmt.Errorf("invalid status filter, must be pending, completed, or failed")
		}
		query["status"] = *statusFilter
	}

	if startDate != nil && *startDate != "" && endDate != nil && *endDate != "" {
		start, err := time.Parse(time.RFC3339, *startDate)
		if err != nil {
			log.Printf("Invalid start_date format: %s, error: %v", *startDate, err)
			return nil, fmt.Errorf("invalid start_date format: %v", err)
		}
		end, err := time.Parse(time.RFC3339, *endDate)
		if err != nil {
			log.Printf("Invalid end_date format: %s, error: %v", *endDate, err)
			return nil, fmt.Errorf("invalid end_date format: %v", err)
		}
		query["created_at"] = bson.M{
			"$gte": start,
			"$lte": end,
		}
	}

	cur, err := s.db.Collection("transactions").Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		log.Printf("Failed to fetch transactions: %v", err)
		return nil, fmt.Errorf("failed to fetch transactions: %v", err)
	}

	var txs []models.Transaction
	defer cur.Close(ctx)
	if err := cur.All(ctx, &txs); err != nil {
		log.Printf("Failed to decode transactions: %v", err)
		return nil, fmt.Errorf("failed to decode transactions: %v", err)
	}

	return txs, nil
}
