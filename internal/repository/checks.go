package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/labcheck/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const checksCollection = "checks"

type ChecksRepository struct {
	mongoRepo *MongoRepository
}

func NewChecksRepository(mongoRepo *MongoRepository) *ChecksRepository {
	return &ChecksRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *ChecksRepository) CreateCheck(ctx context.Context, check *models.Check) error {
	if check.CreatedAt.IsZero() {
		check.CreatedAt = time.Now().UTC()
	}
	if check.Matches == nil {
		check.Matches = []models.MatchResult{}
	}
	if err := r.mongoRepo.InsertOne(ctx, checksCollection, check); err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

func (r *ChecksRepository) UpdateCheck(ctx context.Context, id string, update models.CheckUpdate) error {
	set := bson.M{}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.Similarity != nil {
		set["similarity"] = *update.Similarity
	}
	if update.Matches != nil {
		set["matches"] = update.Matches
	}
	if update.CompletedAt != nil {
		set["completedAt"] = update.CompletedAt.UTC()
	}
	if len(set) == 0 {
		return nil
	}

	res, err := r.mongoRepo.UpdateOne(ctx, checksCollection, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update check: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChecksRepository) GetCheck(ctx context.Context, id string) (*models.Check, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *ChecksRepository) ListChecksByReport(ctx context.Context, reportID string) ([]models.Check, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findMany(ctx, bson.M{"reportId": reportID}, opts)
}

func (r *ChecksRepository) LatestCheckForReport(ctx context.Context, reportID string) (*models.Check, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"reportId": reportID}, opts)
}

func (r *ChecksRepository) ListChecksByStatus(ctx context.Context, status models.CheckStatus) ([]models.Check, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.findMany(ctx, bson.M{"status": status}, opts)
}

func (r *ChecksRepository) deleteByReport(ctx context.Context, filter bson.M) error {
	if _, err := r.mongoRepo.DeleteMany(ctx, checksCollection, filter); err != nil {
		return fmt.Errorf("failed to delete checks: %w", err)
	}
	return nil
}

func (r *ChecksRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Check, error) {
	var check models.Check
	var err error
	if opts != nil {
		err = r.mongoRepo.FindOne(ctx, checksCollection, filter, opts).Decode(&check)
	} else {
		err = r.mongoRepo.FindOne(ctx, checksCollection, filter).Decode(&check)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find check: %w", err)
	}
	if check.Matches == nil {
		check.Matches = []models.MatchResult{}
	}
	return &check, nil
}

func (r *ChecksRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Check, error) {
	cursor, err := r.mongoRepo.FindMany(ctx, checksCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find checks: %w", err)
	}
	defer cursor.Close(ctx)

	checks := make([]models.Check, 0)
	if err := cursor.All(ctx, &checks); err != nil {
		return nil, fmt.Errorf("failed to decode checks: %w", err)
	}
	return checks, nil
}
