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

const reportsCollection = "reports"

type ReportsRepository struct {
	mongoRepo *MongoRepository
	checks    *ChecksRepository
}

func NewReportsRepository(mongoRepo *MongoRepository, checks *ChecksRepository) *ReportsRepository {
	return &ReportsRepository{
		mongoRepo: mongoRepo,
		checks:    checks,
	}
}

func (r *ReportsRepository) CreateReport(ctx context.Context, report *models.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if err := r.mongoRepo.InsertOne(ctx, reportsCollection, report); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (r *ReportsRepository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := r.mongoRepo.FindOne(ctx, reportsCollection, bson.M{"_id": id}).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return &report, nil
}

func (r *ReportsRepository) FindReportByCloudLink(ctx context.Context, cloudLink, name string) (*models.Report, error) {
	filter := bson.M{"cloudLink": cloudLink, "originalName": name}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var report models.Report
	err := r.mongoRepo.FindOne(ctx, reportsCollection, filter, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return &report, nil
}

func (r *ReportsRepository) ListReports(ctx context.Context) ([]models.Report, error) {
	return r.findReports(ctx, bson.M{})
}

func (r *ReportsRepository) ListEligibleReports(ctx context.Context) ([]models.Report, error) {
	return r.findReports(ctx, bson.M{"eligible": true})
}

func (r *ReportsRepository) UpdateReport(ctx context.Context, id string, update models.ReportUpdate) (*models.Report, error) {
	set := bson.M{}
	if update.OriginalName != nil {
		set["originalName"] = *update.OriginalName
	}
	if update.CloudLink != nil {
		if *update.CloudLink == "" {
			set["cloudLink"] = nil
		} else {
			set["cloudLink"] = *update.CloudLink
		}
	}
	if update.Eligible != nil {
		set["eligible"] = *update.Eligible
	}

	if len(set) > 0 {
		res, err := r.mongoRepo.UpdateOne(ctx, reportsCollection, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("failed to update report: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetReport(ctx, id)
}

func (r *ReportsRepository) DeleteReport(ctx context.Context, id string) error {
	deleted, err := r.mongoRepo.DeleteOne(ctx, reportsCollection, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	if err := r.checks.deleteByReport(ctx, bson.M{"reportId": id}); err != nil {
		return err
	}
	return nil
}

func (r *ReportsRepository) DeleteAllReports(ctx context.Context) (int64, error) {
	deleted, err := r.mongoRepo.DeleteMany(ctx, reportsCollection, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	if err := r.checks.deleteByReport(ctx, bson.M{}); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *ReportsRepository) MarkPriority(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.mongoRepo.UpdateMany(ctx, reportsCollection,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"priorityIndexedAt": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark priority: %w", err)
	}
	return nil
}

func (r *ReportsRepository) findReports(ctx context.Context, filter bson.M) ([]models.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.mongoRepo.FindMany(ctx, reportsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reports: %w", err)
	}
	defer cursor.Close(ctx)

	reports := make([]models.Report, 0)
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return reports, nil
}
