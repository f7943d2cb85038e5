package repository

import (
	"context"

	mongoInfra "github.com/RishiKendai/labcheck/internal/infra/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(client *mongoInfra.Client) *MongoRepository {
	return &MongoRepository{
		db: client.Database,
	}
}

func (r *MongoRepository) InsertOne(ctx context.Context, collection string, document interface{}, opts ...*options.InsertOneOptions) error {
	_, err := r.db.Collection(collection).InsertOne(ctx, document, opts...)
	return err
}

func (r *MongoRepository) FindOne(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return r.db.Collection(collection).FindOne(ctx, filter, opts...)
}

func (r *MongoRepository) FindMany(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return r.db.Collection(collection).Find(ctx, filter, opts...)
}

func (r *MongoRepository) UpdateOne(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	return r.db.Collection(collection).UpdateOne(ctx, filter, update)
}

func (r *MongoRepository) UpdateMany(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	return r.db.Collection(collection).UpdateMany(ctx, filter, update)
}

func (r *MongoRepository) DeleteOne(ctx context.Context, collection string, filter interface{}) (int64, error) {
	res, err := r.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoRepository) DeleteMany(ctx context.Context, collection string, filter interface{}) (int64, error) {
	res, err := r.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// EnsureIndexes creates the indexes the report and check queries rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(reportsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "eligible", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.db.Collection(checksCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reportId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

// MongoStore implements Store on top of the report and check repositories.
type MongoStore struct {
	*ReportsRepository
	*ChecksRepository
	client *mongoInfra.Client
}

func NewMongoStore(ctx context.Context, client *mongoInfra.Client) (*MongoStore, error) {
	mongoRepo := NewMongoRepository(client)
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	checks := NewChecksRepository(mongoRepo)
	return &MongoStore{
		ReportsRepository: NewReportsRepository(mongoRepo, checks),
		ChecksRepository:  checks,
		client:            client,
	}, nil
}

func (s *MongoStore) Close() error {
	return s.client.Close(context.Background())
}
