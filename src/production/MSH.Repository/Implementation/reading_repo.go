package implementation

import (
	"context"
	"errors"
	"time"

	mshmodels "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Models"
	interfaces "gitlab.com/meshsense1/msh.mesh_server/src/production/MSH.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultHistoryLimit = 100

type MongoReadingRepository struct {
	coll *mongo.Collection
}

func NewMongoReadingRepository(coll *mongo.Collection) *MongoReadingRepository {
	return &MongoReadingRepository{coll: coll}
}

func (r *MongoReadingRepository) InsertReading(ctx context.Context, rd mshmodels.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, rd)
	return err
}

func (r *MongoReadingRepository) InsertReadings(ctx context.Context, rds []mshmodels.Reading) error {
	if len(rds) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	docs := make([]interface{}, 0, len(rds))
	for i := range rds {
		docs = append(docs, rds[i])
	}
	_, err := r.coll.InsertMany(ctx, docs)
	return err
}

func (r *MongoReadingRepository) GetHistory(ctx context.Context, f interfaces.ReadingFilter, limit int) ([]mshmodels.Reading, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, buildFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var readings []mshmodels.Reading
	if err := cur.All(ctx, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *MongoReadingRepository) GetLatest(ctx context.Context, f interfaces.ReadingFilter) (*mshmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var rd mshmodels.Reading
	err := r.coll.FindOne(ctx, buildFilter(f), opts).Decode(&rd)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &rd, nil
}

func buildFilter(f interfaces.ReadingFilter) bson.M {
	filter := bson.M{}
	if f.NodeID != "" {
		filter["node_id"] = f.NodeID
	}
	if f.AdminID != "" {
		filter["admin_id"] = f.AdminID
	}
	return filter
}
