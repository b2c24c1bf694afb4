package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder stores events in an append-only collection.
type MongoRecorder struct {
	col *mongo.Collection
}

func NewMongoRecorder(col *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{col: col}
}

func (r *MongoRecorder) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "at", Value: 1}}},
		{Keys: bson.D{{Key: "identityId", Value: 1}, {Key: "at", Value: -1}}},
	})
	return err
}

func (r *MongoRecorder) Record(ctx context.Context, e Event) error {
	_, err := r.col.InsertOne(ctx, Stamp(e))
	return err
}

func (r *MongoRecorder) List(ctx context.Context, from, to time.Time) ([]Event, error) {
	filter := bson.M{"at": bson.M{"$gte": from.UTC(), "$lt": to.UTC()}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
