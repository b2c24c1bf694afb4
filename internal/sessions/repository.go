package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository provides session persistence operations. Lookups that find
// nothing return (nil, nil).
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByAccess(ctx context.Context, accessHash string) (*Session, error)
	GetByRefresh(ctx context.Context, refreshHash string) (*Session, error)
	// Redeem atomically marks the session owning refreshHash as rotated into
	// successorID. It succeeds at most once per session; every other caller
	// gets models.ErrInvalidRefreshToken.
	Redeem(ctx context.Context, refreshHash, successorID string, at time.Time) (*Session, error)
	// Revoke is idempotent; revoking an unknown or revoked session is not an error.
	Revoke(ctx context.Context, id, reason string, at time.Time) error
	// RevokeByIdentity revokes every live session of an identity and returns them.
	RevokeByIdentity(ctx context.Context, identityID int64, reason string, at time.Time) ([]*Session, error)
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// EnsureIndexes creates lookup indexes and a TTL index that drops sessions
// once their refresh window has closed.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "accessHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "refreshHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "identityId", Value: 1}, {Key: "revoked", Value: 1}}},
		{Keys: bson.D{{Key: "refreshExpiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	return err
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, filter).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) GetByAccess(ctx context.Context, accessHash string) (*Session, error) {
	return r.findOne(ctx, bson.M{"accessHash": accessHash})
}

func (r *MongoRepository) GetByRefresh(ctx context.Context, refreshHash string) (*Session, error) {
	return r.findOne(ctx, bson.M{"refreshHash": refreshHash})
}

func (r *MongoRepository) Redeem(ctx context.Context, refreshHash, successorID string, at time.Time) (*Session, error) {
	filter := bson.M{"refreshHash": refreshHash, "revoked": false}
	update := bson.M{"$set": bson.M{
		"revoked":       true,
		"revokedAt":     at.UTC(),
		"revokedReason": ReasonRotated,
		"replacedBy":    successorID,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s Session
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrInvalidRefreshToken
		}
		return nil, err
	}
	return &s, nil
}

func revokeSet(reason string, at time.Time) bson.M {
	return bson.M{"$set": bson.M{"revoked": true, "revokedAt": at.UTC(), "revokedReason": reason}}
}

func (r *MongoRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id, "revoked": false}, revokeSet(reason, at))
	return err
}

func (r *MongoRepository) RevokeByIdentity(ctx context.Context, identityID int64, reason string, at time.Time) ([]*Session, error) {
	filter := bson.M{"identityId": identityID, "revoked": false}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var live []*Session
	if err := cur.All(ctx, &live); err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(live))
	for _, s := range live {
		ids = append(ids, s.ID)
		s.markRevoked(reason, at)
	}
	if _, err := r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "revoked": false}, revokeSet(reason, at)); err != nil {
		return nil, err
	}
	return live, nil
}
