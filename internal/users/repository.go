package users

import (
	"context"
	"errors"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines persistence operations for identities. Lookups that find
// nothing return (nil, nil).
type Repository interface {
	Create(ctx context.Context, id *models.Identity) (*models.Identity, error)
	GetByUsername(ctx context.Context, username string) (*models.Identity, error)
	GetByID(ctx context.Context, id int64) (*models.Identity, error)
	Update(ctx context.Context, id int64, fields Update) (*models.Identity, error)
}

// Update carries the mutable identity fields. Nil members are left unchanged.
type Update struct {
	PasswordHash *string
	Role         *models.Role
	IsActive     *bool
	LastLogin    *time.Time
}

// MongoRepository implements Repository using MongoDB. Ids come from a
// per-collection sequence in the counters collection.
type MongoRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewMongoRepository creates a repository for the given users and counters collections.
func NewMongoRepository(col, counters *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, counters: counters}
}

// EnsureIndexes creates the unique username index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) nextID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": r.col.Name()},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (r *MongoRepository) Create(ctx context.Context, id *models.Identity) (*models.Identity, error) {
	seq, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := *id
	out.ID = seq
	out.CreatedAt = now
	out.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, &out); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrUsernameTaken
		}
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.Identity, error) {
	var u models.Identity
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoRepository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) Update(ctx context.Context, id int64, fields Update) (*models.Identity, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if fields.PasswordHash != nil {
		set["passwordHash"] = *fields.PasswordHash
	}
	if fields.Role != nil {
		set["role"] = *fields.Role
	}
	if fields.IsActive != nil {
		set["isActive"] = *fields.IsActive
	}
	if fields.LastLogin != nil {
		set["lastLogin"] = *fields.LastLogin
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Identity
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &updated, nil
}
