package sessions

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/database"
)

// mongoTestDB returns a throwaway database on the server named by
// MONGODB_URI, or skips the test when none is configured.
func mongoTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	client, err := database.ConnectMongo(context.Background(), uri, 5*time.Second)
	require.NoError(t, err)
	db := client.Database("dental360_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func newMongoTestRepository(t *testing.T) *MongoRepository {
	t.Helper()
	repo := NewMongoRepository(mongoTestDB(t).Collection(database.SessionsCollection))
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	return repo
}

func TestMongoRepository_Contract(t *testing.T) {
	testRepositoryContract(t, newMongoTestRepository(t))
}

func TestMongoRepository_ConcurrentRedeem(t *testing.T) {
	testConcurrentRedeem(t, newMongoTestRepository(t))
}

func TestMongoService_RefreshRotatesOnce(t *testing.T) {
	f := newFixture(t, newMongoTestRepository(t), testCfg)
	ctx := context.Background()

	iss, err := f.svc.Issue(ctx, alice(), false)
	require.NoError(t, err)
	next, err := f.svc.Refresh(ctx, iss.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, iss.RefreshToken)
	require.Error(t, err)

	p, err := f.svc.Validate(ctx, next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, next.Session.ID, p.SessionID)
}
