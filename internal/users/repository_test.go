package users

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/database"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	a, err := repo.Create(ctx, &models.Identity{Username: "alice", PasswordHash: "h1", Role: models.RoleStaff, IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	require.False(t, a.CreatedAt.IsZero())

	b, err := repo.Create(ctx, &models.Identity{Username: "bob", PasswordHash: "h2", Role: models.RoleUser, IsActive: true})
	require.NoError(t, err)
	require.Greater(t, b.ID, a.ID)

	_, err = repo.Create(ctx, &models.Identity{Username: "alice", PasswordHash: "h3", Role: models.RoleUser})
	require.ErrorIs(t, err, models.ErrUsernameTaken)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)

	missing, err := repo.GetByUsername(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)
	missing, err = repo.GetByID(ctx, 9999)
	require.NoError(t, err)
	require.Nil(t, missing)

	role := models.RoleManager
	inactive := false
	login := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := repo.Update(ctx, a.ID, Update{Role: &role, IsActive: &inactive, LastLogin: &login})
	require.NoError(t, err)
	require.Equal(t, models.RoleManager, updated.Role)
	require.False(t, updated.IsActive)
	require.Equal(t, "h1", updated.PasswordHash)
	require.NotNil(t, updated.LastLogin)
	require.True(t, login.Equal(*updated.LastLogin))

	missing, err = repo.Update(ctx, 9999, Update{Role: &role})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryRepository_Contract(t *testing.T) {
	testRepositoryContract(t, NewMemoryRepository())
}

func TestMongoRepository_Contract(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri, 5*time.Second)
	require.NoError(t, err)
	db := client.Database("dental360_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoRepository(db.Collection(database.UsersCollection), db.Collection(database.CountersCollection))
	require.NoError(t, repo.EnsureIndexes(ctx))
	testRepositoryContract(t, repo)
}
