package users

import (
	"context"
	"errors"
	"testing"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, NewHasher(bcrypt.MinCost)), repo
}

func TestVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	alice, err := svc.Register(ctx, " Alice ", "correct-horse", models.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, "alice", alice.Username)
	require.NotEqual(t, "correct-horse", alice.PasswordHash)

	got, err := svc.Verify(ctx, "ALICE", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)
	require.Equal(t, models.RoleStaff, got.Role)
}

func TestVerify_FailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "correct-horse", models.RoleStaff)
	require.NoError(t, err)

	_, wrongPw := svc.Verify(ctx, "alice", "wrong-password")
	_, unknown := svc.Verify(ctx, "ghost", "whatever-pass")

	require.ErrorIs(t, wrongPw, models.ErrInvalidCredentials)
	require.ErrorIs(t, unknown, models.ErrInvalidCredentials)
	require.Equal(t, wrongPw.Error(), unknown.Error())
}

func TestVerify_InactiveIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bob, err := svc.Register(ctx, "bob", "password-123", models.RoleManager)
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, bob.ID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "bob", "password-123")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerify_UnknownStoredRole(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "carol", "password-123", models.RoleUser)
	require.NoError(t, err)

	bad := models.Role("superuser")
	_, err = repo.Update(ctx, u.ID, Update{Role: &bad})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "carol", "password-123")
	require.ErrorIs(t, err, models.ErrUnknownRole)
	require.False(t, errors.Is(err, models.ErrInvalidCredentials))
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dave", "short", models.RoleUser)
	require.ErrorIs(t, err, models.ErrWeakPassword)

	_, err = svc.Register(ctx, "dave", "password-123", models.Role("root"))
	require.ErrorIs(t, err, models.ErrUnknownRole)

	_, err = svc.Register(ctx, "dave", "password-123", models.RoleUser)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "DAVE", "password-456", models.RoleUser)
	require.ErrorIs(t, err, models.ErrUsernameTaken)
}

func TestChangePasswordAndRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "erin", "first-password", models.RoleUser)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "second-password"))
	_, err = svc.Verify(ctx, "erin", "first-password")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = svc.Verify(ctx, "erin", "second-password")
	require.NoError(t, err)

	updated, err := svc.ChangeRole(ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, updated.Role)

	require.ErrorIs(t, svc.ChangePassword(ctx, 999, "another-password"), models.ErrIdentityNotFound)
	_, err = svc.Get(ctx, 999)
	require.ErrorIs(t, err, models.ErrIdentityNotFound)
}

func TestRecordLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "frank", "password-123", models.RoleStaff)
	require.NoError(t, err)
	require.Nil(t, u.LastLogin)

	require.NoError(t, svc.RecordLogin(ctx, u.ID))
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
}

func TestGetByUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bob, err := svc.Register(ctx, "bob", "bob-password", models.RoleManager)
	require.NoError(t, err)

	got, err := svc.GetByUsername(ctx, " BOB")
	require.NoError(t, err)
	require.Equal(t, bob.ID, got.ID)

	_, err = svc.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, models.ErrIdentityNotFound)
}
