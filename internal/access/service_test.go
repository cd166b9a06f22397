package access

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/db"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "access.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, store, zerolog.Nop())
}

func TestAdmins(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SeedAdmins(ctx, []string{"owner@example.com", ""}))

	err := s.InviteAdmin(ctx, "new@example.com", "stranger@example.com")
	assert.IsType(t, &AccessDeniedError{}, err)

	err = s.InviteAdmin(ctx, "not-an-email", "owner@example.com")
	assert.IsType(t, &InvalidInputError{}, err)

	require.NoError(t, s.InviteAdmin(ctx, "Helper <helper@example.com>", "owner@example.com"))
	admins, err := s.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "helper@example.com", admins[0].Email)
	assert.Equal(t, "owner@example.com", admins[0].InvitedBy)

	require.NoError(t, s.RemoveAdmin(ctx, admins[0].ID, "owner@example.com"))
	assert.ErrorIs(t, s.RemoveAdmin(ctx, admins[1].ID, ""), ErrLastAdmin)
	assert.ErrorIs(t, s.RemoveAdmin(ctx, 404, ""), ErrNotFound)

	ok, err := s.IsAdmin(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBlocklist(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.SeedAdmins(ctx, []string{"owner@example.com"}))

	assert.IsType(t, &AccessDeniedError{}, s.BlockPhone(ctx, "+15550100", "spam", "nobody@example.com"))
	assert.IsType(t, &InvalidInputError{}, s.BlockPhone(ctx, "", "spam", ""))

	require.NoError(t, s.BlockPhone(ctx, "+15550100", "no-shows", "owner@example.com"))
	blocked, err := s.IsBlocked(ctx, "+15550100")
	require.NoError(t, err)
	assert.True(t, blocked)

	list, err := s.ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "no-shows", list[0].Reason)

	require.NoError(t, s.UnblockPhone(ctx, "+15550100"))
	assert.ErrorIs(t, s.UnblockPhone(ctx, "+15550100"), ErrNotFound)
}
