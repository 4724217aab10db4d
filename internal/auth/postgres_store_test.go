package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumforge/platform/internal/testutil"
)

func TestPostgresStore_TokenLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	token := &Token{
		ID:            "tok_pgtest1",
		Hash:          "deadbeef00000000000000000000000000000000000000000000000000000001",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     &expires,
	}
	require.NoError(t, store.Create(ctx, token))

	got, err := store.GetByHash(ctx, token.Hash)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)
	assert.Equal(t, token.WalletAddress, got.WalletAddress)

	// Revocation hides the token from hash lookup.
	got.Revoked = true
	require.NoError(t, store.Update(ctx, got))
	_, err = store.GetByHash(ctx, token.Hash)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// Still listed per wallet for management.
	tokens, err := store.GetByWallet(ctx, token.WalletAddress)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Revoked)

	require.NoError(t, store.Delete(ctx, token.ID))
	tokens, err = store.GetByWallet(ctx, token.WalletAddress)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestPostgresStore_ExpiredTokenHidden(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	token := &Token{
		ID:            "tok_pgtest2",
		Hash:          "deadbeef00000000000000000000000000000000000000000000000000000002",
		WalletAddress: "0x2222222222222222222222222222222222222222",
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     &past,
	}
	require.NoError(t, store.Create(ctx, token))

	_, err := store.GetByHash(ctx, token.Hash)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
