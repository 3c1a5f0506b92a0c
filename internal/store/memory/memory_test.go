package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/oauth/provider"
)

func TestEventExists(t *testing.T) {
	t.Parallel()
	s := New()
	s.AddEvent(7)

	ok, err := s.EventExists(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.EventExists(context.Background(), 8)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	s := New()
	_, err := s.Get(context.Background(), 7, provider.Gmail)
	require.ErrorIs(t, err, credential.ErrNotFound)
}

func TestMerge_PartialPatches(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, 7, provider.Gmail, credential.Patch{
		ClientID:     credential.StrPtr("id-1"),
		ClientSecret: credential.StrPtr("sec-1"),
	}))

	// A later patch must leave untouched fields alone.
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Merge(ctx, 7, provider.Gmail, credential.Patch{
		AccessToken:  credential.StrPtr("enc-access"),
		RefreshToken: credential.StrPtr("enc-refresh"),
		TokenExpiry:  &exp,
		Enabled:      credential.BoolPtr(true),
	}))

	c, err := s.Get(ctx, 7, provider.Gmail)
	require.NoError(t, err)
	require.Equal(t, "id-1", c.ClientID)
	require.Equal(t, "sec-1", c.ClientSecret)
	require.Equal(t, "enc-access", c.AccessToken)
	require.Equal(t, "enc-refresh", c.RefreshToken)
	require.True(t, c.Enabled)
	require.NotNil(t, c.TokenExpiry)
	require.WithinDuration(t, exp, *c.TokenExpiry, time.Second)
	require.False(t, c.UpdatedAt.IsZero())
}

func TestMerge_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, 7, provider.Gmail, credential.Patch{ClientID: credential.StrPtr("gmail-id")}))
	require.NoError(t, s.Merge(ctx, 7, provider.Outlook, credential.Patch{ClientID: credential.StrPtr("outlook-id")}))
	require.NoError(t, s.Merge(ctx, 8, provider.Gmail, credential.Patch{ClientID: credential.StrPtr("other-event")}))

	c, err := s.Get(ctx, 7, provider.Gmail)
	require.NoError(t, err)
	require.Equal(t, "gmail-id", c.ClientID)

	c, err = s.Get(ctx, 7, provider.Outlook)
	require.NoError(t, err)
	require.Equal(t, "outlook-id", c.ClientID)
}

func TestGet_ReturnsACopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, 7, provider.Gmail, credential.Patch{ClientID: credential.StrPtr("original")}))

	c1, err := s.Get(ctx, 7, provider.Gmail)
	require.NoError(t, err)
	c1.ClientID = "mutated by caller"

	c2, err := s.Get(ctx, 7, provider.Gmail)
	require.NoError(t, err)
	require.Equal(t, "original", c2.ClientID)
}
