package seen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailagent/internal/testutil"
)

func exerciseSet(t *testing.T, s Set) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Contains(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "42"))
	require.NoError(t, s.Add(ctx, "42"))

	ok, err = s.Contains(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, "43")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseSet(t, m)
	assert.Equal(t, 1, m.Len())
}

func TestOpenWithoutURLIsMemory(t *testing.T) {
	s, err := Open(context.Background(), "", "me@example.com")
	require.NoError(t, err)
	_, ok := s.(*Memory)
	assert.True(t, ok)
}

func TestRedis(t *testing.T) {
	url := testutil.NewTestRedis(t)
	ctx := context.Background()

	r, err := NewRedis(ctx, url, "me@example.com", time.Hour)
	require.NoError(t, err)
	defer r.Close()

	exerciseSet(t, r)

	t.Run("survives a reconnect", func(t *testing.T) {
		again, err := NewRedis(ctx, url, "me@example.com", time.Hour)
		require.NoError(t, err)
		defer again.Close()

		ok, err := again.Contains(ctx, "42")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		other, err := NewRedis(ctx, url, "other@example.com", time.Hour)
		require.NoError(t, err)
		defer other.Close()

		ok, err := other.Contains(ctx, "42")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sets an expiry", func(t *testing.T) {
		ttl, err := r.client.TTL(ctx, r.key("42")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", "x", time.Hour)
	assert.Error(t, err)
}
