package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := Open(ctx, Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, ok, err := s.Get(ctx, "chat_client_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "chat_client_id", "abc"))
	got, err := mr.Get(DefaultPrefix + "chat_client_id")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
	assert.Zero(t, mr.TTL(DefaultPrefix+"chat_client_id"), "client id never expires")

	v, ok, err := s.Get(ctx, "chat_client_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete(ctx, "chat_client_id"))
	assert.False(t, mr.Exists(DefaultPrefix+"chat_client_id"))
}

func TestPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	a := NewWithClient(cli, "a:")
	b := NewWithClient(cli, "b:")
	require.NoError(t, a.Set(ctx, "k", "1"))
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// borrowed clients stay open
	require.NoError(t, a.Close())
	require.NoError(t, cli.Ping(ctx).Err())
}

func TestOpenFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := Open(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
}

func TestErrorsSurface(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	s, err := Open(ctx, Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mr.SetError("LOADING")
	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "k", "v"))
	mr.SetError("")
	assert.NoError(t, s.Set(ctx, "k", "v"))
}
