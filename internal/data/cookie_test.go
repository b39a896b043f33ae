package data

import (
	"context"
	"testing"
	"time"

	"closet-web/internal/biz"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCookieMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	mirror := NewRedisCookieMirror(client, "closet:cookie:")
	jar := mirror.Scope("dev-1")

	require.NoError(t, jar.Set(ctx, "authToken", "tok", time.Hour))
	require.NoError(t, jar.Set(ctx, "owner", "%7B%7D", 30*time.Minute))
	assert.True(t, mr.Exists("closet:cookie:dev-1:authToken"))

	v, ok, err := jar.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	cookies, err := mirror.Mirrored(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "authToken", cookies[0].Name)
	assert.Equal(t, time.Hour, cookies[0].TTL)
	assert.Equal(t, "owner", cookies[1].Name)

	mr.FastForward(31 * time.Minute)
	_, ok, err = jar.Get(ctx, "owner")
	require.NoError(t, err)
	assert.False(t, ok, "cookie expired with its ttl")

	require.NoError(t, jar.Set(ctx, "authToken", "tok", 0))
	cookies, err = mirror.Mirrored(ctx, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, cookies)

	cookies, err = mirror.Mirrored(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestMemoryCookieMirror(t *testing.T) {
	now := time.Now()
	mirror := NewMemoryCookieMirror()
	mirror.now = func() time.Time { return now }

	ctx := context.Background()
	var jar biz.CookieJar = mirror.Scope("dev-1")

	require.NoError(t, jar.Set(ctx, "authToken", "tok", time.Hour))
	require.NoError(t, jar.Set(ctx, "owner", "o", time.Minute))

	cookies, err := mirror.Mirrored(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	now = now.Add(2 * time.Minute)
	_, ok, err := jar.Get(ctx, "owner")
	require.NoError(t, err)
	assert.False(t, ok)

	cookies, err = mirror.Mirrored(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, 58*time.Minute, cookies[0].TTL)

	require.NoError(t, jar.Remove(ctx, "authToken"))
	require.NoError(t, jar.Remove(ctx, "owner"))
	cookies, err = mirror.Mirrored(ctx, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}
