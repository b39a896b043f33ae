package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"closet-web/internal/biz"

	"github.com/redis/go-redis/v9"
)

// RedisCookieMirror Redis 实现的 cookie 镜像，TTL 即 max-age
type RedisCookieMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisCookieMirror 创建 Redis cookie 镜像
func NewRedisCookieMirror(client *redis.Client, prefix string) *RedisCookieMirror {
	return &RedisCookieMirror{client: client, prefix: prefix}
}

func (m *RedisCookieMirror) key(deviceID, name string) string {
	return m.prefix + deviceID + ":" + name
}

// Scope 返回某个设备的 cookie jar
func (m *RedisCookieMirror) Scope(deviceID string) biz.CookieJar {
	return &redisJar{m: m, deviceID: deviceID}
}

// Mirrored 读取设备所有镜像 cookie 及剩余 TTL
func (m *RedisCookieMirror) Mirrored(ctx context.Context, deviceID string) ([]biz.MirroredCookie, error) {
	pipe := m.client.Pipeline()
	gets := make([]*redis.StringCmd, len(biz.MirrorCookieNames))
	ttls := make([]*redis.DurationCmd, len(biz.MirrorCookieNames))
	for i, name := range biz.MirrorCookieNames {
		gets[i] = pipe.Get(ctx, m.key(deviceID, name))
		ttls[i] = pipe.PTTL(ctx, m.key(deviceID, name))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read cookie mirror: %w", err)
	}

	var out []biz.MirroredCookie
	for i, name := range biz.MirrorCookieNames {
		value, err := gets[i].Result()
		if err != nil {
			continue
		}
		ttl := ttls[i].Val()
		if ttl <= 0 {
			continue
		}
		out = append(out, biz.MirroredCookie{Name: name, Value: value, TTL: ttl})
	}
	return out, nil
}

type redisJar struct {
	m        *RedisCookieMirror
	deviceID string
}

func (j *redisJar) Get(ctx context.Context, name string) (string, bool, error) {
	value, err := j.m.client.Get(ctx, j.m.key(j.deviceID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cookie %s: %w", name, err)
	}
	return value, true, nil
}

func (j *redisJar) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return j.Remove(ctx, name)
	}
	if err := j.m.client.Set(ctx, j.m.key(j.deviceID, name), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cookie %s: %w", name, err)
	}
	return nil
}

func (j *redisJar) Remove(ctx context.Context, name string) error {
	if err := j.m.client.Del(ctx, j.m.key(j.deviceID, name)).Err(); err != nil {
		return fmt.Errorf("failed to remove cookie %s: %w", name, err)
	}
	return nil
}

// MemoryCookieMirror 进程内 cookie 镜像（未配置 Redis 时使用）
type MemoryCookieMirror struct {
	mu      sync.Mutex
	devices map[string]map[string]memCookie
	now     func() time.Time
}

type memCookie struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCookieMirror() *MemoryCookieMirror {
	return &MemoryCookieMirror{
		devices: make(map[string]map[string]memCookie),
		now:     time.Now,
	}
}

func (m *MemoryCookieMirror) Scope(deviceID string) biz.CookieJar {
	return &memJar{m: m, deviceID: deviceID}
}

func (m *MemoryCookieMirror) Mirrored(_ context.Context, deviceID string) ([]biz.MirroredCookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []biz.MirroredCookie
	for _, name := range biz.MirrorCookieNames {
		c, ok := m.devices[deviceID][name]
		if !ok || !now.Before(c.expiresAt) {
			continue
		}
		out = append(out, biz.MirroredCookie{Name: name, Value: c.value, TTL: c.expiresAt.Sub(now)})
	}
	return out, nil
}

type memJar struct {
	m        *MemoryCookieMirror
	deviceID string
}

func (j *memJar) Get(_ context.Context, name string) (string, bool, error) {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	c, ok := j.m.devices[j.deviceID][name]
	if !ok || !j.m.now().Before(c.expiresAt) {
		return "", false, nil
	}
	return c.value, true, nil
}

func (j *memJar) Set(_ context.Context, name, value string, ttl time.Duration) error {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	cookies := j.m.devices[j.deviceID]
	if ttl <= 0 {
		delete(cookies, name)
		return nil
	}
	if cookies == nil {
		cookies = make(map[string]memCookie)
		j.m.devices[j.deviceID] = cookies
	}
	cookies[name] = memCookie{value: value, expiresAt: j.m.now().Add(ttl)}
	return nil
}

func (j *memJar) Remove(_ context.Context, name string) error {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	cookies := j.m.devices[j.deviceID]
	delete(cookies, name)
	if len(cookies) == 0 {
		delete(j.m.devices, j.deviceID)
	}
	return nil
}
