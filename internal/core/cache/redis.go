package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache 读穿缓存：未命中时用 singleflight 合并回源
type Cache struct {
	RDB    redis.Cmdable
	Prefix string
	sf     singleflight.Group
}

func New(addr, pass string, db int) *Cache {
	return &Cache{
		RDB: redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    pass,
			DB:          db,
			DialTimeout: 2 * time.Second,
		}),
		Prefix: "library:",
	}
}

func (c *Cache) key(k string) string { return c.Prefix + k }

func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	k := c.key(key)
	if b, err := c.RDB.Get(ctx, k).Bytes(); err == nil {
		return b, nil
	}
	v, err, _ := c.sf.Do(k, func() (any, error) {
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		// 缓存写失败不影响结果
		_ = c.RDB.Set(ctx, k, b, ttl).Err()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) Set(ctx context.Context, key string, b []byte, ttl time.Duration) error {
	return c.RDB.Set(ctx, c.key(key), b, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, c.key(key)).Err()
}

func (c *Cache) Ping(ctx context.Context) error { return c.RDB.Ping(ctx).Err() }
