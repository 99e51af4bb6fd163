package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"autocare/backend/internal/domain"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) GetLots(ctx context.Context, key string) (*domain.LotOptions, bool, error) {
	val, err := c.client.Get(ctx, "shop:lots:"+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var opts domain.LotOptions
	if err := json.Unmarshal([]byte(val), &opts); err != nil {
		return nil, false, err
	}
	return &opts, true, nil
}

func (c *RedisCache) SetLots(ctx context.Context, key string, value *domain.LotOptions, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "shop:lots:"+key, payload, ttl).Err()
}

func (c *RedisCache) InvalidateLots(ctx context.Context, key string) error {
	return c.client.Del(ctx, "shop:lots:"+key).Err()
}

func (c *RedisCache) GetSetting(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, "shop:setting:"+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetSetting(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, "shop:setting:"+key, value, ttl).Err()
}

func (c *RedisCache) InvalidateSetting(ctx context.Context, key string) error {
	return c.client.Del(ctx, "shop:setting:"+key).Err()
}
