package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps sessions as JSON strings whose expiry is enforced by redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStore(client, cfg.Prefix, cfg.TTL), nil
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "agencybot:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: normalizeTTL(ttl)}
}

func (s *RedisStore) key(externalID int64) string {
	return s.prefix + strconv.FormatInt(externalID, 10)
}

func (s *RedisStore) Get(ctx context.Context, externalID int64) (Session, bool, error) {
	raw, err := s.client.Get(ctx, s.key(externalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	sess, err := decode(raw)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sess Session) error {
	sess.ExpiresAt = time.Now().UTC().Add(s.ttl)
	raw, err := encode(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sess.ExternalID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, externalID int64) error {
	if err := s.client.Del(ctx, s.key(externalID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
