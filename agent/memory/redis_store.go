package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumaflow/luma/types"
)

const (
	redisKeyPrefix = "luma:mem:"
	redisIndexKey  = "luma:mem:ids"
)

// RedisStore keeps durable memories in Redis, one JSON value per record
// plus a set of known IDs. Suited to shared deployments where several
// agent processes read the same memory.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection. A nil
// logger disables logging.
func NewRedisStore(opts *redis.Options, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("memory store connected", zap.String("addr", opts.Addr))
	return &RedisStore{
		client: client,
		logger: logger.Named("memory.redis"),
		now:    time.Now,
	}, nil
}

func (s *RedisStore) Add(ctx context.Context, rec *types.MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = NewDurableID()
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Tier = types.TierDurable
	return s.write(ctx, rec)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrMemoryNotFound, fmt.Sprintf("memory %q not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "fetch memory").WithCause(err)
	}
	var rec types.MemoryRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "decode memory").WithCause(err)
	}
	return &rec, nil
}

func (s *RedisStore) Search(ctx context.Context, query string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "list memory ids").WithCause(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "fetch memories").WithCause(err)
	}

	var matched []*types.MemoryRecord
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec types.MemoryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping unreadable memory value",
				zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		if matchesQuery(&rec, query) {
			matched = append(matched, &rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CompositeScore() > matched[j].CompositeScore()
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *RedisStore) Update(ctx context.Context, rec *types.MemoryRecord) error {
	exists, err := s.client.SIsMember(ctx, redisIndexKey, rec.ID).Result()
	if err != nil {
		return types.NewError(types.ErrMemoryStore, "check memory id").WithCause(err)
	}
	if !exists {
		return types.NewError(types.ErrMemoryNotFound, fmt.Sprintf("memory %q not found", rec.ID))
	}
	rec.UpdatedAt = s.now()
	return s.write(ctx, rec)
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.client.SRem(ctx, redisIndexKey, id).Result()
	if err != nil {
		return false, types.NewError(types.ErrMemoryStore, "remove memory id").WithCause(err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return true, types.NewError(types.ErrMemoryStore, "delete memory").WithCause(err)
	}
	return true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) write(ctx context.Context, rec *types.MemoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.NewError(types.ErrMemoryStore, "encode memory").WithCause(err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+rec.ID, raw, 0)
	pipe.SAdd(ctx, redisIndexKey, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrMemoryStore, "store memory").WithCause(err)
	}
	return nil
}
