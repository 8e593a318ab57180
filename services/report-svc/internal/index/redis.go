package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "reports:"

// RedisIndex индекс в Redis, переживает перезапуск сервиса.
//
// Ключи:
//
//	{prefix}entry:{id}     JSON записи, создаётся через SETNX
//	{prefix}owner:{owner}  ZSET id по CreatedAt
//	{prefix}expiry         ZSET id по ExpiresAt
//	{prefix}paths          HASH путь файла -> id
//
// Ключи создаются без TTL: запись должна жить до удаления файла reaper'ом.
// Время хранится с точностью до микросекунды.
type RedisIndex struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// RedisOption настройка RedisIndex
type RedisOption func(*RedisIndex)

// WithOwnedClient закрывать клиент в Close
func WithOwnedClient() RedisOption {
	return func(r *RedisIndex) {
		r.owned = true
	}
}

// NewRedisIndex создаёт индекс поверх клиента Redis
func NewRedisIndex(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisIndex {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	r := &RedisIndex{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisIndex) entryKey(id string) string    { return r.prefix + "entry:" + id }
func (r *RedisIndex) ownerKey(owner string) string { return r.prefix + "owner:" + owner }
func (r *RedisIndex) expiryKey() string            { return r.prefix + "expiry" }
func (r *RedisIndex) pathsKey() string             { return r.prefix + "paths" }

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (r *RedisIndex) Put(ctx context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	stored := e.clone()
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Microsecond)
	stored.ExpiresAt = stored.ExpiresAt.Truncate(time.Microsecond)

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.entryKey(e.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return ErrDuplicateID
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.ownerKey(e.Owner), redis.Z{Score: score(stored.CreatedAt), Member: e.ID})
		pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: score(stored.ExpiresAt), Member: e.ID})
		if e.Path != "" {
			pipe.HSet(ctx, r.pathsKey(), e.Path, e.ID)
		}
		return nil
	})
	if err != nil {
		// Откатываем запись, иначе её не найдёт reaper
		r.client.Del(context.WithoutCancel(ctx), r.entryKey(e.ID))
		return fmt.Errorf("redis index update failed: %w", err)
	}
	return nil
}

func (r *RedisIndex) Get(ctx context.Context, id string) (*Entry, error) {
	data, err := r.client.Get(ctx, r.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (r *RedisIndex) ListByOwner(ctx context.Context, owner string, now time.Time) ([]*Entry, error) {
	ids, err := r.client.ZRevRange(ctx, r.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entryKey(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(vals))
	for _, val := range vals {
		str, ok := val.(string)
		if !ok {
			// Запись уже удалена reaper'ом
			continue
		}
		e, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		if e.Expired(now) {
			continue
		}
		out = append(out, e)
	}

	sortNewestFirst(out)
	return out, nil
}

func (r *RedisIndex) RemoveExpiredBefore(ctx context.Context, now time.Time) ([]*Entry, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var (
		out  []*Entry
		errs []error
	)
	for _, id := range ids {
		e, err := r.take(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Забрал другой экземпляр
			continue
		}
		// Запись, снятая через GETDEL, возвращается и при сбое очистки
		if e != nil {
			out = append(out, e)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", id, err))
		}
	}
	return out, errors.Join(errs...)
}

func (r *RedisIndex) Remove(ctx context.Context, id string) (*Entry, error) {
	return r.take(ctx, id)
}

// take атомарно забирает запись через GETDEL и чистит вторичные ключи
func (r *RedisIndex) take(ctx context.Context, id string) (*Entry, error) {
	data, err := r.client.GetDel(ctx, r.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.client.ZRem(ctx, r.expiryKey(), id)
			return nil, ErrNotFound
		}
		return nil, err
	}

	e, err := decode(data)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.expiryKey(), id)
		pipe.ZRem(ctx, r.ownerKey(e.Owner), id)
		if e.Path != "" {
			pipe.HDel(ctx, r.pathsKey(), e.Path)
		}
		return nil
	})
	if err != nil {
		return e, fmt.Errorf("redis index cleanup failed: %w", err)
	}
	return e, nil
}

func (r *RedisIndex) Contains(ctx context.Context, path string) (bool, error) {
	return r.client.HExists(ctx, r.pathsKey(), path).Result()
}

func (r *RedisIndex) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.expiryKey()).Result()
	return int(n), err
}

func (r *RedisIndex) CountByOwner(ctx context.Context, owner string) (int, error) {
	n, err := r.client.ZCard(ctx, r.ownerKey(owner)).Result()
	return int(n), err
}

func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisIndex) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

func decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &e, nil
}
