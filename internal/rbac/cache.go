package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var errVersionMoved = errors.New("authz cache version moved")

const (
	cacheVersionKey = "authz:version"
	// BumpChannel carries cache version bumps between instances.
	BumpChannel = "authz.bump"
)

// Cache keeps account records in Redis under a global version. Bumping the
// version invalidates every entry at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func accountKey(identity string, version int64) string {
	return fmt.Sprintf("authz:account:%s:%d", identity, version)
}

// Get returns the record cached for identity under version.
func (c *Cache) Get(ctx context.Context, identity string, version int64) (AccountRecord, bool, error) {
	if c == nil || c.client == nil {
		return AccountRecord{}, false, nil
	}
	payload, err := c.client.Get(ctx, accountKey(identity, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AccountRecord{}, false, nil
	}
	if err != nil {
		return AccountRecord{}, false, err
	}
	var rec AccountRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return AccountRecord{}, false, nil
	}
	return rec, true, nil
}

// Put stores rec for identity under version. The write is skipped when the
// cache has been bumped past version since the record was read.
func (c *Cache) Put(ctx context.Context, identity string, version int64, rec AccountRecord) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, cacheVersionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errVersionMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(identity, version), raw, c.ttl)
			return nil
		})
		return err
	}, cacheVersionKey)
	if errors.Is(err, errVersionMoved) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Bump invalidates the cache and notifies every subscribed instance.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe calls fn for every bump until ctx ends.
func (c *Cache) Subscribe(ctx context.Context, fn func()) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn()
			}
		}
	}()
	return nil
}
