package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"order-placement-service/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const fillTimeout = 5 * time.Second

var errStaleFill = errors.New("listing invalidated during fill")

// OrderCache keeps each user's order listing for a short TTL. Placement and
// status changes invalidate the user's key after commit.
//
// Every invalidation bumps a per-user version. A fill records the version
// before it loads and only writes back if the version is unchanged, so a
// load that raced a commit never repopulates the key with the older list.
type OrderCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewOrderCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *OrderCache {
	return &OrderCache{rdb: rdb, ttl: ttl, log: log}
}

func userOrdersKey(userID uint64) string {
	return "orders:user:" + strconv.FormatUint(userID, 10)
}

func userOrdersVersionKey(userID uint64) string {
	return userOrdersKey(userID) + ":ver"
}

// UserOrders returns the cached listing or calls load once per key and
// version across concurrent callers and stores the result. Cache faults fall
// back to load. A caller that gives up does not cancel the shared fill.
func (c *OrderCache) UserOrders(ctx context.Context, userID uint64, load func(context.Context) ([]domain.Order, error)) ([]domain.Order, error) {
	key := userOrdersKey(userID)

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var orders []domain.Order
		if err := json.Unmarshal(b, &orders); err == nil {
			return orders, nil
		}
		c.log.Warn("Discarding undecodable cache entry", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("Order cache read failed", zap.String("key", key), zap.Error(err))
	}

	ver, verErr := c.version(ctx, userID)
	if verErr != nil {
		c.log.Warn("Order cache version read failed", zap.String("key", key), zap.Error(verErr))
	}

	fill := func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		orders, err := load(fillCtx)
		if err != nil {
			return nil, err
		}
		if verErr == nil {
			c.store(fillCtx, userID, ver, orders)
		}
		return orders, nil
	}

	ch := c.group.DoChan(key+"@"+strconv.FormatInt(ver, 10), fill)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Order), nil
	}
}

func (c *OrderCache) version(ctx context.Context, userID uint64) (int64, error) {
	v, err := c.rdb.Get(ctx, userOrdersVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// store writes the listing only while the user's version still equals ver.
func (c *OrderCache) store(ctx context.Context, userID uint64, ver int64, orders []domain.Order) {
	key := userOrdersKey(userID)
	verKey := userOrdersVersionKey(userID)

	data, err := json.Marshal(orders)
	if err != nil {
		return
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != ver {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, verKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("Skipped stale order cache fill", zap.String("key", key))
	default:
		c.log.Warn("Order cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *OrderCache) InvalidateUser(ctx context.Context, userID uint64) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, userOrdersVersionKey(userID))
		p.Del(ctx, userOrdersKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate user %d orders: %w", userID, err)
	}
	return nil
}

func (c *OrderCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
