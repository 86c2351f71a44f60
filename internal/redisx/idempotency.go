package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrInFlight is returned by Claim when another request holding the same
// key has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Idempotency guards checkout against client retries. A key is claimed with
// SETNX before the order is created and then points at the order id.
type Idempotency struct {
	RDB redis.Cmdable
}

// Claim reserves key for customerID. When the key already resolved to an
// order, that order id is returned with claimed=false.
func (i *Idempotency) Claim(ctx context.Context, customerID, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemCheckout, customerID, key)
	ok, err := i.RDB.SetNX(ctx, k, pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "claim idempotency key")
	}
	if ok {
		return "", true, nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired or abandoned between the two calls; try once more.
		ok, err = i.RDB.SetNX(ctx, k, pendingMarker, TTLIdempotency).Result()
		if err != nil {
			return "", false, errors.Wrap(err, "claim idempotency key")
		}
		if ok {
			return "", true, nil
		}
		return "", false, ErrInFlight
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read idempotency key")
	}
	if v == pendingMarker {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

// Complete points a claimed key at the order it produced.
func (i *Idempotency) Complete(ctx context.Context, customerID, key, orderID string) error {
	k := fmt.Sprintf(KeyIdemCheckout, customerID, key)
	return errors.Wrap(i.RDB.Set(ctx, k, orderID, TTLIdempotency).Err(), "complete idempotency key")
}

// Abandon frees a claimed key after a failed checkout so the client can retry.
func (i *Idempotency) Abandon(ctx context.Context, customerID, key string) error {
	k := fmt.Sprintf(KeyIdemCheckout, customerID, key)
	return errors.Wrap(i.RDB.Del(ctx, k).Err(), "abandon idempotency key")
}
