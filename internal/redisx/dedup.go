package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

// FirstSeen marks eventID as processed and reports whether this call was
// the first to do so.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, errors.Wrap(err, "mark event processed")
	}
	return ok, nil
}

// Forget clears the mark so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return errors.Wrap(d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Err(), "clear processed mark")
}
