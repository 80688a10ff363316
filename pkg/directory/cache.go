package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/model"
)

// Cached puts a Redis read-through cache in front of Lookup. Friend lists
// are always read from the underlying directory.
type Cached struct {
	Directory
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewCached(d Directory, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{
		Directory: d,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "directory-cache").Logger(),
	}
}

func displayKey(userID int64) string {
	return fmt.Sprintf("user:display:%d", userID)
}

func (c *Cached) Lookup(ctx context.Context, userID int64) (model.Contact, error) {
	raw, err := c.rdb.Get(ctx, displayKey(userID)).Bytes()
	if err == nil {
		var contact model.Contact
		if err := json.Unmarshal(raw, &contact); err == nil {
			return contact, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Debug().Err(err).Int64("user_id", userID).Msg("cache read failed")
	}

	contact, err := c.Directory.Lookup(ctx, userID)
	if err != nil {
		return model.Contact{}, err
	}
	if raw, err := json.Marshal(contact); err == nil {
		if err := c.rdb.Set(ctx, displayKey(userID), raw, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Int64("user_id", userID).Msg("cache write failed")
		}
	}
	return contact, nil
}
