package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prophetlabs/prophetd/internal/domain"
)

const propertiesTTL = 5 * time.Minute

// PropertiesCache implements domain.PropertiesCache using Redis strings with
// JSON-serialized token properties.
//
// Key schema:
//
//	token:props:{tokenID} - JSON TokenProperties
//
// A market's properties only change on judgment, so the event pipeline
// invalidates all three sibling ids when a Judged event commits; the TTL
// covers everything else.
type PropertiesCache struct {
	rdb *redis.Client
}

// NewPropertiesCache creates a PropertiesCache backed by the given Client.
func NewPropertiesCache(c *Client) *PropertiesCache {
	return &PropertiesCache{rdb: c.Underlying()}
}

func propertiesKey(id domain.TokenID) string {
	return fmt.Sprintf("token:props:%d", uint64(id))
}

// Set stores token properties with the standard TTL.
func (pc *PropertiesCache) Set(ctx context.Context, props domain.TokenProperties) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("redis: marshal properties %s: %w", props.TokenID, err)
	}
	if err := pc.rdb.Set(ctx, propertiesKey(props.TokenID), data, propertiesTTL).Err(); err != nil {
		return fmt.Errorf("redis: set properties %s: %w", props.TokenID, err)
	}
	return nil
}

// Get retrieves token properties by id. It returns domain.ErrNotFound when
// the key does not exist.
func (pc *PropertiesCache) Get(ctx context.Context, id domain.TokenID) (domain.TokenProperties, error) {
	data, err := pc.rdb.Get(ctx, propertiesKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenProperties{}, domain.ErrNotFound
		}
		return domain.TokenProperties{}, fmt.Errorf("redis: get properties %s: %w", id, err)
	}

	var props domain.TokenProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return domain.TokenProperties{}, fmt.Errorf("redis: unmarshal properties %s: %w", id, err)
	}
	return props, nil
}

// Invalidate removes the cached properties for the given token ids.
func (pc *PropertiesCache) Invalidate(ctx context.Context, ids ...domain.TokenID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = propertiesKey(id)
	}
	if err := pc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate properties: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PropertiesCache = (*PropertiesCache)(nil)
