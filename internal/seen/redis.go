package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a seen ID is remembered in Redis.
const DefaultTTL = 30 * 24 * time.Hour

// Redis is a Set shared across restarts. Keys are mailagent:seen:<namespace>:<id>.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

var _ Set = (*Redis)(nil)

// NewRedis connects to redisURL and checks the connection.
func NewRedis(ctx context.Context, redisURL, namespace string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seen store URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach seen store: %w", err)
	}

	return &Redis{client: client, namespace: namespace, ttl: ttl}, nil
}

func (r *Redis) key(id string) string {
	return fmt.Sprintf("mailagent:seen:%s:%s", r.namespace, id)
}

func (r *Redis) Contains(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check seen id %s: %w", id, err)
	}
	return n > 0, nil
}

// Add records id. Adding an ID twice keeps the original expiry.
func (r *Redis) Add(ctx context.Context, id string) error {
	if err := r.client.SetNX(ctx, r.key(id), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record seen id %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
