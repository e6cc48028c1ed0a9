package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSink appends events as JSON to a Redis list.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects lazily; url must be a redis:// URL.
func NewRedisSink(url, key string) (*RedisSink, error) {
	if key == "" {
		key = "finaljob:events"
	}
	if url == "" {
		return nil, errors.New("redis report backend needs REDIS_URL")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisSink{client: redis.NewClient(opt), key: key}, nil
}

func (r *RedisSink) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.key, data).Err()
}

// List returns every event stored under the key, oldest first.
func (r *RedisSink) List(ctx context.Context) ([]Event, error) {
	vals, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	items := make([]Event, 0, len(vals))
	for _, v := range vals {
		var evt Event
		if err := json.Unmarshal([]byte(v), &evt); err == nil {
			items = append(items, evt)
		}
	}
	return items, nil
}

func (r *RedisSink) Close() error { return r.client.Close() }
