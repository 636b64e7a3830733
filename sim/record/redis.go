package record

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisScheme = "redis://"
	// defaultRedisList receives records when the URL names no list.
	defaultRedisList  = "simlink:records"
	redisWriteTimeout = 5 * time.Second
)

// redisSink appends JSON-encoded records to a Redis list, for streaming
// telemetry to a live consumer instead of a local file. The list key comes
// from the URL's "list" query parameter.
type redisSink struct {
	client *redis.Client
	list   string
}

func openRedisSink(rawURL string) (*redisSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	list := u.Query().Get("list")
	if list == "" {
		list = defaultRedisList
	}
	// go-redis rejects query options it does not know, so strip ours.
	u.RawQuery = ""
	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, err
	}
	return &redisSink{client: redis.NewClient(opts), list: list}, nil
}

func (s *redisSink) Write(rec map[string]Value) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()
	return s.client.RPush(ctx, s.list, data).Err()
}

func (s *redisSink) Close() error {
	return s.client.Close()
}
