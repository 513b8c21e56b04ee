package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
)

const redisSampleKey = "coldbrewer:scale:weight"

// RedisStore keeps samples in a sorted set scored by millisecond timestamp,
// trimming anything past the retention horizon on each write.
type RedisStore struct {
	client    *redis.Client
	key       string
	retention time.Duration

	nowFn func() time.Time
}

// NewRedisStore connects and pings. The url is the standard
// redis://[user:pass@]host:port/db form; a non-positive retention falls back
// to DefaultRetention.
func NewRedisStore(url string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, brewerr.TimeSeriesConnection(err)
	}

	return &RedisStore{
		client:    client,
		key:       redisSampleKey,
		retention: retention,
		nowFn:     time.Now,
	}, nil
}

// WriteScaleData implements Store.
func (s *RedisStore) WriteScaleData(ctx context.Context, sample model.WeightSample) error {
	member, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(sample.Timestamp.UnixMilli()),
		Member: string(member),
	})
	horizon := s.nowFn().Add(-s.retention).UnixMilli()
	pipe.ZRemRangeByScore(ctx, s.key, "-inf", fmt.Sprintf("%d", horizon))

	if _, err := pipe.Exec(ctx); err != nil {
		return brewerr.TimeSeriesWrite(err)
	}
	return nil
}

// RecentWeightReadings implements Store. Sorted-set order gives the
// ascending-time ordering the estimator requires for free.
func (s *RedisStore) RecentWeightReadings(ctx context.Context, window time.Duration, startAfter time.Time) ([]model.WeightSample, error) {
	cutoff := s.nowFn().Add(-window)
	if startAfter.After(cutoff) {
		cutoff = startAfter
	}

	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", cutoff.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, brewerr.TimeSeriesConnection(err)
	}

	out := make([]model.WeightSample, 0, len(members))
	for _, m := range members {
		var sample model.WeightSample
		if err := json.Unmarshal([]byte(m), &sample); err != nil {
			return nil, fmt.Errorf("decode sample %q: %w", m, err)
		}
		out = append(out, sample)
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
