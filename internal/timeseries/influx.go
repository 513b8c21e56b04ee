package timeseries

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
)

const (
	influxMeasurement = "scale_weight"
	influxField       = "grams"
)

// InfluxConfig locates the bucket samples are written to.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxStore writes each reading as a point and queries windows back out
// with Flux. This matches the rig's long-standing Grafana setup, which
// charts the same bucket.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string

	nowFn func() time.Time
}

// NewInfluxStore builds the store and verifies the server is reachable.
func NewInfluxStore(ctx context.Context, cfg InfluxConfig) (*InfluxStore, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, brewerr.TimeSeriesConnection(err)
	}

	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		nowFn:    time.Now,
	}, nil
}

// WriteScaleData implements Store.
func (s *InfluxStore) WriteScaleData(ctx context.Context, sample model.WeightSample) error {
	point := influxdb2.NewPoint(
		influxMeasurement,
		nil,
		map[string]any{influxField: sample.Grams},
		sample.Timestamp,
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return brewerr.TimeSeriesWrite(err)
	}
	return nil
}

// RecentWeightReadings implements Store.
func (s *InfluxStore) RecentWeightReadings(ctx context.Context, window time.Duration, startAfter time.Time) ([]model.WeightSample, error) {
	cutoff := s.nowFn().Add(-window)
	if startAfter.After(cutoff) {
		cutoff = startAfter
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r._field == %q)
  |> sort(columns: ["_time"])`,
		s.bucket, cutoff.UTC().Format(time.RFC3339Nano), influxMeasurement, influxField)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, brewerr.TimeSeriesConnection(err)
	}

	var out []model.WeightSample
	for result.Next() {
		record := result.Record()
		grams, ok := record.Value().(float64)
		if !ok {
			continue
		}
		// Flux range start is inclusive; keep startAfter exclusive.
		if !startAfter.IsZero() && !record.Time().After(startAfter) {
			continue
		}
		out = append(out, model.WeightSample{Timestamp: record.Time(), Grams: grams})
	}
	if err := result.Err(); err != nil {
		return nil, brewerr.TimeSeriesConnection(err)
	}
	return out, nil
}

// Close implements Store.
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}
