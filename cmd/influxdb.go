package cmd

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func summaryPoints(cfg *Config, results Summary, now time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(results))
	for _, s := range results {
		p := influxdb2.NewPointWithMeasurement("deephash_split").
			AddTag("dataset", s.Dataset).
			AddTag("split", s.Split).
			AddTag("run_id", s.RunID).
			AddField("samples", s.Samples).
			AddField("classes", s.Classes).
			AddField("labels_per_sample", s.LabelsPerSample).
			AddField("unlabeled", s.Unlabeled).
			AddField("open_time", s.OpenTime).
			SetTime(now)
		for key, value := range cfg.LabelMap {
			p.AddTag(key, value)
		}
		points = append(points, p)
	}
	return points
}

// PushMetricsToInfluxDB writes one point per split to an InfluxDB bucket.
func PushMetricsToInfluxDB(ctx context.Context, cfg *Config, results Summary) error {
	if cfg.InfluxDBConfig.URL == "" {
		return nil
	}

	client := influxdb2.NewClient(cfg.InfluxDBConfig.URL, cfg.InfluxDBConfig.Token)
	defer client.Close()

	writeAPI := client.WriteAPIBlocking(cfg.InfluxDBConfig.Org, cfg.InfluxDBConfig.Bucket)
	if err := writeAPI.WritePoint(ctx, summaryPoints(cfg, results, time.Now())...); err != nil {
		return errors.Wrap(err, "write points")
	}

	log.WithFields(log.Fields{
		"url":    cfg.InfluxDBConfig.URL,
		"bucket": cfg.InfluxDBConfig.Bucket,
	}).Info("Successfully pushed metrics to InfluxDB")

	return nil
}
