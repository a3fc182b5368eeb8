// Package metrics provides analytics adapters: an InfluxDB recorder for
// session history and the Prometheus scrape endpoint.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/sched"
	"github.com/chargeq/chargeq/infra/logger"
)

// InfluxRecorder writes session lifecycle points to an InfluxDB instance
// using the official client.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

var _ sched.SessionRecorder = (*InfluxRecorder)(nil)

// NewInfluxRecorder creates a recorder for the given InfluxDB endpoint.
func NewInfluxRecorder(url, token, org, bucket string) *InfluxRecorder {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-recorder"),
	}
}

// NewInfluxRecorderWithFallback pings the InfluxDB instance and returns nil
// if the health check fails, so the engine runs without a recorder.
func NewInfluxRecorderWithFallback(url, token, org, bucket string) sched.SessionRecorder {
	rec := NewInfluxRecorder(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := rec.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			rec.log.Errorf("influx health check error: %v", err)
		} else {
			rec.log.Errorf("influx health status: %s", health.Status)
		}
		rec.client.Close()
		return nil
	}
	return rec
}

// RecordSessionStart writes a session_event point for the session start.
func (r *InfluxRecorder) RecordSessionStart(s model.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_event").
		AddTag("location", s.LocationID).
		AddTag("charger", s.ChargerID).
		AddTag("phase", "start").
		AddTag("session_id", strconv.FormatInt(s.ID, 10)).
		AddField("username", s.Username).
		SetTime(s.StartTime)
	return r.writeAPI.WritePoint(ctx, p)
}

// RecordSessionEnd writes a session_event point including the duration.
func (r *InfluxRecorder) RecordSessionEnd(s model.Session) error {
	if s.EndTime == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_event").
		AddTag("location", s.LocationID).
		AddTag("charger", s.ChargerID).
		AddTag("phase", "end").
		AddTag("session_id", strconv.FormatInt(s.ID, 10)).
		AddField("username", s.Username).
		AddField("duration_seconds", s.EndTime.Sub(s.StartTime).Seconds()).
		SetTime(*s.EndTime)
	return r.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}
