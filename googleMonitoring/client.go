package googlemonitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/api/option"
	metricpb "google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const customMetricPrefix = "custom.googleapis.com/"

// MonitoringClient records prometheus metrics on its own registry and, when a
// Google Cloud project is configured, pushes them to Cloud Monitoring.
type MonitoringClient struct {
	projectId  string
	client     *monitoring.MetricClient
	registry   *prometheus.Registry
	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMonitoringClient creates the client. With an empty projectId no Cloud
// Monitoring connection is made and PushMetrics is a no-op.
func NewMonitoringClient(ctx context.Context, projectId, jsonCredentialsStr string, registry *prometheus.Registry) (*MonitoringClient, error) {
	c := &MonitoringClient{
		projectId:  projectId,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	if projectId == "" {
		return c, nil
	}

	var client *monitoring.MetricClient
	var err error
	if jsonCredentialsStr == "" {
		// for prod where you can fetch it from gcp service account
		client, err = monitoring.NewMetricClient(ctx)
	} else {
		client, err = monitoring.NewMetricClient(ctx, option.WithCredentialsJSON([]byte(jsonCredentialsStr)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Monitoring client: %w", err)
	}
	c.client = client
	return c, nil
}

// Pushing reports whether metrics are exported to Cloud Monitoring.
func (c *MonitoringClient) Pushing() bool {
	return c.client != nil
}

func (c *MonitoringClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *MonitoringClient) getOrCreateCounterVec(metricName string, labels []string) *prometheus.CounterVec {
	c.mu.RLock()
	counter, exists := c.counters[metricName]
	c.mu.RUnlock()
	if exists {
		return counter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, exists = c.counters[metricName]; exists {
		return counter
	}
	counter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName,
		Help: "Relay counter " + metricName,
	}, labels)
	c.registry.MustRegister(counter)
	c.counters[metricName] = counter
	return counter
}

func (c *MonitoringClient) getOrCreateHistogramVec(metricName string, labels []string) *prometheus.HistogramVec {
	c.mu.RLock()
	histogram, exists := c.histograms[metricName]
	c.mu.RUnlock()
	if exists {
		return histogram
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if histogram, exists = c.histograms[metricName]; exists {
		return histogram
	}
	histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName,
		Help:    "Relay latency in seconds " + metricName,
		Buckets: prometheus.DefBuckets,
	}, labels)
	c.registry.MustRegister(histogram)
	c.histograms[metricName] = histogram
	return histogram
}

// RecordCounter adds value to the named counter. A metric name must always be
// recorded with the same set of label names.
func (c *MonitoringClient) RecordCounter(metricName string, labels map[string]string, value float64) {
	labelNames, labelValues := splitLabels(labels)
	counter := c.getOrCreateCounterVec(metricName, labelNames)
	counter.WithLabelValues(labelValues...).Add(value)
}

func (c *MonitoringClient) RecordTimer(metricName string, labels map[string]string, duration time.Duration) {
	labelNames, labelValues := splitLabels(labels)
	histogram := c.getOrCreateHistogramVec(metricName, labelNames)
	histogram.WithLabelValues(labelValues...).Observe(duration.Seconds())
}

// splitLabels returns names sorted so the same label set always lines up with
// the registered vector.
func splitLabels(labels map[string]string) ([]string, []string) {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, labels[name])
	}
	return names, values
}

func (c *MonitoringClient) PushMetrics(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	timeSeries := toTimeSeries(c.projectId, mfs, time.Now())
	if len(timeSeries) == 0 {
		return errors.New("no time series created")
	}

	if err := c.client.CreateTimeSeries(ctx, &monitoringpb.CreateTimeSeriesRequest{
		Name:       fmt.Sprintf("projects/%s", c.projectId),
		TimeSeries: timeSeries,
	}); err != nil {
		return fmt.Errorf("failed to write time series data: %w", err)
	}

	return nil
}

// RunPusher pushes metrics every interval until ctx is done.
func (c *MonitoringClient) RunPusher(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.PushMetrics(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

// toTimeSeries converts gathered families into Cloud Monitoring series. Go
// runtime, process and promhttp families are skipped. Histograms and summaries
// become a _sum and a _count series.
func toTimeSeries(projectId string, mfs []*dto.MetricFamily, now time.Time) []*monitoringpb.TimeSeries {
	var timeSeries []*monitoringpb.TimeSeries

	for _, mf := range mfs {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") || strings.HasPrefix(name, "promhttp_") || strings.HasPrefix(name, "process_") {
			continue
		}

		for _, m := range mf.Metric {
			labels := make(map[string]string, len(m.Label))
			for _, l := range m.Label {
				labels[l.GetName()] = l.GetValue()
			}

			switch {
			case m.Gauge != nil:
				timeSeries = append(timeSeries, newTimeSeries(projectId, name, labels, m.Gauge.GetValue(), now))
			case m.Counter != nil:
				timeSeries = append(timeSeries, newTimeSeries(projectId, name, labels, m.Counter.GetValue(), now))
			case m.Histogram != nil:
				timeSeries = append(timeSeries,
					newTimeSeries(projectId, name+"_sum", labels, m.Histogram.GetSampleSum(), now),
					newTimeSeries(projectId, name+"_count", labels, float64(m.Histogram.GetSampleCount()), now))
			case m.Summary != nil:
				timeSeries = append(timeSeries,
					newTimeSeries(projectId, name+"_sum", labels, m.Summary.GetSampleSum(), now),
					newTimeSeries(projectId, name+"_count", labels, float64(m.Summary.GetSampleCount()), now))
			}
		}
	}

	return timeSeries
}

func newTimeSeries(projectId, name string, labels map[string]string, value float64, now time.Time) *monitoringpb.TimeSeries {
	return &monitoringpb.TimeSeries{
		Metric: &metricpb.Metric{
			Type:   customMetricPrefix + name,
			Labels: labels,
		},
		Resource: &monitoredres.MonitoredResource{
			Type: "global",
			Labels: map[string]string{
				"project_id": projectId,
			},
		},
		Points: []*monitoringpb.Point{
			{
				Interval: &monitoringpb.TimeInterval{
					EndTime: timestamppb.New(now),
				},
				Value: &monitoringpb.TypedValue{
					Value: &monitoringpb.TypedValue_DoubleValue{
						DoubleValue: value,
					},
				},
			},
		},
	}
}
