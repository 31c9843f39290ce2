package monitor

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the monitor's counters and gauges, exported in prometheus
// format. The frame loop only ever touches the atomics; prometheus reads them
// lazily through GaugeFunc closures when /metrics is scraped. The registry is
// private so that a test can run several monitors in one process.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64
	FrameErrors     atomic.Uint64
	ChangeEvents    atomic.Uint64
	DetectLatencyMs atomic.Uint64
	LoopLatencyMs   atomic.Uint64
	ZonesOccupied   atomic.Uint64
	ZonesFree       atomic.Uint64
	WatchersActive  atomic.Int64

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	gauge := func(name, help string, value func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: name,
				Help: help,
			},
			value,
		))
	}
	gauge("lotcam_frames_processed_total", "Total frames run through the detector",
		func() float64 { return float64(m.FramesProcessed.Load()) })
	gauge("lotcam_frames_dropped_total", "Frames skipped because processing overran the frame interval",
		func() float64 { return float64(m.FramesDropped.Load()) })
	gauge("lotcam_frame_errors_total", "Total frame read and analysis errors",
		func() float64 { return float64(m.FrameErrors.Load()) })
	gauge("lotcam_change_events_total", "Total zone occupancy flips",
		func() float64 { return float64(m.ChangeEvents.Load()) })
	gauge("lotcam_detect_latency_ms", "Detector latency on the most recent frame, in milliseconds",
		func() float64 { return float64(m.DetectLatencyMs.Load()) })
	gauge("lotcam_loop_latency_ms", "Total loop latency on the most recent frame, in milliseconds",
		func() float64 { return float64(m.LoopLatencyMs.Load()) })
	gauge("lotcam_zones_occupied", "Number of occupied zones",
		func() float64 { return float64(m.ZonesOccupied.Load()) })
	gauge("lotcam_zones_free", "Number of free zones",
		func() float64 { return float64(m.ZonesFree.Load()) })
	gauge("lotcam_watchers_active", "Number of registered change event watchers",
		func() float64 { return float64(m.WatchersActive.Load()) })
	return m
}

// Handler returns the prometheus scrape handler for these metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
