// Package metrics exposes shadow-detection pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	// Frame counters
	FramesPolled    atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	IdleTicks       atomic.Uint64

	// Calibration
	DegenerateCalibrations atomic.Uint64
	Calibrating            atomic.Uint64 // 0 = inactive, 1 = calibrating

	// Last frame
	ShadowCount      atomic.Uint64
	ProcessLatencyMs atomic.Uint64

	processSeconds prometheus.Histogram
	registry       *prometheus.Registry
}

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shadow_frame_process_seconds",
			Help:    "Time spent rectifying, segmenting and extracting one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"shadow_frames_polled_total", "Frames delivered by the camera", &m.FramesPolled},
		{"shadow_frames_processed_total", "Frames that produced a shadow list", &m.FramesProcessed},
		{"shadow_frames_skipped_total", "Frames skipped for lack of a valid perspective transform", &m.FramesSkipped},
		{"shadow_idle_ticks_total", "Ticks with no new camera frame", &m.IdleTicks},
		{"shadow_degenerate_calibrations_total", "Calibration quads rejected as degenerate", &m.DegenerateCalibrations},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shadow_count",
			Help: "Shadows found in the last processed frame",
		},
		func() float64 { return float64(m.ShadowCount.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shadow_process_latency_ms",
			Help: "Processing time of the last frame in milliseconds",
		},
		func() float64 { return float64(m.ProcessLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shadow_calibration_active",
			Help: "Calibration active (0=inactive, 1=active)",
		},
		func() float64 { return float64(m.Calibrating.Load()) },
	))

	m.registry.MustRegister(m.processSeconds)
}

// ObserveProcess records the duration of one frame pass and its shadow count.
func (m *Metrics) ObserveProcess(d time.Duration, shadows int) {
	m.FramesProcessed.Add(1)
	m.ShadowCount.Store(uint64(shadows))
	m.ProcessLatencyMs.Store(uint64(d.Milliseconds()))
	m.processSeconds.Observe(d.Seconds())
}

// SetCalibrating records whether calibration is active.
func (m *Metrics) SetCalibrating(active bool) {
	if active {
		m.Calibrating.Store(1)
	} else {
		m.Calibrating.Store(0)
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
