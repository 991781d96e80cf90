package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batchgen"

// Collector owns the Prometheus series for a process. Each Collector has
// its own registry so tests never collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	images        *prometheus.CounterVec
	imageDuration prometheus.Histogram
	rowsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	inFlight      prometheus.Gauge
}

// NewCollector registers the batchgen series plus the Go and process
// collectors on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Generated images by outcome.",
		}, []string{"status"}),
		imageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_duration_seconds",
			Help:      "Time from task start to saved file or failure.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}),
		rowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_tasks_started_total",
			Help:      "Image tasks started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Runs that reached the stopped state.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_tasks_in_flight",
			Help:      "Image tasks started but not finished.",
		}),
	}

	c.registry.MustRegister(
		c.images,
		c.imageDuration,
		c.rowsStarted,
		c.runsCompleted,
		c.inFlight,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	// both outcomes show up at zero before the first image
	c.images.WithLabelValues(TaskStatusSuccess)
	c.images.WithLabelValues(TaskStatusError)
	return c
}

// Registry exposes the registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) taskStarted() {
	c.rowsStarted.Inc()
	c.inFlight.Inc()
}

func (c *Collector) taskFinished(rec TaskRecord) {
	c.inFlight.Dec()
	c.images.WithLabelValues(rec.Status).Inc()
	c.imageDuration.Observe(rec.Duration.Seconds())
}

func (c *Collector) runCompleted() {
	c.inFlight.Set(0)
	c.runsCompleted.Inc()
}
