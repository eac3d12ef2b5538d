package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. It satisfies goals.Observer.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	dismissed  prometheus.Counter
	backfilled prometheus.Counter
	dropped    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"method", "endpoint"},
		),
		dismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goals_dismissed_total",
			Help: "Goals dismissed by users",
		}),
		backfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goals_backfilled_total",
			Help: "Replacement goals drawn after the cooldown",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goal_queue_entries_dropped_total",
			Help: "Matured queue entries removed without producing a replacement",
		}),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.dismissed,
		m.backfilled,
		m.dropped,
	)
	return m
}

func (m *Metrics) GoalDismissed()            { m.dismissed.Inc() }
func (m *Metrics) GoalsBackfilled(n int)     { m.backfilled.Add(float64(n)) }
func (m *Metrics) QueueEntriesDropped(n int) { m.dropped.Add(float64(n)) }

func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		m.RequestCounter.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
