package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "mymed"

// Metrics holds every collector of the application on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	Scans         prometheus.Counter
	ScanDuration  prometheus.Histogram
	Fired         prometheus.Counter
	NotifyErrors  *prometheus.CounterVec
	Responses     *prometheus.CounterVec
	LowSupply     prometheus.Counter
	StorageErrors prometheus.Counter
	WeightEntries prometheus.Counter
	WatchedUsers  prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "scans_total",
			Help:      "Reminder scans run by the trigger scheduler.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "scan_duration_seconds",
			Help:      "Time spent in one reminder scan.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "fired_total",
			Help:      "Reminders fired.",
		}),
		NotifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Failed notification deliveries by kind.",
		}, []string{"kind"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "responses_total",
			Help:      "Reminder responses by history status.",
		}, []string{"status"}),
		LowSupply: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "low_supply_warnings_total",
			Help:      "Low supply warnings emitted on dismissal.",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "storage_errors_total",
			Help:      "Failed writes to the reminder store.",
		}),
		WeightEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "weight",
			Name:      "entries_recorded_total",
			Help:      "Weight entries inserted or updated.",
		}),
		WatchedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "watched_users",
			Help:      "Users whose reminders are being scanned.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Scans,
		m.ScanDuration,
		m.Fired,
		m.NotifyErrors,
		m.Responses,
		m.LowSupply,
		m.StorageErrors,
		m.WeightEntries,
		m.WatchedUsers,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Metrics listening on %s", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
