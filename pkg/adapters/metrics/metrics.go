package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

const namespace = "shortener"

// Metrics holds the collectors exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	dbChecks       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ip_lookups_total",
			Help:      "IP geolocation lookups by result.",
		}, []string{"result"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ip_lookup_duration_seconds",
			Help:      "Time spent resolving an IP address.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		dbChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolite_db_checks_total",
			Help:      "GeoLite2 database freshness checks by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.lookups,
		m.lookupDuration,
		m.dbChecks,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentResolver counts lookups without changing their outcome.
func (m *Metrics) InstrumentResolver(base ports.IPLocationResolver) ports.IPLocationResolver {
	return &resolverMeteringDecorator{base: base, m: m}
}

// InstrumentUpdater counts database checks without changing their outcome.
func (m *Metrics) InstrumentUpdater(base ports.GeolocationDBUpdater) ports.GeolocationDBUpdater {
	return &updaterMeteringDecorator{base: base, m: m}
}

type resolverMeteringDecorator struct {
	base ports.IPLocationResolver
	m    *Metrics
}

func (d *resolverMeteringDecorator) ResolveIPLocation(ctx context.Context, ip string) (domain.Location, error) {
	start := time.Now()
	loc, err := d.base.ResolveIPLocation(ctx, ip)
	d.m.lookupDuration.Observe(time.Since(start).Seconds())

	result := "located"
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		result = "invalid_address"
	case err != nil:
		result = "failed"
	case loc.IsEmpty():
		result = "empty"
	}
	d.m.lookups.WithLabelValues(result).Inc()

	return loc, err
}

type updaterMeteringDecorator struct {
	base ports.GeolocationDBUpdater
	m    *Metrics
}

func (d *updaterMeteringDecorator) CheckForDatabaseUpdate(ctx context.Context) error {
	err := d.base.CheckForDatabaseUpdate(ctx)

	result := "ok"
	var updateErr *domain.UpdateFailedError
	switch {
	case errors.As(err, &updateErr) && updateErr.OldCopyExists:
		result = "stale"
	case err != nil:
		result = "unavailable"
	}
	d.m.dbChecks.WithLabelValues(result).Inc()

	return err
}
