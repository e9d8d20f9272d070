/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

// Package promexport exposes a go-metrics registry in the Prometheus text
// format.
package promexport

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
)

var quantiles = []float64{0.5, 0.95, 0.99}

// Collector converts every metric of a registry on each scrape. Metric names
// are lower cased with dots and dashes turned into underscores, so
// "Detection.Crossing.Emitted" becomes "<namespace>_detection_crossing_emitted".
type Collector struct {
	namespace string
	registry  metrics.Registry
}

func NewCollector(namespace string, registry metrics.Registry) *Collector {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return &Collector{namespace: namespace, registry: registry}
}

// Describe sends nothing, which makes Collector unchecked; the set of
// metrics grows as components register them.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, i interface{}) {
		fqName := MetricName(c.namespace, name)
		desc := prometheus.NewDesc(fqName, name, nil, nil)

		switch m := i.(type) {
		case metrics.Counter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))
		case metrics.GaugeFloat64:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value())
		case metrics.Meter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case metrics.Timer:
			s := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(
				prometheus.NewDesc(fqName+"_seconds", name, nil, nil),
				uint64(s.Count()),
				float64(s.Sum())/float64(time.Second),
				summary(s.Percentiles(quantiles), float64(time.Second)),
			)
		case metrics.Histogram:
			s := m.Snapshot()
			ch <- prometheus.MustNewConstSummary(desc, uint64(s.Count()), float64(s.Sum()),
				summary(s.Percentiles(quantiles), 1))
		}
	})
}

func summary(values []float64, scale float64) map[float64]float64 {
	out := make(map[float64]float64, len(quantiles))
	for i, q := range quantiles {
		out[q] = values[i] / scale
	}
	return out
}

// MetricName converts a go-metrics name to a Prometheus one.
func MetricName(namespace, name string) string {
	var sb strings.Builder
	if namespace != "" {
		sb.WriteString(namespace)
		sb.WriteByte('_')
	}
	underscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}

// Handler serves the registry for Prometheus scrapes.
func Handler(namespace string, registry metrics.Registry) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(namespace, registry))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
