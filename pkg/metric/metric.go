// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metric wraps the process wide prometheus registry behind
// small constructors so callers only deal in metric names.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricOpts contains naming pieces of the exposed metric
type MetricOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
}

// StartMetrics adds the metrics handler to a http.ServeMux
func StartMetrics(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}

// Counter creates and registers a prometheus.Counter
func Counter(opts MetricOpts, labels prometheus.Labels) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: labels,
	})
	prometheus.MustRegister(c)
	return c
}

// CounterVec creates and registers a prometheus.CounterVec with the
// given label dimensions
func CounterVec(opts MetricOpts, labelNames []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, labelNames)
	prometheus.MustRegister(c)
	return c
}

// Gauge creates and registers a prometheus.Gauge
func Gauge(opts MetricOpts, labels prometheus.Labels) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: labels,
	})
	prometheus.MustRegister(g)
	return g
}

// GaugeVec creates and registers a prometheus.GaugeVec with the given
// label dimensions
func GaugeVec(opts MetricOpts, labelNames []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, labelNames)
	prometheus.MustRegister(g)
	return g
}

// GaugeFunc creates and registers a gauge whose value is read from f
// at scrape time
func GaugeFunc(opts MetricOpts, labels prometheus.Labels, f func() float64) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: labels,
	}, f)
	prometheus.MustRegister(g)
	return g
}

// Histogram creates and registers a prometheus.Histogram
func Histogram(opts MetricOpts, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
		Buckets:   buckets,
	})
	prometheus.MustRegister(h)
	return h
}

// HistogramVec creates and registers a prometheus.HistogramVec
func HistogramVec(opts MetricOpts, buckets []float64, labelNames []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
		Buckets:   buckets,
	}, labelNames)
	prometheus.MustRegister(h)
	return h
}
