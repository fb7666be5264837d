// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apicache

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHit  = "hit"
	resultMiss = "miss"
)

// Metrics counts cache lookups by partition and result.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics creates and registers the cache metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsproxy_api_cache_requests_total",
				Help: "API cache lookups by partition and result (hit or miss)",
			},
			[]string{"partition", "result"},
		),
	}
	reg.MustRegister(m.requests)
	return m
}

func (m *Metrics) observe(partition, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(partition, result).Inc()
}
