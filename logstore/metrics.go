// Copyright 2024 The logforge Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	//storage interface metric
	LogstoreWriteTps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logstore",
		Subsystem: "write",
		Name:      "write_tps",
		Help:      "logstore write tps",
	})
	LogstoreWriteLatency = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "logstore",
		Subsystem:  "write",
		Name:       "write_latency",
		Help:       "logstore write latency(ms)",
		MaxAge:     5 * time.Minute,
		Objectives: map[float64]float64{0.99: 0.001},
	})

	LogstoreReadTps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logstore",
		Subsystem: "read",
		Name:      "read_tps",
		Help:      "logstore read tps",
	})
	LogstoreReadLatency = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "logstore",
		Subsystem:  "read",
		Name:       "read_latency",
		Help:       "logstore read latency(ms)",
		MaxAge:     5 * time.Minute,
		Objectives: map[float64]float64{0.99: 0.001},
	})

	LogstoreDeleteSegmentLatency = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "logstore",
		Subsystem:  "delete",
		Name:       "delete_segment_latency",
		Help:       "logstore delete segment latency(ms)",
		MaxAge:     5 * time.Minute,
		Objectives: map[float64]float64{0.99: 0.001},
	})

	//segment metric
	SegmentCutCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logstore",
		Subsystem: "segment",
		Name:      "segment_cut_interval",
		Help:      "The count of segment cut",
	})
)

func init() {
	prometheus.MustRegister(LogstoreWriteTps)
	prometheus.MustRegister(LogstoreWriteLatency)
	prometheus.MustRegister(LogstoreReadTps)
	prometheus.MustRegister(LogstoreReadLatency)
	prometheus.MustRegister(LogstoreDeleteSegmentLatency)
	prometheus.MustRegister(SegmentCutCounter)
}
