// Copyright 2025 The Runr Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runr_reconcile_total",
			Help: "Number of reconcile passes, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runr_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	resourceOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runr_resource_operations_total",
			Help: "Backend operations issued, partitioned by kind, operation and outcome.",
		},
		[]string{"kind", "operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		reconcileTotal,
		reconcileDuration,
		resourceOperationsTotal,
	)
}
