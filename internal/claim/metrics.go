// Copyright 2025 Tom Barlow
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

package claim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// The §4.3/§8 "observable tally" exposed as real Prometheus counters, so an
// operator can scrape the same numbers the test suite asserts on via
// prometheus/client_golang/prometheus/testutil.ToFloat64.
var (
	claimsSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchkit_claims_succeeded_total",
			Help: "Total task claims that won the lock and transitioned to in_progress, by role.",
		},
		[]string{"role"},
	)
	claimConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchkit_claim_conflicts_total",
			Help: "Total lock-directory creation attempts that lost to another worker, by role.",
		},
		[]string{"role"},
	)
	releases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchkit_claim_releases_total",
			Help: "Total claims released without a status mutation (worker cancelled), by role.",
		},
		[]string{"role"},
	)
	failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchkit_claim_failures_total",
			Help: "Total claim-store operations that failed for a reason other than expected contention, by role.",
		},
		[]string{"role"},
	)
)

func recordSucceeded(role string) { claimsSucceeded.WithLabelValues(role).Inc() }
func recordConflict(role string)  { claimConflicts.WithLabelValues(role).Inc() }
func recordRelease(role string)   { releases.WithLabelValues(role).Inc() }
func recordFailure(role string)   { failures.WithLabelValues(role).Inc() }
