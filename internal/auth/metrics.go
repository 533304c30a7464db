// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the security core.
var (
	// loginsTotal counts login attempts by outcome.
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_logins_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"outcome"})

	// tokensIssuedTotal counts session tokens issued.
	tokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authgate_tokens_issued_total",
		Help: "Total number of session tokens issued",
	})

	// tokenResolutionsTotal counts token resolutions by result. The result
	// label distinguishes internally what the caller-facing error does not.
	tokenResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_token_resolutions_total",
		Help: "Total number of token resolutions by result",
	}, []string{"result"})

	// permissionChecksTotal counts permission checks by decision.
	permissionChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_permission_checks_total",
		Help: "Total number of permission checks by decision",
	}, []string{"decision"})
)

func recordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

func recordTokenIssued() {
	tokensIssuedTotal.Inc()
}

func recordTokenResolved(result string) {
	tokenResolutionsTotal.WithLabelValues(result).Inc()
}

func recordPermissionCheck(decision string) {
	permissionChecksTotal.WithLabelValues(decision).Inc()
}
