// Package metrics provides Prometheus metrics for contracthub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contracthub"

var (
	// InvitesTotal counts invite processing by outcome: "invited" when a
	// ledger entry was created, "attached" when the email resolved to an
	// account and was attached directly.
	InvitesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invites",
			Name:      "processed_total",
			Help:      "Total invites processed, by outcome",
		},
		[]string{"outcome"},
	)

	// InvitesAcceptedTotal counts successful token acceptances.
	InvitesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invites",
			Name:      "accepted_total",
			Help:      "Total invites accepted",
		},
	)

	// SubmissionsTotal counts timesheet uploads.
	SubmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timesheets",
			Name:      "submissions_total",
			Help:      "Total timesheet submissions",
		},
	)

	// DecisionsTotal counts supervisor decisions by status.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timesheets",
			Name:      "decisions_total",
			Help:      "Total supervisor decisions, by status",
		},
		[]string{"status"},
	)
)
