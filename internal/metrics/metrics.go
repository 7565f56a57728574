// Package metrics exposes Prometheus gauges/counters for the host
// session, operator, and deployment layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sysadmin_connected_hosts",
		Help: "Number of agents currently connected to the host session layer.",
	})
	ConnectedOperators = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sysadmin_connected_operators",
		Help: "Number of operator WebSocket clients currently connected.",
	})
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sysadmin_jobs_started_total",
		Help: "Total number of jobs dispatched to agents, by kind.",
	}, []string{"kind"})
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sysadmin_deployments_total",
		Help: "Total number of deployment attempts by terminal status.",
	}, []string{"status"})
	DeploymentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sysadmin_deployment_duration_seconds",
		Help:    "Duration of deployment attempts from dispatch to terminal state.",
		Buckets: prometheus.DefBuckets,
	})
	ActiveDeployments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sysadmin_active_deployments",
		Help: "Number of deployments currently in Building or Running state.",
	})
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sysadmin_login_attempts_total",
		Help: "Total login attempts by outcome (ok, bad_user, bad_credentials).",
	}, []string{"outcome"})
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sysadmin_notifications_sent_total",
		Help: "Total notifications dispatched by channel and outcome.",
	}, []string{"channel", "outcome"})
	UndismissedMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sysadmin_undismissed_messages",
		Help: "Number of host messages not yet dismissed by an operator.",
	})
)
