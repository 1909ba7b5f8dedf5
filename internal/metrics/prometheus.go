// internal/metrics/prometheus.go - Prometheus instrumentation
package metrics

import (
    "context"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

var (
    reportsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "monitor_reports_total",
            Help: "Total number of agent reports processed",
        },
        []string{"type", "status"},
    )

    driftItemsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "monitor_drift_items_total",
            Help: "Total drift items detected by observation type and anomaly kind",
        },
        []string{"type", "anomaly"},
    )

    alertsCreatedTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "monitor_alerts_created_total",
            Help: "Total alerts created by severity and rule type",
        },
        []string{"severity", "rule_type"},
    )

    alertsOpen = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "monitor_alerts_open",
            Help: "Number of alerts currently open",
        },
    )

    sessionsRunning = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "monitor_learning_sessions_running",
            Help: "Number of learning sessions currently running",
        },
    )

    ruleEvaluationSeconds = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "monitor_rule_evaluation_seconds",
            Help:    "Rule evaluation duration in seconds",
            Buckets: prometheus.DefBuckets,
        },
        []string{"rule_type"},
    )

    storeOperationsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "monitor_store_operations_total",
            Help: "Total store operations by operation and status",
        },
        []string{"operation", "status"},
    )
)

// Collector records engine activity and refreshes gauges from the store.
type Collector struct {
    store database.Store
}

func NewCollector(store database.Store) *Collector {
    return &Collector{store: store}
}

func (c *Collector) RecordReport(obsType, status string) {
    reportsTotal.WithLabelValues(obsType, status).Inc()
}

func (c *Collector) RecordDrift(obsType, anomaly string) {
    driftItemsTotal.WithLabelValues(obsType, anomaly).Inc()
}

func (c *Collector) RecordAlert(severity, ruleType string) {
    alertsCreatedTotal.WithLabelValues(severity, ruleType).Inc()
}

func (c *Collector) RecordRuleEvaluation(ruleType string, d time.Duration) {
    ruleEvaluationSeconds.WithLabelValues(ruleType).Observe(d.Seconds())
}

func (c *Collector) RecordStoreOperation(operation, status string) {
    storeOperationsTotal.WithLabelValues(operation, status).Inc()
}

// UpdateSystemMetrics refreshes the open-alert and running-session gauges.
// Called periodically by the web server.
func (c *Collector) UpdateSystemMetrics(ctx context.Context) {
    alerts, err := c.store.GetAlerts(ctx, database.AlertFilters{Status: database.AlertOpen})
    if err != nil {
        logrus.WithError(err).Warn("Failed to update open alert gauge")
    } else {
        alertsOpen.Set(float64(len(alerts)))
    }

    sessions, err := c.store.GetRunningSessions(ctx)
    if err != nil {
        logrus.WithError(err).Warn("Failed to update running session gauge")
    } else {
        sessionsRunning.Set(float64(len(sessions)))
    }
}
