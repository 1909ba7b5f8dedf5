// internal/engine/alerts.go - alert lifecycle and queries
package engine

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

// AlertEvent fans out alert creations and updates to subscribers
// (websocket hub, notifier, metrics).
type AlertEvent struct {
    Type  string          `json:"type"` // "created" or "updated"
    Alert *database.Alert `json:"alert"`
}

// AlertStats summarizes the alert population for the dashboard.
type AlertStats struct {
    Total              int            `json:"total"`
    Open               int            `json:"open"`
    Acknowledged       int            `json:"acknowledged"`
    Resolved           int            `json:"resolved"`
    Ignored            int            `json:"ignored"`
    BySeverity         map[string]int `json:"by_severity"`
    ByRuleType         map[string]int `json:"by_rule_type"`
    CriticalUnresolved int            `json:"critical_unresolved"`
}

// AlertManager owns alert creation, dedup and state transitions.
type AlertManager struct {
    store database.Store
    locks *KeyMutex

    subMu       sync.RWMutex
    subscribers []func(AlertEvent)
}

func NewAlertManager(store database.Store) *AlertManager {
    return &AlertManager{
        store: store,
        locks: NewKeyMutex(),
    }
}

// Subscribe registers a callback for alert events. Callbacks must not
// block; they run on the caller's goroutine.
func (am *AlertManager) Subscribe(fn func(AlertEvent)) {
    am.subMu.Lock()
    defer am.subMu.Unlock()
    am.subscribers = append(am.subscribers, fn)
}

func (am *AlertManager) notify(event AlertEvent) {
    am.subMu.RLock()
    subs := am.subscribers
    am.subMu.RUnlock()

    for _, fn := range subs {
        fn(event)
    }
}

// Create inserts a candidate alert unless a live alert with the same
// fingerprint exists, in which case only LastSeenAt is refreshed. Returns
// the stored alert and whether it was newly created.
func (am *AlertManager) Create(ctx context.Context, candidate *database.Alert) (*database.Alert, bool, error) {
    fp := candidate.Fingerprint()
    am.locks.Lock(fp)
    defer am.locks.Unlock(fp)

    existing, err := am.store.GetOpenAlert(ctx, fp)
    if err == nil {
        existing.LastSeenAt = time.Now()
        if err := am.store.PutAlert(ctx, existing); err != nil {
            return nil, false, fmt.Errorf("failed to refresh alert: %w", err)
        }
        return existing, false, nil
    }
    if !errors.Is(err, database.ErrNotFound) {
        return nil, false, err
    }

    now := time.Now()
    candidate.ID = uuid.New().String()
    candidate.Status = database.AlertOpen
    candidate.CreatedAt = now
    candidate.LastSeenAt = now

    if err := am.store.PutAlert(ctx, candidate); err != nil {
        return nil, false, fmt.Errorf("failed to store alert: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "alert_id": candidate.ID,
        "agent_id": candidate.AgentID,
        "item_key": candidate.ItemKey,
        "severity": candidate.Severity,
    }).Info("Alert created")

    am.notify(AlertEvent{Type: "created", Alert: candidate})
    return candidate, true, nil
}

func (am *AlertManager) transition(ctx context.Context, id, actor string, apply func(*database.Alert) error) (*database.Alert, error) {
    if actor == "" {
        return nil, fmt.Errorf("actor required: %w", ErrInvalidArgument)
    }

    alert, err := am.store.GetAlert(ctx, id)
    if err != nil {
        return nil, err
    }

    fp := alert.Fingerprint()
    am.locks.Lock(fp)
    defer am.locks.Unlock(fp)

    // Reload under the lock so concurrent transitions see each other.
    alert, err = am.store.GetAlert(ctx, id)
    if err != nil {
        return nil, err
    }

    if err := apply(alert); err != nil {
        return nil, err
    }
    if err := am.store.PutAlert(ctx, alert); err != nil {
        return nil, fmt.Errorf("failed to store alert: %w", err)
    }

    am.notify(AlertEvent{Type: "updated", Alert: alert})
    return alert, nil
}

// Acknowledge moves an open alert to acknowledged.
func (am *AlertManager) Acknowledge(ctx context.Context, id, actor string) (*database.Alert, error) {
    return am.transition(ctx, id, actor, func(alert *database.Alert) error {
        if alert.Status != database.AlertOpen {
            return fmt.Errorf("cannot acknowledge %s alert: %w", alert.Status, ErrInvalidState)
        }
        now := time.Now()
        alert.Status = database.AlertAcknowledged
        alert.AcknowledgedBy = actor
        alert.AcknowledgedAt = &now
        return nil
    })
}

// Resolve moves an open or acknowledged alert to resolved.
func (am *AlertManager) Resolve(ctx context.Context, id, actor, note string) (*database.Alert, error) {
    return am.transition(ctx, id, actor, func(alert *database.Alert) error {
        if !alert.Live() {
            return fmt.Errorf("cannot resolve %s alert: %w", alert.Status, ErrInvalidState)
        }
        now := time.Now()
        alert.Status = database.AlertResolved
        alert.ResolvedBy = actor
        alert.ResolvedAt = &now
        alert.ResolutionNote = note
        return nil
    })
}

// Ignore moves an open or acknowledged alert to ignored.
func (am *AlertManager) Ignore(ctx context.Context, id, actor, reason string) (*database.Alert, error) {
    return am.transition(ctx, id, actor, func(alert *database.Alert) error {
        if !alert.Live() {
            return fmt.Errorf("cannot ignore %s alert: %w", alert.Status, ErrInvalidState)
        }
        now := time.Now()
        alert.Status = database.AlertIgnored
        alert.IgnoredBy = actor
        alert.IgnoredAt = &now
        alert.IgnoreReason = reason
        return nil
    })
}

func (am *AlertManager) Get(ctx context.Context, id string) (*database.Alert, error) {
    return am.store.GetAlert(ctx, id)
}

func (am *AlertManager) GetAll(ctx context.Context) ([]database.Alert, error) {
    return am.store.GetAlerts(ctx, database.AlertFilters{})
}

func (am *AlertManager) GetByStatus(ctx context.Context, status string) ([]database.Alert, error) {
    if err := validateStatus(status); err != nil {
        return nil, err
    }
    return am.store.GetAlerts(ctx, database.AlertFilters{Status: status})
}

func (am *AlertManager) GetByAgent(ctx context.Context, agentID string) ([]database.Alert, error) {
    return am.store.GetAlerts(ctx, database.AlertFilters{AgentID: agentID})
}

func (am *AlertManager) GetByAgentAndStatus(ctx context.Context, agentID, status string) ([]database.Alert, error) {
    if err := validateStatus(status); err != nil {
        return nil, err
    }
    return am.store.GetAlerts(ctx, database.AlertFilters{AgentID: agentID, Status: status})
}

// GetRecent returns alerts created within the last N hours, newest first.
func (am *AlertManager) GetRecent(ctx context.Context, hours int) ([]database.Alert, error) {
    if hours <= 0 {
        return []database.Alert{}, nil
    }
    since := time.Now().Add(-time.Duration(hours) * time.Hour)
    return am.store.GetAlerts(ctx, database.AlertFilters{Since: &since})
}

// Stats aggregates counts by status, severity and rule type. Alerts whose
// rule has since been deleted count under "ad-hoc".
func (am *AlertManager) Stats(ctx context.Context) (*AlertStats, error) {
    alerts, err := am.store.GetAlerts(ctx, database.AlertFilters{})
    if err != nil {
        return nil, err
    }
    rules, err := am.store.GetRules(ctx)
    if err != nil {
        return nil, err
    }

    ruleTypes := make(map[string]string, len(rules))
    for _, rule := range rules {
        ruleTypes[rule.ID] = rule.Type
    }

    stats := &AlertStats{
        BySeverity: make(map[string]int),
        ByRuleType: make(map[string]int),
    }
    for i := range alerts {
        alert := &alerts[i]
        stats.Total++

        switch alert.Status {
        case database.AlertOpen:
            stats.Open++
        case database.AlertAcknowledged:
            stats.Acknowledged++
        case database.AlertResolved:
            stats.Resolved++
        case database.AlertIgnored:
            stats.Ignored++
        }

        stats.BySeverity[alert.Severity]++

        ruleType, ok := ruleTypes[alert.RuleID]
        if !ok || alert.RuleID == "" {
            ruleType = "ad-hoc"
        }
        stats.ByRuleType[ruleType]++

        if alert.Severity == database.SeverityCritical && alert.Live() {
            stats.CriticalUnresolved++
        }
    }

    return stats, nil
}

func validateStatus(status string) error {
    switch status {
    case database.AlertOpen, database.AlertAcknowledged, database.AlertResolved, database.AlertIgnored:
        return nil
    }
    return fmt.Errorf("unknown alert status %q: %w", status, ErrInvalidArgument)
}
