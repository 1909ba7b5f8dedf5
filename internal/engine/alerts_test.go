// internal/engine/alerts_test.go
package engine

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

func candidateAlert() *database.Alert {
    return &database.Alert{
        RuleID:      "rule-1",
        AgentID:     "agent-1",
        ItemType:    database.TypePort,
        ItemKey:     "8080/tcp",
        AnomalyType: database.AnomalyNew,
        Severity:    database.SeverityHigh,
        Title:       "new port: 8080/tcp",
    }
}

func TestCreateAlertDeduplication(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    first, created, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)
    assert.True(t, created)
    assert.Equal(t, database.AlertOpen, first.Status)

    second, created, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)
    assert.False(t, created)
    assert.Equal(t, first.ID, second.ID)
    assert.False(t, second.LastSeenAt.Before(first.LastSeenAt))

    all, err := am.GetAll(ctx)
    require.NoError(t, err)
    assert.Len(t, all, 1)
}

func TestDedupSurvivesAcknowledge(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    first, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    _, err = am.Acknowledge(ctx, first.ID, "ops")
    require.NoError(t, err)

    second, created, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)
    assert.False(t, created)
    assert.Equal(t, first.ID, second.ID)
    assert.Equal(t, database.AlertAcknowledged, second.Status, "status unchanged on refresh")
}

func TestNewAlertAfterResolve(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    first, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    _, err = am.Resolve(ctx, first.ID, "ops", "patched")
    require.NoError(t, err)

    second, created, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)
    assert.True(t, created, "terminal alert releases the fingerprint")
    assert.NotEqual(t, first.ID, second.ID)
}

func TestTransitionLattice(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    alert, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    acked, err := am.Acknowledge(ctx, alert.ID, "alice")
    require.NoError(t, err)
    assert.Equal(t, database.AlertAcknowledged, acked.Status)
    assert.Equal(t, "alice", acked.AcknowledgedBy)
    require.NotNil(t, acked.AcknowledgedAt)

    // Acknowledging twice is illegal.
    _, err = am.Acknowledge(ctx, alert.ID, "bob")
    assert.ErrorIs(t, err, ErrInvalidState)

    resolved, err := am.Resolve(ctx, alert.ID, "bob", "false positive")
    require.NoError(t, err)
    assert.Equal(t, database.AlertResolved, resolved.Status)
    assert.Equal(t, "bob", resolved.ResolvedBy)
    assert.Equal(t, "false positive", resolved.ResolutionNote)

    // Resolved is terminal; the failed transition leaves status untouched.
    _, err = am.Ignore(ctx, alert.ID, "carol", "noise")
    assert.ErrorIs(t, err, ErrInvalidState)

    got, err := am.Get(ctx, alert.ID)
    require.NoError(t, err)
    assert.Equal(t, database.AlertResolved, got.Status)
}

func TestIgnoreFromOpen(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    alert, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    ignored, err := am.Ignore(ctx, alert.ID, "ops", "known scanner")
    require.NoError(t, err)
    assert.Equal(t, database.AlertIgnored, ignored.Status)
    assert.Equal(t, "known scanner", ignored.IgnoreReason)

    _, err = am.Resolve(ctx, alert.ID, "ops", "")
    assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTransitionRequiresActor(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    alert, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    _, err = am.Acknowledge(ctx, alert.ID, "")
    assert.ErrorIs(t, err, ErrInvalidArgument)
    _, err = am.Resolve(ctx, alert.ID, "", "note")
    assert.ErrorIs(t, err, ErrInvalidArgument)
    _, err = am.Ignore(ctx, alert.ID, "", "reason")
    assert.ErrorIs(t, err, ErrInvalidArgument)

    got, err := am.Get(ctx, alert.ID)
    require.NoError(t, err)
    assert.Equal(t, database.AlertOpen, got.Status)
}

func TestTransitionMissingAlert(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)

    _, err := am.Acknowledge(context.Background(), "missing", "ops")
    assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestGetRecent(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    _, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)

    old := &database.Alert{
        ID:         "old-alert",
        AgentID:    "agent-1",
        ItemKey:    "ancient",
        Status:     database.AlertResolved,
        CreatedAt:  time.Now().Add(-72 * time.Hour),
        LastSeenAt: time.Now().Add(-72 * time.Hour),
    }
    require.NoError(t, store.PutAlert(ctx, old))

    recent, err := am.GetRecent(ctx, 24)
    require.NoError(t, err)
    assert.Len(t, recent, 1)

    recent, err = am.GetRecent(ctx, 0)
    require.NoError(t, err)
    assert.Empty(t, recent)

    recent, err = am.GetRecent(ctx, -3)
    require.NoError(t, err)
    assert.Empty(t, recent)
}

func TestQueriesValidateStatus(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    _, err := am.GetByStatus(ctx, "snoozed")
    assert.ErrorIs(t, err, ErrInvalidArgument)

    _, err = am.GetByAgentAndStatus(ctx, "agent-1", "snoozed")
    assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAlertStats(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    rule := &database.AlertRule{Name: "drift", Type: database.RuleDrift, Severity: database.SeverityHigh, Enabled: true}
    require.NoError(t, store.PutRule(ctx, rule))

    open := candidateAlert()
    open.RuleID = rule.ID
    open.Severity = database.SeverityCritical
    _, _, err := am.Create(ctx, open)
    require.NoError(t, err)

    adhoc := &database.Alert{
        AgentID:  "agent-2",
        ItemKey:  "manual-entry",
        Severity: database.SeverityLow,
    }
    created, _, err := am.Create(ctx, adhoc)
    require.NoError(t, err)
    _, err = am.Resolve(ctx, created.ID, "ops", "")
    require.NoError(t, err)

    stats, err := am.Stats(ctx)
    require.NoError(t, err)

    assert.Equal(t, 2, stats.Total)
    assert.Equal(t, 1, stats.Open)
    assert.Equal(t, 1, stats.Resolved)
    assert.Equal(t, 1, stats.BySeverity[database.SeverityCritical])
    assert.Equal(t, 1, stats.BySeverity[database.SeverityLow])
    assert.Equal(t, 1, stats.ByRuleType[database.RuleDrift])
    assert.Equal(t, 1, stats.ByRuleType["ad-hoc"])
    assert.Equal(t, 1, stats.CriticalUnresolved)
}

func TestSubscribersReceiveEvents(t *testing.T) {
    store := newTestStore(t)
    am := NewAlertManager(store)
    ctx := context.Background()

    var events []AlertEvent
    am.Subscribe(func(event AlertEvent) {
        events = append(events, event)
    })

    alert, _, err := am.Create(ctx, candidateAlert())
    require.NoError(t, err)
    _, err = am.Acknowledge(ctx, alert.ID, "ops")
    require.NoError(t, err)

    require.Len(t, events, 2)
    assert.Equal(t, "created", events[0].Type)
    assert.Equal(t, "updated", events[1].Type)
}
