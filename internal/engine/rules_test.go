// internal/engine/rules_test.go
package engine

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/metrics"
)

func newTestRuleEngine(t *testing.T) (*RuleEngine, database.Store) {
    t.Helper()

    store := newTestStore(t)
    am := NewAlertManager(store)
    return NewRuleEngine(store, NewComparator(store), am, metrics.NewCollector(store)), store
}

func putPortSnapshot(t *testing.T, store database.Store, keys ...string) *database.Snapshot {
    t.Helper()

    items := make([]database.Item, 0, len(keys))
    for _, key := range keys {
        items = append(items, database.Item{Key: key})
    }
    snap := &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypePort,
        CapturedAt: time.Now(),
        Items:      items,
    }
    require.NoError(t, store.PutSnapshot(context.Background(), snap))
    return snap
}

func TestDriftRuleEmitsPerItem(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    _, err := store.ReplaceBaseline(ctx, "agent-1", database.TypePort,
        []database.Item{{Key: "22/tcp"}}, database.ProvenanceLearned, "")
    require.NoError(t, err)

    require.NoError(t, store.PutRule(ctx, &database.AlertRule{
        Name: "port drift", Type: database.RuleDrift,
        ItemType: database.TypePort, Severity: database.SeverityHigh, Enabled: true,
    }))

    snap := putPortSnapshot(t, store, "8080/tcp", "9090/tcp")
    re.Evaluate(ctx, snap)

    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    require.Len(t, alerts, 3, "two new ports plus one missing")

    anomalies := map[string]int{}
    for _, alert := range alerts {
        anomalies[alert.AnomalyType]++
        assert.Equal(t, database.SeverityHigh, alert.Severity)
    }
    assert.Equal(t, 2, anomalies[database.AnomalyNew])
    assert.Equal(t, 1, anomalies[database.AnomalyMissing])
}

func TestDriftRuleSkipsWithoutBaseline(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    require.NoError(t, store.PutRule(ctx, &database.AlertRule{
        Name: "port drift", Type: database.RuleDrift, Severity: database.SeverityHigh, Enabled: true,
    }))

    snap := putPortSnapshot(t, store, "8080/tcp")
    re.Evaluate(ctx, snap)

    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    assert.Empty(t, alerts, "no baseline means cannot evaluate, not total drift")
}

func TestDisabledAndScopedRules(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    disabled := &database.AlertRule{
        Name: "disabled", Type: database.RulePattern, Pattern: ".*",
        Severity: database.SeverityLow, Enabled: false,
    }
    otherAgent := &database.AlertRule{
        Name: "other agent", Type: database.RulePattern, Pattern: ".*",
        AgentID: "agent-9", Severity: database.SeverityLow, Enabled: true,
    }
    otherType := &database.AlertRule{
        Name: "other type", Type: database.RulePattern, Pattern: ".*",
        ItemType: database.TypeUSB, Severity: database.SeverityLow, Enabled: true,
    }
    for _, rule := range []*database.AlertRule{disabled, otherAgent, otherType} {
        require.NoError(t, store.PutRule(ctx, rule))
    }

    snap := putPortSnapshot(t, store, "22/tcp")
    re.Evaluate(ctx, snap)

    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    assert.Empty(t, alerts)
}

func TestToggleRuleTakesEffect(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    rule := &database.AlertRule{
        Name: "ephemeral ports", Type: database.RulePattern, Pattern: "^3[0-9]{4}/",
        Severity: database.SeverityMedium, Enabled: true,
    }
    require.NoError(t, store.PutRule(ctx, rule))

    snap := putPortSnapshot(t, store, "31337/tcp")
    re.Evaluate(ctx, snap)

    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    require.Len(t, alerts, 1)

    toggled, err := re.ToggleRule(ctx, rule.ID)
    require.NoError(t, err)
    assert.False(t, toggled.Enabled)

    // Resolve so a re-emission would create a fresh alert.
    _, err = NewAlertManager(store).Resolve(ctx, alerts[0].ID, "ops", "")
    require.NoError(t, err)

    re.Evaluate(ctx, snap)
    alerts, err = store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    assert.Len(t, alerts, 1, "disabled rule stays quiet")
}

func TestThresholdRule(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    require.NoError(t, store.PutRule(ctx, &database.AlertRule{
        Name: "too many ports", Type: database.RuleThreshold, Threshold: 2,
        ItemType: database.TypePort, Severity: database.SeverityCritical, Enabled: true,
    }))

    re.Evaluate(ctx, putPortSnapshot(t, store, "22/tcp", "80/tcp"))
    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    assert.Empty(t, alerts, "count at threshold does not fire")

    re.Evaluate(ctx, putPortSnapshot(t, store, "22/tcp", "80/tcp", "443/tcp"))
    alerts, err = store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    require.Len(t, alerts, 1)
    assert.Equal(t, ThresholdItemKey, alerts[0].ItemKey)
}

func TestDedupAcrossEvaluations(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    require.NoError(t, store.PutRule(ctx, &database.AlertRule{
        Name: "pattern", Type: database.RulePattern, Pattern: "^8080/",
        Severity: database.SeverityHigh, Enabled: true,
    }))

    snap := putPortSnapshot(t, store, "8080/tcp")
    re.Evaluate(ctx, snap)
    re.Evaluate(ctx, snap)
    re.Evaluate(ctx, snap)

    alerts, err := store.GetAlerts(ctx, database.AlertFilters{})
    require.NoError(t, err)
    assert.Len(t, alerts, 1)
}

func TestValidateRule(t *testing.T) {
    cases := []struct {
        name string
        rule database.AlertRule
        ok   bool
    }{
        {"drift ok", database.AlertRule{Name: "d", Type: database.RuleDrift}, true},
        {"missing name", database.AlertRule{Type: database.RuleDrift}, false},
        {"unknown type", database.AlertRule{Name: "x", Type: "fancy"}, false},
        {"threshold needs value", database.AlertRule{Name: "t", Type: database.RuleThreshold}, false},
        {"threshold ok", database.AlertRule{Name: "t", Type: database.RuleThreshold, Threshold: 5}, true},
        {"pattern needs pattern", database.AlertRule{Name: "p", Type: database.RulePattern}, false},
        {"pattern must compile", database.AlertRule{Name: "p", Type: database.RulePattern, Pattern: "("}, false},
        {"pattern ok", database.AlertRule{Name: "p", Type: database.RulePattern, Pattern: "^80/"}, true},
        {"bad item type", database.AlertRule{Name: "d", Type: database.RuleDrift, ItemType: "gpu"}, false},
        {"bad severity", database.AlertRule{Name: "d", Type: database.RuleDrift, Severity: "loud"}, false},
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rule := tc.rule
            err := ValidateRule(&rule)
            if tc.ok {
                assert.NoError(t, err)
            } else {
                assert.ErrorIs(t, err, ErrInvalidArgument)
            }
        })
    }
}

func TestValidateRuleDefaultsSeverity(t *testing.T) {
    rule := database.AlertRule{Name: "d", Type: database.RuleDrift}
    require.NoError(t, ValidateRule(&rule))
    assert.Equal(t, database.SeverityMedium, rule.Severity)
}

func TestRuleProjections(t *testing.T) {
    re, store := newTestRuleEngine(t)
    ctx := context.Background()

    rules := []*database.AlertRule{
        {Name: "d1", Type: database.RuleDrift, Severity: database.SeverityLow, Enabled: true},
        {Name: "t1", Type: database.RuleThreshold, Threshold: 10, Severity: database.SeverityLow, Enabled: false},
        {Name: "p1", Type: database.RulePattern, Pattern: ".*", Severity: database.SeverityLow, Enabled: true},
    }
    for _, rule := range rules {
        require.NoError(t, store.PutRule(ctx, rule))
    }

    all, err := re.GetAllRules(ctx)
    require.NoError(t, err)
    assert.Len(t, all, 3)

    enabled, err := re.GetEnabledRules(ctx)
    require.NoError(t, err)
    assert.Len(t, enabled, 2)

    drift, err := re.GetRulesByType(ctx, database.RuleDrift)
    require.NoError(t, err)
    assert.Len(t, drift, 1)

    _, err = re.GetRulesByType(ctx, "fancy")
    assert.ErrorIs(t, err, ErrInvalidArgument)
}
