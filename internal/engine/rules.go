// internal/engine/rules.go - rule management and evaluation
package engine

import (
    "context"
    "errors"
    "fmt"
    "regexp"
    "sync"
    "time"

    lru "github.com/hashicorp/golang-lru/v2"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/metrics"
)

const patternCacheSize = 256

// ThresholdItemKey is the synthetic item key used by threshold alerts,
// which fire on the snapshot as a whole rather than a single item.
const ThresholdItemKey = "item-count"

// RuleEngine evaluates enabled alert rules against committed snapshots.
type RuleEngine struct {
    store      database.Store
    comparator *Comparator
    alerts     *AlertManager
    patterns   *lru.Cache[string, *regexp.Regexp]
    metrics    *metrics.Collector
}

func NewRuleEngine(store database.Store, comparator *Comparator, alerts *AlertManager, collector *metrics.Collector) *RuleEngine {
    cache, _ := lru.New[string, *regexp.Regexp](patternCacheSize)
    return &RuleEngine{
        store:      store,
        comparator: comparator,
        alerts:     alerts,
        patterns:   cache,
        metrics:    collector,
    }
}

// ValidateRule checks a rule before it is stored. Severity defaults to
// medium when unset.
func ValidateRule(rule *database.AlertRule) error {
    if rule.Name == "" {
        return fmt.Errorf("rule name required: %w", ErrInvalidArgument)
    }

    switch rule.Type {
    case database.RuleDrift:
    case database.RuleThreshold:
        if rule.Threshold <= 0 {
            return fmt.Errorf("threshold rule requires a positive threshold: %w", ErrInvalidArgument)
        }
    case database.RulePattern:
        if rule.Pattern == "" {
            return fmt.Errorf("pattern rule requires a pattern: %w", ErrInvalidArgument)
        }
        if _, err := regexp.Compile(rule.Pattern); err != nil {
            return fmt.Errorf("pattern does not compile: %v: %w", err, ErrInvalidArgument)
        }
    default:
        return fmt.Errorf("unknown rule type %q: %w", rule.Type, ErrInvalidArgument)
    }

    if rule.ItemType != "" {
        if err := ValidateType(rule.ItemType); err != nil {
            return err
        }
    }

    switch rule.Severity {
    case "":
        rule.Severity = database.SeverityMedium
    case database.SeverityLow, database.SeverityMedium, database.SeverityHigh, database.SeverityCritical:
    default:
        return fmt.Errorf("unknown severity %q: %w", rule.Severity, ErrInvalidArgument)
    }

    return nil
}

func ruleMatches(rule *database.AlertRule, agentID, obsType string) bool {
    if !rule.Enabled {
        return false
    }
    if rule.AgentID != "" && rule.AgentID != agentID {
        return false
    }
    if rule.ItemType != "" && rule.ItemType != obsType {
        return false
    }
    return true
}

// Evaluate runs every matching enabled rule against a committed snapshot.
// Rules run concurrently and independently; a failing rule is logged and
// retried on the next triggering event. The caller holds the pair lock.
func (re *RuleEngine) Evaluate(ctx context.Context, snap *database.Snapshot) {
    rules, err := re.store.GetRules(ctx)
    if err != nil {
        logrus.WithError(err).Error("Failed to load rules for evaluation")
        return
    }

    var wg sync.WaitGroup
    for i := range rules {
        rule := rules[i]
        if !ruleMatches(&rule, snap.AgentID, snap.Type) {
            continue
        }

        wg.Add(1)
        go func() {
            defer wg.Done()

            start := time.Now()
            if err := re.evaluateRule(ctx, &rule, snap); err != nil {
                logrus.WithError(err).WithFields(logrus.Fields{
                    "rule_id":  rule.ID,
                    "agent_id": snap.AgentID,
                }).Error("Rule evaluation failed")
            }
            re.metrics.RecordRuleEvaluation(rule.Type, time.Since(start))
        }()
    }
    wg.Wait()
}

func (re *RuleEngine) evaluateRule(ctx context.Context, rule *database.AlertRule, snap *database.Snapshot) error {
    switch rule.Type {
    case database.RuleDrift:
        return re.evaluateDrift(ctx, rule, snap)
    case database.RuleThreshold:
        return re.evaluateThreshold(ctx, rule, snap)
    case database.RulePattern:
        return re.evaluatePattern(ctx, rule, snap)
    }
    return nil
}

func (re *RuleEngine) evaluateDrift(ctx context.Context, rule *database.AlertRule, snap *database.Snapshot) error {
    result, err := re.comparator.Compare(ctx, snap.AgentID, snap.Type)
    if err != nil {
        if errors.Is(err, database.ErrNotFound) {
            logrus.WithFields(logrus.Fields{
                "rule_id":  rule.ID,
                "agent_id": snap.AgentID,
                "type":     snap.Type,
            }).Debug("No baseline to compare against, skipping drift rule")
            return nil
        }
        return err
    }

    emit := func(anomaly string, items []DriftItem) error {
        for _, item := range items {
            re.metrics.RecordDrift(snap.Type, anomaly)
            candidate := &database.Alert{
                RuleID:      rule.ID,
                AgentID:     snap.AgentID,
                ItemType:    snap.Type,
                ItemKey:     item.Key,
                AnomalyType: anomaly,
                Severity:    rule.Severity,
                Title:       fmt.Sprintf("%s %s: %s", anomaly, snap.Type, item.Key),
                Detail:      driftDetail(anomaly, item),
            }
            if err := re.emit(ctx, rule, candidate); err != nil {
                return err
            }
        }
        return nil
    }

    if err := emit(database.AnomalyNew, result.Added); err != nil {
        return err
    }
    if err := emit(database.AnomalyMissing, result.Removed); err != nil {
        return err
    }
    return emit(database.AnomalyChanged, result.Changed)
}

func driftDetail(anomaly string, item DriftItem) string {
    switch anomaly {
    case database.AnomalyChanged:
        return fmt.Sprintf("value changed from %q to %q", item.Baseline.Value, item.Current.Value)
    case database.AnomalyMissing:
        return "present in baseline, absent from latest snapshot"
    default:
        return "observed but not in baseline"
    }
}

func (re *RuleEngine) evaluateThreshold(ctx context.Context, rule *database.AlertRule, snap *database.Snapshot) error {
    if len(snap.Items) <= rule.Threshold {
        return nil
    }

    candidate := &database.Alert{
        RuleID:   rule.ID,
        AgentID:  snap.AgentID,
        ItemType: snap.Type,
        ItemKey:  ThresholdItemKey,
        Severity: rule.Severity,
        Title:    fmt.Sprintf("%s count %d exceeds threshold %d", snap.Type, len(snap.Items), rule.Threshold),
        Detail:   fmt.Sprintf("snapshot %s carries %d items", snap.ID, len(snap.Items)),
    }
    return re.emit(ctx, rule, candidate)
}

func (re *RuleEngine) evaluatePattern(ctx context.Context, rule *database.AlertRule, snap *database.Snapshot) error {
    rx, err := re.compile(rule.Pattern)
    if err != nil {
        return fmt.Errorf("pattern %q does not compile: %w", rule.Pattern, err)
    }

    for _, item := range snap.Items {
        if !rx.MatchString(item.Key) {
            continue
        }
        candidate := &database.Alert{
            RuleID:   rule.ID,
            AgentID:  snap.AgentID,
            ItemType: snap.Type,
            ItemKey:  item.Key,
            Severity: rule.Severity,
            Title:    fmt.Sprintf("%s matches pattern %s", item.Key, rule.Pattern),
            Detail:   fmt.Sprintf("pattern rule %s matched item %s", rule.Name, item.Key),
        }
        if err := re.emit(ctx, rule, candidate); err != nil {
            return err
        }
    }
    return nil
}

func (re *RuleEngine) emit(ctx context.Context, rule *database.AlertRule, candidate *database.Alert) error {
    _, created, err := re.alerts.Create(ctx, candidate)
    if err != nil {
        return err
    }
    if created {
        re.metrics.RecordAlert(candidate.Severity, rule.Type)
    }
    return nil
}

func (re *RuleEngine) compile(pattern string) (*regexp.Regexp, error) {
    if rx, ok := re.patterns.Get(pattern); ok {
        return rx, nil
    }
    rx, err := regexp.Compile(pattern)
    if err != nil {
        return nil, err
    }
    re.patterns.Add(pattern, rx)
    return rx, nil
}

// GetAllRules returns every rule, oldest first.
func (re *RuleEngine) GetAllRules(ctx context.Context) ([]database.AlertRule, error) {
    return re.store.GetRules(ctx)
}

// GetEnabledRules returns only rules currently in effect.
func (re *RuleEngine) GetEnabledRules(ctx context.Context) ([]database.AlertRule, error) {
    rules, err := re.store.GetRules(ctx)
    if err != nil {
        return nil, err
    }
    enabled := make([]database.AlertRule, 0, len(rules))
    for _, rule := range rules {
        if rule.Enabled {
            enabled = append(enabled, rule)
        }
    }
    return enabled, nil
}

// GetRulesByType filters rules by rule type.
func (re *RuleEngine) GetRulesByType(ctx context.Context, ruleType string) ([]database.AlertRule, error) {
    switch ruleType {
    case database.RuleDrift, database.RuleThreshold, database.RulePattern:
    default:
        return nil, fmt.Errorf("unknown rule type %q: %w", ruleType, ErrInvalidArgument)
    }

    rules, err := re.store.GetRules(ctx)
    if err != nil {
        return nil, err
    }
    matched := make([]database.AlertRule, 0, len(rules))
    for _, rule := range rules {
        if rule.Type == ruleType {
            matched = append(matched, rule)
        }
    }
    return matched, nil
}

func (re *RuleEngine) GetRule(ctx context.Context, id string) (*database.AlertRule, error) {
    return re.store.GetRule(ctx, id)
}

// CreateRule validates and stores a new rule.
func (re *RuleEngine) CreateRule(ctx context.Context, rule *database.AlertRule) (*database.AlertRule, error) {
    if err := ValidateRule(rule); err != nil {
        return nil, err
    }
    rule.ID = ""
    if err := re.store.PutRule(ctx, rule); err != nil {
        return nil, fmt.Errorf("failed to store rule: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "rule_id": rule.ID,
        "name":    rule.Name,
        "type":    rule.Type,
    }).Info("Alert rule created")

    return rule, nil
}

// ToggleRule flips a rule's enabled flag. Takes effect on the next
// evaluation.
func (re *RuleEngine) ToggleRule(ctx context.Context, id string) (*database.AlertRule, error) {
    rule, err := re.store.GetRule(ctx, id)
    if err != nil {
        return nil, err
    }
    rule.Enabled = !rule.Enabled
    if err := re.store.PutRule(ctx, rule); err != nil {
        return nil, fmt.Errorf("failed to store rule: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "rule_id": rule.ID,
        "enabled": rule.Enabled,
    }).Info("Alert rule toggled")

    return rule, nil
}

func (re *RuleEngine) DeleteRule(ctx context.Context, id string) error {
    return re.store.DeleteRule(ctx, id)
}
