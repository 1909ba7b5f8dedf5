// internal/engine/engine.go - report intake and pair-serialized operations
package engine

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/config"
    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/metrics"
)

// Report is one observation push from an agent.
type Report struct {
    AgentID  string              `json:"agent_id"`
    Hostname string              `json:"hostname"`
    IP       string              `json:"ip"`
    OS       string              `json:"os"`
    Tags     map[string]string   `json:"tags,omitempty"`
    Type     string              `json:"type"`
    Items    []map[string]string `json:"items"`
}

// Engine wires storage, learning, drift comparison, rules and alerts
// behind a bounded worker pool. All operations touching one (agent, type)
// pair are serialized through the pair lock.
type Engine struct {
    cfg        *config.Config
    store      database.Store
    metrics    *metrics.Collector
    locks      *KeyMutex
    learning   *Manager
    comparator *Comparator
    rules      *RuleEngine
    alerts     *AlertManager

    jobs chan *Report
    wg   sync.WaitGroup

    mu      sync.Mutex
    running bool
    cancel  context.CancelFunc
}

func NewEngine(cfg *config.Config, store database.Store, collector *metrics.Collector) *Engine {
    alerts := NewAlertManager(store)
    comparator := NewComparator(store)

    return &Engine{
        cfg:        cfg,
        store:      store,
        metrics:    collector,
        locks:      NewKeyMutex(),
        learning:   NewManager(store, cfg.Learning),
        comparator: comparator,
        rules:      NewRuleEngine(store, comparator, alerts, collector),
        alerts:     alerts,
        jobs:       make(chan *Report, cfg.Server.QueueSize),
    }
}

// Alerts exposes the alert manager for the web layer and subscribers.
func (e *Engine) Alerts() *AlertManager {
    return e.alerts
}

// Rules exposes rule management for the web layer.
func (e *Engine) Rules() *RuleEngine {
    return e.rules
}

// Start resumes persisted learning sessions and launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.running {
        return fmt.Errorf("engine already started")
    }

    if err := e.learning.Resume(ctx); err != nil {
        return err
    }

    workerCtx, cancel := context.WithCancel(context.Background())
    e.cancel = cancel

    for i := 0; i < e.cfg.Server.Workers; i++ {
        e.wg.Add(1)
        go e.worker(workerCtx, i)
    }
    e.running = true

    logrus.WithField("workers", e.cfg.Server.Workers).Info("Engine started")
    return nil
}

// Stop drains the worker pool. Queued reports are processed before return.
func (e *Engine) Stop() {
    e.mu.Lock()
    defer e.mu.Unlock()
    if !e.running {
        return
    }

    close(e.jobs)
    e.wg.Wait()
    e.cancel()
    e.running = false

    logrus.Info("Engine stopped")
}

func (e *Engine) worker(ctx context.Context, id int) {
    defer e.wg.Done()

    log := logrus.WithField("worker", id)
    log.Debug("Report worker started")

    for report := range e.jobs {
        if err := e.ProcessReport(ctx, report); err != nil {
            e.metrics.RecordReport(report.Type, "error")
            log.WithError(err).WithFields(logrus.Fields{
                "agent_id": report.AgentID,
                "type":     report.Type,
            }).Error("Failed to process report")
            continue
        }
        e.metrics.RecordReport(report.Type, "ok")
    }

    log.Debug("Report worker stopped")
}

// Submit queues a report for processing. Returns an error when the queue
// is full rather than blocking the caller.
func (e *Engine) Submit(report *Report) error {
    select {
    case e.jobs <- report:
        return nil
    default:
        return fmt.Errorf("report queue full")
    }
}

// ProcessReport validates and records one report: upsert agent, commit the
// snapshot, fold it into a running session, then evaluate rules.
func (e *Engine) ProcessReport(ctx context.Context, report *Report) error {
    if report.AgentID == "" {
        return fmt.Errorf("agent id required: %w", ErrInvalidArgument)
    }
    if err := ValidateType(report.Type); err != nil {
        return err
    }
    items, err := BuildItems(report.Type, report.Items)
    if err != nil {
        return err
    }

    if err := e.upsertAgent(ctx, report); err != nil {
        return err
    }

    key := lockKey(report.AgentID, report.Type)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    snap := &database.Snapshot{
        ID:         uuid.New().String(),
        AgentID:    report.AgentID,
        Type:       report.Type,
        CapturedAt: time.Now(),
        Items:      items,
    }
    if err := e.store.PutSnapshot(ctx, snap); err != nil {
        return fmt.Errorf("failed to store snapshot: %w", err)
    }
    if err := e.learning.FoldSnapshot(ctx, snap); err != nil {
        return fmt.Errorf("failed to fold snapshot into session: %w", err)
    }

    e.rules.Evaluate(ctx, snap)
    return nil
}

func (e *Engine) upsertAgent(ctx context.Context, report *Report) error {
    now := time.Now()

    agent, err := e.store.GetAgent(ctx, report.AgentID)
    if err != nil {
        if !errors.Is(err, database.ErrNotFound) {
            return err
        }
        agent = &database.Agent{
            ID:        report.AgentID,
            FirstSeen: now,
        }
    }

    agent.Hostname = report.Hostname
    agent.IP = report.IP
    agent.OS = report.OS
    if report.Tags != nil {
        agent.Tags = report.Tags
    }
    agent.LastSeen = now
    if agent.Deleted {
        agent.Deleted = false
        logrus.WithField("agent_id", agent.ID).Info("Deleted agent revived by new report")
    }

    return e.store.UpsertAgent(ctx, agent)
}

// StartLearning starts a quick, standard or custom learning session.
func (e *Engine) StartLearning(ctx context.Context, agentID, obsType, mode string, days int) (*database.LearningSession, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.learning.Start(ctx, agentID, obsType, mode, days)
}

// CompleteLearning materializes the running session into a baseline and
// evaluates rules against the latest snapshot, if one exists.
func (e *Engine) CompleteLearning(ctx context.Context, agentID, obsType string) (*CompleteResult, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    result, err := e.learning.Complete(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }

    e.evaluateLatest(ctx, agentID, obsType)
    return result, nil
}

// CancelLearning aborts the running session without touching the baseline.
func (e *Engine) CancelLearning(ctx context.Context, agentID, obsType string) (*database.LearningSession, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.learning.Cancel(ctx, agentID, obsType)
}

// ImportFromCurrent promotes the latest snapshot to the baseline.
func (e *Engine) ImportFromCurrent(ctx context.Context, agentID, obsType string) (*database.Baseline, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.learning.ImportFromCurrent(ctx, agentID, obsType)
}

// CopyFromAgent copies another agent's baseline onto this pair.
func (e *Engine) CopyFromAgent(ctx context.Context, agentID, obsType, sourceAgentID string) (*database.Baseline, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.learning.CopyFromAgent(ctx, agentID, obsType, sourceAgentID)
}

// ManualCreate builds a baseline from operator-supplied items.
func (e *Engine) ManualCreate(ctx context.Context, agentID, obsType string, raw []map[string]string) (*database.Baseline, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.learning.ManualCreate(ctx, agentID, obsType, raw)
}

// Compare diffs the latest snapshot against the active baseline.
func (e *Engine) Compare(ctx context.Context, agentID, obsType string) (*DriftResult, error) {
    if err := ValidateType(obsType); err != nil {
        return nil, err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.comparator.Compare(ctx, agentID, obsType)
}

// DeleteBaseline removes the active baseline for a pair.
func (e *Engine) DeleteBaseline(ctx context.Context, agentID, obsType string) error {
    if err := ValidateType(obsType); err != nil {
        return err
    }

    key := lockKey(agentID, obsType)
    e.locks.Lock(key)
    defer e.locks.Unlock(key)

    return e.store.DeleteBaseline(ctx, agentID, obsType)
}

func (e *Engine) evaluateLatest(ctx context.Context, agentID, obsType string) {
    snap, err := e.store.GetLatestSnapshot(ctx, agentID, obsType)
    if err != nil {
        if !errors.Is(err, database.ErrNotFound) {
            logrus.WithError(err).Warn("Failed to load latest snapshot after learning completion")
        }
        return
    }
    e.rules.Evaluate(ctx, snap)
}
