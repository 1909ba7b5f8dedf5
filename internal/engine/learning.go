// internal/engine/learning.go - learning session state machine
package engine

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/config"
    "github.com/ychcqshan/terminal-monitor/internal/database"
)

// Manager drives learning sessions and baseline creation for (agent, type)
// pairs. All mutating methods assume the caller holds the pair lock.
type Manager struct {
    store database.Store
    cfg   config.LearningConfig
}

func NewManager(store database.Store, cfg config.LearningConfig) *Manager {
    return &Manager{store: store, cfg: cfg}
}

// CompleteResult reports the outcome of completing a session. Empty is set
// when the session observed nothing and the materialized baseline has no
// items.
type CompleteResult struct {
    Session  *database.LearningSession `json:"session"`
    Baseline *database.Baseline        `json:"baseline"`
    Empty    bool                      `json:"empty_baseline"`
}

// Start begins a learning session. A running session for the pair is a
// conflict; the original clock keeps ticking.
func (m *Manager) Start(ctx context.Context, agentID, obsType, mode string, days int) (*database.LearningSession, error) {
    existing, err := m.store.GetSession(ctx, agentID, obsType)
    if err != nil && !errors.Is(err, database.ErrNotFound) {
        return nil, err
    }
    if existing != nil && existing.Status == database.SessionRunning {
        return nil, fmt.Errorf("learning session already running for %s/%s: %w", agentID, obsType, ErrConflict)
    }

    var window time.Duration
    switch mode {
    case database.ModeQuick:
        window = m.cfg.QuickWindow
    case database.ModeStandard:
        window = m.cfg.StandardWindow
    case database.ModeCustom:
        if days <= 0 {
            return nil, fmt.Errorf("custom learning days must be positive, got %d: %w", days, ErrInvalidArgument)
        }
        if days > m.cfg.MaxCustomDays {
            return nil, fmt.Errorf("custom learning days %d exceeds maximum %d: %w", days, m.cfg.MaxCustomDays, ErrInvalidArgument)
        }
        window = time.Duration(days) * 24 * time.Hour
    default:
        return nil, fmt.Errorf("unknown learning mode %q: %w", mode, ErrInvalidArgument)
    }

    now := time.Now()
    session := &database.LearningSession{
        ID:          uuid.New().String(),
        AgentID:     agentID,
        Type:        obsType,
        Mode:        mode,
        Days:        days,
        Status:      database.SessionRunning,
        StartedAt:   now,
        EndsAt:      now.Add(window),
        Candidate:   make(map[string]database.Item),
        Occurrences: make(map[string]int),
        FirstSeen:   make(map[string]time.Time),
    }

    if err := m.store.PutSession(ctx, session); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
        "mode":     mode,
        "ends_at":  session.EndsAt,
    }).Info("Learning session started")

    return session, nil
}

// FoldSnapshot merges a snapshot into the running session for its pair, if
// one exists and the session window still covers the capture time.
func (m *Manager) FoldSnapshot(ctx context.Context, snap *database.Snapshot) error {
    session, err := m.store.GetSession(ctx, snap.AgentID, snap.Type)
    if err != nil {
        if errors.Is(err, database.ErrNotFound) {
            return nil
        }
        return err
    }
    if session.Status != database.SessionRunning {
        return nil
    }
    if snap.CapturedAt.After(session.EndsAt) {
        return nil
    }

    for _, item := range snap.Items {
        session.Candidate[item.Key] = item
        session.Occurrences[item.Key]++
        if _, ok := session.FirstSeen[item.Key]; !ok {
            session.FirstSeen[item.Key] = snap.CapturedAt
        }
    }
    session.SnapshotCount++

    return m.store.PutSession(ctx, session)
}

// Complete ends a running session and materializes the candidate set as
// the pair's baseline. An empty candidate set still produces a baseline.
func (m *Manager) Complete(ctx context.Context, agentID, obsType string) (*CompleteResult, error) {
    session, err := m.store.GetSession(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }
    if session.Status != database.SessionRunning {
        return nil, fmt.Errorf("learning session for %s/%s is %s: %w", agentID, obsType, session.Status, ErrInvalidState)
    }

    items := make([]database.Item, 0, len(session.Candidate))
    for _, item := range session.Candidate {
        items = append(items, item)
    }
    sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

    baseline, err := m.store.ReplaceBaseline(ctx, agentID, obsType, items, database.ProvenanceLearned, "")
    if err != nil {
        return nil, fmt.Errorf("failed to replace baseline: %w", err)
    }

    now := time.Now()
    session.Status = database.SessionCompleted
    session.CompletedAt = &now
    if err := m.store.PutSession(ctx, session); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id":  agentID,
        "type":      obsType,
        "items":     len(items),
        "snapshots": session.SnapshotCount,
        "version":   baseline.Version,
    }).Info("Learning session completed")

    return &CompleteResult{Session: session, Baseline: baseline, Empty: len(items) == 0}, nil
}

// Cancel aborts a running session. The candidate set is discarded and the
// existing baseline, if any, is left untouched.
func (m *Manager) Cancel(ctx context.Context, agentID, obsType string) (*database.LearningSession, error) {
    session, err := m.store.GetSession(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }
    if session.Status != database.SessionRunning {
        return nil, fmt.Errorf("learning session for %s/%s is %s: %w", agentID, obsType, session.Status, ErrInvalidState)
    }

    now := time.Now()
    session.Status = database.SessionCancelled
    session.CancelledAt = &now
    if err := m.store.PutSession(ctx, session); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
    }).Info("Learning session cancelled")

    return session, nil
}

// cancelIfRunning implicitly cancels a running session before an
// instantaneous baseline operation takes over the pair.
func (m *Manager) cancelIfRunning(ctx context.Context, agentID, obsType string) error {
    session, err := m.store.GetSession(ctx, agentID, obsType)
    if err != nil {
        if errors.Is(err, database.ErrNotFound) {
            return nil
        }
        return err
    }
    if session.Status != database.SessionRunning {
        return nil
    }

    now := time.Now()
    session.Status = database.SessionCancelled
    session.CancelledAt = &now
    if err := m.store.PutSession(ctx, session); err != nil {
        return err
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
    }).Info("Running learning session superseded by direct baseline operation")

    return nil
}

// recordDirect persists a completed pseudo-session so direct baseline
// operations leave the same audit trail as learned ones.
func (m *Manager) recordDirect(ctx context.Context, agentID, obsType, mode string) error {
    now := time.Now()
    session := &database.LearningSession{
        ID:          uuid.New().String(),
        AgentID:     agentID,
        Type:        obsType,
        Mode:        mode,
        Status:      database.SessionCompleted,
        StartedAt:   now,
        EndsAt:      now,
        CompletedAt: &now,
        Candidate:   make(map[string]database.Item),
        Occurrences: make(map[string]int),
        FirstSeen:   make(map[string]time.Time),
    }
    return m.store.PutSession(ctx, session)
}

// ImportFromCurrent promotes the latest snapshot to the pair's baseline.
func (m *Manager) ImportFromCurrent(ctx context.Context, agentID, obsType string) (*database.Baseline, error) {
    snap, err := m.store.GetLatestSnapshot(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }
    if err := m.cancelIfRunning(ctx, agentID, obsType); err != nil {
        return nil, err
    }

    baseline, err := m.store.ReplaceBaseline(ctx, agentID, obsType, snap.Items, database.ProvenanceImported, "")
    if err != nil {
        return nil, fmt.Errorf("failed to replace baseline: %w", err)
    }
    if err := m.recordDirect(ctx, agentID, obsType, database.ModeImport); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
        "items":    len(snap.Items),
        "version":  baseline.Version,
    }).Info("Baseline imported from current snapshot")

    return baseline, nil
}

// CopyFromAgent copies another agent's active baseline onto this pair.
func (m *Manager) CopyFromAgent(ctx context.Context, agentID, obsType, sourceAgentID string) (*database.Baseline, error) {
    if sourceAgentID == "" {
        return nil, fmt.Errorf("source agent id required: %w", ErrInvalidArgument)
    }
    source, err := m.store.GetBaseline(ctx, sourceAgentID, obsType)
    if err != nil {
        return nil, err
    }
    if err := m.cancelIfRunning(ctx, agentID, obsType); err != nil {
        return nil, err
    }

    baseline, err := m.store.ReplaceBaseline(ctx, agentID, obsType, source.Items, database.ProvenanceCopied, sourceAgentID)
    if err != nil {
        return nil, fmt.Errorf("failed to replace baseline: %w", err)
    }
    if err := m.recordDirect(ctx, agentID, obsType, database.ModeCopy); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
        "source":   sourceAgentID,
        "items":    len(source.Items),
    }).Info("Baseline copied from agent")

    return baseline, nil
}

// ManualCreate builds a baseline directly from operator-supplied items.
func (m *Manager) ManualCreate(ctx context.Context, agentID, obsType string, raw []map[string]string) (*database.Baseline, error) {
    items, err := BuildItems(obsType, raw)
    if err != nil {
        return nil, err
    }
    if err := m.cancelIfRunning(ctx, agentID, obsType); err != nil {
        return nil, err
    }

    baseline, err := m.store.ReplaceBaseline(ctx, agentID, obsType, items, database.ProvenanceManual, "")
    if err != nil {
        return nil, fmt.Errorf("failed to replace baseline: %w", err)
    }
    if err := m.recordDirect(ctx, agentID, obsType, database.ModeManual); err != nil {
        return nil, fmt.Errorf("failed to persist session: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "agent_id": agentID,
        "type":     obsType,
        "items":    len(items),
    }).Info("Baseline created manually")

    return baseline, nil
}

// Resume logs sessions still running after a restart. Persisted state is
// authoritative; folding picks up with the next report.
func (m *Manager) Resume(ctx context.Context) error {
    sessions, err := m.store.GetRunningSessions(ctx)
    if err != nil {
        return fmt.Errorf("failed to list running sessions: %w", err)
    }

    for _, session := range sessions {
        logrus.WithFields(logrus.Fields{
            "agent_id": session.AgentID,
            "type":     session.Type,
            "mode":     session.Mode,
            "ends_at":  session.EndsAt,
        }).Info("Resuming learning session")
    }

    return nil
}
