// internal/database/store.go
package database

import (
    "context"
    "errors"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// test with errors.Is; storage-layer failures are returned wrapped as-is.
var ErrNotFound = errors.New("not found")

// Store defines the interface for database operations
type Store interface {
    // Agent operations
    GetAgents(ctx context.Context, filters AgentFilters) ([]Agent, error)
    GetAgent(ctx context.Context, id string) (*Agent, error)
    UpsertAgent(ctx context.Context, agent *Agent) error
    DeleteAgent(ctx context.Context, id string) error // soft delete

    // Snapshot operations (append-only)
    PutSnapshot(ctx context.Context, snap *Snapshot) error
    GetLatestSnapshot(ctx context.Context, agentID, obsType string) (*Snapshot, error)
    GetSnapshots(ctx context.Context, agentID, obsType string, limit int) ([]Snapshot, error)

    // Baseline operations
    GetBaseline(ctx context.Context, agentID, obsType string) (*Baseline, error)
    GetBaselines(ctx context.Context, agentID string) ([]Baseline, error)
    ReplaceBaseline(ctx context.Context, agentID, obsType string, items []Item, provenance, sourceAgentID string) (*Baseline, error)
    DeleteBaseline(ctx context.Context, agentID, obsType string) error

    // Learning session operations
    GetSession(ctx context.Context, agentID, obsType string) (*LearningSession, error)
    PutSession(ctx context.Context, session *LearningSession) error
    GetRunningSessions(ctx context.Context) ([]LearningSession, error)

    // Alert rule operations
    GetRules(ctx context.Context) ([]AlertRule, error)
    GetRule(ctx context.Context, id string) (*AlertRule, error)
    PutRule(ctx context.Context, rule *AlertRule) error
    DeleteRule(ctx context.Context, id string) error

    // Alert operations
    GetAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error)
    GetAlert(ctx context.Context, id string) (*Alert, error)
    PutAlert(ctx context.Context, alert *Alert) error
    GetOpenAlert(ctx context.Context, fingerprint string) (*Alert, error)

    // Close the database connection
    Close() error
}
