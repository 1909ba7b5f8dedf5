// internal/database/models.go
package database

import (
    "time"
)

// Observation types reported by agents.
const (
    TypeProcess  = "process"
    TypePort     = "port"
    TypeSoftware = "software"
    TypeUSB      = "usb"
    TypeLogin    = "login"
)

// ObservationTypes lists every type the engine accepts.
var ObservationTypes = []string{TypeProcess, TypePort, TypeSoftware, TypeUSB, TypeLogin}

// Baseline provenance tags.
const (
    ProvenanceLearned  = "learned"
    ProvenanceImported = "imported"
    ProvenanceCopied   = "copied"
    ProvenanceManual   = "manual"
)

// Learning session modes.
const (
    ModeQuick    = "quick"
    ModeStandard = "standard"
    ModeCustom   = "custom"
    ModeImport   = "import"
    ModeCopy     = "copy"
    ModeManual   = "manual"
)

// Learning session states.
const (
    SessionRunning   = "running"
    SessionCompleted = "completed"
    SessionCancelled = "cancelled"
)

// Alert lifecycle states.
const (
    AlertOpen         = "open"
    AlertAcknowledged = "acknowledged"
    AlertResolved     = "resolved"
    AlertIgnored      = "ignored"
)

// Alert rule types.
const (
    RuleDrift     = "drift"
    RuleThreshold = "threshold"
    RulePattern   = "pattern"
)

// Anomaly kinds produced by drift comparison.
const (
    AnomalyNew     = "new"
    AnomalyMissing = "missing"
    AnomalyChanged = "changed"
)

// Alert severities, ordered low to critical.
const (
    SeverityLow      = "low"
    SeverityMedium   = "medium"
    SeverityHigh     = "high"
    SeverityCritical = "critical"
)

type Agent struct {
    ID        string            `json:"id"`
    Hostname  string            `json:"hostname"`
    IP        string            `json:"ip"`
    OS        string            `json:"os"`
    Tags      map[string]string `json:"tags,omitempty"`
    FirstSeen time.Time         `json:"first_seen"`
    LastSeen  time.Time         `json:"last_seen"`
    Deleted   bool              `json:"deleted"`
}

// Item is a single observed fact. Key is the type-specific identity;
// Value holds the incidental sub-value that drives "changed" detection;
// Attrs keeps the raw reported fields.
type Item struct {
    Key   string            `json:"key"`
    Value string            `json:"value,omitempty"`
    Attrs map[string]string `json:"attrs,omitempty"`
}

// Snapshot is an immutable point-in-time capture of one agent's items of
// one observation type. Superseded, never edited.
type Snapshot struct {
    ID         string    `json:"id"`
    AgentID    string    `json:"agent_id"`
    Type       string    `json:"type"`
    CapturedAt time.Time `json:"captured_at"`
    Items      []Item    `json:"items"`
}

// Baseline is the accepted item set for an (agent, type) pair. Exactly one
// active baseline per pair; replaced versions go to the history bucket.
type Baseline struct {
    AgentID       string    `json:"agent_id"`
    Type          string    `json:"type"`
    Version       int       `json:"version"`
    Provenance    string    `json:"provenance"`
    SourceAgentID string    `json:"source_agent_id,omitempty"`
    Items         []Item    `json:"items"`
    CreatedAt     time.Time `json:"created_at"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// LearningSession accumulates candidate baseline items from snapshots.
// At most one session per (agent, type) may be running.
type LearningSession struct {
    ID            string               `json:"id"`
    AgentID       string               `json:"agent_id"`
    Type          string               `json:"type"`
    Mode          string               `json:"mode"`
    Days          int                  `json:"days,omitempty"`
    Status        string               `json:"status"`
    StartedAt     time.Time            `json:"started_at"`
    EndsAt        time.Time            `json:"ends_at"`
    CompletedAt   *time.Time           `json:"completed_at,omitempty"`
    CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
    SnapshotCount int                  `json:"snapshot_count"`
    Candidate     map[string]Item      `json:"candidate"`
    Occurrences   map[string]int       `json:"occurrences"`
    FirstSeen     map[string]time.Time `json:"first_seen"`
}

type AlertRule struct {
    ID        string    `json:"id"`
    Name      string    `json:"name"`
    Type      string    `json:"type"`
    ItemType  string    `json:"item_type,omitempty"` // empty matches all types
    AgentID   string    `json:"agent_id,omitempty"`  // empty means global scope
    Severity  string    `json:"severity"`
    Threshold int       `json:"threshold,omitempty"`
    Pattern   string    `json:"pattern,omitempty"`
    Enabled   bool      `json:"enabled"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

type Alert struct {
    ID             string     `json:"id"`
    RuleID         string     `json:"rule_id,omitempty"`
    AgentID        string     `json:"agent_id"`
    ItemType       string     `json:"item_type"`
    ItemKey        string     `json:"item_key"`
    AnomalyType    string     `json:"anomaly_type,omitempty"`
    Severity       string     `json:"severity"`
    Title          string     `json:"title"`
    Detail         string     `json:"detail,omitempty"`
    Status         string     `json:"status"`
    CreatedAt      time.Time  `json:"created_at"`
    LastSeenAt     time.Time  `json:"last_seen_at"`
    AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
    AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
    ResolvedBy     string     `json:"resolved_by,omitempty"`
    ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
    ResolutionNote string     `json:"resolution_note,omitempty"`
    IgnoredBy      string     `json:"ignored_by,omitempty"`
    IgnoredAt      *time.Time `json:"ignored_at,omitempty"`
    IgnoreReason   string     `json:"ignore_reason,omitempty"`
}

// Fingerprint identifies an alert for dedup: one live alert per
// (agent, rule, offending item).
func (a *Alert) Fingerprint() string {
    return a.AgentID + "|" + a.RuleID + "|" + a.ItemKey
}

// Live reports whether the alert still occupies its fingerprint slot.
func (a *Alert) Live() bool {
    return a.Status == AlertOpen || a.Status == AlertAcknowledged
}

type AgentFilters struct {
    IncludeDeleted bool
}

type AlertFilters struct {
    AgentID string
    Status  string
    Since   *time.Time
    Limit   int
}
