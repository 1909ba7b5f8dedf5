// internal/engine/drift.go - baseline vs snapshot comparison
package engine

import (
    "context"
    "sort"
    "time"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

// DriftItem pairs a key with its baseline and current sides. Baseline is
// nil for added items, Current is nil for removed ones.
type DriftItem struct {
    Key      string         `json:"key"`
    Baseline *database.Item `json:"baseline,omitempty"`
    Current  *database.Item `json:"current,omitempty"`
}

type DriftResult struct {
    AgentID         string      `json:"agent_id"`
    Type            string      `json:"type"`
    SnapshotID      string      `json:"snapshot_id"`
    BaselineVersion int         `json:"baseline_version"`
    CapturedAt      time.Time   `json:"captured_at"`
    ComparedAt      time.Time   `json:"compared_at"`
    Added           []DriftItem `json:"added"`
    Removed         []DriftItem `json:"removed"`
    Changed         []DriftItem `json:"changed"`
}

// Comparator computes set drift between the active baseline and the
// latest snapshot of a pair.
type Comparator struct {
    store database.Store
}

func NewComparator(store database.Store) *Comparator {
    return &Comparator{store: store}
}

// Compare diffs the latest snapshot against the active baseline by item
// key. "Changed" applies only to types carrying a sub-value. A missing
// snapshot or baseline surfaces as ErrNotFound; absence of a baseline is
// never reported as total drift. The caller holds the pair lock.
func (c *Comparator) Compare(ctx context.Context, agentID, obsType string) (*DriftResult, error) {
    snap, err := c.store.GetLatestSnapshot(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }
    baseline, err := c.store.GetBaseline(ctx, agentID, obsType)
    if err != nil {
        return nil, err
    }

    return c.diff(snap, baseline), nil
}

func (c *Comparator) diff(snap *database.Snapshot, baseline *database.Baseline) *DriftResult {
    result := &DriftResult{
        AgentID:         snap.AgentID,
        Type:            snap.Type,
        SnapshotID:      snap.ID,
        BaselineVersion: baseline.Version,
        CapturedAt:      snap.CapturedAt,
        ComparedAt:      time.Now(),
        Added:           []DriftItem{},
        Removed:         []DriftItem{},
        Changed:         []DriftItem{},
    }

    base := make(map[string]database.Item, len(baseline.Items))
    for _, item := range baseline.Items {
        base[item.Key] = item
    }
    current := make(map[string]database.Item, len(snap.Items))
    for _, item := range snap.Items {
        current[item.Key] = item
    }

    for key, cur := range current {
        cur := cur
        old, ok := base[key]
        if !ok {
            result.Added = append(result.Added, DriftItem{Key: key, Current: &cur})
            continue
        }
        if changeAware[snap.Type] && old.Value != cur.Value {
            old := old
            result.Changed = append(result.Changed, DriftItem{Key: key, Baseline: &old, Current: &cur})
        }
    }
    for key, old := range base {
        if _, ok := current[key]; !ok {
            old := old
            result.Removed = append(result.Removed, DriftItem{Key: key, Baseline: &old})
        }
    }

    sortDrift(result.Added)
    sortDrift(result.Removed)
    sortDrift(result.Changed)

    return result
}

func sortDrift(items []DriftItem) {
    sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}
