// internal/engine/drift_test.go
package engine

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

func newTestStore(t *testing.T) database.Store {
    t.Helper()

    store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
    require.NoError(t, err)
    t.Cleanup(func() { store.Close() })

    return store
}

func portItem(port, state string) database.Item {
    return database.Item{
        Key:   port + "/tcp",
        Value: state + "|",
        Attrs: map[string]string{"port": port, "protocol": "tcp", "state": state},
    }
}

func TestCompareAddedAndRemoved(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    _, err := store.ReplaceBaseline(ctx, "agent-1", database.TypePort,
        []database.Item{portItem("22", "listen"), portItem("80", "listen")},
        database.ProvenanceLearned, "")
    require.NoError(t, err)

    require.NoError(t, store.PutSnapshot(ctx, &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypePort,
        CapturedAt: time.Now(),
        Items:      []database.Item{portItem("22", "listen"), portItem("8080", "listen")},
    }))

    result, err := NewComparator(store).Compare(ctx, "agent-1", database.TypePort)
    require.NoError(t, err)

    require.Len(t, result.Added, 1)
    assert.Equal(t, "8080/tcp", result.Added[0].Key)
    require.Len(t, result.Removed, 1)
    assert.Equal(t, "80/tcp", result.Removed[0].Key)
    assert.Empty(t, result.Changed)
    assert.Equal(t, 1, result.BaselineVersion)
}

func TestCompareChangedValue(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    _, err := store.ReplaceBaseline(ctx, "agent-1", database.TypeSoftware,
        []database.Item{{Key: "nginx", Value: "1.20|"}},
        database.ProvenanceLearned, "")
    require.NoError(t, err)

    require.NoError(t, store.PutSnapshot(ctx, &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypeSoftware,
        CapturedAt: time.Now(),
        Items:      []database.Item{{Key: "nginx", Value: "1.22|"}},
    }))

    result, err := NewComparator(store).Compare(ctx, "agent-1", database.TypeSoftware)
    require.NoError(t, err)

    assert.Empty(t, result.Added)
    assert.Empty(t, result.Removed)
    require.Len(t, result.Changed, 1)
    assert.Equal(t, "nginx", result.Changed[0].Key)
    assert.Equal(t, "1.20|", result.Changed[0].Baseline.Value)
    assert.Equal(t, "1.22|", result.Changed[0].Current.Value)
}

func TestCompareUSBNeverChanged(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    _, err := store.ReplaceBaseline(ctx, "agent-1", database.TypeUSB,
        []database.Item{{Key: "046d:c52b:A1"}},
        database.ProvenanceLearned, "")
    require.NoError(t, err)

    // Same key, different attrs. USB items are present or absent only.
    require.NoError(t, store.PutSnapshot(ctx, &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypeUSB,
        CapturedAt: time.Now(),
        Items:      []database.Item{{Key: "046d:c52b:A1", Attrs: map[string]string{"description": "receiver"}}},
    }))

    result, err := NewComparator(store).Compare(ctx, "agent-1", database.TypeUSB)
    require.NoError(t, err)

    assert.Empty(t, result.Added)
    assert.Empty(t, result.Removed)
    assert.Empty(t, result.Changed)
}

func TestCompareSortedByKey(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    _, err := store.ReplaceBaseline(ctx, "agent-1", database.TypePort, nil, database.ProvenanceLearned, "")
    require.NoError(t, err)

    require.NoError(t, store.PutSnapshot(ctx, &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypePort,
        CapturedAt: time.Now(),
        Items:      []database.Item{portItem("9000", "listen"), portItem("1000", "listen"), portItem("5000", "listen")},
    }))

    result, err := NewComparator(store).Compare(ctx, "agent-1", database.TypePort)
    require.NoError(t, err)

    require.Len(t, result.Added, 3)
    assert.Equal(t, "1000/tcp", result.Added[0].Key)
    assert.Equal(t, "5000/tcp", result.Added[1].Key)
    assert.Equal(t, "9000/tcp", result.Added[2].Key)
}

func TestCompareMissingBaselineOrSnapshot(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()
    comparator := NewComparator(store)

    _, err := comparator.Compare(ctx, "agent-1", database.TypePort)
    assert.ErrorIs(t, err, database.ErrNotFound, "no snapshot")

    require.NoError(t, store.PutSnapshot(ctx, &database.Snapshot{
        AgentID:    "agent-1",
        Type:       database.TypePort,
        CapturedAt: time.Now(),
        Items:      []database.Item{portItem("22", "listen")},
    }))

    _, err = comparator.Compare(ctx, "agent-1", database.TypePort)
    assert.ErrorIs(t, err, database.ErrNotFound, "no baseline is not total drift")
}
