// internal/database/boltstore.go - BoltDB implementation of Store
package database

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.etcd.io/bbolt"
)

var (
    AgentsBucket       = []byte("agents")
    SnapshotsBucket    = []byte("snapshots")
    SnapLatestBucket   = []byte("snapshot_latest")
    BaselinesBucket    = []byte("baselines")
    BaselineHistBucket = []byte("baseline_history")
    SessionsBucket     = []byte("sessions")
    RulesBucket        = []byte("rules")
    AlertsBucket       = []byte("alerts")
    AlertIndexBucket   = []byte("alert_index")
)

type BoltStore struct {
    db   *bbolt.DB
    path string
}

func NewBoltStore(path string) (Store, error) {
    // Create directory if it doesn't exist
    if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
        return nil, fmt.Errorf("failed to create data directory: %w", err)
    }

    db, err := bbolt.Open(path, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to open BoltDB: %w", err)
    }

    store := &BoltStore{db: db, path: path}

    if err := store.initBuckets(); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to initialize buckets: %w", err)
    }

    return store, nil
}

func (s *BoltStore) initBuckets() error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        buckets := [][]byte{
            AgentsBucket, SnapshotsBucket, SnapLatestBucket,
            BaselinesBucket, BaselineHistBucket, SessionsBucket,
            RulesBucket, AlertsBucket, AlertIndexBucket,
        }
        for _, bucket := range buckets {
            if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
                return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
            }
        }
        return nil
    })
}

func pairKey(agentID, obsType string) []byte {
    return []byte(agentID + "/" + obsType)
}

func (s *BoltStore) GetAgents(ctx context.Context, filters AgentFilters) ([]Agent, error) {
    var agents []Agent

    err := s.db.View(func(tx *bbolt.Tx) error {
        b := tx.Bucket(AgentsBucket)
        return b.ForEach(func(k, v []byte) error {
            var agent Agent
            if err := json.Unmarshal(v, &agent); err != nil {
                return fmt.Errorf("failed to unmarshal agent %s: %w", k, err)
            }

            if agent.Deleted && !filters.IncludeDeleted {
                return nil
            }

            agents = append(agents, agent)
            return nil
        })
    })

    return agents, err
}

func (s *BoltStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
    var agent Agent

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(AgentsBucket).Get([]byte(id))
        if v == nil {
            return fmt.Errorf("agent %s: %w", id, ErrNotFound)
        }
        return json.Unmarshal(v, &agent)
    })

    if err != nil {
        return nil, err
    }
    return &agent, nil
}

func (s *BoltStore) UpsertAgent(ctx context.Context, agent *Agent) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(agent)
        if err != nil {
            return fmt.Errorf("failed to marshal agent: %w", err)
        }
        return tx.Bucket(AgentsBucket).Put([]byte(agent.ID), data)
    })
}

func (s *BoltStore) DeleteAgent(ctx context.Context, id string) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(AgentsBucket)
        v := b.Get([]byte(id))
        if v == nil {
            return fmt.Errorf("agent %s: %w", id, ErrNotFound)
        }

        var agent Agent
        if err := json.Unmarshal(v, &agent); err != nil {
            return fmt.Errorf("failed to unmarshal agent: %w", err)
        }
        agent.Deleted = true

        data, err := json.Marshal(&agent)
        if err != nil {
            return fmt.Errorf("failed to marshal agent: %w", err)
        }
        return b.Put([]byte(id), data)
    })
}

func (s *BoltStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
    if snap.ID == "" {
        snap.ID = uuid.New().String()
    }
    if snap.CapturedAt.IsZero() {
        snap.CapturedAt = time.Now()
    }

    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(snap)
        if err != nil {
            return fmt.Errorf("failed to marshal snapshot: %w", err)
        }

        histKey := fmt.Sprintf("%s/%s/%020d", snap.AgentID, snap.Type, snap.CapturedAt.UnixNano())
        if err := tx.Bucket(SnapshotsBucket).Put([]byte(histKey), data); err != nil {
            return err
        }

        return tx.Bucket(SnapLatestBucket).Put(pairKey(snap.AgentID, snap.Type), data)
    })
}

func (s *BoltStore) GetLatestSnapshot(ctx context.Context, agentID, obsType string) (*Snapshot, error) {
    var snap Snapshot

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(SnapLatestBucket).Get(pairKey(agentID, obsType))
        if v == nil {
            return fmt.Errorf("snapshot %s/%s: %w", agentID, obsType, ErrNotFound)
        }
        return json.Unmarshal(v, &snap)
    })

    if err != nil {
        return nil, err
    }
    return &snap, nil
}

func (s *BoltStore) GetSnapshots(ctx context.Context, agentID, obsType string, limit int) ([]Snapshot, error) {
    var snaps []Snapshot

    err := s.db.View(func(tx *bbolt.Tx) error {
        c := tx.Bucket(SnapshotsBucket).Cursor()
        prefix := agentID + "/" + obsType + "/"

        for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
            var snap Snapshot
            if err := json.Unmarshal(v, &snap); err != nil {
                continue
            }
            snaps = append(snaps, snap)
        }
        return nil
    })
    if err != nil {
        return nil, err
    }

    // Newest first
    for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
        snaps[i], snaps[j] = snaps[j], snaps[i]
    }
    if limit > 0 && len(snaps) > limit {
        snaps = snaps[:limit]
    }

    return snaps, nil
}

func (s *BoltStore) GetBaseline(ctx context.Context, agentID, obsType string) (*Baseline, error) {
    var baseline Baseline

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(BaselinesBucket).Get(pairKey(agentID, obsType))
        if v == nil {
            return fmt.Errorf("baseline %s/%s: %w", agentID, obsType, ErrNotFound)
        }
        return json.Unmarshal(v, &baseline)
    })

    if err != nil {
        return nil, err
    }
    return &baseline, nil
}

func (s *BoltStore) GetBaselines(ctx context.Context, agentID string) ([]Baseline, error) {
    var baselines []Baseline

    err := s.db.View(func(tx *bbolt.Tx) error {
        c := tx.Bucket(BaselinesBucket).Cursor()
        prefix := agentID + "/"

        for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
            var baseline Baseline
            if err := json.Unmarshal(v, &baseline); err != nil {
                return fmt.Errorf("failed to unmarshal baseline %s: %w", k, err)
            }
            baselines = append(baselines, baseline)
        }
        return nil
    })

    return baselines, err
}

// ReplaceBaseline atomically swaps the active baseline for a pair, bumping
// the version and archiving the replaced record. Writers are serialized by
// the engine's per-pair lock; within the store, the Update transaction makes
// read-bump-write a single step.
func (s *BoltStore) ReplaceBaseline(ctx context.Context, agentID, obsType string, items []Item, provenance, sourceAgentID string) (*Baseline, error) {
    now := time.Now()
    baseline := &Baseline{
        AgentID:       agentID,
        Type:          obsType,
        Version:       1,
        Provenance:    provenance,
        SourceAgentID: sourceAgentID,
        Items:         items,
        CreatedAt:     now,
        UpdatedAt:     now,
    }

    err := s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(BaselinesBucket)
        key := pairKey(agentID, obsType)

        if prev := b.Get(key); prev != nil {
            var old Baseline
            if err := json.Unmarshal(prev, &old); err != nil {
                return fmt.Errorf("failed to unmarshal previous baseline: %w", err)
            }
            baseline.Version = old.Version + 1
            baseline.CreatedAt = old.CreatedAt

            histKey := fmt.Sprintf("%s/%s/%06d", agentID, obsType, old.Version)
            if err := tx.Bucket(BaselineHistBucket).Put([]byte(histKey), prev); err != nil {
                return err
            }
        }

        data, err := json.Marshal(baseline)
        if err != nil {
            return fmt.Errorf("failed to marshal baseline: %w", err)
        }
        return b.Put(key, data)
    })

    if err != nil {
        return nil, err
    }
    return baseline, nil
}

func (s *BoltStore) DeleteBaseline(ctx context.Context, agentID, obsType string) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(BaselinesBucket)
        key := pairKey(agentID, obsType)

        prev := b.Get(key)
        if prev == nil {
            return fmt.Errorf("baseline %s/%s: %w", agentID, obsType, ErrNotFound)
        }

        var old Baseline
        if err := json.Unmarshal(prev, &old); err == nil {
            histKey := fmt.Sprintf("%s/%s/%06d", agentID, obsType, old.Version)
            if err := tx.Bucket(BaselineHistBucket).Put([]byte(histKey), prev); err != nil {
                return err
            }
        }

        return b.Delete(key)
    })
}

func (s *BoltStore) GetSession(ctx context.Context, agentID, obsType string) (*LearningSession, error) {
    var session LearningSession

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(SessionsBucket).Get(pairKey(agentID, obsType))
        if v == nil {
            return fmt.Errorf("learning session %s/%s: %w", agentID, obsType, ErrNotFound)
        }
        return json.Unmarshal(v, &session)
    })

    if err != nil {
        return nil, err
    }
    return &session, nil
}

func (s *BoltStore) PutSession(ctx context.Context, session *LearningSession) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(session)
        if err != nil {
            return fmt.Errorf("failed to marshal session: %w", err)
        }
        return tx.Bucket(SessionsBucket).Put(pairKey(session.AgentID, session.Type), data)
    })
}

func (s *BoltStore) GetRunningSessions(ctx context.Context) ([]LearningSession, error) {
    var sessions []LearningSession

    err := s.db.View(func(tx *bbolt.Tx) error {
        return tx.Bucket(SessionsBucket).ForEach(func(k, v []byte) error {
            var session LearningSession
            if err := json.Unmarshal(v, &session); err != nil {
                return fmt.Errorf("failed to unmarshal session %s: %w", k, err)
            }
            if session.Status == SessionRunning {
                sessions = append(sessions, session)
            }
            return nil
        })
    })

    return sessions, err
}

func (s *BoltStore) GetRules(ctx context.Context) ([]AlertRule, error) {
    var rules []AlertRule

    err := s.db.View(func(tx *bbolt.Tx) error {
        return tx.Bucket(RulesBucket).ForEach(func(k, v []byte) error {
            var rule AlertRule
            if err := json.Unmarshal(v, &rule); err != nil {
                return fmt.Errorf("failed to unmarshal rule %s: %w", k, err)
            }
            rules = append(rules, rule)
            return nil
        })
    })
    if err != nil {
        return nil, err
    }

    sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
    return rules, nil
}

func (s *BoltStore) GetRule(ctx context.Context, id string) (*AlertRule, error) {
    var rule AlertRule

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(RulesBucket).Get([]byte(id))
        if v == nil {
            return fmt.Errorf("rule %s: %w", id, ErrNotFound)
        }
        return json.Unmarshal(v, &rule)
    })

    if err != nil {
        return nil, err
    }
    return &rule, nil
}

func (s *BoltStore) PutRule(ctx context.Context, rule *AlertRule) error {
    if rule.ID == "" {
        rule.ID = uuid.New().String()
    }
    if rule.CreatedAt.IsZero() {
        rule.CreatedAt = time.Now()
    }
    rule.UpdatedAt = time.Now()

    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(rule)
        if err != nil {
            return fmt.Errorf("failed to marshal rule: %w", err)
        }
        return tx.Bucket(RulesBucket).Put([]byte(rule.ID), data)
    })
}

func (s *BoltStore) DeleteRule(ctx context.Context, id string) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(RulesBucket)
        if b.Get([]byte(id)) == nil {
            return fmt.Errorf("rule %s: %w", id, ErrNotFound)
        }
        return b.Delete([]byte(id))
    })
}

func (s *BoltStore) GetAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
    var alerts []Alert

    err := s.db.View(func(tx *bbolt.Tx) error {
        return tx.Bucket(AlertsBucket).ForEach(func(k, v []byte) error {
            var alert Alert
            if err := json.Unmarshal(v, &alert); err != nil {
                return nil // Skip malformed entries
            }

            if filters.AgentID != "" && alert.AgentID != filters.AgentID {
                return nil
            }
            if filters.Status != "" && alert.Status != filters.Status {
                return nil
            }
            if filters.Since != nil && !alert.CreatedAt.After(*filters.Since) {
                return nil
            }

            alerts = append(alerts, alert)
            return nil
        })
    })
    if err != nil {
        return nil, err
    }

    // Newest first
    sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
    if filters.Limit > 0 && len(alerts) > filters.Limit {
        alerts = alerts[:filters.Limit]
    }

    return alerts, nil
}

func (s *BoltStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
    var alert Alert

    err := s.db.View(func(tx *bbolt.Tx) error {
        v := tx.Bucket(AlertsBucket).Get([]byte(id))
        if v == nil {
            return fmt.Errorf("alert %s: %w", id, ErrNotFound)
        }
        return json.Unmarshal(v, &alert)
    })

    if err != nil {
        return nil, err
    }
    return &alert, nil
}

// PutAlert stores the alert and keeps the fingerprint index in step: live
// alerts (open/acknowledged) occupy their fingerprint slot, terminal ones
// release it.
func (s *BoltStore) PutAlert(ctx context.Context, alert *Alert) error {
    return s.db.Update(func(tx *bbolt.Tx) error {
        data, err := json.Marshal(alert)
        if err != nil {
            return fmt.Errorf("failed to marshal alert: %w", err)
        }
        if err := tx.Bucket(AlertsBucket).Put([]byte(alert.ID), data); err != nil {
            return err
        }

        idx := tx.Bucket(AlertIndexBucket)
        fp := []byte(alert.Fingerprint())
        if alert.Live() {
            return idx.Put(fp, []byte(alert.ID))
        }
        return idx.Delete(fp)
    })
}

func (s *BoltStore) GetOpenAlert(ctx context.Context, fingerprint string) (*Alert, error) {
    var alert Alert

    err := s.db.View(func(tx *bbolt.Tx) error {
        id := tx.Bucket(AlertIndexBucket).Get([]byte(fingerprint))
        if id == nil {
            return fmt.Errorf("open alert %s: %w", fingerprint, ErrNotFound)
        }
        v := tx.Bucket(AlertsBucket).Get(id)
        if v == nil {
            return fmt.Errorf("open alert %s: %w", fingerprint, ErrNotFound)
        }
        return json.Unmarshal(v, &alert)
    })

    if err != nil {
        return nil, err
    }
    return &alert, nil
}

func (s *BoltStore) Close() error {
    return s.db.Close()
}
