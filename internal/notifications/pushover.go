// internal/notifications/pushover.go - Pushover alert notifications
package notifications

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/config"
    "github.com/ychcqshan/terminal-monitor/internal/database"
)

const (
    PushoverAPIURL = "https://api.pushover.net/1/messages.json"
    UserAgent      = "Terminal Monitor/1.0"
)

var severityRank = map[string]int{
    database.SeverityLow:      0,
    database.SeverityMedium:   1,
    database.SeverityHigh:     2,
    database.SeverityCritical: 3,
}

// PushoverMessage is the payload sent to the Pushover API.
type PushoverMessage struct {
    Token     string `json:"token"`
    User      string `json:"user"`
    Message   string `json:"message"`
    Title     string `json:"title,omitempty"`
    Priority  int    `json:"priority,omitempty"`
    Sound     string `json:"sound,omitempty"`
    Device    string `json:"device,omitempty"`
    Timestamp int64  `json:"timestamp,omitempty"`
}

// PushoverResponse is the API response envelope.
type PushoverResponse struct {
    Status int      `json:"status"`
    Errors []string `json:"errors,omitempty"`
}

// throttler limits notification volume over a sliding window, per agent
// and in total.
type throttler struct {
    cfg         *config.ThrottleConfig
    mu          sync.Mutex
    agentCounts map[string][]time.Time
    totalCounts []time.Time
}

func newThrottler(cfg *config.ThrottleConfig) *throttler {
    return &throttler{
        cfg:         cfg,
        agentCounts: make(map[string][]time.Time),
    }
}

// allow records the send when permitted and reports whether it may go out.
func (t *throttler) allow(agentID string) bool {
    t.mu.Lock()
    defer t.mu.Unlock()

    now := time.Now()
    cutoff := now.Add(-t.cfg.Window)

    t.totalCounts = prune(t.totalCounts, cutoff)
    t.agentCounts[agentID] = prune(t.agentCounts[agentID], cutoff)

    if len(t.totalCounts) >= t.cfg.MaxTotal {
        return false
    }
    if len(t.agentCounts[agentID]) >= t.cfg.MaxPerAgent {
        return false
    }

    t.totalCounts = append(t.totalCounts, now)
    t.agentCounts[agentID] = append(t.agentCounts[agentID], now)
    return true
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
    kept := stamps[:0]
    for _, ts := range stamps {
        if ts.After(cutoff) {
            kept = append(kept, ts)
        }
    }
    return kept
}

// PushoverClient pushes newly created alerts at or above a severity floor.
type PushoverClient struct {
    cfg        *config.PushoverConfig
    httpClient *http.Client
    throttle   *throttler
}

func NewPushoverClient(cfg *config.PushoverConfig) *PushoverClient {
    client := &PushoverClient{
        cfg: cfg,
        httpClient: &http.Client{
            Timeout: 30 * time.Second,
        },
    }
    if cfg.Throttle.Enabled {
        client.throttle = newThrottler(&cfg.Throttle)
    }

    logrus.WithFields(logrus.Fields{
        "min_severity":     cfg.MinSeverity,
        "throttle_enabled": cfg.Throttle.Enabled,
    }).Info("Pushover client initialized")

    return client
}

// NotifyAlert sends one alert. Drops silently below the severity floor or
// when throttled.
func (p *PushoverClient) NotifyAlert(ctx context.Context, alert *database.Alert) error {
    if severityRank[alert.Severity] < severityRank[p.cfg.MinSeverity] {
        return nil
    }
    if p.throttle != nil && !p.throttle.allow(alert.AgentID) {
        logrus.WithFields(logrus.Fields{
            "alert_id": alert.ID,
            "agent_id": alert.AgentID,
        }).Debug("Notification throttled")
        return nil
    }

    msg := PushoverMessage{
        Token:     p.cfg.APIToken,
        User:      p.cfg.UserKey,
        Title:     fmt.Sprintf("[%s] %s", alert.Severity, alert.Title),
        Message:   fmt.Sprintf("Agent %s: %s", alert.AgentID, alert.Detail),
        Priority:  p.cfg.Priority,
        Sound:     p.cfg.Sound,
        Device:    p.cfg.Device,
        Timestamp: alert.CreatedAt.Unix(),
    }

    body, err := json.Marshal(msg)
    if err != nil {
        return fmt.Errorf("failed to marshal pushover message: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, PushoverAPIURL, bytes.NewReader(body))
    if err != nil {
        return fmt.Errorf("failed to build pushover request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("User-Agent", UserAgent)

    resp, err := p.httpClient.Do(req)
    if err != nil {
        return fmt.Errorf("failed to send pushover notification: %w", err)
    }
    defer resp.Body.Close()

    var result PushoverResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return fmt.Errorf("failed to decode pushover response: %w", err)
    }
    if result.Status != 1 {
        return fmt.Errorf("pushover rejected notification: %v", result.Errors)
    }

    logrus.WithFields(logrus.Fields{
        "alert_id": alert.ID,
        "severity": alert.Severity,
    }).Info("Pushover notification sent")

    return nil
}
