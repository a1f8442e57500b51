// Package agentstate owns the durable per-tenant, per-type agent state:
// configuration, a capped action history and derived metrics.
package agentstate

import (
	"time"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusError  Status = "error"
	StatusPaused Status = "paused"
)

// historyCap bounds the action history ring buffer.
const historyCap = 100

// ActionRecord is the audit entry for one executed capability call.
type ActionRecord struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Result     any            `json:"result,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Metrics are derived counters over the action history.
type Metrics struct {
	TotalActions        int     `json:"total_actions"`
	SuccessfulActions   int     `json:"successful_actions"`
	FailedActions       int     `json:"failed_actions"`
	AverageResponseTime float64 `json:"average_response_time"`
	LastDayActions      int     `json:"last_day_actions"`
	LastWeekActions     int     `json:"last_week_actions"`
}

// State is the durable state of one agent.
type State struct {
	TenantID     string         `json:"tenant_id"`
	AgentType    string         `json:"agent_type"`
	Status       Status         `json:"status"`
	Config       map[string]any `json:"config"`
	History      []ActionRecord `json:"history"`
	Metrics      Metrics        `json:"metrics"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// record appends an ActionRecord, evicting the oldest past the cap, and
// folds the duration into the running metrics.
func (s *State) record(rec ActionRecord, now time.Time) {
	s.History = append(s.History, rec)
	if len(s.History) > historyCap {
		s.History = s.History[len(s.History)-historyCap:]
	}

	m := &s.Metrics
	m.TotalActions++
	if rec.Success {
		m.SuccessfulActions++
	} else {
		m.FailedActions++
	}
	n := float64(m.TotalActions)
	m.AverageResponseTime = (m.AverageResponseTime*(n-1) + float64(rec.DurationMs)) / n

	// Day/week windows are recomputed from the capped history, so they
	// undercount once more than historyCap actions land in a window.
	dayCutoff := now.Add(-24 * time.Hour)
	weekCutoff := now.Add(-7 * 24 * time.Hour)
	m.LastDayActions = 0
	m.LastWeekActions = 0
	for _, r := range s.History {
		if r.Timestamp.After(weekCutoff) {
			m.LastWeekActions++
			if r.Timestamp.After(dayCutoff) {
				m.LastDayActions++
			}
		}
	}

	s.LastActiveAt = now
}

// lastRecords returns up to n most recent records, newest last.
func (s *State) lastRecords(n int) []ActionRecord {
	if len(s.History) <= n {
		out := make([]ActionRecord, len(s.History))
		copy(out, s.History)
		return out
	}
	out := make([]ActionRecord, n)
	copy(out, s.History[len(s.History)-n:])
	return out
}
