package core

import "time"

// SessionStatus is the lifecycle status of a learning session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// SessionRecord is the persisted form of a learning session as returned by a
// Storage implementation.
type SessionRecord struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	PrimaryAgentID string        `json:"primary_agent_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	TopicsCovered  []string      `json:"topics_covered,omitempty"`
	Status         SessionStatus `json:"status"`
}

// Session is the live, in-memory session owned by the orchestrator. Topics and
// agents are insertion-ordered sets.
//
// Session carries no lock of its own; the owning state guards every access.
type Session struct {
	ID             string
	UserID         string
	PrimaryAgentID string
	StartTime      time.Time
	EndTime        *time.Time
	Summary        string
	Topics         *StringSet
	Agents         *StringSet
	Status         SessionStatus
}

// NewSession creates an active session from its persisted record.
func NewSession(rec *SessionRecord) *Session {
	start := rec.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return &Session{
		ID:             rec.ID,
		UserID:         rec.UserID,
		PrimaryAgentID: rec.PrimaryAgentID,
		StartTime:      start,
		Topics:         NewStringSet(),
		Agents:         NewStringSet(),
		Status:         SessionActive,
	}
}

// SessionSnapshot is an immutable copy of a Session safe to hand to callers
// and listeners.
type SessionSnapshot struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	PrimaryAgentID string        `json:"primary_agent_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	TopicsCovered  []string      `json:"topics_covered"`
	Agents         []string      `json:"agents"`
	Status         SessionStatus `json:"status"`
}

// Snapshot copies the session.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:             s.ID,
		UserID:         s.UserID,
		PrimaryAgentID: s.PrimaryAgentID,
		StartTime:      s.StartTime,
		Summary:        s.Summary,
		TopicsCovered:  s.Topics.Values(),
		Agents:         s.Agents.Values(),
		Status:         s.Status,
	}
	if s.EndTime != nil {
		end := *s.EndTime
		snap.EndTime = &end
	}
	return snap
}
