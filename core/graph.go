package core

import "time"

// NodeType tags a thought-graph node.
type NodeType string

const (
	NodeSessionStart      NodeType = "session_start"
	NodeUserMessage       NodeType = "user_message"
	NodeAgentActivation   NodeType = "agent_activation"
	NodeAgentDeactivation NodeType = "agent_deactivation"
	NodeAgentPrompt       NodeType = "agent_prompt"
	NodeAgentResponse     NodeType = "agent_response"
)

// EdgeType tags a thought-graph connection. Activation edges carry the
// caller-supplied connection type, so the set is open.
type EdgeType string

const (
	EdgeDirect    EdgeType = "direct"
	EdgeContext   EdgeType = "context"
	EdgeResponse  EdgeType = "response"
	EdgeLifecycle EdgeType = "lifecycle"
)

// Edge strengths used by the agent manager.
const (
	ActivationStrength = 0.8
	ContextStrength    = 0.6
	ResponseStrength   = 1.0
	LifecycleStrength  = 1.0
)

// Node is an immutable, append-only vertex of the thought graph.
type Node struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Type      NodeType       `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
}

// Edge is a typed, weighted, directed link between two nodes.
type Edge struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	TargetID  string         `json:"target_id"`
	Type      EdgeType       `json:"type"`
	Strength  float64        `json:"strength"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ClampStrength bounds s to [0, 1].
func ClampStrength(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
