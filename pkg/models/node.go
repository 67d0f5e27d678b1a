package models

import "time"

// NodeKind is the closed set of node types the engine knows how to dispatch.
type NodeKind string

const (
	NodeKindTrigger  NodeKind = "trigger"
	NodeKindForm     NodeKind = "form"
	NodeKindAction   NodeKind = "action"
	NodeKindDecision NodeKind = "decision"
)

// NodeKinds lists every built-in node kind.
func NodeKinds() []NodeKind {
	return []NodeKind{NodeKindTrigger, NodeKindForm, NodeKindAction, NodeKindDecision}
}

// WorkflowNode is a node instance in a workflow definition.
type WorkflowNode struct {
	ID       string         `json:"id"                yaml:"id"                validate:"required"`
	Type     NodeKind       `json:"type"              yaml:"type"              validate:"required,oneof=trigger form action decision"`
	Name     string         `json:"name"              yaml:"name"              validate:"required"`
	Config   map[string]any `json:"config"            yaml:"config"`
	Position Position       `json:"position"          yaml:"position"`
	Runtime  *RuntimePolicy `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Position is presentation-only and ignored by the engine.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// RuntimePolicy controls how a node's handler is invoked.
type RuntimePolicy struct {
	Retry           *RetryPolicy `json:"retry,omitempty"   yaml:"retry,omitempty"`
	TimeoutMs       int64        `json:"timeout_ms"        yaml:"timeout_ms"        validate:"gte=0"`
	ContinueOnError bool         `json:"continue_on_error" yaml:"continue_on_error"`
}

// RetryPolicy re-invokes a failing handler up to Max more times.
type RetryPolicy struct {
	Max     int   `json:"max"      yaml:"max"      validate:"gte=0"`
	DelayMs int64 `json:"delay_ms" yaml:"delay_ms" validate:"gte=0"`
}

// Timeout returns the configured handler timeout, zero meaning unbounded.
func (n *WorkflowNode) Timeout() time.Duration {
	if n.Runtime == nil || n.Runtime.TimeoutMs <= 0 {
		return 0
	}

	return time.Duration(n.Runtime.TimeoutMs) * time.Millisecond
}

// MaxRetries returns how many extra attempts a failing handler gets.
func (n *WorkflowNode) MaxRetries() int {
	if n.Runtime == nil || n.Runtime.Retry == nil || n.Runtime.Retry.Max < 0 {
		return 0
	}

	return n.Runtime.Retry.Max
}

// RetryDelay returns the pause between attempts.
func (n *WorkflowNode) RetryDelay() time.Duration {
	if n.Runtime == nil || n.Runtime.Retry == nil || n.Runtime.Retry.DelayMs <= 0 {
		return 0
	}

	return time.Duration(n.Runtime.Retry.DelayMs) * time.Millisecond
}

// ContinueOnError reports whether a failure of this node is routed as success.
func (n *WorkflowNode) ContinueOnError() bool {
	return n.Runtime != nil && n.Runtime.ContinueOnError
}

// ConditionType labels an edge. The empty value is the unconditional marker.
type ConditionType string

const (
	ConditionTypeAlways ConditionType = ""
	ConditionTypeTrue   ConditionType = "true"
	ConditionTypeFalse  ConditionType = "false"
)

// Condition gates a connection.
type Condition struct {
	Type       ConditionType `json:"type"                 yaml:"type"                 validate:"omitempty,oneof=true false always"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Connection is a directed edge between two nodes.
type Connection struct {
	ID        string     `json:"id,omitempty"        yaml:"id,omitempty"`
	From      string     `json:"from"                yaml:"from"                validate:"required"`
	To        string     `json:"to"                  yaml:"to"                  validate:"required"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ConditionType returns the edge label, normalising "always" and a missing
// condition to the unconditional marker.
func (c *Connection) ConditionType() ConditionType {
	if c.Condition == nil || c.Condition.Type == "always" {
		return ConditionTypeAlways
	}

	return c.Condition.Type
}

// Expression returns the optional predicate attached to the edge.
func (c *Connection) Expression() string {
	if c.Condition == nil {
		return ""
	}

	return c.Condition.Expression
}
