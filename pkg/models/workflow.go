// Package models defines the core domain models for graph-based workflow execution.
package models

// TriggerType identifies how an execution of a workflow is started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"   // API-initiated
	TriggerTypeWebhook  TriggerType = "webhook"  // Inbound HTTP call on a registered path
	TriggerTypeSchedule TriggerType = "schedule" // Cron expression in Trigger.Config["cron"]
)

// WorkflowDefinition is the immutable-per-version description of a workflow graph.
// The engine only ever reads definitions.
type WorkflowDefinition struct {
	ID          string          `json:"id"                    yaml:"id"                    validate:"required"`
	Version     int             `json:"version"               yaml:"version"`
	Name        string          `json:"name"                  yaml:"name"                  validate:"required"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     Trigger         `json:"trigger"               yaml:"trigger"`
	Nodes       []*WorkflowNode `json:"nodes"                 yaml:"nodes"                 validate:"required,min=1,dive"`
	Connections []*Connection   `json:"connections"           yaml:"connections"           validate:"dive"`
}

// Trigger binds a definition to its starting event and entry node.
type Trigger struct {
	Type        TriggerType    `json:"type"             yaml:"type"             validate:"required,oneof=manual webhook schedule"`
	EntryNodeID string         `json:"entry_node_id"    yaml:"entry_node_id"    validate:"required"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Node returns the node with the given id, or nil.
func (d *WorkflowDefinition) Node(id string) *WorkflowNode {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// Outgoing returns the connections leaving the given node, in definition order.
func (d *WorkflowDefinition) Outgoing(nodeID string) []*Connection {
	var connections []*Connection

	for _, conn := range d.Connections {
		if conn.From == nodeID {
			connections = append(connections, conn)
		}
	}

	return connections
}

// WebhookPath returns the path a webhook-triggered definition listens on.
func (d *WorkflowDefinition) WebhookPath() string {
	if d.Trigger.Type != TriggerTypeWebhook {
		return ""
	}

	path, _ := d.Trigger.Config["path"].(string)

	return path
}

// CronExpression returns the schedule of a schedule-triggered definition.
func (d *WorkflowDefinition) CronExpression() string {
	if d.Trigger.Type != TriggerTypeSchedule {
		return ""
	}

	expr, _ := d.Trigger.Config["cron"].(string)

	return expr
}
