// Package notify pushes inbound-message alerts to connected agent sessions.
// The stager publishes to redis; every server instance's hub subscribes and
// fans out to its websocket clients, so notifications reach agents no matter
// which worker staged the event. The whole path is fire-and-forget.
package notify

import "context"

// Notification is the payload pushed to an agent session.
type Notification struct {
	AgentIDs []string `json:"agent_ids"`
	Address  string   `json:"address"`
	Preview  string   `json:"preview"`
}

// Notifier is the fire-and-forget contract the stager depends on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// agentChannel is the redis channel for one agent's notifications.
func agentChannel(agentID string) string {
	return "agents:" + agentID
}

const agentChannelPattern = "agents:*"
