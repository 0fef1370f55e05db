package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// delivery pairs a target agent with the serialized notification.
type delivery struct {
	AgentID string
	Payload []byte
}

// Hub tracks connected agent sessions and fans deliveries out to them.
type Hub struct {
	clients    map[string]map[*Client]bool // agent id -> sessions
	Register   chan *Client
	Unregister chan *Client
	Deliveries chan delivery
	Log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Deliveries: make(chan delivery, 64),
		Log:        log,
	}
}

// Run owns the client map; all mutation happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			sessions, ok := h.clients[client.AgentID]
			if !ok {
				sessions = make(map[*Client]bool)
				h.clients[client.AgentID] = sessions
			}
			sessions[client] = true

		case client := <-h.Unregister:
			sessions, ok := h.clients[client.AgentID]
			if !ok {
				continue
			}
			if sessions[client] {
				delete(sessions, client)
				close(client.Send)
			}
			if len(sessions) == 0 {
				delete(h.clients, client.AgentID)
			}

		case d := <-h.Deliveries:
			for client := range h.clients[d.AgentID] {
				select {
				case client.Send <- d.Payload:
				default:
					// Slow consumer: drop the session, not the hub.
					close(client.Send)
					delete(h.clients[d.AgentID], client)
				}
			}
		}
	}
}

// ListenRedis subscribes to every agent channel and feeds the hub. It
// returns when the context is cancelled.
func (h *Hub) ListenRedis(ctx context.Context, client *redis.Client) {
	sub := client.PSubscribe(ctx, agentChannelPattern)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			agentID := strings.TrimPrefix(msg.Channel, "agents:")
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				h.Log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed notification")
				continue
			}
			h.Deliveries <- delivery{AgentID: agentID, Payload: []byte(msg.Payload)}
		}
	}
}
