// Package queue carries dispatch jobs from the API to the workers. The
// AMQP implementation is the deployed transport; the in-memory one serves
// local development and tests with the same interface and retry behavior.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicDispatch carries DispatchJob payloads.
const TopicDispatch = "campaign.dispatch"

// DispatchJob asks a worker to run one campaign.
type DispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

// Queue is the publish/subscribe contract shared by both implementations.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(body []byte) error) error
}

// InMemoryQueue runs handlers in-process with bounded retries. It backs
// local development (no broker) and the dispatch pipeline tests.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	Log      zerolog.Logger
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
		Log:      log,
	}
}

const maxRetries = 3

// Publish serializes the payload and hands it to every subscriber.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("queue: no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, body)
	}
	return nil
}

// processJob retries with linear backoff, mirroring the broker's
// requeue-up-to-three-times policy.
func (q *InMemoryQueue) processJob(topic string, handler func([]byte) error, body []byte) {
	for attempt := 1; ; attempt++ {
		err := handler(body)
		if err == nil {
			return
		}
		q.Log.Warn().Err(err).
			Str("topic", topic).
			Int("attempt", attempt).
			Msg("job failed")
		if attempt > maxRetries {
			q.Log.Error().Str("topic", topic).Msg("job permanently failed")
			return
		}
		time.Sleep(time.Duration(attempt*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
