package queue

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes jobs to durable RabbitMQ queues. Consumption happens
// in cmd/worker, which owns the ack/requeue loop.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}

	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %s: %w", topic, err)
	}

	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe registers a consumer with manual acks. A failed delivery is
// republished with a bumped x-retry-count header up to maxRetries times,
// then dropped. Nack-requeue would hand back the original delivery with
// its headers untouched, so the counter would never move.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	if _, err := q.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %s: %w", topic, err)
	}

	msgs, err := q.ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				if attempt, again := nextAttempt(d.Headers); again {
					if pubErr := q.ch.Publish("", topic, false, false, amqp.Publishing{
						ContentType:  "application/json",
						DeliveryMode: amqp.Persistent,
						Headers:      amqp.Table{"x-retry-count": attempt},
						Body:         d.Body,
					}); pubErr != nil {
						// Could not hand the retry back to the broker;
						// keep the original delivery alive instead.
						d.Nack(false, true)
						continue
					}
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

// nextAttempt reads the retry counter off a failed delivery and reports the
// counter value for the republished copy and whether another try is allowed.
func nextAttempt(headers amqp.Table) (int32, bool) {
	var count int32
	if v, ok := headers["x-retry-count"].(int32); ok {
		count = v
	}
	return count + 1, int(count) < maxRetries
}

var _ Queue = (*AMQPQueue)(nil)
