package queue_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bulkwave/messaging-backend/internal/queue"
)

func TestInMemoryQueueDeliversToSubscriber(t *testing.T) {
	q := queue.NewInMemoryQueue(zerolog.Nop())

	done := make(chan queue.DispatchJob, 1)
	q.Subscribe(queue.TopicDispatch, func(body []byte) error {
		done <- queue.DispatchJob{CampaignID: 7}
		return nil
	})

	if err := q.Publish(queue.TopicDispatch, queue.DispatchJob{CampaignID: 7}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case job := <-done:
		if job.CampaignID != 7 {
			t.Errorf("expected campaign 7, got %d", job.CampaignID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestInMemoryQueueRetriesFailedJobs(t *testing.T) {
	q := queue.NewInMemoryQueue(zerolog.Nop())

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	q.Subscribe(queue.TopicDispatch, func(body []byte) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	if err := q.Publish(queue.TopicDispatch, queue.DispatchJob{CampaignID: 1}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestInMemoryQueueRejectsUnknownTopic(t *testing.T) {
	q := queue.NewInMemoryQueue(zerolog.Nop())
	if err := q.Publish("no.such.topic", queue.DispatchJob{}); err == nil {
		t.Fatal("expected publish without subscribers to fail")
	}
}
