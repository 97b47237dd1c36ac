package progress

import (
	"log"
	"sync"

	"github.com/adimov-eth/transcribe/internal/types"
)

// subscriberBuffer bounds how many undelivered events a slow
// subscriber may hold before further publishes to it are dropped
const subscriberBuffer = 16

// Bus fans progress events out to per-job subscribers. Delivery is
// best-effort: subscribers that join late miss earlier events and
// slow subscribers drop events rather than block the publisher.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]chan types.ProgressEvent
}

// NewBus creates an empty progress bus
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string][]chan types.ProgressEvent),
	}
}

// Subscribe registers interest in one job's events
func (b *Bus) Subscribe(jobID string) <-chan types.ProgressEvent {
	ch := make(chan types.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	b.topics[jobID] = append(b.topics[jobID], ch)
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(jobID string, ch <-chan types.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[jobID]
	for i, sub := range subs {
		if sub == ch {
			b.topics[jobID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(b.topics[jobID]) == 0 {
		delete(b.topics, jobID)
	}
}

// Publish delivers an event to every current subscriber of its job
func (b *Bus) Publish(event types.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.topics[event.JobID] {
		select {
		case sub <- event:
		default:
			log.Printf("Dropping progress event for job %s: slow subscriber", event.JobID)
		}
	}
}

// SubscriberCount returns the number of subscribers for a job
func (b *Bus) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[jobID])
}
