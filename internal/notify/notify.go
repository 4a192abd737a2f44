// Package notify fans incoming traces out to live stream subscribers.
package notify

import (
	"sync"
	"time"

	"github.com/muid-io/tracehub/internal/db"
)

const queueSize = 100

// Notifier is a per-correlation subscriber registry. Publishing never
// blocks the ingest path: a subscriber that cannot keep up is dropped.
type Notifier struct {
	mu         sync.Mutex
	subs       map[string][]chan *db.Trace
	lastActive map[string]time.Time
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs:       make(map[string][]chan *db.Trace),
		lastActive: make(map[string]time.Time),
	}
}

// Subscribe registers interest in a correlation id and returns the trace
// channel plus an unsubscribe function. The channel is closed when the
// subscriber is dropped or unsubscribes.
func (n *Notifier) Subscribe(correlationID string) (<-chan *db.Trace, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := make(chan *db.Trace, queueSize)
	n.subs[correlationID] = append(n.subs[correlationID], queue)
	n.lastActive[correlationID] = time.Now()

	return queue, func() { n.remove(correlationID, queue) }
}

// Publish delivers a trace to every subscriber of its correlation id,
// dropping subscribers whose queues are full.
func (n *Notifier) Publish(trace *db.Trace) {
	n.mu.Lock()
	defer n.mu.Unlock()

	queues, ok := n.subs[trace.CorrelationID]
	if !ok {
		return
	}

	var full []chan *db.Trace
	for _, queue := range queues {
		select {
		case queue <- trace:
		default:
			full = append(full, queue)
		}
	}

	for _, queue := range full {
		n.removeLocked(trace.CorrelationID, queue)
	}
}

// SubscriberCounts returns the number of watched correlations and the
// total subscriber queues, for the stats endpoint.
func (n *Notifier) SubscriberCounts() (correlations int, queues int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, qs := range n.subs {
		queues += len(qs)
	}
	return len(n.subs), queues
}

// Sweep drops registry entries with no activity since the cutoff.
func (n *Notifier) Sweep(olderThan time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	for correlationID, ts := range n.lastActive {
		if ts.After(cutoff) {
			continue
		}
		for _, queue := range n.subs[correlationID] {
			close(queue)
		}
		delete(n.subs, correlationID)
		delete(n.lastActive, correlationID)
	}
}

func (n *Notifier) remove(correlationID string, queue chan *db.Trace) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(correlationID, queue)
}

func (n *Notifier) removeLocked(correlationID string, queue chan *db.Trace) {
	queues := n.subs[correlationID]
	for i, q := range queues {
		if q == queue {
			n.subs[correlationID] = append(queues[:i], queues[i+1:]...)
			close(q)
			break
		}
	}

	if len(n.subs[correlationID]) == 0 {
		delete(n.subs, correlationID)
		delete(n.lastActive, correlationID)
	}
}
