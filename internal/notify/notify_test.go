package notify

import (
	"testing"
	"time"

	"github.com/muid-io/tracehub/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	notifier := NewNotifier()

	queue, unsubscribe := notifier.Subscribe("corr-1")
	defer unsubscribe()

	notifier.Publish(&db.Trace{CorrelationID: "corr-1", Endpoint: "/api/a"})
	notifier.Publish(&db.Trace{CorrelationID: "corr-2", Endpoint: "/api/b"})

	select {
	case trace := <-queue:
		assert.Equal(t, "/api/a", trace.Endpoint)
	default:
		t.Fatal("expected a delivered trace")
	}

	select {
	case trace := <-queue:
		t.Fatalf("unexpected trace for %s", trace.CorrelationID)
	default:
	}
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	notifier := NewNotifier()

	queue, unsubscribe := notifier.Subscribe("corr-1")
	unsubscribe()

	_, open := <-queue
	assert.False(t, open)

	correlations, queues := notifier.SubscriberCounts()
	assert.Zero(t, correlations)
	assert.Zero(t, queues)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	notifier := NewNotifier()

	queue, unsubscribe := notifier.Subscribe("corr-1")
	defer unsubscribe()

	for i := 0; i < queueSize+1; i++ {
		notifier.Publish(&db.Trace{CorrelationID: "corr-1"})
	}

	correlations, _ := notifier.SubscriberCounts()
	assert.Zero(t, correlations)

	// queue was closed after delivering its buffered traces
	count := 0
	for range queue {
		count++
	}
	require.Equal(t, queueSize, count)
}

func TestSweepDropsStaleEntries(t *testing.T) {
	notifier := NewNotifier()

	notifier.Subscribe("corr-1")
	notifier.Sweep(time.Nanosecond)

	time.Sleep(time.Millisecond)
	notifier.Sweep(time.Nanosecond)

	correlations, _ := notifier.SubscriberCounts()
	assert.Zero(t, correlations)
}
