package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 10
	defaultFlushInterval = time.Second
	defaultSendRetries   = 2
	queueCapacity        = 1000
	secretHeader         = "X-TraceHub-Secret"
)

var hostname, _ = os.Hostname()

// Sender ships checkpoint traces to TraceHub in batches from a background
// task, so emitting a trace never blocks the caller's request path. When a
// Gate is attached, the sampling decision happens before anything is
// queued: a skipped event costs a map lookup and nothing else.
type Sender struct {
	baseURL       string
	secret        string
	batchSize     int
	flushInterval time.Duration
	retries       uint64
	gate          *Gate
	httpClient    *http.Client

	queue chan *db.Trace
	quit  chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

type SenderOption func(*Sender)

func WithSecret(secret string) SenderOption {
	return func(s *Sender) { s.secret = secret }
}

func WithGate(gate *Gate) SenderOption {
	return func(s *Sender) { s.gate = gate }
}

func WithBatchSize(size int) SenderOption {
	return func(s *Sender) { s.batchSize = size }
}

func WithFlushInterval(interval time.Duration) SenderOption {
	return func(s *Sender) { s.flushInterval = interval }
}

func WithSenderHTTPClient(httpClient *http.Client) SenderOption {
	return func(s *Sender) { s.httpClient = httpClient }
}

func NewSender(baseURL string, opts ...SenderOption) *Sender {
	sender := &Sender{
		baseURL:       trimSlash(baseURL),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		retries:       defaultSendRetries,
		httpClient:    &http.Client{Timeout: fetchTimeout},
		queue:         make(chan *db.Trace, queueCapacity),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sender)
	}

	go sender.run()

	return sender
}

// NewEntry builds a trace with the local hostname, the current time and a
// fresh dedup-breaking suffix filled in.
func NewEntry(sourceID, correlationID, direction, operation, endpoint string, data map[string]any) *db.Trace {
	return &db.Trace{
		SourceID:      sourceID,
		CorrelationID: correlationID,
		Timestamp:     float64(time.Now().UnixMilli()),
		Suffix:        uuid.NewString()[:8],
		Direction:     direction,
		Operation:     operation,
		Endpoint:      endpoint,
		Data:          data,
		Hostname:      hostname,
	}
}

// Send queues a trace for delivery. It returns false without performing
// any I/O when the attached gate decides against tracing, when the sender
// is closed, or when the queue is full: trace delivery is best-effort and
// must never stall the application.
func (s *Sender) Send(trace *db.Trace) bool {
	if s.gate != nil && !s.gate.ShouldTrace(trace.CorrelationID) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.queue <- trace:
		return true
	default:
		return false
	}
}

// Flush blocks until the queue has drained or ctx expires.
func (s *Sender) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(s.queue) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the background task after a final flush of whatever is
// already queued.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

func (s *Sender) run() {
	defer close(s.done)

	batch := make([]*db.Trace, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.sendBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case trace := <-s.queue:
			batch = append(batch, trace)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.quit:
			for {
				select {
				case trace := <-s.queue:
					batch = append(batch, trace)
				default:
					flush()
					return
				}
			}
		}
	}
}

// sendBatch posts one ingest batch, retrying transient failures with
// exponential backoff. Failures are logged and swallowed: losing a batch
// only means losing traces, and the host application must never notice.
func (s *Sender) sendBatch(batch []*db.Trace) {
	payload, err := json.Marshal(map[string]interface{}{"traces": batch})
	if err != nil {
		logger.Warn(context.Background(), "could not encode trace batch", zap.Error(err))
		return
	}

	operation := func() error {
		request, err := http.NewRequest(http.MethodPost, s.baseURL+"/ingest", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set("Content-Type", "application/json")
		if s.secret != "" {
			request.Header.Set(secretHeader, s.secret)
		}

		response, err := s.httpClient.Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()

		switch {
		case response.StatusCode == http.StatusOK:
			return nil
		case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
			// retrying with the same secret cannot help
			return backoff.Permanent(fmt.Errorf("ingest auth failed: %s", response.Status))
		default:
			return fmt.Errorf("ingest failed: %s", response.Status)
		}
	}

	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries))
	if err != nil {
		logger.Warn(context.Background(), "dropped trace batch",
			key.Batch.Field(len(batch)),
			zap.Error(err))
	}
}
