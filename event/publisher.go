package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// SubscriberBufferSize is the buffer size for subscriber channels.
	SubscriberBufferSize = 100

	// progressInterval is the minimum spacing between delivered progress
	// events per execution. Busy suites finish steps far faster than any
	// UI needs updates.
	progressInterval = 500 * time.Millisecond
)

// Publisher fans execution events out to live subscribers, filtered by
// project id. Delivery is broadcast with non-blocking sends: a subscriber
// that stops draining its channel loses events but never stalls delivery
// to anyone else. There is no replay; a subscriber only sees events
// published after it subscribed.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	logger *zap.SugaredLogger
}

// NewPublisher creates an event publisher. The logger must not be nil.
func NewPublisher(logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		subscribers: make(map[string][]chan Event),
		limiters:    make(map[string]*rate.Limiter),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for one project's events and returns the
// receive channel plus an unsubscribe function. The channel is buffered so
// publishing never blocks; it is not closed on unsubscribe.
func (p *Publisher) Subscribe(projectID string) (<-chan Event, func()) {
	ch := make(chan Event, SubscriberBufferSize)

	p.mu.Lock()
	p.subscribers[projectID] = append(p.subscribers[projectID], ch)
	p.mu.Unlock()

	p.logger.Debugw("Subscriber registered", "project_id", projectID)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.remove(projectID, ch)
		})
	}
	return ch, unsubscribe
}

func (p *Publisher) remove(projectID string, ch chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[projectID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(p.subscribers[projectID]) == 0 {
		delete(p.subscribers, projectID)
	}
}

// Publish delivers the event to every current subscriber of its project.
// Progress events are throttled per execution id; started and terminal
// events always go through. Sends are non-blocking: a full subscriber
// channel drops the event for that subscriber only.
func (p *Publisher) Publish(e Event) {
	if e.Kind == KindProgress && !p.allowProgress(e.ExecutionID) {
		return
	}
	if e.Terminal() {
		p.dropLimiter(e.ExecutionID)
	}

	p.mu.RLock()
	subs := p.subscribers[e.ProjectID]
	delivered := 0
	for _, ch := range subs {
		select {
		case ch <- e:
			delivered++
		default:
			// Subscriber is not draining; skip it.
		}
	}
	p.mu.RUnlock()

	p.logger.Debugw("Published execution event",
		"execution_id", e.ExecutionID,
		"kind", e.Kind,
		"project_id", e.ProjectID,
		"subscribers", len(subs),
		"delivered", delivered,
	)
}

// SubscriberCount returns the number of live subscribers for a project.
func (p *Publisher) SubscriberCount(projectID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[projectID])
}

func (p *Publisher) allowProgress(executionID string) bool {
	p.limiterMu.Lock()
	defer p.limiterMu.Unlock()

	limiter, ok := p.limiters[executionID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(progressInterval), 1)
		p.limiters[executionID] = limiter
	}
	return limiter.Allow()
}

func (p *Publisher) dropLimiter(executionID string) {
	p.limiterMu.Lock()
	defer p.limiterMu.Unlock()
	delete(p.limiters, executionID)
}
