package notify

import (
	"sync"
	"sync/atomic"

	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/metrics"
)

// Bus is a process-wide publish/subscribe hub for affected-path events.
//
// Each subscription owns a delivery goroutine and an unbounded queue, so a
// slow or panicking handler never delays the others, and every subscriber
// sees events in the order they were published.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      uint64
	bus     *Bus
	pred    Predicate
	handler Handler

	queueMu sync.Mutex
	queue   []Event
	wake    chan struct{}
	done    chan struct{}

	// deliverMu is held from the closed check until the handler returns.
	deliverMu sync.Mutex
	closed    atomic.Bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers handler for events where at least one affected path
// satisfies pred. The handler runs once per matching event.
func (b *Bus) Subscribe(pred Predicate, handler Handler) *Subscription {
	if pred == nil {
		pred = Any()
	}

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		bus:     b,
		pred:    pred,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.subs[sub.id] = sub
	count := len(b.subs)
	// The gauge is set under mu so concurrent changes cannot reorder it.
	metrics.SetSubscriptions(count)
	b.mu.Unlock()

	debug.Log(debug.NOTIFY, "subscribe id=%d (total %d)", sub.id, count)

	go sub.run()
	return sub
}

// Unsubscribe removes sub. It never blocks on a running handler and is safe
// to call from inside that handler. Once it returns no further delivery to
// sub is started. Calling it more than once is harmless.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.bus != b {
		return
	}

	b.mu.Lock()
	delete(b.subs, sub.id)
	count := len(b.subs)
	metrics.SetSubscriptions(count)
	b.mu.Unlock()

	if sub.stop() {
		debug.Log(debug.NOTIFY, "unsubscribe id=%d (total %d)", sub.id, count)
	}
}

// Publish delivers ev asynchronously to every matching subscription.
func (b *Bus) Publish(ev Event) {
	if ev.Empty() {
		return
	}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	metrics.EventPublished()
	debug.Log(debug.NOTIFY, "publish %v to %d candidates", ev.paths, len(targets))

	for _, sub := range targets {
		if sub.matches(ev) {
			sub.enqueue(ev)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	metrics.SetSubscriptions(0)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Unsubscribe is shorthand for s.bus.Unsubscribe(s).
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription) matches(ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanicked()
			logging.Named("notify").Error("subscription predicate panicked",
				logging.Any("panic", r), logging.Strings("paths", ev.paths))
			ok = false
		}
	}()
	for _, p := range ev.paths {
		if s.pred(p) {
			return true
		}
	}
	return false
}

func (s *Subscription) enqueue(ev Event) {
	s.queueMu.Lock()
	if s.closed.Load() {
		s.queueMu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (Event, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return ev, true
}

// stop marks the subscription closed and ends its goroutine. It reports
// whether this call did the closing.
func (s *Subscription) stop() bool {
	// If no delivery holds deliverMu, flip the flag under it so a worker that
	// is about to check cannot slip past. Otherwise a delivery is already in
	// flight and the next check sees the flag.
	locked := s.deliverMu.TryLock()
	first := s.closed.CompareAndSwap(false, true)
	if locked {
		s.deliverMu.Unlock()
	}
	if !first {
		return false
	}

	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()
	close(s.done)
	return true
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			ev, ok := s.pop()
			if !ok {
				break
			}
			if !s.deliver(ev) {
				return
			}
		}
	}
}

func (s *Subscription) deliver(ev Event) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.closed.Load() {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanicked()
			logging.Named("notify").Error("subscription handler panicked",
				logging.Any("panic", r), logging.Strings("paths", ev.paths))
		}
	}()
	s.handler(ev)
	return true
}
