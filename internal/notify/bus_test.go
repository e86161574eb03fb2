package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func TestBus_DeliversOncePerEvent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls atomic.Int32
	bus.Subscribe(Any(), func(Event) { calls.Add(1) })

	// Both paths match, still one delivery.
	bus.Publish(NewEvent("/a", "/b"))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_PredicateFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var rootHits, otherHits atomic.Int32
	bus.Subscribe(PathIs("/root"), func(Event) { rootHits.Add(1) })
	bus.Subscribe(PathIs("/other"), func(Event) { otherHits.Add(1) })

	bus.Publish(Affected("/root/a"))

	require.Eventually(t, func() bool { return rootHits.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), otherHits.Load())
}

func TestBus_PublishOrderPerSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	bus.Subscribe(Any(), func(ev Event) {
		mu.Lock()
		got = append(got, ev.Paths()[0])
		mu.Unlock()
	})

	want := []string{"/1", "/2", "/3", "/4", "/5"}
	for _, p := range want {
		bus.Publish(NewEvent(p))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, waitFor, tick)
	mu.Lock()
	assert.Equal(t, want, got)
	mu.Unlock()
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var good atomic.Int32
	bus.Subscribe(Any(), func(Event) { panic("handler failure") })
	bus.Subscribe(Any(), func(Event) { good.Add(1) })

	bus.Publish(NewEvent("/x"))
	bus.Publish(NewEvent("/y"))

	require.Eventually(t, func() bool { return good.Load() == 2 }, waitFor, tick)
}

func TestBus_PanickingPredicate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var good atomic.Int32
	bus.Subscribe(func(string) bool { panic("bad predicate") }, func(Event) {})
	bus.Subscribe(Any(), func(Event) { good.Add(1) })

	bus.Publish(NewEvent("/x"))
	require.Eventually(t, func() bool { return good.Load() == 1 }, waitFor, tick)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls atomic.Int32
	sub := bus.Subscribe(Any(), func(Event) { calls.Add(1) })
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(NewEvent("/x"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_UnsubscribeFromInsideHandler(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls atomic.Int32
	var sub *Subscription
	ready := make(chan struct{})
	sub = bus.Subscribe(Any(), func(Event) {
		<-ready
		calls.Add(1)
		sub.Unsubscribe()
	})
	close(ready)

	bus.Publish(NewEvent("/1"))
	bus.Publish(NewEvent("/2"))
	bus.Publish(NewEvent("/3"))

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_UnsubscribeWhileDeliveryInFlight(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	sub := bus.Subscribe(Any(), func(Event) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	bus.Publish(NewEvent("/1"))
	<-started
	bus.Publish(NewEvent("/2"))

	done := make(chan struct{})
	go func() {
		bus.Unsubscribe(sub)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Unsubscribe blocked on an in-flight handler")
	}
	close(release)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(Any(), func(Event) {})
			bus.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			bus.Publish(NewEvent("/x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func subscriptionGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "fexplorer_subscriptions" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("fexplorer_subscriptions not registered")
	return 0
}

func TestBus_SubscriptionGaugeMatchesCount(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(keep bool) {
			defer wg.Done()
			sub := bus.Subscribe(Any(), func(Event) {})
			if !keep {
				bus.Unsubscribe(sub)
			}
		}(i%5 == 0)
	}
	wg.Wait()

	require.Equal(t, 10, bus.SubscriberCount())
	assert.Equal(t, float64(10), subscriptionGauge(t))

	bus.Close()
	assert.Equal(t, float64(0), subscriptionGauge(t))
}

func TestBus_EmptyEventIgnored(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls atomic.Int32
	bus.Subscribe(Any(), func(Event) { calls.Add(1) })
	bus.Publish(NewEvent())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(Any(), func(Event) {})
	bus.Close()
	assert.Equal(t, 0, bus.SubscriberCount())
	// Unsubscribing after Close is a no-op.
	sub.Unsubscribe()
}
