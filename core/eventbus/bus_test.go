package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/polyglotgames/dialogue-core/core/events"
)

const testTopic Topic = "test"

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := New()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		bus.Subscribe(testTopic, func(events.Event) { wg.Done() })
	}

	bus.Publish(testTopic, events.NewTurnCancelled("turn-1"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("not all subscribers were notified")
	}
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	bus := New()
	bus.Publish(testTopic, events.NewTurnCancelled("turn-1"))
}

func TestUnsubscribedHandlerIsNotInvoked(t *testing.T) {
	bus := New()

	invoked := make(chan struct{}, 1)
	sub := bus.Subscribe(testTopic, func(events.Event) { invoked <- struct{}{} })
	bus.Unsubscribe(sub)

	bus.Publish(testTopic, events.NewTurnCancelled("turn-1"))

	select {
	case <-invoked:
		t.Fatalf("unsubscribed handler was invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	bus := New()

	survived := make(chan struct{}, 1)
	bus.Subscribe(testTopic, func(events.Event) { panic("handler bug") })
	bus.Subscribe(testTopic, func(events.Event) { survived <- struct{}{} })

	bus.Publish(testTopic, events.NewTurnCancelled("turn-1"))

	select {
	case <-survived:
	case <-time.After(2 * time.Second):
		t.Fatalf("healthy subscriber starved by a panicking one")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New()

	release := make(chan struct{})
	bus.Subscribe(testTopic, func(events.Event) { <-release })

	published := make(chan struct{})
	go func() {
		bus.Publish(testTopic, events.NewTurnCancelled("turn-1"))
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	close(release)
}
