package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

func TestNewSyncEventBus(t *testing.T) {
	bus := NewSyncEventBus()

	if bus == nil {
		t.Fatal("NewSyncEventBus returned nil")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.SubscriberCount())
	}
	if bus.closed {
		t.Error("New event bus should not be closed")
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var received domain.Event
	var callCount int

	handler := func(event domain.Event) {
		received = event
		callCount++
	}

	subID := bus.Subscribe(domain.EventSongChanged, handler)
	if subID == "" {
		t.Fatal("Subscribe returned empty subscription ID")
	}

	track := domain.Track{ID: "test123", Title: "Test Track"}
	bus.Publish(domain.NewSongChangedEvent(track))

	if callCount != 1 {
		t.Errorf("Expected handler to be called once, got %d", callCount)
	}
	if received == nil {
		t.Fatal("Handler did not receive event")
	}
	if received.Type() != domain.EventSongChanged {
		t.Errorf("Expected EventSongChanged, got %s", received.Type())
	}

	receivedEvent := received.(domain.SongChangedEvent)
	if receivedEvent.Song.ID != "test123" {
		t.Errorf("Expected track ID test123, got %s", receivedEvent.Song.ID)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount1, callCount2, callCount3 int32

	handler1 := func(event domain.Event) { atomic.AddInt32(&callCount1, 1) }
	handler2 := func(event domain.Event) { atomic.AddInt32(&callCount2, 1) }
	handler3 := func(event domain.Event) { atomic.AddInt32(&callCount3, 1) }

	bus.Subscribe(domain.EventSongChanged, handler1)
	bus.Subscribe(domain.EventSongChanged, handler2)
	bus.Subscribe(domain.EventSongChanged, handler3)

	bus.Publish(domain.NewSongChangedEvent(domain.Track{ID: "test"}))

	if atomic.LoadInt32(&callCount1) != 1 {
		t.Errorf("Handler 1: expected 1 call, got %d", callCount1)
	}
	if atomic.LoadInt32(&callCount2) != 1 {
		t.Errorf("Handler 2: expected 1 call, got %d", callCount2)
	}
	if atomic.LoadInt32(&callCount3) != 1 {
		t.Errorf("Handler 3: expected 1 call, got %d", callCount3)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	handler := func(event domain.Event) { atomic.AddInt32(&callCount, 1) }

	subID := bus.Subscribe(domain.EventSongChanged, handler)

	bus.Publish(domain.NewSongChangedEvent(domain.Track{ID: "test"}))
	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected 1 call before unsubscribe, got %d", callCount)
	}

	bus.Unsubscribe(subID)

	bus.Publish(domain.NewSongChangedEvent(domain.Track{ID: "test"}))
	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected 1 call after unsubscribe, got %d", callCount)
	}
}

func TestUnsubscribeInvalidID(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	bus.Unsubscribe("invalid-id")
	bus.Unsubscribe("")
}

func TestSubscribeAll(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var receivedEvents []domain.Event
	var mu sync.Mutex

	handler := func(event domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		receivedEvents = append(receivedEvents, event)
	}

	bus.SubscribeAll(handler)

	track := domain.Track{ID: "test"}
	bus.Publish(domain.NewSongChangedEvent(track))
	bus.Publish(domain.NewPlaybackStateChangedEvent(domain.StatePaused))
	bus.Publish(domain.NewVolumeChangedEvent(0.5))

	mu.Lock()
	defer mu.Unlock()
	if len(receivedEvents) != 3 {
		t.Errorf("Expected 3 events, got %d", len(receivedEvents))
	}
}

func TestHasSubscribers(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	if bus.HasSubscribers(domain.EventSongChanged) {
		t.Error("Expected no subscribers initially")
	}

	bus.Subscribe(domain.EventSongChanged, func(event domain.Event) {})

	if !bus.HasSubscribers(domain.EventSongChanged) {
		t.Error("Expected subscribers after subscription")
	}
	if bus.HasSubscribers(domain.EventPlaybackStateChanged) {
		t.Error("Expected no subscribers for different event type")
	}
}

func TestHasSubscribersWithWildcard(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	bus.SubscribeAll(func(event domain.Event) {})

	if !bus.HasSubscribers(domain.EventSongChanged) {
		t.Error("Expected subscribers (wildcard) for EventSongChanged")
	}
	if !bus.HasSubscribers(domain.EventPlaybackStateChanged) {
		t.Error("Expected subscribers (wildcard) for EventPlaybackStateChanged")
	}
}

func TestHandlerPanic(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32

	panicHandler := func(event domain.Event) { panic("test panic") }
	normalHandler := func(event domain.Event) { atomic.AddInt32(&callCount, 1) }

	bus.Subscribe(domain.EventSongChanged, panicHandler)
	bus.Subscribe(domain.EventSongChanged, normalHandler)

	bus.Publish(domain.NewSongChangedEvent(domain.Track{ID: "test"}))

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected normal handler to be called despite panic, got %d calls", callCount)
	}
}

func TestClose(t *testing.T) {
	bus := NewSyncEventBus()

	handler := func(event domain.Event) {}
	bus.Subscribe(domain.EventSongChanged, handler)
	bus.SubscribeAll(handler)

	if bus.SubscriberCount() == 0 {
		t.Error("Expected subscribers before close")
	}

	if err := bus.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	bus.Publish(domain.NewSongChangedEvent(domain.Track{ID: "test"}))

	if err := bus.Close(); err == nil {
		t.Error("Expected error when closing already closed bus")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var eventCount int32
	bus.Subscribe(domain.EventSongChanged, func(event domain.Event) {
		atomic.AddInt32(&eventCount, 1)
	})

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	track := domain.Track{ID: "test"}

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				bus.Publish(domain.NewSongChangedEvent(track))
			}
		}()
	}
	wg.Wait()

	expectedCount := int32(numGoroutines * eventsPerGoroutine)
	if atomic.LoadInt32(&eventCount) != expectedCount {
		t.Errorf("Expected %d events, got %d", expectedCount, eventCount)
	}
}

func TestConcurrentSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	const numGoroutines = 10
	const subscriptionsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	handler := func(event domain.Event) {}

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < subscriptionsPerGoroutine; j++ {
				bus.Subscribe(domain.EventSongChanged, handler)
			}
		}()
	}
	wg.Wait()

	expectedCount := numGoroutines * subscriptionsPerGoroutine
	if bus.SubscriberCount() != expectedCount {
		t.Errorf("Expected %d subscribers, got %d", expectedCount, bus.SubscriberCount())
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var eventCount int32
	handler := func(event domain.Event) { atomic.AddInt32(&eventCount, 1) }

	const numPublishers = 5
	const numSubscribers = 5
	const eventsPerPublisher = 50

	var wg sync.WaitGroup
	wg.Add(numPublishers + numSubscribers)

	track := domain.Track{ID: "test"}

	for i := 0; i < numPublishers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				bus.Publish(domain.NewSongChangedEvent(track))
				time.Sleep(time.Microsecond)
			}
		}()
	}

	for i := 0; i < numSubscribers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Subscribe(domain.EventSongChanged, handler)
				time.Sleep(time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&eventCount) == 0 {
		t.Error("Expected to receive some events")
	}
}

func TestNilEvent(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	bus.Subscribe(domain.EventSongChanged, func(event domain.Event) {
		atomic.AddInt32(&callCount, 1)
	})

	bus.Publish(nil)

	if atomic.LoadInt32(&callCount) != 0 {
		t.Errorf("Handler should not be called for nil event, got %d calls", callCount)
	}
}

func TestNilHandler(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when subscribing with nil handler")
		}
	}()

	bus.Subscribe(domain.EventSongChanged, nil)
}

func TestDifferentEventTypes(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var songCount, posCount int32

	bus.Subscribe(domain.EventSongChanged, func(event domain.Event) {
		atomic.AddInt32(&songCount, 1)
	})
	bus.Subscribe(domain.EventPositionChanged, func(event domain.Event) {
		atomic.AddInt32(&posCount, 1)
	})

	track := domain.Track{ID: "test"}

	bus.Publish(domain.NewSongChangedEvent(track))
	if atomic.LoadInt32(&songCount) != 1 {
		t.Errorf("Expected 1 song changed event, got %d", songCount)
	}
	if atomic.LoadInt32(&posCount) != 0 {
		t.Errorf("Expected 0 position events, got %d", posCount)
	}

	bus.Publish(domain.NewPositionChangedEvent(5 * time.Second))
	if atomic.LoadInt32(&songCount) != 1 {
		t.Errorf("Expected 1 song changed event after position update, got %d", songCount)
	}
	if atomic.LoadInt32(&posCount) != 1 {
		t.Errorf("Expected 1 position event, got %d", posCount)
	}
}
