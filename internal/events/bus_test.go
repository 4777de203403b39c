package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PriorityOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(0, func(Event) bool {
		order = append(order, "background")
		return false
	})
	bus.Subscribe(10, func(Event) bool {
		order = append(order, "foreground")
		return false
	})
	bus.Subscribe(0, func(Event) bool {
		order = append(order, "background-2")
		return false
	})

	bus.Publish(Event{Type: CheckFinished})

	assert.Equal(t, []string{"foreground", "background", "background-2"}, order)
}

func TestBus_Interception(t *testing.T) {
	bus := NewBus()

	backgroundCalled := false
	bus.Subscribe(0, func(Event) bool {
		backgroundCalled = true
		return false
	})
	bus.Subscribe(10, func(Event) bool {
		return true
	})

	bus.Publish(Event{Type: NewPackageAvailable})

	assert.False(t, backgroundCalled, "handled event must not reach lower-priority subscribers")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(0, func(Event) bool {
		calls++
		return false
	})

	bus.Publish(Event{Type: CheckFinished})
	bus.Unsubscribe(id)
	bus.Publish(Event{Type: CheckFinished})

	assert.Equal(t, 1, calls)

	// Unknown ids are ignored.
	bus.Unsubscribe("no-such-subscription")
}

func TestBus_SerializedDelivery(t *testing.T) {
	bus := NewBus()

	var mux sync.Mutex
	var got []int
	bus.Subscribe(0, func(ev Event) bool {
		mux.Lock()
		got = append(got, ev.Progress)
		mux.Unlock()
		return false
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: DownloadProgress, Checksum: "aaa", Progress: i})
		}
	}()
	wg.Wait()

	require.Len(t, got, 100)
	for i, progress := range got {
		assert.Equal(t, i, progress)
	}
}
