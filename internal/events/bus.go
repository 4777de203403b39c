package events

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
)

// Type discriminates the events the core publishes to its observers.
type Type int

const (
	// CheckFinished is published after every manifest check, successful or not.
	CheckFinished Type = iota
	// DownloadProgress is published on every download state transition and
	// on (debounced) progress changes.
	DownloadProgress
	// NewPackageAvailable is published when a check finds a package newer
	// than the installed build.
	NewPackageAvailable
)

// Event is the single payload type carried on the bus. Which fields are
// meaningful depends on Type.
type Event struct {
	Type     Type
	Category catalog.Category
	Error    bool

	Checksum string
	State    catalog.DownloadState
	Progress int

	Package *catalog.Package
}

// HandlerFunc consumes an event. Returning true marks the event as fully
// handled and stops delivery to lower-priority subscribers; a foreground
// view uses this to suppress the background notification for the same
// event.
type HandlerFunc func(Event) bool

type subscription struct {
	id       string
	priority int
	seq      int
	fn       HandlerFunc
}

// Bus is an ordered, interceptable broadcast channel. Delivery is
// synchronous and serialized, so events published by a single worker reach
// every subscriber in publish order.
type Bus struct {
	mux        sync.Mutex
	publishMux sync.Mutex
	subs       []subscription
	nextSeq    int
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn with the given priority and returns the
// subscription id. Higher priority receives events first; equal priorities
// keep subscription order.
func (b *Bus) Subscribe(priority int, fn HandlerFunc) string {
	b.mux.Lock()
	defer b.mux.Unlock()

	id := uuid.New().String()
	b.subs = append(b.subs, subscription{id: id, priority: priority, seq: b.nextSeq, fn: fn})
	b.nextSeq++
	sort.SliceStable(b.subs, func(i, j int) bool {
		if b.subs[i].priority != b.subs[j].priority {
			return b.subs[i].priority > b.subs[j].priority
		}
		return b.subs[i].seq < b.subs[j].seq
	})
	return id
}

// Unsubscribe removes the subscription with the given id. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mux.Lock()
	defer b.mux.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to subscribers in priority order, stopping as
// soon as one reports the event handled. Delivery is serialized on a single
// lock, so Publish is not reentrant: a handler must not publish from inside
// its callback, directly or transitively, or it deadlocks.
func (b *Bus) Publish(ev Event) {
	b.mux.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mux.Unlock()

	// Serialize delivery so per-package event ordering holds even when a
	// subscriber is slow.
	b.publishMux.Lock()
	defer b.publishMux.Unlock()

	for _, sub := range subs {
		if sub.fn(ev) {
			return
		}
	}
}
