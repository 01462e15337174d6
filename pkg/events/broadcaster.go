// Package events publishes sync progress to interested subscribers such as a
// UI or the CLI progress output.
package events

import (
	"sync"
	"time"
)

// Event types.
const (
	AssetUpserted = "asset-upserted"
	FileEnqueued  = "file-enqueued"
	FileProgress  = "file-progress"
	FileCompleted = "file-completed"
	FileFailed    = "file-failed"
	SyncFinished  = "sync-finished"
)

// Event is one sync progress notification. Only the fields relevant to Type
// are set.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Asset     string    `json:"asset,omitempty"`
	File      string    `json:"file,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Counts    *Counts   `json:"counts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Counts are the delta counts carried by a sync-finished event.
type Counts struct {
	AssetsUpserted int `json:"assets_upserted"`
	Enqueued       int `json:"enqueued"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
}

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 256

// Broadcaster fans events out to subscribers.
// A nil *Broadcaster accepts and discards events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
