package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// listenTimeout bounds how long a LISTEN command may block when the first
// subscriber joins a channel. Without it, a stalled connection would block
// the subscribing SSE handler indefinitely.
const listenTimeout = 10 * time.Second

// defaultSubscriberBuffer is the per-subscription channel capacity. A
// subscriber that falls this far behind starts losing events; persistent
// events are recoverable through catch-up.
const defaultSubscriberBuffer = 64

// Subscription is one SSE stream's view of a channel. Read events from C
// until it is closed; the manager closes it on Unsubscribe or when the
// underlying LISTEN is torn down.
type Subscription struct {
	ID      string
	Channel string
	C       <-chan []byte

	ch chan []byte
}

// SubscriptionManager fans NOTIFY payloads out to in-process SSE
// subscribers. Each pod has one instance. The first subscriber on a channel
// starts the PG LISTEN, the last one leaving stops it.
type SubscriptionManager struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Subscription

	// listener for dynamic LISTEN/UNLISTEN (set after construction).
	listener   *NotifyListener
	listenerMu sync.RWMutex

	bufferSize int
}

// NewSubscriptionManager creates a new SubscriptionManager. bufferSize <= 0
// uses the default per-subscriber buffer.
func NewSubscriptionManager(bufferSize int) *SubscriptionManager {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &SubscriptionManager{
		channels:   make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// SetListener sets the NotifyListener for dynamic LISTEN/UNLISTEN. Called
// once during startup after both components are created.
func (m *SubscriptionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// Subscribe registers a subscriber for a channel and starts LISTEN if it is
// the first one. LISTEN completes before Subscribe returns, so a catch-up
// query issued afterwards cannot miss events published in between.
func (m *SubscriptionManager) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}

	sub := &Subscription{
		ID:      uuid.New().String(),
		Channel: channel,
		ch:      make(chan []byte, m.bufferSize),
	}
	sub.C = sub.ch

	m.mu.Lock()
	needsListen := false
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]*Subscription)
		needsListen = true
	}
	m.channels[channel][sub.ID] = sub
	m.mu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(ctx, listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("Failed to LISTEN on channel", "channel", channel, "error", err)
				m.dropChannel(channel, sub.ID)
				return nil, fmt.Errorf("LISTEN on channel %s: %w", channel, err)
			}
		}
	}

	return sub, nil
}

// dropChannel removes every subscriber from a channel after a LISTEN
// failure. Subscribers that joined between the map insert and the failed
// LISTEN skipped their own LISTEN because the channel already existed;
// their streams are closed so the clients reconnect and retry. The
// triggering subscription is excluded: its caller gets the error directly
// and never exposed the stream.
func (m *SubscriptionManager) dropChannel(channel, triggeringID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.channels[channel] {
		if id != triggeringID {
			slog.Warn("Closing orphaned subscriber after LISTEN failure",
				"subscription_id", id, "channel", channel)
			close(sub.ch)
		}
	}
	delete(m.channels, channel)
}

// Unsubscribe removes a subscription, closes its stream, and stops LISTEN
// if it was the channel's last subscriber.
func (m *SubscriptionManager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	subs, exists := m.channels[sub.Channel]
	if !exists {
		m.mu.Unlock()
		return
	}
	if _, registered := subs[sub.ID]; !registered {
		m.mu.Unlock()
		return
	}
	delete(subs, sub.ID)
	close(sub.ch)
	lastSubscriber := len(subs) == 0
	if lastSubscriber {
		delete(m.channels, sub.Channel)
	}
	m.mu.Unlock()

	if !lastSubscriber {
		return
	}

	m.listenerMu.RLock()
	l := m.listener
	m.listenerMu.RUnlock()
	if l == nil {
		return
	}

	// The goroutine re-checks the channel before issuing UNLISTEN so a
	// rapid unsubscribe/resubscribe cycle does not drop an active LISTEN.
	channel := sub.Channel
	go func() {
		m.mu.RLock()
		_, resubscribed := m.channels[channel]
		m.mu.RUnlock()
		if resubscribed {
			return
		}
		if err := l.Unsubscribe(context.Background(), channel); err != nil {
			slog.Error("Failed to UNLISTEN channel", "channel", channel, "error", err)
		}
	}()
}

// Broadcast delivers an event payload to every subscriber of the channel.
// Sends never block: a subscriber whose buffer is full loses the event and
// recovers persistent ones through catch-up.
func (m *SubscriptionManager) Broadcast(channel string, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.channels[channel] {
		select {
		case sub.ch <- payload:
		default:
			slog.Warn("Dropping event for slow subscriber",
				"subscription_id", sub.ID, "channel", channel)
		}
	}
}

// ActiveSubscriptions returns the total subscriber count across channels,
// for health reporting.
func (m *SubscriptionManager) ActiveSubscriptions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, subs := range m.channels {
		total += len(subs)
	}
	return total
}

// subscriberCount returns the number of subscribers for a channel.
// Unexported, used by tests to poll instead of sleeping.
func (m *SubscriptionManager) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channel])
}
