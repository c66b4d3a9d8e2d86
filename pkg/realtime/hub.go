package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"campfire/internal/util"
)

const (
	defaultTopic   = "campfire:events"
	subscribeQueue = 64
)

// Hub fans change events out to channel subscribers. With a Redis client
// it also bridges events across instances over pub/sub; with nil Redis it
// runs in single-instance local mode.
type Hub struct {
	instanceID string
	topic      string
	rdb        *redis.Client

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Subscription is one listener on a channel's event stream. Events arrive
// on C; a slow consumer loses events rather than blocking the hub, which
// is safe because events are hints, not state.
type Subscription struct {
	C chan ChangeEvent

	hub       *Hub
	channelID string
}

type wireEnvelope struct {
	Instance string      `json:"instance"`
	Event    ChangeEvent `json:"event"`
}

// NewHub creates a hub. rdb may be nil for single-instance deployments.
func NewHub(rdb *redis.Client, topic string) *Hub {
	if topic == "" {
		topic = defaultTopic
	}
	h := &Hub{
		instanceID: util.NewID(),
		topic:      topic,
		rdb:        rdb,
		subs:       make(map[string]map[*Subscription]struct{}),
		done:       make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	if rdb != nil {
		go h.bridgeLoop(ctx)
	} else {
		close(h.done)
	}
	return h
}

// Subscribe registers a listener for one channel's events.
func (h *Hub) Subscribe(channelID string) *Subscription {
	sub := &Subscription{
		C:         make(chan ChangeEvent, subscribeQueue),
		hub:       h,
		channelID: channelID,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.C)
		return sub
	}
	set, ok := h.subs[channelID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[channelID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close removes the subscription from its hub.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.channelID]
	if !ok {
		return
	}
	if _, member := set[s]; !member {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.channelID)
	}
	close(s.C)
}

// Publish delivers the event to local subscribers and, when bridged,
// announces it to peer instances. Cross-instance delivery is best effort.
func (h *Hub) Publish(ctx context.Context, ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.deliverLocal(ev)
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(wireEnvelope{Instance: h.instanceID, Event: ev})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(ctx, h.topic, payload).Err(); err != nil {
		slog.Warn("event bridge publish failed", "err", err, "entity", ev.Entity)
	}
}

// Shutdown stops the bridge and closes every subscription.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			close(sub.C)
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
}

func (h *Hub) deliverLocal(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.ChannelID] {
		select {
		case sub.C <- ev:
		default:
		}
	}
}

func (h *Hub) bridgeLoop(ctx context.Context) {
	defer close(h.done)
	pubsub := h.rdb.Subscribe(ctx, h.topic)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("event bridge payload malformed", "err", err)
				continue
			}
			// Local publishes were already delivered directly.
			if env.Instance == h.instanceID {
				continue
			}
			h.deliverLocal(env.Event)
		}
	}
}
