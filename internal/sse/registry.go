package sse

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/metrics"
)

// DefaultIdleTimeout is the fixed idle window for push channels.
const DefaultIdleTimeout = 30 * time.Minute

// Registry holds, per recipient, the set of currently open push channels.
// It is the only state shared across dispatcher workers, connection
// lifecycle callbacks, and fan-out callers, and is safe for concurrent use
// without external locking. A recipient key exists in the map if and only if
// it has at least one open channel.
type Registry struct {
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	channels map[string][]*Channel
}

// NewRegistry creates an empty Registry. idleTimeout <= 0 falls back to
// DefaultIdleTimeout.
func NewRegistry(idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		idleTimeout: idleTimeout,
		logger:      logger,
		channels:    make(map[string][]*Channel),
	}
}

// OpenChannel creates and registers a new push channel for recipientID and
// sends the connected handshake. If the handshake send fails the channel is
// immediately unregistered and closed; the handle is returned either way and
// the caller owns forwarding it to the transport layer.
func (r *Registry) OpenChannel(recipientID string) *Channel {
	ch := newChannel(recipientID, r.unregister)

	r.mu.Lock()
	r.channels[recipientID] = append(r.channels[recipientID], ch)
	count := len(r.channels[recipientID])
	r.mu.Unlock()

	metrics.OpenChannels.Inc()
	ch.armIdleTimeout(r.idleTimeout)

	r.logger.Info("push channel opened",
		"recipient_id", recipientID, "channel_id", ch.ID(), "connections", count)

	if err := ch.Send(Envelope{Event: EventConnected, Data: handshakePayload}); err != nil {
		r.unregister(ch, "handshake failed: "+err.Error())
	}
	return ch
}

// SendToUser delivers payload to every open channel of recipientID. A
// recipient with no live session is a no-op, not an error. Each failed send
// tears down that channel only; delivery to the remaining channels proceeds.
func (r *Registry) SendToUser(recipientID string, payload any) {
	r.mu.Lock()
	chans := append([]*Channel(nil), r.channels[recipientID]...)
	r.mu.Unlock()

	if len(chans) == 0 {
		return
	}

	env := Envelope{Event: EventNotification, Data: payload}
	for _, ch := range chans {
		if err := ch.Send(env); err != nil {
			metrics.FanoutSendFailures.Inc()
			r.unregister(ch, "send failed: "+err.Error())
		}
	}
}

// SendToUsers delivers payload to each recipient in turn. There is no
// atomicity across recipients.
func (r *Registry) SendToUsers(recipientIDs []string, payload any) {
	for _, id := range recipientIDs {
		r.SendToUser(id, payload)
	}
}

// BroadcastToAll delivers payload to every recipient registered at call
// time. Recipients connecting during the broadcast are not guaranteed to
// receive it.
func (r *Registry) BroadcastToAll(payload any) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.logger.Info("broadcasting to all connected users", "users", len(ids))
	for _, id := range ids {
		r.SendToUser(id, payload)
	}
}

// ConnectionCount returns the number of open channels for recipientID.
func (r *Registry) ConnectionCount(recipientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[recipientID])
}

// TotalConnectedUsers returns the number of recipients with at least one
// open channel.
func (r *Registry) TotalConnectedUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// ConnectedRecipients returns a snapshot of recipient ids with open channels.
func (r *Registry) ConnectedRecipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}

// DisconnectUser force-closes all channels of recipientID.
func (r *Registry) DisconnectUser(recipientID string) {
	r.mu.Lock()
	chans := append([]*Channel(nil), r.channels[recipientID]...)
	r.mu.Unlock()

	for _, ch := range chans {
		r.unregister(ch, "disconnected by server")
	}
}

// DisconnectAll force-closes every channel of every recipient.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	var chans []*Channel
	for _, list := range r.channels {
		chans = append(chans, list...)
	}
	r.mu.Unlock()

	r.logger.Info("disconnecting all users", "channels", len(chans))
	for _, ch := range chans {
		r.unregister(ch, "disconnected by server")
	}
}

// unregister is the single close routine every disconnect path converges on:
// remove the channel from its recipient's collection, prune the recipient
// key when the collection empties, then release the channel. Idempotent per
// channel.
func (r *Registry) unregister(ch *Channel, reason string) {
	r.mu.Lock()
	list, ok := r.channels[ch.recipientID]
	removed := false
	if ok {
		for i, c := range list {
			if c == ch {
				list = append(list[:i], list[i+1:]...)
				removed = true
				break
			}
		}
		if removed {
			if len(list) == 0 {
				delete(r.channels, ch.recipientID)
			} else {
				r.channels[ch.recipientID] = list
			}
		}
	}
	remaining := len(list)
	r.mu.Unlock()

	if removed {
		metrics.OpenChannels.Dec()
		r.logger.Info("push channel closed",
			"recipient_id", ch.recipientID,
			"channel_id", ch.ID(),
			"reason", reason,
			"remaining", remaining,
		)
	}
	ch.shutdown()
}
