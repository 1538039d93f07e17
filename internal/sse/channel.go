// Package sse maintains the per-recipient registry of live server-push
// channels and performs best-effort fan-out of notification payloads.
package sse

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Push event names used on the wire.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
)

// handshakePayload is the opaque text sent on the connected event.
const handshakePayload = "Connected to notification stream"

// channelBuffer bounds how many undelivered payloads a channel may hold. A
// client that cannot drain this many events is treated as dead: the send
// fails and the channel is torn down, so one slow client never stalls
// fan-out to others.
const channelBuffer = 16

// ErrChannelClosed is returned by Send on a channel that has been closed.
var ErrChannelClosed = errors.New("sse: channel closed")

// ErrBufferFull is returned by Send when the client is not draining events.
var ErrBufferFull = errors.New("sse: channel buffer full")

// Envelope is a single named push event.
type Envelope struct {
	Event string
	Data  any
}

// Channel is one open push connection, owned by exactly one recipient. The
// transport layer drains Events until Done is closed. All close triggers
// (peer completion, idle timeout, transport error, failed send, forced
// disconnect) converge on the registry's single unregister routine.
type Channel struct {
	id          string
	recipientID string

	events chan Envelope
	done   chan struct{}

	closeOnce  sync.Once
	idleTimer  *time.Timer
	unregister func(c *Channel, reason string)
}

func newChannel(recipientID string, unregister func(*Channel, string)) *Channel {
	return &Channel{
		id:          uuid.NewString(),
		recipientID: recipientID,
		events:      make(chan Envelope, channelBuffer),
		done:        make(chan struct{}),
		unregister:  unregister,
	}
}

// ID returns the channel's unique identifier.
func (c *Channel) ID() string { return c.id }

// RecipientID returns the id of the recipient owning this channel.
func (c *Channel) RecipientID() string { return c.recipientID }

// Events is the stream the transport layer forwards to the client.
func (c *Channel) Events() <-chan Envelope { return c.events }

// Done is closed when the channel is torn down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Send enqueues a payload without blocking. A closed channel or a full
// buffer counts as a failed send.
func (c *Channel) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.events <- env:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrBufferFull
	}
}

// Complete reports that the peer closed the connection normally.
func (c *Channel) Complete() {
	c.unregister(c, "completed")
}

// Fail reports a transport fault on the connection.
func (c *Channel) Fail(err error) {
	reason := "transport error"
	if err != nil {
		reason = "transport error: " + err.Error()
	}
	c.unregister(c, reason)
}

// armIdleTimeout starts the fixed idle window after which the channel is
// closed server-side.
func (c *Channel) armIdleTimeout(d time.Duration) {
	c.idleTimer = time.AfterFunc(d, func() {
		c.unregister(c, "idle timeout")
	})
}

// shutdown releases the channel's resources. Safe to call more than once;
// only the first call has effect.
func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
		close(c.done)
	})
}
