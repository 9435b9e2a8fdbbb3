// Package realtime fans out state-change messages to connected local
// clients over server-sent events. The broadcaster owns no state beyond
// its registry of open streams; it is a side channel, never a source of
// truth.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ristiko/smilodon/domain"
)

// subscriberBuffer is the per-stream message backlog. A subscriber that
// falls this far behind gets disconnected and has to reconnect.
const subscriberBuffer = 32

// Subscriber is one connected client stream.
type Subscriber struct {
	accountId uuid.UUID
	messages  chan domain.BroadcastMessage
}

// Messages returns the subscriber's stream. The channel is closed when
// the subscriber is dropped.
func (s *Subscriber) Messages() <-chan domain.BroadcastMessage {
	return s.messages
}

// Broadcaster delivers realtime messages to subscribed client streams,
// either to every stream or only to one account's streams.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID][]*Subscriber
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID][]*Subscriber),
	}
}

// Subscribe registers a new stream for an account.
func (b *Broadcaster) Subscribe(accountId uuid.UUID) *Subscriber {
	sub := &Subscriber{
		accountId: accountId,
		messages:  make(chan domain.BroadcastMessage, subscriberBuffer),
	}

	b.mu.Lock()
	b.subscribers[accountId] = append(b.subscribers[accountId], sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a stream and closes its channel. Calling it twice
// for the same subscriber is harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.accountId]
	for i, s := range subs {
		if s == sub {
			b.subscribers[sub.accountId] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[sub.accountId]) == 0 {
				delete(b.subscribers, sub.accountId)
			}
			close(sub.messages)
			return
		}
	}
}

// Broadcast sends a message to every stream of the target account, or to
// all streams when no target is set. A stream whose buffer is full is
// dropped instead of blocking the publisher; the client reconnects and
// reloads.
func (b *Broadcaster) Broadcast(msg domain.BroadcastMessage) {
	var overflowed []*Subscriber

	b.mu.RLock()
	if msg.TargetAccountId != uuid.Nil {
		for _, sub := range b.subscribers[msg.TargetAccountId] {
			if !trySend(sub, msg) {
				overflowed = append(overflowed, sub)
			}
		}
	} else {
		for _, subs := range b.subscribers {
			for _, sub := range subs {
				if !trySend(sub, msg) {
					overflowed = append(overflowed, sub)
				}
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range overflowed {
		log.Printf("Realtime: dropping slow subscriber for account %s", sub.accountId)
		b.Unsubscribe(sub)
	}
}

// trySend must only run under the registry read lock, so the channel
// cannot be closed out from under it.
func trySend(sub *Subscriber, msg domain.BroadcastMessage) bool {
	select {
	case sub.messages <- msg:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the number of open streams.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

// Close drops every subscriber. Used at shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.messages)
		}
	}
	b.subscribers = make(map[uuid.UUID][]*Subscriber)
}

func setSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// Handler returns the gin handler that streams broadcast messages to an
// authenticated client. resolveViewer extracts the account id placed in
// the context by the auth middleware.
func (b *Broadcaster) Handler(resolveViewer func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountId, ok := resolveViewer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
			return
		}

		setSSEHeaders(c)

		sub := b.Subscribe(accountId)
		defer b.Unsubscribe(sub)

		c.SSEvent("connected", gin.H{"accountId": accountId})
		c.Writer.Flush()

		log.Printf("Realtime: client connected for account %s", accountId)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				log.Printf("Realtime: client disconnected for account %s", accountId)
				return
			case msg, open := <-sub.messages:
				if !open {
					return
				}
				data, _ := json.Marshal(msg)
				c.SSEvent(string(msg.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}
