package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus decouples channels from the gateway. Channels push inbound
// messages; the gateway and scheduler push replies and notifications
// outbound, and each transport subscribes for its own deliveries.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(size int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, size),
		Outbound:    make(chan OutboundMessage, size),
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers the delivery handler for one channel name.
func (b *MessageBus) SubscribeOutbound(channel string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = handler
}

// DispatchOutbound routes outbound messages to their channel's handler until
// the context is cancelled. Run it in its own goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			handler, ok := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if !ok {
				log.Printf("[bus] no subscriber for channel %q, dropping message", msg.Channel)
				continue
			}
			handler(msg)
		case <-ctx.Done():
			return
		}
	}
}
