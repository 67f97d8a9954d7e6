package channel

import (
	"context"

	"github.com/carelyhq/carely/internal/bus"
)

// Channel is one chat transport: it turns transport events into inbound bus
// messages and delivers outbound messages back.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every transport shares: its name, the bus,
// and the optional sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allowed map[string]bool
	if len(allowFrom) > 0 {
		allowed = make(map[string]bool, len(allowFrom))
		for _, id := range allowFrom {
			allowed[id] = true
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether a sender passes the allowlist. An empty
// allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if c.allowFrom == nil {
		return true
	}
	return c.allowFrom[senderID]
}
