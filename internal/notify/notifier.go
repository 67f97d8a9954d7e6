package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/carelyhq/carely/internal/bus"
	"github.com/carelyhq/carely/internal/store"
)

// Notifier delivers a caregiver notification. Delivery is best-effort; the
// caller logs and continues on failure.
type Notifier interface {
	Notify(ctx context.Context, caregiver store.Caregiver, message string) error
}

// BusNotifier pushes notifications onto the outbound bus so the channel
// layer delivers them over the caregiver's transport.
type BusNotifier struct {
	Bus     *bus.MessageBus
	Channel string
}

func NewBusNotifier(b *bus.MessageBus, channel string) *BusNotifier {
	return &BusNotifier{Bus: b, Channel: channel}
}

func (n *BusNotifier) Notify(ctx context.Context, caregiver store.Caregiver, message string) error {
	if caregiver.ChatID == "" {
		return fmt.Errorf("notify: caregiver %s has no chat id", caregiver.Name)
	}

	select {
	case n.Bus.Outbound <- bus.OutboundMessage{
		Channel: n.Channel,
		ChatID:  caregiver.ChatID,
		Content: message,
	}:
		log.Printf("[notify] queued alert for caregiver %s", caregiver.Name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: %w", ctx.Err())
	}
}
