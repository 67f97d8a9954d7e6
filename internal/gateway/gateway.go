package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carelyhq/carely/internal/agent"
	"github.com/carelyhq/carely/internal/alert"
	"github.com/carelyhq/carely/internal/bus"
	"github.com/carelyhq/carely/internal/channel"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/llm"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/notify"
	"github.com/carelyhq/carely/internal/sched"
	"github.com/carelyhq/carely/internal/store"
	"github.com/carelyhq/carely/internal/summary"
)

const unknownChatReply = "Hello! I don't know this chat yet. Please ask whoever set me up to link your account with `carely onboard`."

// Options for creating a Gateway.
type Options struct {
	Client     llm.Client     // injected model client (for testing)
	SignalChan chan os.Signal // injected shutdown signal (for testing)
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *store.Store
	agent      *agent.Agent
	machine    *alert.Machine
	summarizer *summary.Summarizer
	sched      *sched.Service
	channels   *channel.ChannelManager
	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions wires the full companion stack: storage, memory layers,
// classifier-driven agent, alert machine, summarizer, scheduler, channels.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	s, err := store.NewStore(cfg.Memory.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = s

	client := opts.Client
	if client == nil {
		client, err = llm.NewClient(cfg)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("create model client: %w", err)
		}
	}

	index := memory.NewIndex(s, client)
	assembler := memory.NewAssembler(
		&memory.StructuredLayer{Store: s},
		&memory.ShortTermLayer{Store: s},
		&memory.LongTermLayer{Index: index},
		&memory.EpisodicLayer{Store: s},
		cfg,
	)

	notifier := notify.NewBusNotifier(g.bus, channel.TelegramChannelName)
	g.machine = alert.NewMachine(s, notifier)
	g.agent = agent.New(s, assembler, client, g.machine, index, cfg)

	g.summarizer = summary.NewSummarizer(s, client, index, cfg)
	g.sched = sched.NewService(s, g.summarizer, g.bus, cfg)

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.signalChan = opts.SignalChan
	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.sched.Start(ctx); err != nil {
		log.Printf("[gateway] scheduler start warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))
			g.processMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// processMessage handles one inbound message end to end: resolve the user,
// route through the open alert session if any, otherwise let the agent
// respond, and queue the reply.
func (g *Gateway) processMessage(ctx context.Context, msg bus.InboundMessage) {
	userID, err := g.store.UserIDForChat(msg.ChatID)
	if err != nil {
		log.Printf("[gateway] resolve chat %s failed: %v", msg.ChatID, err)
		return
	}
	if userID == "" {
		g.reply(msg, unknownChatReply)
		return
	}

	session := msg.SessionKey()
	if reply, handled := g.agent.HandleEmergencyChoice(ctx, userID, session, msg.Content); handled {
		g.reply(msg, reply)
		return
	}

	reply, err := g.agent.Respond(ctx, userID, session, msg.Content)
	if err != nil {
		if errors.Is(err, agent.ErrInvalidInput) {
			g.reply(msg, "I couldn't read that message. Could you say it again in a few words?")
			return
		}
		log.Printf("[gateway] respond for %s failed: %v", userID, err)
		g.reply(msg, agent.FallbackReply)
		return
	}
	g.reply(msg, reply)
}

func (g *Gateway) reply(msg bus.InboundMessage, content string) {
	if content == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	}
}

func (g *Gateway) Shutdown() error {
	g.sched.Stop()
	_ = g.channels.StopAll()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
