// Package events carries state-change notifications from the conversation
// store to whoever renders or indexes conversations. It is a thin layer over a
// watermill in-process pub/sub plus a router for handler registration.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	TopicConversationChanged = "conversation.changed"
	TopicConversationCreated = "conversation.created"
)

// ConversationChanged is a snapshot of the store published after every
// mutation. Version increases monotonically per store; deliveries may be
// reordered, so observers should drop snapshots older than the last one seen.
type ConversationChanged struct {
	ConversationID string          `json:"conversationId"`
	Messages       []types.Message `json:"messages"`
	Pending        bool            `json:"pending"`
	Version        uint64          `json:"version"`
}

// ConversationCreated is published when the backend assigns an id to a fresh
// conversation.
type ConversationCreated struct {
	ConversationID string `json:"conversationId"`
	PersonalityID  string `json:"personalityId"`
}

// Publisher is what the store needs from the bus.
type Publisher interface {
	Publish(topic string, payload interface{}) error
}

type Bus struct {
	logger watermill.LoggerAdapter
	pubSub *gochannel.GoChannel
	router *message.Router

	mu      sync.Mutex
	running bool
}

var _ Publisher = (*Bus)(nil)

type BusOption func(*Bus)

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithVerbose routes watermill logs through the global zerolog logger.
func WithVerbose() BusOption {
	return func(b *Bus) {
		b.logger = NewZerologAdapter(log.Logger)
	}
}

func NewBus(options ...BusOption) (*Bus, error) {
	ret := &Bus{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	ret.pubSub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, ret.logger)

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create event router")
	}
	ret.router = router

	return ret, nil
}

// Publish serializes payload to JSON and publishes it on topic.
func (b *Bus) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "could not encode %s event", topic)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return b.pubSub.Publish(topic, msg)
}

// PublishBlind publishes and only logs failures.
func (b *Bus) PublishBlind(topic string, payload interface{}) {
	if err := b.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

// Subscribe returns a raw message channel for topic. Messages must be acked.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, topic)
}

// AddHandler registers f for topic. Handlers added after Run are started with
// RunHandlers.
func (b *Bus) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	b.router.AddNoPublisherHandler(name, topic, b.pubSub, f)

	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if running {
		if err := b.router.RunHandlers(context.Background()); err != nil {
			log.Error().Err(err).Str("handler", name).Msg("could not start event handler")
		}
	}
}

// Run starts the router in the background and waits until it is running.
func (b *Bus) Run(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go func() {
		if err := b.router.Run(ctx); err != nil {
			log.Error().Err(err).Msg("event router stopped")
		}
	}()
	<-b.router.Running()
}

func (b *Bus) Close() error {
	log.Debug().Msg("closing event router")
	if err := b.router.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event router")
	}
	if err := b.pubSub.Close(); err != nil {
		return errors.Wrap(err, "failed to close pubsub")
	}
	return nil
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg *message.Message) (T, error) {
	var out T
	err := json.Unmarshal(msg.Payload, &out)
	return out, err
}
