// Package session wires the personality directory, the conversation store and
// the conversation index around one backend and one event bus. User actions
// go through the Session, which reads the selected personality and hands its
// id to the store.
package session

import (
	"context"
	"sync"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/conversation"
	"github.com/iguit0/ai-chatbot-personality/pkg/events"
	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Backend is everything the session needs from the gateway.
type Backend interface {
	conversation.ChatBackend
	conversation.ConversationLister
	RandomPrompt(ctx context.Context, personalityID string) (*api.ChatResponse, error)
	ListChatbotPrompts(ctx context.Context) ([]types.ChatbotPrompt, error)
}

var _ Backend = (*api.Client)(nil)

type Session struct {
	backend   Backend
	directory *personality.Directory
	store     *conversation.Store
	index     *conversation.Index
	bus       *events.Bus

	ctx      context.Context
	cancel   context.CancelFunc
	initOnce sync.Once
}

type Option func(*options)

type options struct {
	busOptions   []events.BusOption
	storeOptions []conversation.StoreOption
	indexOptions []conversation.IndexOption
}

func WithBusOptions(opts ...events.BusOption) Option {
	return func(o *options) {
		o.busOptions = append(o.busOptions, opts...)
	}
}

func WithStoreOptions(opts ...conversation.StoreOption) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, opts...)
	}
}

func WithIndexOptions(opts ...conversation.IndexOption) Option {
	return func(o *options) {
		o.indexOptions = append(o.indexOptions, opts...)
	}
}

func New(backend Backend, directory *personality.Directory, opts ...Option) (*Session, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	bus, err := events.NewBus(o.busOptions...)
	if err != nil {
		return nil, err
	}

	storeOptions := append([]conversation.StoreOption{conversation.WithBus(bus)}, o.storeOptions...)
	index := conversation.NewIndex(backend, o.indexOptions...)
	index.Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		backend:   backend,
		directory: directory,
		store:     conversation.NewStore(backend, storeOptions...),
		index:     index,
		bus:       bus,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *Session) Directory() *personality.Directory { return s.directory }

func (s *Session) Store() *conversation.Store { return s.store }

func (s *Session) Index() *conversation.Index { return s.index }

func (s *Session) Bus() *events.Bus { return s.bus }

// Init starts the event bus and loads the personality catalog and the
// conversation index concurrently.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.bus.Run(s.ctx)
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := s.directory.List(ctx)
		return errors.Wrap(err, "could not load personalities")
	})
	eg.Go(func() error {
		_, err := s.index.List(ctx)
		return errors.Wrap(err, "could not load conversations")
	})
	return eg.Wait()
}

func (s *Session) selectedID() (string, error) {
	p, ok := s.directory.Selected()
	if !ok {
		return "", &api.ValidationError{Field: "personalityId", Reason: "no personality selected"}
	}
	return p.ID, nil
}

// Submit sends text under the selected personality.
func (s *Session) Submit(ctx context.Context, text string) error {
	id, err := s.selectedID()
	if err != nil {
		return err
	}
	return s.store.SubmitMessage(ctx, id, text)
}

// Regenerate asks for a new reply to the last user message under the selected
// personality.
func (s *Session) Regenerate(ctx context.Context) error {
	id, err := s.selectedID()
	if err != nil {
		return err
	}
	return s.store.Regenerate(ctx, id)
}

// Open switches the store to a past conversation.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	return s.store.LoadConversation(ctx, conversationID)
}

// NewConversation detaches the store so the next Submit starts a fresh
// conversation.
func (s *Session) NewConversation() {
	s.store.Reset()
}

// StartRandom lets the backend start a conversation from a random prompt under
// the selected personality, then opens it. The new conversation id is
// returned.
func (s *Session) StartRandom(ctx context.Context) (string, error) {
	id, err := s.selectedID()
	if err != nil {
		return "", err
	}
	resp, err := s.backend.RandomPrompt(ctx, id)
	if err != nil {
		return "", err
	}
	if resp.ConversationID == "" {
		return "", &api.BackendError{StatusCode: 200, Message: "random prompt response carried no conversation id"}
	}
	if err := s.store.LoadConversation(ctx, resp.ConversationID); err != nil {
		return "", err
	}
	if _, err := s.index.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("could not refresh conversation index")
	}
	return resp.ConversationID, nil
}

func (s *Session) Prompts(ctx context.Context) ([]types.ChatbotPrompt, error) {
	return s.backend.ListChatbotPrompts(ctx)
}

// Changes streams store snapshots until ctx is done. Snapshots that arrive
// after a newer one are dropped.
func (s *Session) Changes(ctx context.Context) (<-chan events.ConversationChanged, error) {
	msgs, err := s.bus.Subscribe(ctx, events.TopicConversationChanged)
	if err != nil {
		return nil, err
	}

	out := make(chan events.ConversationChanged)
	go func() {
		defer close(out)
		var last uint64
		for msg := range msgs {
			msg.Ack()
			ev, err := events.Decode[events.ConversationChanged](msg)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring malformed conversation.changed event")
				continue
			}
			if ev.Version <= last {
				continue
			}
			last = ev.Version
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops the event bus.
func (s *Session) Close() error {
	s.cancel()
	return s.bus.Close()
}
