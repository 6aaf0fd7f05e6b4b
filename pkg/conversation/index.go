package conversation

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/events"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/rs/zerolog/log"
)

type ConversationLister interface {
	ListConversations(ctx context.Context, opts api.ListOptions) (*types.ConversationPage, error)
}

var _ ConversationLister = (*api.Client)(nil)

// HandlerRegistry is satisfied by *events.Bus.
type HandlerRegistry interface {
	AddHandler(name string, topic string, f func(msg *message.Message) error)
}

// Index is a read-only cache of the backend's conversation listing.
type Index struct {
	lister ConversationLister

	mu        sync.RWMutex
	opts      api.ListOptions
	loaded    bool
	summaries []types.ConversationSummary
	total     int
}

type IndexOption func(*Index)

func WithListOptions(opts api.ListOptions) IndexOption {
	return func(i *Index) {
		i.opts = opts
	}
}

func NewIndex(lister ConversationLister, options ...IndexOption) *Index {
	ret := &Index{lister: lister}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// List returns the cached listing, fetching it on first use.
func (i *Index) List(ctx context.Context) ([]types.ConversationSummary, error) {
	i.mu.RLock()
	if i.loaded {
		ret := copySummaries(i.summaries)
		i.mu.RUnlock()
		return ret, nil
	}
	i.mu.RUnlock()

	return i.Refresh(ctx)
}

// Refresh refetches the listing. The cache is only replaced on success.
func (i *Index) Refresh(ctx context.Context) ([]types.ConversationSummary, error) {
	i.mu.RLock()
	opts := i.opts
	i.mu.RUnlock()

	page, err := i.lister.ListConversations(ctx, opts)
	if err != nil {
		return nil, err
	}

	total := page.Total
	if total == 0 {
		total = len(page.Conversations)
	}

	i.mu.Lock()
	i.summaries = copySummaries(page.Conversations)
	i.total = total
	i.loaded = true
	i.mu.Unlock()

	log.Debug().Int("count", len(page.Conversations)).Int("total", total).Msg("refreshed conversation index")

	return copySummaries(page.Conversations), nil
}

// SetListOptions changes paging or ordering. The next List refetches.
func (i *Index) SetListOptions(opts api.ListOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.opts = opts
	i.loaded = false
	return nil
}

// Total is the backend's total count from the last successful fetch.
func (i *Index) Total() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.total
}

// Subscribe refreshes the index every time a conversation is created.
func (i *Index) Subscribe(registry HandlerRegistry) {
	registry.AddHandler("conversation-index-refresh", events.TopicConversationCreated, func(msg *message.Message) error {
		ev, err := events.Decode[events.ConversationCreated](msg)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed conversation.created event")
			return nil
		}
		if _, err := i.Refresh(msg.Context()); err != nil {
			log.Warn().Err(err).Str("conversation_id", ev.ConversationID).Msg("could not refresh conversation index")
		}
		return nil
	})
}

func copySummaries(s []types.ConversationSummary) []types.ConversationSummary {
	ret := make([]types.ConversationSummary, len(s))
	copy(ret, s)
	return ret
}
