package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bus.Close()
	})
	return bus
}

func TestSubscribeReceivesPublishedSnapshot(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, TopicConversationChanged)
	require.NoError(t, err)

	err = bus.Publish(TopicConversationChanged, ConversationChanged{
		ConversationID: "c1",
		Messages:       []types.Message{{ID: "m1", Role: types.RoleUser, Content: "hi"}},
		Pending:        true,
		Version:        3,
	})
	require.NoError(t, err)

	select {
	case msg := <-ch:
		msg.Ack()
		got, err := Decode[ConversationChanged](msg)
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ConversationID)
		assert.True(t, got.Pending)
		assert.Equal(t, uint64(3), got.Version)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "hi", got.Messages[0].Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := newTestBus(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.PublishBlind(TopicConversationChanged, ConversationChanged{Version: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestHandlerRunsForCreatedEvents(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var seen []string
	bus.AddHandler("collect", TopicConversationCreated, func(msg *message.Message) error {
		ev, err := Decode[ConversationCreated](msg)
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, ev.ConversationID)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Run(ctx)

	require.NoError(t, bus.Publish(TopicConversationCreated, ConversationCreated{ConversationID: "c9", PersonalityID: "p"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "c9"
	}, 2*time.Second, 10*time.Millisecond)
}
