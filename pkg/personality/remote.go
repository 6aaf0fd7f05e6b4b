package personality

import (
	"context"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
)

// PersonalityAPI is the part of the gateway that serves /personalities.
type PersonalityAPI interface {
	ListPersonalities(ctx context.Context) ([]types.Personality, error)
	CreatePersonality(ctx context.Context, p types.Personality) error
	UpsertPersonality(ctx context.Context, id string, p types.Personality) error
	DeletePersonality(ctx context.Context, id string) error
}

var _ PersonalityAPI = (*api.Client)(nil)

// RemoteRepository stores personalities on the backend.
type RemoteRepository struct {
	client PersonalityAPI
}

var _ Repository = (*RemoteRepository)(nil)

func NewRemoteRepository(client PersonalityAPI) *RemoteRepository {
	return &RemoteRepository{client: client}
}

func (r *RemoteRepository) List(ctx context.Context) ([]types.Personality, error) {
	return r.client.ListPersonalities(ctx)
}

func (r *RemoteRepository) Create(ctx context.Context, p types.Personality) error {
	return r.client.CreatePersonality(ctx, p)
}

func (r *RemoteRepository) Update(ctx context.Context, id string, p types.Personality) error {
	p.ID = id
	return r.client.UpsertPersonality(ctx, id, p)
}

func (r *RemoteRepository) Delete(ctx context.Context, id string) error {
	return r.client.DeletePersonality(ctx, id)
}
