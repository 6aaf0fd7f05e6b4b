// Package personality manages the catalog of personalities a conversation can
// be held under, and which one is currently selected.
//
// The Directory keeps the catalog in memory and forwards every mutation to a
// Repository. Several repositories are provided: the remote backend, an
// in-memory one, and two local persistent ones (bbolt and SQLite).
package personality

import (
	"context"

	"github.com/iguit0/ai-chatbot-personality/pkg/types"
)

// Repository persists personalities. List returns them in insertion order.
type Repository interface {
	List(ctx context.Context) ([]types.Personality, error)
	Create(ctx context.Context, p types.Personality) error
	Update(ctx context.Context, id string, p types.Personality) error
	Delete(ctx context.Context, id string) error
}
