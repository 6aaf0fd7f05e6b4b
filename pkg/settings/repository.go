package settings

import (
	"context"

	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OpenPersonalityRepository opens the repository selected by
// PersonalityStore. Local stores are seeded with the stock personalities when
// empty. The returned close function is never nil.
func (s *ClientSettings) OpenPersonalityRepository(ctx context.Context, remote personality.PersonalityAPI) (personality.Repository, func() error, error) {
	noop := func() error { return nil }

	if s.PersonalityStore == StoreRemote {
		if remote == nil {
			return nil, noop, errors.New("remote personality store needs an API client")
		}
		return personality.NewRemoteRepository(remote), noop, nil
	}

	defaults, err := personality.DefaultPersonalities()
	if err != nil {
		return nil, noop, err
	}

	var repo interface {
		personality.Repository
		Close() error
	}

	switch s.PersonalityStore {
	case StoreMemory:
		return personality.NewMemoryRepository(defaults...), noop, nil

	case StoreBolt:
		path, err := s.ResolvedStorePath()
		if err != nil {
			return nil, noop, err
		}
		repo, err = personality.NewBoltRepository(path)
		if err != nil {
			return nil, noop, err
		}

	case StoreSQLite:
		path, err := s.ResolvedStorePath()
		if err != nil {
			return nil, noop, err
		}
		dsn, err := personality.SQLiteDSNForFile(path)
		if err != nil {
			return nil, noop, err
		}
		repo, err = personality.NewSQLiteRepository(dsn)
		if err != nil {
			return nil, noop, err
		}

	default:
		return nil, noop, s.Validate()
	}

	if err := personality.SeedIfEmpty(ctx, repo, defaults); err != nil {
		_ = repo.Close()
		return nil, noop, err
	}
	log.Debug().Str("store", s.PersonalityStore).Msg("opened local personality repository")
	return repo, repo.Close, nil
}
