package personality

import (
	"context"
	_ "embed"

	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultsFile struct {
	Personalities []types.Personality `yaml:"personalities"`
}

// DefaultPersonalities returns the stock personalities shipped with the client.
func DefaultPersonalities() ([]types.Personality, error) {
	f := defaultsFile{}
	if err := yaml.Unmarshal(defaultsYAML, &f); err != nil {
		return nil, errors.Wrap(err, "could not parse embedded default personalities")
	}
	for _, p := range f.Personalities {
		if err := Validate(p); err != nil {
			return nil, errors.Wrapf(err, "default personality %q", p.ID)
		}
	}
	return f.Personalities, nil
}

// SeedIfEmpty stores seed into repo when repo holds no personality yet.
func SeedIfEmpty(ctx context.Context, repo Repository, seed []types.Personality) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, p := range seed {
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "could not seed personality %q", p.ID)
		}
	}
	log.Debug().Int("count", len(seed)).Msg("seeded personality repository")
	return nil
}
