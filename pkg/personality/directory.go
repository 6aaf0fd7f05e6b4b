package personality

import (
	"context"
	"sync"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/rs/zerolog/log"
)

// Directory is the catalog of personalities plus the current selection.
//
// Mutations validate first, then update the local catalog, then call the
// repository. A repository failure is returned to the caller but the local
// change is kept.
type Directory struct {
	repo Repository

	mu         sync.RWMutex
	loaded     bool
	items      []types.Personality
	selectedID string
	preferred  string
}

type DirectoryOption func(*Directory)

// WithPreferredSelection selects id after the first load when the catalog
// contains it, instead of the default pick.
func WithPreferredSelection(id string) DirectoryOption {
	return func(d *Directory) {
		d.preferred = id
	}
}

func NewDirectory(repo Repository, options ...DirectoryOption) *Directory {
	ret := &Directory{repo: repo}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// List returns the catalog, fetching it from the repository on first use.
func (d *Directory) List(ctx context.Context) ([]types.Personality, error) {
	d.mu.RLock()
	if d.loaded {
		ret := append([]types.Personality(nil), d.items...)
		d.mu.RUnlock()
		return ret, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Refresh refetches the catalog. The selection survives when the selected id
// is still present; otherwise the default pick applies.
func (d *Directory) Refresh(ctx context.Context) ([]types.Personality, error) {
	items, err := d.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append([]types.Personality(nil), items...)
	d.loaded = true

	if d.indexLocked(d.selectedID) < 0 {
		d.selectedID = ""
		if d.preferred != "" && d.indexLocked(d.preferred) >= 0 {
			d.selectedID = d.preferred
		} else {
			d.selectedID = defaultSelection(d.items)
		}
	}

	log.Debug().
		Int("count", len(d.items)).
		Str("selected", d.selectedID).
		Msg("loaded personality catalog")

	return append([]types.Personality(nil), d.items...), nil
}

func (d *Directory) Get(id string) (types.Personality, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexLocked(id); i >= 0 {
		return d.items[i], true
	}
	return types.Personality{}, false
}

// Select makes id the current personality.
func (d *Directory) Select(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.indexLocked(id) < 0 {
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	d.selectedID = id
	return nil
}

// Selected returns the current personality, if any.
func (d *Directory) Selected() (types.Personality, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexLocked(d.selectedID); i >= 0 {
		return d.items[i], true
	}
	return types.Personality{}, false
}

func (d *Directory) SelectedID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectedID
}

// Create adds p to the catalog. An empty id is derived from the name. The
// stored personality is returned.
func (d *Directory) Create(ctx context.Context, p types.Personality) (types.Personality, error) {
	if err := Validate(p); err != nil {
		return types.Personality{}, err
	}
	if err := d.ensureLoaded(ctx); err != nil {
		return types.Personality{}, err
	}

	d.mu.Lock()
	if p.ID == "" {
		p.ID = uniqueID(p.Name, func(id string) bool { return d.indexLocked(id) >= 0 })
	} else if d.indexLocked(p.ID) >= 0 {
		d.mu.Unlock()
		return types.Personality{}, &api.ValidationError{Field: "id", Reason: "personality " + p.ID + " already exists"}
	}
	d.items = append(d.items, p)
	d.mu.Unlock()

	if err := d.repo.Create(ctx, p); err != nil {
		log.Error().Err(err).Str("personality_id", p.ID).Msg("could not store new personality")
		return p, err
	}
	return p, nil
}

// Update replaces the personality stored under id.
func (d *Directory) Update(ctx context.Context, id string, p types.Personality) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := d.ensureLoaded(ctx); err != nil {
		return err
	}
	p.ID = id

	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	d.items[i] = p
	d.mu.Unlock()

	if err := d.repo.Update(ctx, id, p); err != nil {
		log.Error().Err(err).Str("personality_id", id).Msg("could not store updated personality")
		return err
	}
	return nil
}

// Delete removes id from the catalog. Deleting the selected personality
// clears the selection.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.ensureLoaded(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	i := d.indexLocked(id)
	if i < 0 {
		d.mu.Unlock()
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	d.items = append(d.items[:i:i], d.items[i+1:]...)
	if d.selectedID == id {
		d.selectedID = ""
	}
	d.mu.Unlock()

	if err := d.repo.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("personality_id", id).Msg("could not delete personality")
		return err
	}
	return nil
}

func (d *Directory) ensureLoaded(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := d.Refresh(ctx)
	return err
}

func (d *Directory) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range d.items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// defaultSelection is the first default-flagged personality, else the first.
func defaultSelection(items []types.Personality) string {
	for _, p := range items {
		if p.IsDefault {
			return p.ID
		}
	}
	if len(items) > 0 {
		return items[0].ID
	}
	return ""
}
