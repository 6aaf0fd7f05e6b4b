package cmds

import (
	"context"
	"io"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/personality"
	"github.com/iguit0/ai-chatbot-personality/pkg/render"
	"github.com/iguit0/ai-chatbot-personality/pkg/session"
	"github.com/iguit0/ai-chatbot-personality/pkg/settings"
	"github.com/spf13/viper"
)

// app bundles what every command builds from the configuration.
type app struct {
	settings  *settings.ClientSettings
	client    *api.Client
	repo      personality.Repository
	directory *personality.Directory
	closeRepo func() error
}

func openApp(ctx context.Context) (*app, error) {
	s, err := settings.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	client, err := s.NewAPIClient()
	if err != nil {
		return nil, err
	}

	repo, closeRepo, err := s.OpenPersonalityRepository(ctx, client)
	if err != nil {
		return nil, err
	}

	var options []personality.DirectoryOption
	if s.Personality != "" {
		options = append(options, personality.WithPreferredSelection(s.Personality))
	}

	return &app{
		settings:  s,
		client:    client,
		repo:      repo,
		directory: personality.NewDirectory(repo, options...),
		closeRepo: closeRepo,
	}, nil
}

func (a *app) newSession() (*session.Session, error) {
	return session.New(a.client, a.directory)
}

func (a *app) renderer(out io.Writer) (*render.Renderer, error) {
	r := a.settings.Render
	return render.NewRenderer(out,
		render.WithMarkdown(render.MarkdownEnabled(r.Markdown, out)),
		render.WithStyle(r.Style),
		render.WithWordWrap(r.WordWrap),
	)
}

func (a *app) Close() error {
	return a.closeRepo()
}

// assistantName is the display name of the selected personality.
func (a *app) assistantName() string {
	if p, ok := a.directory.Selected(); ok {
		return p.Name
	}
	return ""
}
