package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iguit0/ai-chatbot-personality/pkg/render"
	"github.com/iguit0/ai-chatbot-personality/pkg/session"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/spf13/cobra"
)

const replHelp = `Type a message and press enter to send it.
  /regen              ask again for the last reply
  /new                start a new conversation
  /open <id>          continue a past conversation
  /random             start a conversation from a random prompt
  /personality [id]   show the catalog or switch personality
  /list               list past conversations
  /quit               leave
`

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the selected personality",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			s, err := a.newSession()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()
			if err := s.Init(ctx); err != nil {
				return err
			}

			if id, _ := cmd.Flags().GetString("personality"); id != "" {
				if err := s.Directory().Select(id); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			r, err := a.renderer(out)
			if err != nil {
				return err
			}

			repl := newREPL(s, r, out)
			if id, _ := cmd.Flags().GetString("conversation"); id != "" {
				if err := repl.open(ctx, id); err != nil {
					return err
				}
			}
			return repl.Run(ctx, os.Stdin)
		},
	}
	cmd.Flags().String("conversation", "", "Continue the conversation with this id")
	cmd.Flags().String("personality", "", "Personality to chat with")
	return cmd
}

type repl struct {
	session  *session.Session
	renderer *render.Renderer
	out      io.Writer
}

func newREPL(s *session.Session, r *render.Renderer, out io.Writer) *repl {
	ret := &repl{session: s, renderer: r, out: out}
	ret.syncAssistantName()
	return ret
}

func (r *repl) syncAssistantName() {
	if p, ok := r.session.Directory().Selected(); ok {
		r.renderer.SetAssistantName(p.Name)
	}
}

func (r *repl) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Run reads lines from in until EOF, /quit or ctx is done.
func (r *repl) Run(ctx context.Context, in io.Reader) error {
	if p, ok := r.session.Directory().Selected(); ok {
		r.printf("Chatting with %s. Type /help for commands.\n", p.Name)
	} else {
		r.printf("No personality selected. Use /personality <id>.\n")
	}

	scanner := bufio.NewScanner(in)
	for {
		r.printf("> ")
		if !scanner.Scan() {
			r.printf("\n")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			r.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		if err := r.session.Submit(ctx, line); err != nil {
			return false, err
		}
		return false, r.printLast()
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		r.printf("%s", replHelp)

	case "/regen":
		if err := r.session.Regenerate(ctx); err != nil {
			return false, err
		}
		return false, r.printLast()

	case "/new":
		r.session.NewConversation()
		r.printf("Started a new conversation.\n")

	case "/open":
		if arg == "" {
			return false, fmt.Errorf("usage: /open <conversation id>")
		}
		return false, r.open(ctx, arg)

	case "/random":
		id, err := r.session.StartRandom(ctx)
		if err != nil {
			return false, err
		}
		r.printf("Started conversation %s.\n", id)
		return false, r.renderer.Messages(r.session.Store().Messages())

	case "/personality":
		d := r.session.Directory()
		if arg == "" {
			items, err := d.List(ctx)
			if err != nil {
				return false, err
			}
			return false, r.renderer.Personalities(items, d.SelectedID())
		}
		if err := d.Select(arg); err != nil {
			return false, err
		}
		r.syncAssistantName()
		r.printf("Switched to %s.\n", arg)

	case "/list":
		items, err := r.session.Index().Refresh(ctx)
		if err != nil {
			return false, err
		}
		return false, r.renderer.Summaries(items, r.session.Index().Total())

	default:
		return false, fmt.Errorf("unknown command %s, type /help", command)
	}
	return false, nil
}

func (r *repl) open(ctx context.Context, id string) error {
	if err := r.session.Open(ctx, id); err != nil {
		return err
	}
	r.printf("Opened conversation %s.\n", id)
	return r.renderer.Messages(r.session.Store().Messages())
}

func (r *repl) printLast() error {
	messages := r.session.Store().Messages()
	if len(messages) == 0 || messages[len(messages)-1].Role != types.RoleAssistant {
		return nil
	}
	return r.renderer.Message(messages[len(messages)-1])
}
