package cmds

import (
	"fmt"
	"strings"

	"github.com/iguit0/ai-chatbot-personality/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
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
			if _, err := s.Directory().List(ctx); err != nil {
				return err
			}

			if id, _ := cmd.Flags().GetString("personality"); id != "" {
				if err := s.Directory().Select(id); err != nil {
					return err
				}
			}
			if id, _ := cmd.Flags().GetString("conversation"); id != "" {
				if err := s.Open(ctx, id); err != nil {
					return err
				}
			}

			if err := s.Submit(ctx, strings.Join(args, " ")); err != nil {
				return err
			}

			messages := s.Store().Messages()
			last := messages[len(messages)-1]
			if last.Content == conversation.ApologyMessage {
				return errors.New("the backend could not answer, see the log for details")
			}

			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			r.SetAssistantName(a.assistantName())
			if err := r.Message(last); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", s.Store().ConversationID())
			return err
		},
	}
	cmd.Flags().String("conversation", "", "Continue the conversation with this id")
	cmd.Flags().String("personality", "", "Personality to answer as")
	return cmd
}
