package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/iguit0/ai-chatbot-personality/internal/fakebackend"
	"github.com/spf13/cobra"
)

func NewFakeBackendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Serve an in-memory chat backend with canned replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			srv, err := fakebackend.NewServer()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "localhost:8000", "Address to listen on")
	return cmd
}
