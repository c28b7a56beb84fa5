// Package mnemocmder
package mnemocmder

import (
	backfillcmder "github.com/mnemohq/mnemo/cmd/mnemo/backfill"
	searchcmder "github.com/mnemohq/mnemo/cmd/mnemo/search"
	servecmder "github.com/mnemohq/mnemo/cmd/mnemo/serve"
	"github.com/spf13/cobra"
)

const mnemoLongDesc string = `Mnemo is channel memory for your Slack workspace.

Run services using:
  mnemo serve          Run the bot and the API server together
  mnemo search <q>     Run a one-off hybrid search
  mnemo backfill       Embed stored messages that are missing embeddings`

const mnemoShortDesc string = "Mnemo - Slack Channel Memory"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemo",
		Short: mnemoShortDesc,
		Long:  mnemoLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Config directory (default: ./.mnemo or ~/.mnemo)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())

	return cmd
}
