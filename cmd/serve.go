package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/app"
	"github.com/JakeFAU/listing-crawler/internal/ledger"
)

// newServeCmd creates the 'serve' subcommand, which exposes a progress
// ledger over HTTP until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <progress-csv>",
		Short: "Serves batch progress, health and metrics over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, appInstance *app.App, args []string) error {
			store, err := ledger.NewFileStore(args[0])
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			srv := api.NewServer(store, appInstance.Registry(), cfg.Server.Config, appInstance.Logger())
			return srv.ListenAndServe(cmd.Context())
		}),
	}
}
