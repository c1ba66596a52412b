package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/librarysync/internal/entrypoint"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

func newServeCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the management API and the library sync scheduler",
		Long:  "Start the management API. Encrypted sources are unlocked with the X-Storage-Secret request header.",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logging.Sync()

			app, err := entrypoint.Build(cmd.Context(), st.cfg, storagesource.ContextPrompter{})
			if err != nil {
				return err
			}
			defer app.Close()

			return entrypoint.Run(app, st.info.Version)
		},
	}
}
