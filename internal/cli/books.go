package cli

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/entrypoint"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

func newBooksCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Inspect and delete books on a storage backend",
	}
	cmd.AddCommand(newBooksListCommand(st), newBooksDeleteCommand(st))
	return cmd
}

// handlerFor returns the handler of kind, or of the selected kind when empty.
func handlerFor(app *entrypoint.App, kind string) (replication.Handler, error) {
	k := app.Registry.CurrentKind()
	if kind != "" {
		k = entities.StorageKind(kind)
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown storage kind %q", storagesource.ErrConfiguration, kind)
		}
	}
	return app.Handlers.Handler(k)
}

func newBooksListCommand(st *state) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the books stored on a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			handler, err := handlerFor(app, kind)
			if err != nil {
				return err
			}
			books, err := handler.GetBookList(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TITLE\tSIZE\tMODIFIED\tTYPE")
			for _, b := range books {
				typ := "data"
				if b.PlainFile {
					typ = "file"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", b.Title, b.Size, formatMillis(b.LastModified), typ)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "storage kind (defaults to the selected one)")
	return cmd
}

func newBooksDeleteCommand(st *state) *cobra.Command {
	var (
		kind           string
		keepStatistics bool
	)

	cmd := &cobra.Command{
		Use:   "delete TITLE...",
		Short: "Delete the data of books on a backend",
		Long:  "Delete the data of books on a backend. Interrupting with Ctrl-C stops before the next book.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			handler, err := handlerFor(app, kind)
			if err != nil {
				return err
			}
			result, err := handler.DeleteBookData(ctx, args, keepStatistics)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, o := range result.Outcomes {
				if o.Error != "" {
					fmt.Fprintf(out, "%s: %s (%s)\n", o.Title, o.Status, o.Error)
				} else {
					fmt.Fprintf(out, "%s: %s\n", o.Title, o.Status)
				}
			}
			if result.Cancelled {
				fmt.Fprintf(out, "Cancelled after %d of %d books\n", len(result.Outcomes), len(args))
			}
			if result.Count(replication.DeleteFailed) > 0 {
				return fmt.Errorf("%d of %d books could not be deleted", result.Count(replication.DeleteFailed), len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "storage kind (defaults to the selected one)")
	cmd.Flags().BoolVar(&keepStatistics, "keep-statistics", false, "keep reading statistics of deleted books in the local library")
	return cmd
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}
