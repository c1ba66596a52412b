package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/entrypoint"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

func (st *state) open(cmd *cobra.Command) (*entrypoint.App, error) {
	return entrypoint.Build(cmd.Context(), st.cfg, st.prompter)
}

func newSourceCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage storage sources",
	}
	cmd.AddCommand(
		newSourceAddCommand(st),
		newSourceListCommand(st),
		newSourceDeleteCommand(st),
		newSourceUseCommand(st),
		newSourceActiveCommand(st),
	)
	return cmd
}

type sourceAddOptions struct {
	kind         string
	renameFrom   string
	path         string
	url          string
	username     string
	password     string
	clientID     string
	clientSecret string
	refreshToken string
	encrypt      bool
	storeSecret  bool
}

func (o sourceAddOptions) credentials() (storagesource.Credentials, error) {
	switch entities.StorageKind(o.kind) {
	case entities.StorageKindFilesystem:
		return storagesource.FilesystemHandle{FsPath: o.path}, nil
	case entities.StorageKindWebDAV:
		return storagesource.WebDavContext{URL: o.url, Username: o.username, Password: o.password}, nil
	case entities.StorageKindGoogleDrive, entities.StorageKindOneDrive:
		return storagesource.RemoteOAuthContext{ClientID: o.clientID, ClientSecret: o.clientSecret, RefreshToken: o.refreshToken}, nil
	}
	return nil, fmt.Errorf("%w: unsupported storage kind %q", storagesource.ErrConfiguration, o.kind)
}

func newSourceAddCommand(st *state) *cobra.Command {
	var opts sourceAddOptions

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create or update a storage source",
		Example: `  librarysync source add nas --kind webdav --url https://dav.example.com --username reader --password secret --encrypt
  librarysync source add usb --kind fs --path /media/usb/books`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := opts.credentials()
			if err != nil {
				return err
			}

			req := storagesource.SaveRequest{
				Name:           args[0],
				OldName:        opts.renameFrom,
				Kind:           entities.StorageKind(opts.kind),
				Credentials:    creds,
				StoreInManager: opts.storeSecret,
			}
			if opts.encrypt || opts.storeSecret {
				secret, err := st.prompter.ReadSecret("Encryption password: ")
				if err != nil {
					return err
				}
				if secret == "" {
					return errors.New("an encryption password is required")
				}
				req.Secret = secret
			}

			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Sources.SaveStorageSource(cmd.Context(), req)
			if err != nil {
				return err
			}
			if result.Old != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", result.Old, result.New.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s source %s\n", result.New.Kind, result.New.Name)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.kind, "kind", "", "storage kind (fs, webdav, gdrive, onedrive)")
	flags.StringVar(&opts.renameFrom, "rename-from", "", "existing source to rename")
	flags.StringVar(&opts.path, "path", "", "directory of a filesystem source")
	flags.StringVar(&opts.url, "url", "", "WebDAV server URL")
	flags.StringVar(&opts.username, "username", "", "WebDAV username")
	flags.StringVar(&opts.password, "password", "", "WebDAV password")
	flags.StringVar(&opts.clientID, "client-id", "", "OAuth client id of a cloud drive")
	flags.StringVar(&opts.clientSecret, "client-secret", "", "OAuth client secret of a cloud drive")
	flags.StringVar(&opts.refreshToken, "refresh-token", "", "OAuth refresh token of a cloud drive")
	flags.BoolVar(&opts.encrypt, "encrypt", false, "encrypt the credentials with a password")
	flags.BoolVar(&opts.storeSecret, "store-secret", false, "remember the password in the credential manager (implies --encrypt)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func newSourceListCommand(st *state) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List storage sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			summaries, err := app.Sources.ListStorageSources(cmd.Context(), entities.StorageKind(kind))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tENCRYPTED\tSTORED\tACTIVE")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, yesNo(s.Encrypted), yesNo(s.StoredInManager), yesNo(s.Active))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list sources of this kind")
	return cmd
}

func newSourceDeleteCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a storage source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Sources.DeleteStorageSource(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSourceUseCommand(st *state) *cobra.Command {
	var keepCurrent bool

	cmd := &cobra.Command{
		Use:   "use KIND [NAME]",
		Short: "Select the storage kind and the active source of that kind",
		Long:  "Select the storage kind and the active source of that kind. Without NAME cloud kinds fall back to their default source.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := entities.StorageKind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("%w: unknown storage kind %q", storagesource.ErrConfiguration, kind)
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}

			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if kind != entities.StorageKindBrowser {
				if name != "" && !storagesource.IsDefaultSource(name) {
					summary, err := app.Sources.GetStorageSource(cmd.Context(), name)
					if err != nil {
						return err
					}
					if summary.Kind != kind {
						return fmt.Errorf("%w: %s is a %s source", storagesource.ErrWrongCredentials, name, summary.Kind)
					}
				}
				if err := app.Registry.SetActiveSource(name, kind); err != nil {
					return err
				}
			}
			if !keepCurrent {
				if err := app.Registry.SetCurrentKind(kind); err != nil {
					return err
				}
			}
			return printActive(cmd, app)
		},
	}
	cmd.Flags().BoolVar(&keepCurrent, "keep-current", false, "only change the active source, not the selected kind")
	return cmd
}

func newSourceActiveCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the selected storage kind and active sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := st.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return printActive(cmd, app)
		},
	}
}

func printActive(cmd *cobra.Command, app *entrypoint.App) error {
	current := app.Registry.CurrentKind()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tACTIVE SOURCE\tSELECTED")
	fmt.Fprintf(w, "%s\t%s\t%s\n", entities.StorageKindBrowser, "-", yesNo(current == entities.StorageKindBrowser))
	for _, kind := range entities.SourceKinds {
		name := app.Registry.ActiveSource(kind)
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", kind, name, yesNo(current == kind))
	}
	return w.Flush()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
