// Package cli implements the librarysync command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/logging"
)

// VersionInfo is set at build time.
type VersionInfo struct {
	Version string
	Commit  string
}

// state is shared by every command of one invocation.
type state struct {
	info       VersionInfo
	configPath string
	logLevel   string
	cfg        *config.Config
	prompter   *TerminalPrompter
}

// NewRootCommand builds the full command tree.
func NewRootCommand(info VersionInfo) *cobra.Command {
	st := &state{info: info}

	cmd := &cobra.Command{
		Use:           "librarysync",
		Short:         "Replicate a reading library across storage backends",
		Long:          "librarysync manages storage sources and replicates book data, progress and statistics between the local library, a filesystem folder, WebDAV servers and cloud drives.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&st.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	cmd.AddCommand(newServeCommand(st))
	cmd.AddCommand(newSourceCommand(st))
	cmd.AddCommand(newBooksCommand(st))

	return cmd
}

func (st *state) init(cmd *cobra.Command) error {
	config.LoadEnvFiles(st.configPath)
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	if st.logLevel != "" {
		cfg.Log.Level = st.logLevel
	}
	st.cfg = cfg

	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	st.prompter = NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	return nil
}
