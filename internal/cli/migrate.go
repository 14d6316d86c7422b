package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the store schema and exit",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logutil.NewJSON(cmd.ErrOrStderr(), slog.LevelInfo)
			cfg, err := opts.Load(logger)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}
			logger.Info("store migrated", "driver", cfg.Store.Driver, "data_dir", cfg.Store.DataDir)
			return nil
		},
	}
}
