// Package cli implements the familyagenda-go command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Mode       string
	Overrides  config.FlagOverrides

	// Getenv reads the environment overlay. Nil means os.Getenv.
	Getenv func(string) string
}

// Load resolves the effective configuration from the flags.
func (o *RootOptions) Load(logger *slog.Logger) (*config.Config, error) {
	return config.Load(config.LoaderOptions{
		ConfigPath:    o.ConfigPath,
		ModeFlag:      o.Mode,
		FlagOverrides: o.Overrides,
		Getenv:        o.Getenv,
		Logger:        logger,
	})
}

// NewRootCommand creates the root command for the familyagenda-go CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "familyagenda-go",
		Short: "Family agenda backend",
		Long:  "Shared task lists and calendar for one family, with owner-managed invites and an offline cache for the web client.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Mode != "" {
				if _, err := config.ParseMode(opts.Mode); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "path to TOML config file")
	f.StringVar(&opts.Mode, "mode", "", "operating mode: strict or dev (overrides config)")
	f.StringVar(&opts.Overrides.ListenAddr, "listen", "", "listen address (overrides config)")
	f.StringVar(&opts.Overrides.PublicOrigin, "public-origin", "", "public origin (overrides config)")
	f.StringVar(&opts.Overrides.TLSMode, "tls-mode", "", "TLS mode: off, static, selfsigned or acme (overrides config)")
	f.StringVar(&opts.Overrides.LoggingLevel, "logging-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	f.StringVar(&opts.Overrides.StoreDriver, "store-driver", "", "store driver: memory, sqlite or mirror (overrides config)")
	f.StringVar(&opts.Overrides.DataDir, "data-dir", "", "store data directory (overrides config)")
	f.StringVar(&opts.Overrides.CacheDriver, "cache-driver", "", "cache driver: memory or redis (overrides config)")
	f.StringVar(&opts.Overrides.FamilyID, "family-id", "", "family id (overrides FAMILY_ID)")
	f.StringVar(&opts.Overrides.OwnerEmail, "owner-email", "", "owner email (overrides OWNER_EMAIL)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
