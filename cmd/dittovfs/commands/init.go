package commands

import (
	"fmt"

	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a sample configuration file",
		Long: `Initialize a sample DittoVFS configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittovfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittovfs init

  # Initialize with custom path
  dittovfs init --config /etc/dittovfs/config.yaml

  # Force overwrite existing config
  dittovfs init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			var err error

			if cfgFile != "" {
				err = config.InitConfigToPath(cfgFile, force)
				configPath = cfgFile
			} else {
				configPath, err = config.InitConfig(force)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
			fmt.Fprintln(cmd.OutOrStdout(), "  1. Edit the mount table in the configuration file")
			fmt.Fprintln(cmd.OutOrStdout(), "  2. Check the mounts with: dittovfs mounts")
			fmt.Fprintf(cmd.OutOrStdout(), "  3. Start the server with: dittovfs serve --config %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing config file")
	return cmd
}
