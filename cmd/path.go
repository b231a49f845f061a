package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nova-ide/nova-install/pkg/config"
	"github.com/nova-ide/nova-install/pkg/toolchain"
)

var (
	pathOverrides  overrides
	pathNoDownload bool
)

// PathCommand represents the path command
var PathCommand = &cobra.Command{
	Use:   "path <server|dap>",
	Short: "Print the path of the binary to run",
	Long: `Print the path of the binary a client should launch.

A configured explicit path is printed as is. Otherwise the managed binary is
installed or updated first (unless auto download is disabled), and the path
of the managed copy is printed.`,
	Example: `  # Launch the language server from an editor integration
  $(nova-install path server) --stdio

  # Never touch the network
  nova-install path dap --no-download`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := toolchain.ParseKind(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManager(cfg)
		if err != nil {
			return err
		}
		settings, err := pathOverrides.apply(settingsFor(cfg, kind))
		if err != nil {
			return err
		}
		if pathNoDownload {
			settings.AutoDownload = false
		}
		return RunPath(cmd.Context(), m, kind, settings, cmd.OutOrStdout())
	},
}

func init() {
	addOverrideFlags(PathCommand, &pathOverrides)
	PathCommand.Flags().BoolVar(&pathNoDownload, "no-download", false, "Only use an existing binary")
}

// RunPath prints the binary path for kind.
func RunPath(ctx context.Context, m *toolchain.Manager, kind toolchain.Kind, settings config.Settings, w io.Writer) error {
	path, err := m.ResolvePath(ctx, kind, settings)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, path)
	return err
}
