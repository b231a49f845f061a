package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nova-ide/nova-install/pkg/config"
	"github.com/nova-ide/nova-install/pkg/toolchain"
)

var installOverrides overrides

// InstallCommand represents the install command
var InstallCommand = &cobra.Command{
	Use:   "install [server|dap]...",
	Short: "Install or update the managed binaries",
	Long: `Install or update nova-lsp (server) and nova-dap (dap) from their release
repository. With no arguments both binaries are installed.

A binary that is already installed at the requested release is left alone
without any network access. When "latest" is requested the release host is
asked for the current tag first.`,
	Example: `  # Install or update both binaries
  nova-install install

  # Install a specific server release
  nova-install install server --version v1.2.3

  # Follow prereleases from an enterprise host
  nova-install install --channel prerelease --repo https://ghe.example.com/tools/nova`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(args)
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
		return RunInstall(cmd.Context(), m, cfg, kinds, installOverrides, cmd.OutOrStdout())
	},
}

func init() {
	addOverrideFlags(InstallCommand, &installOverrides)
}

// RunInstall installs kinds concurrently and prints one line per binary.
func RunInstall(ctx context.Context, m *toolchain.Manager, cfg *config.Config, kinds []toolchain.Kind, o overrides, w io.Writer) error {
	settings := make([]config.Settings, len(kinds))
	for i, kind := range kinds {
		s, err := o.apply(settingsFor(cfg, kind))
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		settings[i] = s
	}

	results := make([]toolchain.Result, len(kinds))
	installed := make([]bool, len(kinds))
	// A failure of one kind must not cancel the other.
	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			if settings[i].ExplicitPath != "" {
				log.Warnf("%s has an explicit path configured; installing the managed copy anyway", kind.ToolName())
			}
			res, err := m.InstallOrUpdate(ctx, kind, settings[i])
			if err != nil {
				return fmt.Errorf("failed to install %s: %w", kind.ToolName(), err)
			}
			results[i] = res
			installed[i] = true
			return nil
		})
	}
	err := g.Wait()

	for i, kind := range kinds {
		if installed[i] {
			fmt.Fprintf(w, "%s %s %s\n", kind.ToolName(), results[i].Version, results[i].Path)
		}
	}
	return err
}
