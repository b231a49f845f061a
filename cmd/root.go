package cmd

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

// DefaultConfigPath is the config file looked up from the working directory upwards
const DefaultConfigPath = ".config/nova-install.yml"

var (
	// Global flags
	configFile string
	rootDir    string
	verbose    bool
	quiet      bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "nova-install",
	Short: "Install and verify the nova language server and debug adapter",
	Long: `nova-install downloads the nova-lsp language server and the nova-dap debug
adapter from GitHub (or GitHub Enterprise) releases for the current platform.

Every archive is verified against its published SHA-256 checksum before it is
unpacked, and each binary is recorded with the release it came from so that
repeated installs of the same version never touch the network.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		log.Debugf("Config file: %s", configFile)
	},
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: "+DefaultConfigPath+")")
	RootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Storage root for installed binaries (default: $NOVA_INSTALL_ROOT or ~/.local/share/nova)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress progress output")

	RootCmd.AddGroup(&cobra.Group{
		ID:    "workflow",
		Title: "Workflow Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "utility",
		Title: "Utility Commands:",
	})

	RootCmd.SetHelpCommandGroupID("utility")
	RootCmd.SetCompletionCommandGroupID("utility")

	InstallCommand.GroupID = "workflow"
	PathCommand.GroupID = "workflow"
	ResolveCommand.GroupID = "workflow"
	StatusCommand.GroupID = "utility"
	SchemaCommand.GroupID = "utility"

	RootCmd.AddCommand(InstallCommand)
	RootCmd.AddCommand(PathCommand)
	RootCmd.AddCommand(ResolveCommand)
	RootCmd.AddCommand(StatusCommand)
	RootCmd.AddCommand(SchemaCommand)
}
