package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/nova-ide/nova-install/pkg/config"
	"github.com/nova-ide/nova-install/pkg/resolve"
	"github.com/nova-ide/nova-install/pkg/toolchain"
)

// loadConfig loads the config file named by --config, or the discovered
// default, or built-in defaults when there is none.
func loadConfig() (*config.Config, error) {
	cfg, path, err := config.LoadOrDiscover(configFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debugf("Loaded config from %s", path)
	} else {
		log.Debug("No config file found, using defaults")
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	return cfg, nil
}

// newManager creates a Manager rooted at the configured storage root.
func newManager(cfg *config.Config) (*toolchain.Manager, error) {
	return toolchain.NewManager(toolchain.Options{Root: cfg.Root})
}

// settingsFor returns the settings block for kind.
func settingsFor(cfg *config.Config, kind toolchain.Kind) config.Settings {
	if kind == toolchain.KindDAP {
		return cfg.DAP
	}
	return cfg.Server
}

// parseKinds converts positional arguments to kinds. No arguments selects
// every managed binary.
func parseKinds(args []string) ([]toolchain.Kind, error) {
	if len(args) == 0 {
		return toolchain.Kinds, nil
	}
	kinds := make([]toolchain.Kind, 0, len(args))
	seen := make(map[toolchain.Kind]bool)
	for _, arg := range args {
		kind, err := toolchain.ParseKind(arg)
		if err != nil {
			return nil, err
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// overrides are command line replacements for config settings.
type overrides struct {
	version    string
	channel    string
	repository string
}

func addOverrideFlags(cmd *cobra.Command, o *overrides) {
	cmd.Flags().StringVar(&o.version, "version", "", "Release tag to install, or \"latest\"")
	cmd.Flags().StringVar(&o.channel, "channel", "", "Release channel used for \"latest\" (stable, prerelease)")
	cmd.Flags().StringVar(&o.repository, "repo", "", "Release repository (owner/repo or URL)")
}

// apply returns s with the overrides applied and validated.
func (o overrides) apply(s config.Settings) (config.Settings, error) {
	if o.version != "" {
		s.Version = o.version
	}
	if o.channel != "" {
		channel, err := resolve.ParseChannel(o.channel)
		if err != nil {
			return s, err
		}
		s.ReleaseChannel = channel
	}
	if o.repository != "" {
		s.ReleaseURLOrRepoRef = o.repository
	}
	return s, s.Validate()
}

// encodeOutput renders v in the requested output format
func encodeOutput(v interface{}, format string) ([]byte, error) {
	switch format {
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to YAML: %w", err)
		}
		return out, nil
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to convert to JSON: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
