// Package config loads nova-install settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nova-ide/nova-install/pkg/repository"
	"github.com/nova-ide/nova-install/pkg/resolve"
)

// DefaultRepository is the release source used when none is configured
const DefaultRepository = "nova-ide/nova"

// ErrConfigNotFound is returned by Discover when no config file exists
var ErrConfigNotFound = errors.New("no nova-install config found")

// Settings controls how one managed binary is located or installed. It is
// supplied per call and never persisted by the installer.
type Settings struct {
	// ExplicitPath points at a locally provided binary and bypasses downloads.
	ExplicitPath string `yaml:"path,omitempty"`
	// AutoDownload allows the installer to fetch the binary when needed.
	AutoDownload bool `yaml:"auto_download"`
	// ReleaseChannel is "stable" or "prerelease".
	ReleaseChannel resolve.Channel `yaml:"release_channel"`
	// Version is "latest" or an explicit release tag.
	Version string `yaml:"version"`
	// ReleaseURLOrRepoRef is anything repository.Parse accepts.
	ReleaseURLOrRepoRef string `yaml:"repository"`
}

// DefaultSettings returns the settings used for keys absent from the file.
func DefaultSettings() Settings {
	return Settings{
		AutoDownload:        true,
		ReleaseChannel:      resolve.ChannelStable,
		Version:             resolve.Latest,
		ReleaseURLOrRepoRef: DefaultRepository,
	}
}

// Validate checks that the settings can drive an install.
func (s Settings) Validate() error {
	if _, err := resolve.ParseChannel(string(s.ReleaseChannel)); err != nil {
		return err
	}
	if strings.TrimSpace(s.Version) == "" {
		return fmt.Errorf("version must be %q or a release tag", resolve.Latest)
	}
	if _, err := repository.Parse(s.ReleaseURLOrRepoRef); err != nil {
		return errors.Wrapf(err, "invalid repository %q", s.ReleaseURLOrRepoRef)
	}
	return nil
}

// Config is the on-disk configuration file.
type Config struct {
	// Root is the storage root. Empty means the platform default.
	Root   string   `yaml:"root,omitempty"`
	Server Settings `yaml:"server"`
	DAP    Settings `yaml:"dap"`
}

// Default returns a Config with default settings for both binaries.
func Default() *Config {
	return &Config{
		Server: DefaultSettings(),
		DAP:    DefaultSettings(),
	}
}

// Validate checks both settings blocks.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server")
	}
	if err := c.DAP.Validate(); err != nil {
		return errors.Wrap(err, "dap")
	}
	return nil
}

// Load reads and parses a nova-install config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	// Keys missing from the file keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}

	return cfg, nil
}

// Discover searches for .config/nova-install.yml in the current directory
// and parent directories
func Discover() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get current directory")
	}

	for {
		configPath := filepath.Join(dir, ".config", "nova-install.yml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Check if we've reached the root
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrConfigNotFound
}

// LoadOrDiscover loads a config from the given path, or discovers one if
// path is empty. When nothing is discovered the defaults are returned with
// an empty path.
func LoadOrDiscover(configPath string) (*Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = Discover()
		if errors.Is(err, ErrConfigNotFound) {
			return Default(), "", nil
		}
		if err != nil {
			return nil, "", err
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}

	return cfg, path, nil
}
