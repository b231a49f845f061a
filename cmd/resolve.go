package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nova-ide/nova-install/pkg/asset"
	"github.com/nova-ide/nova-install/pkg/config"
	"github.com/nova-ide/nova-install/pkg/repository"
	"github.com/nova-ide/nova-install/pkg/resolve"
	"github.com/nova-ide/nova-install/pkg/target"
	"github.com/nova-ide/nova-install/pkg/toolchain"
)

var (
	resolveOverrides overrides
	resolveOutput    string
)

// ResolveCommand represents the resolve command
var ResolveCommand = &cobra.Command{
	Use:   "resolve <server|dap>",
	Short: "Show the release and assets an install would use",
	Long: `Resolve the configured version and channel to a concrete release and show
the archive and checksum assets selected for this platform. Nothing is
downloaded.`,
	Example: `  nova-install resolve server
  nova-install resolve dap --channel prerelease -o json`,
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
		settings, err := resolveOverrides.apply(settingsFor(cfg, kind))
		if err != nil {
			return err
		}
		triple, err := target.Current()
		if err != nil {
			return err
		}
		return RunResolve(cmd.Context(), nil, kind, settings, triple, resolveOutput, cmd.OutOrStdout())
	},
}

func init() {
	addOverrideFlags(ResolveCommand, &resolveOverrides)
	ResolveCommand.Flags().StringVarP(&resolveOutput, "output", "o", "text", "Output format (text, yaml, json)")
}

// ResolvedRelease is the output of the resolve command
type ResolvedRelease struct {
	Binary     string `json:"binary" yaml:"binary"`
	Repository string `json:"repository" yaml:"repository"`
	Tag        string `json:"tag" yaml:"tag"`
	Prerelease bool   `json:"prerelease" yaml:"prerelease"`
	Target     string `json:"target" yaml:"target"`
	Archive    string `json:"archive" yaml:"archive"`
	ArchiveURL string `json:"archiveUrl" yaml:"archiveUrl"`
	Checksum   string `json:"checksum" yaml:"checksum"`
}

// RunResolve resolves the release for kind on triple and prints the
// selection. A nil client uses the default authorizing client.
func RunResolve(ctx context.Context, client *http.Client, kind toolchain.Kind, settings config.Settings, triple, format string, w io.Writer) error {
	ref, err := repository.Parse(settings.ReleaseURLOrRepoRef)
	if err != nil {
		return err
	}

	release, err := resolve.NewResolver(client).Resolve(ctx, ref, settings.ReleaseChannel, settings.Version)
	if err != nil {
		return err
	}

	selection, err := asset.Select(release.Assets, kind.ToolName(), triple)
	if err != nil {
		return err
	}

	out := ResolvedRelease{
		Binary:     kind.ToolName(),
		Repository: ref.String(),
		Tag:        release.Tag,
		Prerelease: release.Prerelease,
		Target:     triple,
		Archive:    selection.Archive.Name,
		ArchiveURL: selection.Archive.DownloadURL,
		Checksum:   selection.Checksum.Name,
	}

	if format == "text" {
		_, err := fmt.Fprintf(w, "%s %s\narchive:  %s\nchecksum: %s\n", out.Binary, out.Tag, out.ArchiveURL, out.Checksum)
		return err
	}

	data, err := encodeOutput(out, format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
