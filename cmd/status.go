package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nova-ide/nova-install/pkg/toolchain"
)

var statusOutput string

// Table styles adapt to the color support of the terminal
var (
	profile = colorprofile.Detect(os.Stdout, os.Environ())

	headerStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1)
		}
		return lipgloss.NewStyle().Bold(true).Padding(0, 1)
	}()

	borderStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
		}
		return lipgloss.NewStyle().Faint(true)
	}()

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// StatusCommand represents the status command
var StatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the installed binaries",
	Long: `Show which managed binaries are installed, the release they came from and
the target they were built for. This never accesses the network.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := newManager(cfg)
		if err != nil {
			return err
		}
		return RunStatus(m, statusOutput, cmd.OutOrStdout())
	},
}

func init() {
	StatusCommand.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format (text, yaml, json)")
}

// BinaryStatus describes one managed binary
type BinaryStatus struct {
	Kind              toolchain.Kind `json:"kind" yaml:"kind"`
	Binary            string         `json:"binary" yaml:"binary"`
	Path              string         `json:"path" yaml:"path"`
	Installed         bool           `json:"installed" yaml:"installed"`
	Version           string         `json:"version,omitempty" yaml:"version,omitempty"`
	Target            string         `json:"target,omitempty" yaml:"target,omitempty"`
	ReleaseAPIBaseURL string         `json:"releaseApiBaseUrl,omitempty" yaml:"releaseApiBaseUrl,omitempty"`
}

// CollectStatus reports every managed binary
func CollectStatus(m *toolchain.Manager) []BinaryStatus {
	statuses := make([]BinaryStatus, 0, len(toolchain.Kinds))
	for _, kind := range toolchain.Kinds {
		st := BinaryStatus{
			Kind:   kind,
			Binary: kind.ToolName(),
			Path:   m.BinaryPath(kind),
		}
		if meta := m.Installed(kind); meta != nil {
			st.Installed = true
			st.Version = meta.Version
			st.Target = meta.Target
			st.ReleaseAPIBaseURL = meta.ReleaseAPIBaseURL
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// RunStatus prints the status of every managed binary
func RunStatus(m *toolchain.Manager, format string, w io.Writer) error {
	statuses := CollectStatus(m)

	if format != "text" {
		data, err := encodeOutput(statuses, format)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("KIND", "BINARY", "VERSION", "TARGET", "PATH")
	for _, st := range statuses {
		version, triple := st.Version, st.Target
		if !st.Installed {
			version, triple = "not installed", "-"
		}
		t.Row(string(st.Kind), st.Binary, version, triple, st.Path)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
