package toolchain

import "fmt"

// Kind identifies one of the managed binaries.
type Kind string

const (
	// KindServer is the nova-lsp language server
	KindServer Kind = "server"
	// KindDAP is the nova-dap debug adapter
	KindDAP Kind = "dap"
)

// Kinds lists every managed binary
var Kinds = []Kind{KindServer, KindDAP}

// ParseKind converts a user supplied name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "server", "lsp", "nova-lsp":
		return KindServer, nil
	case "dap", "nova-dap":
		return KindDAP, nil
	default:
		return "", fmt.Errorf("unknown binary %q (want %s or %s)", s, KindServer, KindDAP)
	}
}

// ToolName is the binary and asset name prefix published for the kind.
func (k Kind) ToolName() string {
	if k == KindDAP {
		return "nova-dap"
	}
	return "nova-lsp"
}
