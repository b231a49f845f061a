// Package asset picks the release archive and its checksum companion for a
// tool and target triple.
package asset

import (
	"fmt"

	"github.com/buildkite/interpolate"
	"github.com/nova-ide/nova-install/pkg/archive"
)

// DefaultTemplate is the archive naming convention of release assets.
const DefaultTemplate = "${NAME}-${TARGET}.${EXT}"

// FilenameGenerator generates asset filenames from a template
type FilenameGenerator struct {
	Name     string
	Target   string
	Template string
}

// NewFilenameGenerator creates a new filename generator using DefaultTemplate
func NewFilenameGenerator(name, target string) *FilenameGenerator {
	return &FilenameGenerator{
		Name:     name,
		Target:   target,
		Template: DefaultTemplate,
	}
}

// GenerateFilename renders the archive filename for the given format.
func (g *FilenameGenerator) GenerateFilename(format archive.Format) (string, error) {
	if g.Name == "" || g.Target == "" {
		return "", fmt.Errorf("tool name and target are required")
	}
	template := g.Template
	if template == "" {
		template = DefaultTemplate
	}

	env := interpolate.NewMapEnv(map[string]string{
		"NAME":   g.Name,
		"TARGET": g.Target,
		"EXT":    string(format),
	})
	filename, err := interpolate.Interpolate(env, template)
	if err != nil {
		return "", fmt.Errorf("failed to interpolate asset template: %w", err)
	}
	return filename, nil
}

// GenerateCandidates returns the archive filenames in preference order.
func (g *FilenameGenerator) GenerateCandidates() ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(PreferredFormats))
	for _, format := range PreferredFormats {
		name, err := g.GenerateFilename(format)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{Name: name, Format: format})
	}
	return candidates, nil
}

// Candidate is one archive filename the selector looks for.
type Candidate struct {
	Name   string
	Format archive.Format
}
