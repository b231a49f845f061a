package asset

import (
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/nova-ide/nova-install/pkg/archive"
	"github.com/nova-ide/nova-install/pkg/resolve"
)

// ChecksumSuffix is appended to an archive name to find its checksum asset.
const ChecksumSuffix = ".sha256"

// PreferredFormats is the archive preference order; the first format
// published by the release wins.
var PreferredFormats = []archive.Format{
	archive.FormatTarXz,
	archive.FormatTarGz,
	archive.FormatZip,
}

// Selection is the archive to install and the manifest that authenticates it.
type Selection struct {
	Archive  resolve.Asset
	Checksum resolve.Asset
	Format   archive.Format
}

// NoMatchingAssetError is returned when the release has no archive for the target.
type NoMatchingAssetError struct {
	Tool       string
	Target     string
	Candidates []string
}

func (e *NoMatchingAssetError) Error() string {
	return fmt.Sprintf("release publishes no %s archive for %s (looked for %s)",
		e.Tool, e.Target, strings.Join(e.Candidates, ", "))
}

// NoPublishedChecksumError is returned when an archive has no checksum to
// verify it against. Installation never proceeds without one.
type NoPublishedChecksumError struct {
	Archive  string
	Checksum string
}

func (e *NoPublishedChecksumError) Error() string {
	return fmt.Sprintf("no published checksum for %s (expected %s)", e.Archive, e.Checksum)
}

// Select picks the archive for toolName on the target triple together with
// its checksum companion.
func Select(assets []resolve.Asset, toolName, triple string) (*Selection, error) {
	candidates, err := NewFilenameGenerator(toolName, triple).GenerateCandidates()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]resolve.Asset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)

		archiveAsset, ok := byName[c.Name]
		if !ok {
			continue
		}
		log.Debugf("Selected archive %s", archiveAsset.Name)

		checksumName := archiveAsset.Name + ChecksumSuffix
		checksumAsset, ok := byName[checksumName]
		if !ok {
			return nil, &NoPublishedChecksumError{Archive: archiveAsset.Name, Checksum: checksumName}
		}

		return &Selection{
			Archive:  archiveAsset,
			Checksum: checksumAsset,
			Format:   c.Format,
		}, nil
	}

	return nil, &NoMatchingAssetError{Tool: toolName, Target: triple, Candidates: names}
}
