package install

import (
	"encoding/json"
	"os"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/nova-ide/nova-install/schema"
)

// Metadata is the sidecar record stored next to every managed binary.
type Metadata struct {
	Version           string `json:"version"`
	Target            string `json:"target"`
	ReleaseAPIBaseURL string `json:"releaseApiBaseUrl"`
}

// Matches reports whether the record describes the given release.
func (m *Metadata) Matches(version, target, releaseAPIBaseURL string) bool {
	return m != nil &&
		m.Version == version &&
		m.Target == target &&
		m.ReleaseAPIBaseURL == releaseAPIBaseURL
}

// SidecarPath returns the metadata path for a binary
func SidecarPath(binaryPath string) string {
	return binaryPath + ".json"
}

// ReadMetadata loads the sidecar for binaryPath. A missing, unreadable or
// malformed sidecar yields nil.
func ReadMetadata(binaryPath string) *Metadata {
	sidecar := SidecarPath(binaryPath)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Debugf("Ignoring unreadable metadata %s", sidecar)
		}
		return nil
	}

	if err := schema.ValidateMetadata(data); err != nil {
		log.WithError(err).Debugf("Ignoring invalid metadata %s", sidecar)
		return nil
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		log.WithError(err).Debugf("Ignoring invalid metadata %s", sidecar)
		return nil
	}
	return &meta
}

// WriteMetadata atomically replaces the sidecar for binaryPath.
func WriteMetadata(binaryPath string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}
	data = append(data, '\n')

	if err := writeFileAtomic(SidecarPath(binaryPath), data); err != nil {
		return errors.Wrap(err, "failed to write metadata")
	}
	return nil
}

// Lookup returns the metadata of an installed binary, or nil when the
// binary is absent or has no valid sidecar.
func Lookup(binaryPath string) *Metadata {
	info, err := os.Stat(binaryPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	return ReadMetadata(binaryPath)
}
