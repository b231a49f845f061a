// Package install places verified binaries into the storage root and keeps
// each one paired with its metadata sidecar.
package install

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// RootEnv overrides the default storage root
const RootEnv = "NOVA_INSTALL_ROOT"

// ResolveRoot resolves the storage root, handling defaults and expansions
func ResolveRoot(root string) (string, error) {
	if root == "" {
		switch {
		case os.Getenv(RootEnv) != "":
			root = os.Getenv(RootEnv)
		case os.Getenv("XDG_DATA_HOME") != "":
			root = filepath.Join(os.Getenv("XDG_DATA_HOME"), "nova")
		case os.Getenv("HOME") != "":
			root = filepath.Join(os.Getenv("HOME"), ".local", "share", "nova")
		default:
			return "", fmt.Errorf("could not determine storage root: no HOME environment variable")
		}
	}

	// Expand path (handles ~ and environment variables)
	root = expandPath(root)

	absPath, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve storage root")
	}

	return absPath, nil
}

// Commit moves a verified binary from stagedPath to binaryPath and records
// meta next to it. The old sidecar is removed before the binary is replaced,
// so a binary whose sidecar is missing is never mistaken for a valid install.
// If the binary cannot be moved into place the previous sidecar is restored.
func Commit(stagedPath, binaryPath string, meta Metadata) error {
	if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create install directory")
	}

	sidecar := SidecarPath(binaryPath)
	previous, err := os.ReadFile(sidecar)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read existing metadata")
	}
	if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove existing metadata")
	}

	if err := placeBinary(stagedPath, binaryPath); err != nil {
		if previous != nil {
			if restoreErr := writeFileAtomic(sidecar, previous); restoreErr != nil {
				log.WithError(restoreErr).Warnf("Failed to restore metadata for %s", binaryPath)
			}
		}
		return err
	}

	if err := WriteMetadata(binaryPath, meta); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":    binaryPath,
		"version": meta.Version,
		"target":  meta.Target,
	}).Debug("installed binary")
	return nil
}

// placeBinary renames stagedPath onto binaryPath, copying through a temp
// file in the destination directory when a rename is not possible.
func placeBinary(stagedPath, binaryPath string) error {
	err := atomicInstall(stagedPath, binaryPath)
	if err == nil {
		return nil
	}
	log.WithError(err).Debug("rename failed, copying instead")

	targetDir := filepath.Dir(binaryPath)

	source, err := os.Open(stagedPath)
	if err != nil {
		return errors.Wrap(err, "failed to open staged binary")
	}
	defer source.Close()

	tmpFile, err := os.CreateTemp(targetDir, "."+filepath.Base(binaryPath)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, source); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to copy binary")
	}

	if err := tmpFile.Chmod(0755); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to set permissions")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary file")
	}

	if err := atomicInstall(tmpPath, binaryPath); err != nil {
		return err
	}

	success = true
	return nil
}

// atomicInstall performs an atomic file replacement
func atomicInstall(sourcePath, targetPath string) error {
	// On Unix, rename is atomic
	if err := os.Rename(sourcePath, targetPath); err != nil {
		// Windows refuses to rename over an existing file
		if runtime.GOOS == "windows" || os.IsExist(err) {
			if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, "failed to remove existing file")
			}
			if err := os.Rename(sourcePath, targetPath); err != nil {
				return errors.Wrap(err, "failed to install binary")
			}
		} else {
			return errors.Wrap(err, "failed to install binary")
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it over
// path.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write temporary file")
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close temporary file")
	}
	if err := atomicInstall(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
