// Package archive extracts a single named binary from a release archive.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Format represents the archive format
type Format string

const (
	FormatTarXz Format = "tar.xz"
	FormatTarGz Format = "tar.gz"
	FormatZip   Format = "zip"
)

// DetectFormat detects the archive format based on the filename. It returns
// "" for anything that is not a supported archive.
func DetectFormat(filename string) Format {
	lower := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	default:
		return ""
	}
}

// ExtractionFailedError is returned when the archive cannot be read or does
// not contain the expected binary.
type ExtractionFailedError struct {
	Archive string
	Binary  string
	Err     error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("failed to extract %s from %s: %v", e.Binary, filepath.Base(e.Archive), e.Err)
}

func (e *ExtractionFailedError) Unwrap() error {
	return e.Err
}

var errNotFound = errors.New("binary not found in archive")

// ExtractBinary locates the regular file named binaryName (at any depth) in
// the archive and writes it to destDir/binaryName with mode 0755. The
// archive's own permission bits are ignored.
func ExtractBinary(archivePath string, format Format, binaryName, destDir string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &ExtractionFailedError{Archive: archivePath, Binary: binaryName, Err: err}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fail(errors.Wrap(err, "failed to create destination directory"))
	}
	destPath := filepath.Join(destDir, binaryName)

	var err error
	switch format {
	case FormatTarXz:
		err = extractFromTarXz(archivePath, binaryName, destPath)
	case FormatTarGz:
		err = extractFromTarGz(archivePath, binaryName, destPath)
	case FormatZip:
		err = extractFromZip(archivePath, binaryName, destPath)
	default:
		err = fmt.Errorf("unsupported archive format: %q", format)
	}
	if err != nil {
		os.Remove(destPath)
		return fail(err)
	}

	// Archive permissions are not trusted
	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0755); err != nil {
			os.Remove(destPath)
			return fail(errors.Wrap(err, "failed to set permissions"))
		}
	}

	log.Debugf("Extracted %s to %s", binaryName, destPath)
	return destPath, nil
}

func extractFromTarXz(archivePath, binaryName, destPath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return errors.Wrap(err, "failed to create xz reader")
	}

	return extractFromTar(xzReader, binaryName, destPath)
}

func extractFromTarGz(archivePath, binaryName, destPath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return errors.Wrap(err, "failed to create gzip reader")
	}
	defer gzReader.Close()

	return extractFromTar(gzReader, binaryName, destPath)
}

func extractFromTar(r io.Reader, binaryName, destPath string) error {
	tarReader := tar.NewReader(r)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return errNotFound
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar header")
		}

		if header.Typeflag != tar.TypeReg || !matches(header.Name, binaryName) {
			continue
		}
		return writeFile(destPath, tarReader)
	}
}

func extractFromZip(archivePath, binaryName, destPath string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open zip archive")
	}
	defer reader.Close()

	for _, file := range reader.File {
		if !file.Mode().IsRegular() || !matches(file.Name, binaryName) {
			continue
		}

		fileReader, err := file.Open()
		if err != nil {
			return errors.Wrap(err, "failed to open file in archive")
		}
		err = writeFile(destPath, fileReader)
		fileReader.Close()
		return err
	}
	return errNotFound
}

// matches reports whether an archive entry is the wanted binary. Entries
// that try to escape the archive root never match.
func matches(entryName, binaryName string) bool {
	name := strings.ReplaceAll(entryName, "\\", "/")
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return path.Base(name) == binaryName
}

func writeFile(destPath string, src io.Reader) error {
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to extract file")
	}
	return errors.Wrap(out.Close(), "failed to close file")
}
