// Package verify checks downloaded artifacts against published SHA-256
// digests.
package verify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nova-ide/nova-install/pkg/checksums"
	"github.com/pkg/errors"
)

// ChecksumMismatchError reports a digest disagreement. It is never
// downgradeable: the artifact must be discarded.
type ChecksumMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Actual)
}

// ComputeSHA256 returns the lowercase hex SHA-256 digest of r.
func ComputeSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, "failed to compute checksum")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify hashes everything read from r and compares it with expected,
// ignoring case. name is only used in the error message.
func Verify(r io.Reader, name, expected string) error {
	if !checksums.IsDigest(expected) {
		return fmt.Errorf("invalid SHA-256 digest for %s: %q", name, expected)
	}

	actual, err := ComputeSHA256(r)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, expected) {
		return &ChecksumMismatchError{
			Name:     name,
			Expected: strings.ToLower(expected),
			Actual:   actual,
		}
	}
	return nil
}

// VerifyBytes verifies an in-memory payload.
func VerifyBytes(data []byte, name, expected string) error {
	return Verify(bytes.NewReader(data), name, expected)
}

// VerifyFile verifies the file at path.
func VerifyFile(path, name, expected string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return Verify(file, name, expected)
}
