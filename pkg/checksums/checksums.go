// Package checksums parses SHA-256 checksum manifests published next to
// release archives.
package checksums

import (
	"bufio"
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// DigestLength is the length of a hex encoded SHA-256 digest.
const DigestLength = 64

const bsdPrefix = "SHA256 ("

// Map holds filename to lowercase hex digest entries.
type Map map[string]string

// Lookup returns the digest recorded for name. Names are tried as given and
// with a leading "./" removed. A manifest holding a single bare digest (no
// filename) matches any name.
func (m Map) Lookup(name string) (string, bool) {
	if digest, ok := m[name]; ok {
		return digest, true
	}
	if digest, ok := m[normalize(name)]; ok {
		return digest, true
	}
	if digest, ok := m[""]; ok && len(m) == 1 {
		return digest, true
	}
	return "", false
}

// Parse parses a manifest held in memory. See ParseReader.
func Parse(text string) Map {
	m, _ := ParseReader(strings.NewReader(text))
	return m
}

// ParseReader parses a checksum manifest. The following line formats are
// understood:
//
//	<hex>  name        GNU coreutils, text mode
//	<hex> *name        GNU coreutils, binary mode
//	SHA256 (name) = <hex>   BSD style
//
// Lines that match none of them are skipped.
func ParseReader(r io.Reader) (Map, error) {
	checksums := make(Map)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		digest, filename, ok := parseLine(line)
		if !ok {
			log.Debugf("Ignoring invalid checksum line: %s", line)
			continue
		}

		checksums[filename] = digest
		if n := normalize(filename); n != filename {
			checksums[n] = digest
		}
	}

	if err := scanner.Err(); err != nil {
		return checksums, errors.Wrap(err, "failed to read checksum manifest")
	}
	return checksums, nil
}

func parseLine(line string) (digest, filename string, ok bool) {
	if strings.HasPrefix(line, bsdPrefix) {
		rest := strings.TrimPrefix(line, bsdPrefix)
		idx := strings.LastIndex(rest, ")")
		if idx <= 0 {
			return "", "", false
		}
		filename = rest[:idx]
		tail := strings.TrimSpace(rest[idx+1:])
		if !strings.HasPrefix(tail, "=") {
			return "", "", false
		}
		digest = strings.TrimSpace(strings.TrimPrefix(tail, "="))
		if !IsDigest(digest) {
			return "", "", false
		}
		return strings.ToLower(digest), filename, true
	}

	if len(line) < DigestLength || !IsDigest(line[:DigestLength]) {
		return "", "", false
	}
	digest = strings.ToLower(line[:DigestLength])
	rest := line[DigestLength:]
	if rest == "" {
		return digest, "", true
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", "", false
	}
	filename = strings.TrimPrefix(strings.TrimLeft(rest, " \t"), "*")
	if filename == "" {
		return "", "", false
	}
	return digest, filename, true
}

// IsDigest reports whether s is a 64 character hex string.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for _, ch := range s {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

func normalize(name string) string {
	for strings.HasPrefix(name, "./") {
		name = strings.TrimPrefix(name, "./")
	}
	return name
}
