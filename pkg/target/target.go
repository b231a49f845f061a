// Package target maps an operating system and CPU architecture onto the
// target triple used in release archive names.
package target

import (
	"fmt"
	"runtime"
	"strings"
)

// UnsupportedPlatformError is returned for platform/arch pairs that have no
// published archive. Callers must not guess a fallback triple.
type UnsupportedPlatformError struct {
	Platform string
	Arch     string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s/%s", e.Platform, e.Arch)
}

var triples = map[string]string{
	"darwin/arm64":  "aarch64-apple-darwin",
	"darwin/amd64":  "x86_64-apple-darwin",
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
}

// Detect returns the target triple for the given platform and architecture.
// Both Go names (windows, amd64) and Node names (win32, x64) are accepted.
func Detect(platform, arch string) (string, error) {
	key := normalizeOS(platform) + "/" + normalizeArch(arch)
	triple, ok := triples[key]
	if !ok {
		return "", &UnsupportedPlatformError{Platform: platform, Arch: arch}
	}
	return triple, nil
}

// Current returns the target triple of the running process.
func Current() (string, error) {
	return Detect(runtime.GOOS, runtime.GOARCH)
}

// IsWindows reports whether the triple names a Windows target.
func IsWindows(triple string) bool {
	return strings.Contains(triple, "-windows-")
}

func normalizeOS(platform string) string {
	switch p := strings.ToLower(strings.TrimSpace(platform)); p {
	case "win32":
		return "windows"
	case "macos", "osx":
		return "darwin"
	default:
		return p
	}
}

func normalizeArch(arch string) string {
	switch a := strings.ToLower(strings.TrimSpace(arch)); a {
	case "x64", "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return a
	}
}
