package cache

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ErrNotRegular is returned when a local item is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// IsLocal reports whether locator addresses local storage: a plain path, a
// Windows drive path, or a file: URL.
func IsLocal(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return true
	}
	return u.Scheme == "" || len(u.Scheme) == 1 || strings.EqualFold(u.Scheme, "file")
}

// LocalPath returns the filesystem path of a local locator.
func LocalPath(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || !strings.EqualFold(u.Scheme, "file") {
		return locator
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	// file:///C:/dir/a.txt
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}

// StatLocal resolves a local locator and checks that it names an existing
// regular file.
func StatLocal(locator string) (string, error) {
	p := LocalPath(locator)
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("stat local file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", p, ErrNotRegular)
	}
	return p, nil
}
