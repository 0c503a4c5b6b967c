// Package filename derives cache file names and display titles from item locators.
package filename

import (
	"mime"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/quickstage/internal/domain"
)

// DefaultExtension is used when a locator carries no extension.
const DefaultExtension = "file"

// Name is the derived identity of an item in the cache.
type Name struct {
	Stem      string
	Extension string
	Title     string
}

// Base returns "<stem>.<extension>".
func (n Name) Base() string {
	return n.Stem + "." + n.Extension
}

// Derive splits the last path segment of locator into a stem and an extension.
// The stem is percent-encoded so only ASCII letters and digits remain. When no
// usable segment exists the stem is a random UUID.
func Derive(locator string) (stem, ext string) {
	seg := lastSegment(locator)

	base := seg
	if i := strings.LastIndex(seg, "."); i > 0 && i < len(seg)-1 {
		base, ext = seg[:i], seg[i+1:]
	}
	if ext == "" {
		ext = DefaultExtension
	}

	if base == "" || base == "." || base == ".." {
		return uuid.NewString(), ext
	}
	return Encode(base), ext
}

// Extension returns the extension to store item under. A declared media type
// wins over the locator's own extension.
func Extension(item domain.Item) string {
	if ext, ok := mediaTypeExtension(item.MediaType); ok {
		return ext
	}
	_, ext := Derive(item.Source)
	return ext
}

// Title returns the item's declared title, or stem when none is declared. Any
// non-empty title counts as declared, including one made of whitespace.
func Title(item domain.Item, stem string) string {
	if item.Title != "" {
		return item.Title
	}
	return stem
}

// Resolve derives the full cache name for item.
func Resolve(item domain.Item) Name {
	stem, ext := Derive(item.Source)
	if override, ok := mediaTypeExtension(item.MediaType); ok {
		ext = override
	}
	return Name{Stem: stem, Extension: ext, Title: Title(item, stem)}
}

// Encode percent-encodes every byte that is not an ASCII letter or digit.
func Encode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func lastSegment(locator string) string {
	p := locator
	// Single-letter schemes are Windows drive letters, not URLs.
	if u, err := url.Parse(locator); err == nil && len(u.Scheme) > 1 {
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func mediaTypeExtension(mediaType string) (string, bool) {
	mt := strings.TrimSpace(mediaType)
	if mt == "" {
		return "", false
	}

	if strings.Contains(mt, "/") {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			mt = parsed
		}
		if ext := extensionForType(mt); ext != "" {
			return ext, true
		}
		return Encode(mt), true
	}

	bare := strings.TrimPrefix(mt, ".")
	if bare == "" {
		return "", false
	}
	for i := 0; i < len(bare); i++ {
		if !isAlnum(bare[i]) {
			return Encode(bare), true
		}
	}
	return bare, true
}

// extensionForType prefers the extension named after the MIME subtype
// (image/png -> png) and otherwise takes the first registered one.
func extensionForType(mt string) string {
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ""
	}
	sort.Strings(exts)

	subtype := mt[strings.LastIndex(mt, "/")+1:]
	for _, e := range exts {
		if strings.EqualFold(strings.TrimPrefix(e, "."), subtype) {
			return strings.TrimPrefix(e, ".")
		}
	}
	return strings.TrimPrefix(exts[0], ".")
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
