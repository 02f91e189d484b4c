// Package media keeps the local asset tree in sync with the room's media
// manifest: downloads into deterministic paths, prunes anything the latest
// manifest no longer names, and repairs video codecs the device cannot
// decode smoothly.
package media

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/roomtrek/kioskd/internal/api"
)

// Manifest is the authoritative file list for one room. A category absent
// from Singles means that category directory should be empty.
type Manifest struct {
	// Singles maps a single-file category directory name to its signed URL.
	Singles map[string]string
	// Clues lists signed URLs for the many-file clue set.
	Clues []string
}

// FromAPI converts the wire manifest.
func FromAPI(raw *api.MediaManifestRaw) Manifest {
	m := Manifest{Singles: map[string]string{}}
	if raw == nil {
		return m
	}
	for category, u := range raw.Categories {
		if u != "" {
			m.Singles[category] = u
		}
	}
	m.Clues = append(m.Clues, raw.ClueFiles...)
	return m
}

// FilenameFromURL derives the local filename from a signed remote URL: the
// final path segment before the query-string marker. The segment position
// is an external contract with the upstream URL signer; if the URL shape
// changes, this function is the single place that breaks.
func FilenameFromURL(signed string) (string, error) {
	u, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	// Work on the escaped form so an encoded slash cannot smuggle extra
	// path segments past the base split.
	name := path.Base(u.EscapedPath())
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("asset url %q has no file segment", signed)
	}
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("unescape asset name %q: %w", name, err)
	}
	if strings.ContainsAny(unescaped, `/\`) {
		return "", fmt.Errorf("asset name %q escapes its directory", unescaped)
	}
	return unescaped, nil
}
