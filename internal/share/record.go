package share

import (
	"net/url"
	"strings"
	"time"
)

// ShareRecord links a local note to its remote shared copy. It lives in
// the note's frontmatter, so it moves with the note.
type ShareRecord struct {
	// ID is the remote identifier. Stable once assigned; it only
	// changes on an explicit force-recreate.
	ID string

	// Link is the fully qualified public address of the shared copy.
	Link string

	// Updated is the time of the last successful upload.
	Updated time.Time

	// Hash is the digest of the note body at the last upload. The
	// frontmatter is excluded so the hash stays valid across the
	// store's own record rewrites. An empty hash (records written by
	// older versions, or recovered from a bare link) always reads as
	// stale.
	Hash string
}

// ParseShareURL recovers the remote identifier from a previously issued
// share link: the final path segment of a link under the given public
// base URL. It returns ok=false for anything that is not a recognized
// share link - wrong host, no path segment, or not a URL at all.
func ParseShareURL(link, baseURL string) (id string, ok bool) {
	u, err := url.Parse(link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	base, err := url.Parse(baseURL)
	if err != nil || u.Host != base.Host {
		return "", false
	}

	// Tolerate a base URL that carries its own path prefix.
	p := strings.TrimPrefix(u.Path, strings.TrimRight(base.Path, "/"))

	id = strings.Trim(p, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}

	return id, true
}
