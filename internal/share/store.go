package share

import (
	"fmt"
	"time"

	"github.com/alexjbarnes/vault-share/internal/vault"
)

// Store reads and writes ShareRecords embedded in note frontmatter.
// All record fields are namespaced under a single configurable base
// field: the link at "<field>_link", the id at "<field>_id", the last
// upload time at "<field>_updated" and the content digest at
// "<field>_hash". Keeping the record inside the note itself (rather
// than a side database) means the mapping survives moves and renames
// for free, at the cost of a link-parse fallback when only the link
// field is present.
type Store struct {
	vault   *vault.Vault
	field   string
	baseURL string
}

// NewStore creates a Store over the given vault. field is the base
// frontmatter field name; baseURL is the public link prefix used for
// the id-from-link fallback.
func NewStore(v *vault.Vault, field, baseURL string) *Store {
	return &Store{vault: v, field: field, baseURL: baseURL}
}

func (s *Store) linkKey() string    { return s.field + "_link" }
func (s *Store) idKey() string      { return s.field + "_id" }
func (s *Store) updatedKey() string { return s.field + "_updated" }
func (s *Store) hashKey() string    { return s.field + "_hash" }

// Read returns the note's ShareRecord, or nil when the note has none.
// Malformed metadata - unparseable frontmatter, a link field holding
// garbage - reads as absent, never as an error. The only errors are
// real I/O failures.
func (s *Store) Read(relPath string) (*ShareRecord, error) {
	content, err := s.vault.ReadNote(relPath)
	if err != nil {
		return nil, err
	}

	return s.fromContent(content), nil
}

// fromContent extracts the ShareRecord from raw note content.
func (s *Store) fromContent(content []byte) *ShareRecord {
	fields := vault.ParseFrontmatterFields(content)
	if fields == nil {
		return nil
	}

	link := fields[s.linkKey()]
	if link == "" {
		return nil
	}

	rec := &ShareRecord{
		ID:   fields[s.idKey()],
		Link: link,
		Hash: fields[s.hashKey()],
	}

	// Recover the id from the link when it was never stored separately.
	// A link the canonical parse rejects makes the whole record invalid:
	// there is no usable remote identity behind it.
	if rec.ID == "" {
		id, ok := ParseShareURL(link, s.baseURL)
		if !ok {
			return nil
		}

		rec.ID = id
	}

	if raw := fields[s.updatedKey()]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.Updated = ts
		}
	}

	return rec
}

// Write upserts all record fields into the note's frontmatter in a
// single pass and persists the result with one atomic file write, so a
// concurrent reader sees either the old record or the new one, never a
// mix.
func (s *Store) Write(relPath string, rec ShareRecord) error {
	content, err := s.vault.ReadNote(relPath)
	if err != nil {
		return err
	}

	updated, err := vault.UpsertFrontmatterFields(content, map[string]string{
		s.linkKey():    rec.Link,
		s.idKey():      rec.ID,
		s.updatedKey(): rec.Updated.UTC().Format(time.RFC3339),
		s.hashKey():    rec.Hash,
	})
	if err != nil {
		return fmt.Errorf("updating share fields for %s: %w", relPath, err)
	}

	if err := s.vault.WriteNote(relPath, updated); err != nil {
		return fmt.Errorf("persisting share record for %s: %w", relPath, err)
	}

	return nil
}
