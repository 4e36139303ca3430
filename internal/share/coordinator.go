package share

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alexjbarnes/vault-share/internal/api"
	"github.com/alexjbarnes/vault-share/internal/clipboard"
	"github.com/alexjbarnes/vault-share/internal/vault"
)

// RemoteAPI is the slice of the backend client the share core consumes.
type RemoteAPI interface {
	Create(ctx context.Context, title, content string) (*api.ShareResult, error)
	Update(ctx context.Context, id, title, content string) (*api.ShareResult, error)
	ListShared(ctx context.Context) ([]api.RemoteNote, error)
}

// Options controls a single share invocation.
type Options struct {
	// ForceUpload bypasses the unchanged-content skip and re-pushes
	// the note even when the stored record looks current.
	ForceUpload bool

	// ForceClipboard copies the resulting link regardless of the
	// copy-on-share setting.
	ForceClipboard bool
}

// Result is the outcome of a share operation.
type Result struct {
	ID       string
	Link     string
	Uploaded bool
}

// genericFailureMessage is the toast shown for the backend's
// unclassified failure kind. Every other failure propagates to the
// caller for display.
const genericFailureMessage = "Sharing failed. Please try again later."

// Coordinator orchestrates single share operations: decide
// skip/update/create, call the backend, persist the resulting record,
// and copy the link. Concurrent shares of the same note are collapsed
// into one in-flight operation per normalized path.
type Coordinator struct {
	vault       *vault.Vault
	store       *Store
	remote      RemoteAPI
	clip        clipboard.Writer
	notify      Notifier
	logger      *slog.Logger
	copyOnShare bool

	flight singleflight.Group
	now    func() time.Time
}

// NewCoordinator wires a Coordinator. copyOnShare is the user's default
// clipboard-on-share preference.
func NewCoordinator(v *vault.Vault, store *Store, remote RemoteAPI, clip clipboard.Writer, notify Notifier, logger *slog.Logger, copyOnShare bool) *Coordinator {
	return &Coordinator{
		vault:       v,
		store:       store,
		remote:      remote,
		clip:        clip,
		notify:      notify,
		logger:      logger,
		copyOnShare: copyOnShare,
		now:         time.Now,
	}
}

// Share publishes one note, creating or updating its remote copy as
// needed. An unchanged, already-shared note costs no network calls and
// reuses the stored link. Rapid repeated invocations for the same note
// share a single in-flight operation.
func (c *Coordinator) Share(ctx context.Context, relPath string, opts Options) (*Result, error) {
	relPath = vault.NormalizePath(relPath)

	v, err, _ := c.flight.Do(relPath, func() (interface{}, error) {
		return c.share(ctx, relPath, opts)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Result), nil
}

func (c *Coordinator) share(ctx context.Context, relPath string, opts Options) (*Result, error) {
	done := c.notify.Busy("sharing " + relPath)
	defer done()

	content, err := c.vault.ReadNote(relPath)
	if err != nil {
		return nil, err
	}

	// Digest the body only: the store's own record writes (including
	// the refreshed timestamp) rewrite the frontmatter, so hashing the
	// whole file would make every stored hash stale by construction.
	body := vault.NoteBody(content)
	digest := Digest(body)

	rec, err := c.store.Read(relPath)
	if err != nil {
		return nil, err
	}

	// Already shared and unchanged: reuse the stored link, touch
	// nothing remote.
	if rec != nil && !opts.ForceUpload && rec.Hash == digest {
		c.logger.Debug("share skipped, content unchanged",
			slog.String("path", relPath),
			slog.String("id", rec.ID),
		)

		res := &Result{ID: rec.ID, Link: rec.Link, Uploaded: false}
		c.finish(relPath, res, opts)

		return res, nil
	}

	title := deriveTitle(relPath, body)

	var uploaded *api.ShareResult
	if rec == nil {
		uploaded, err = c.remote.Create(ctx, title, string(content))
	} else {
		uploaded, err = c.remote.Update(ctx, rec.ID, title, string(content))
	}

	if err != nil {
		// Only the backend's unclassified failure gets the generic
		// toast; everything else is the caller's to present.
		if api.IsUnknown(err) {
			c.notify.Error(genericFailureMessage)
		}

		return nil, err
	}

	// The record is written only after a successful remote response,
	// never before: a stored id must always exist remotely.
	newRec := ShareRecord{
		ID:      uploaded.ID,
		Link:    uploaded.Link,
		Updated: c.now(),
		Hash:    digest,
	}

	if err := c.store.Write(relPath, newRec); err != nil {
		return nil, fmt.Errorf("recording share state: %w", err)
	}

	c.logger.Info("note shared",
		slog.String("path", relPath),
		slog.String("id", uploaded.ID),
		slog.Bool("created", rec == nil),
	)

	res := &Result{ID: uploaded.ID, Link: uploaded.Link, Uploaded: true}
	c.finish(relPath, res, opts)

	return res, nil
}

// Record returns the note's stored ShareRecord without contacting the
// backend, or nil when the note was never shared.
func (c *Coordinator) Record(relPath string) (*ShareRecord, error) {
	return c.store.Read(vault.NormalizePath(relPath))
}

// finish runs the clipboard step and success toast for a completed
// share.
func (c *Coordinator) finish(relPath string, res *Result, opts Options) {
	if opts.ForceClipboard || c.copyOnShare {
		if err := c.clip.Copy(res.Link); err != nil {
			// Best effort: a dead clipboard never fails the share.
			c.logger.Warn("clipboard copy failed", slog.String("error", err.Error()))
			c.notify.Success("shared " + relPath + ": " + res.Link)

			return
		}

		c.notify.Success("link copied: " + res.Link)

		return
	}

	c.notify.Success("shared " + relPath + ": " + res.Link)
}

// deriveTitle picks the upload title: the first top-level markdown
// heading in the note body, else the filename stem. The body must
// already have its frontmatter stripped, otherwise a YAML comment
// line would read as a heading.
func deriveTitle(relPath string, body []byte) string {
	for _, line := range bytes.Split(body, []byte("\n")) {
		trimmed := strings.TrimRight(string(line), "\r")
		if strings.HasPrefix(trimmed, "# ") {
			if title := strings.TrimSpace(trimmed[2:]); title != "" {
				return title
			}
		}
	}

	base := path.Base(relPath)

	return strings.TrimSuffix(base, path.Ext(base))
}
