package share

import (
	"context"
	"log/slog"

	"github.com/alexjbarnes/vault-share/internal/api"
	"github.com/alexjbarnes/vault-share/internal/vault"
)

// Reconciler joins the backend's list of shared notes against the local
// vault. The join is read-only: it never mutates a ShareRecord or a
// remote note, it only annotates.
type Reconciler struct {
	vault   *vault.Vault
	store   *Store
	remote  RemoteAPI
	baseURL string
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(v *vault.Vault, store *Store, remote RemoteAPI, baseURL string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		vault:   v,
		store:   store,
		remote:  remote,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Reconcile fetches every remote share and annotates each with the
// vault-relative path of the local note that maps to it. Remote entries
// left without a path are orphaned shares: the note was deleted, moved
// out of this vault, or shared from another vault entirely. Local notes
// without a readable ShareRecord are ignored.
//
// This backs a non-critical listing view, so it is best-effort: a
// failed remote fetch logs and returns an empty list, never an error.
// Backend ordering is preserved.
func (r *Reconciler) Reconcile(ctx context.Context) []api.RemoteNote {
	remote, err := r.remote.ListShared(ctx)
	if err != nil {
		r.logger.Warn("fetching shared notes failed", slog.String("error", err.Error()))
		return nil
	}

	if len(remote) == 0 {
		return remote
	}

	byID := make(map[string]int, len(remote))
	for i := range remote {
		byID[remote[i].ID] = i
	}

	paths, err := r.vault.ListMarkdown()
	if err != nil {
		r.logger.Warn("scanning vault failed", slog.String("error", err.Error()))
		return remote
	}

	for _, p := range paths {
		rec, err := r.store.Read(p)
		if err != nil {
			r.logger.Warn("reading share record failed",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)

			continue
		}

		if rec == nil {
			continue
		}

		// The link is authoritative for identity; re-derive the id
		// through the canonical parse rather than trusting a stored
		// id field blindly.
		id, ok := ParseShareURL(rec.Link, r.baseURL)
		if !ok {
			continue
		}

		if i, found := byID[id]; found {
			remote[i].Path = p
		}
	}

	return remote
}
