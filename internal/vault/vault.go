// Package vault provides filesystem access to a local note vault: path
// resolution with traversal checks, markdown enumeration for full scans,
// and atomic note writes. It has no knowledge of the share backend.
package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	sherr "github.com/alexjbarnes/vault-share/internal/errors"
)

// Vault provides operations on a local vault directory.
type Vault struct {
	root string
}

// New creates a Vault rooted at the given directory.
func New(root string) (*Vault, error) {
	if root == "" {
		return nil, fmt.Errorf("vault path must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("accessing vault path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", abs)
	}

	// Resolve the root itself so the symlink-escape prefix checks
	// compare like with like (macOS puts temp dirs behind /var -> /private/var).
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	return &Vault{root: abs}, nil
}

// Root returns the absolute path to the vault root.
func (v *Vault) Root() string {
	return v.root
}

// NormalizePath canonicalizes a vault-relative path: OS separators to
// slashes, non-breaking spaces to regular spaces, repeated slashes
// collapsed, leading/trailing slashes trimmed, and Unicode NFC applied.
// Every path entering the system goes through this so the same note
// never appears under two spellings (macOS reports NFD filenames).
func NormalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.ReplaceAll(path, " ", " ")
	path = strings.ReplaceAll(path, " ", " ")

	var b strings.Builder

	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")

	return norm.NFC.String(path)
}

// validatePath checks for path traversal attempts.
func validatePath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("empty path")
	}

	if strings.Contains(relPath, "..") {
		return fmt.Errorf("path must not contain '..': %s", relPath)
	}

	return nil
}

// resolve converts a vault-relative path to an absolute path, validating
// that it stays within the vault root. It evaluates symlinks to prevent
// symlink-based escape from the vault directory.
func (v *Vault) resolve(relPath string) (string, error) {
	if err := validatePath(relPath); err != nil {
		return "", err
	}

	abs := filepath.Join(v.root, filepath.FromSlash(relPath))
	if !strings.HasPrefix(abs, v.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes vault root: %s", relPath)
	}

	real, err := evalExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("evaluating path: %w", err)
	}

	if !strings.HasPrefix(real, v.root+string(filepath.Separator)) && real != v.root {
		return "", fmt.Errorf("path escapes vault root via symlink: %s", relPath)
	}

	return abs, nil
}

// evalExistingPrefix resolves symlinks for the longest existing prefix of
// the path. For a path whose final components do not exist yet, it
// evaluates the deepest existing ancestor and appends the remainder, so
// symlink escape is detected even for not-yet-created paths.
func evalExistingPrefix(abs string) (string, error) {
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}

	dir := filepath.Dir(abs)
	base := filepath.Base(abs)

	if dir == abs {
		// Reached filesystem root without finding anything.
		return abs, nil
	}

	parentReal, err := evalExistingPrefix(dir)
	if err != nil {
		return "", err
	}

	return filepath.Join(parentReal, base), nil
}

// ReadNote returns the full content of a note.
func (v *Vault) ReadNote(relPath string) ([]byte, error) {
	abs, err := v.resolve(relPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sherr.ErrNoteNotFound, relPath)
		}

		return nil, fmt.Errorf("reading note: %w", err)
	}

	return data, nil
}

// WriteNote replaces a note's content using an atomic temp-file write
// followed by a rename, so readers never observe a partially written
// note. Permissions of an existing note are preserved.
func (v *Vault) WriteNote(relPath string, content []byte) error {
	abs, err := v.resolve(relPath)
	if err != nil {
		return err
	}

	perm := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		perm = info.Mode()
	}

	dir := filepath.Dir(abs)

	tmp, err := os.CreateTemp(dir, ".share-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// ListMarkdown returns normalized vault-relative paths of every
// markdown note, sorted. Hidden directories (including .obsidian/) are
// skipped.
func (v *Vault) ListMarkdown() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != v.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if !strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}

		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return err
		}

		paths = append(paths, NormalizePath(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking vault: %w", err)
	}

	sort.Strings(paths)

	return paths, nil
}
