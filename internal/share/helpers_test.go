package share

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/vault-share/internal/api"
	"github.com/alexjbarnes/vault-share/internal/vault"
)

const testBaseURL = "https://noteshare.site"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()

	v, err := vault.New(t.TempDir())
	require.NoError(t, err)

	return v
}

func writeNote(t *testing.T, v *vault.Vault, rel, content string) {
	t.Helper()

	abs := filepath.Join(v.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// fakeRemote is a scriptable RemoteAPI recording every call.
type fakeRemote struct {
	mu sync.Mutex

	creates      int
	updates      int
	lastUpdateID string
	lastTitle    string

	nextID  string
	err     error
	list    []api.RemoteNote
	listErr error

	// release, when set, blocks uploads until closed.
	release chan struct{}
}

func (f *fakeRemote) result() *api.ShareResult {
	id := f.nextID
	if id == "" {
		id = "n1"
	}

	return &api.ShareResult{ID: id, Link: testBaseURL + "/" + id}
}

func (f *fakeRemote) Create(ctx context.Context, title, content string) (*api.ShareResult, error) {
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	f.lastTitle = title
	if f.err != nil {
		return nil, f.err
	}

	return f.result(), nil
}

func (f *fakeRemote) Update(ctx context.Context, id, title, content string) (*api.ShareResult, error) {
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates++
	f.lastUpdateID = id
	f.lastTitle = title
	if f.err != nil {
		return nil, f.err
	}

	if f.nextID == "" {
		return &api.ShareResult{ID: id, Link: testBaseURL + "/" + id}, nil
	}

	return f.result(), nil
}

func (f *fakeRemote) ListShared(ctx context.Context) ([]api.RemoteNote, error) {
	return f.list, f.listErr
}

func (f *fakeRemote) calls() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.creates, f.updates
}

func (f *fakeRemote) title() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastTitle
}

// fakeClipboard records copied text.
type fakeClipboard struct {
	mu     sync.Mutex
	copies []string
	err    error
}

func (f *fakeClipboard) Copy(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.copies = append(f.copies, text)

	return nil
}

func (f *fakeClipboard) copied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.copies...)
}

// fakeNotifier records toasts and busy indicator lifecycle.
type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
	busy      int
	done      int
}

func (f *fakeNotifier) Success(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, msg)
}

func (f *fakeNotifier) Error(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeNotifier) Busy(msg string) func() {
	f.mu.Lock()
	f.busy++
	f.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.done++
			f.mu.Unlock()
		})
	}
}

func (f *fakeNotifier) busyBalanced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.busy > 0 && f.busy == f.done
}

// newListServer backs a real api.Client with a fixed JSON listing
// response.
func newListServer(t *testing.T, listJSON string) *api.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listJSON))
	}))
	t.Cleanup(srv.Close)

	return api.NewClient(srv.Client(), srv.URL, "key", "client-1")
}

type testRig struct {
	vault  *vault.Vault
	store  *Store
	remote *fakeRemote
	clip   *fakeClipboard
	notify *fakeNotifier
	coord  *Coordinator
}

func newTestRig(t *testing.T, copyOnShare bool) *testRig {
	t.Helper()

	v := newTestVault(t)
	store := NewStore(v, "share", testBaseURL)
	remote := &fakeRemote{}
	clip := &fakeClipboard{}
	notify := &fakeNotifier{}

	return &testRig{
		vault:  v,
		store:  store,
		remote: remote,
		clip:   clip,
		notify: notify,
		coord:  NewCoordinator(v, store, remote, clip, notify, testLogger(), copyOnShare),
	}
}
