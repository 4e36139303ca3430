package share

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/vault-share/internal/api"
	"github.com/alexjbarnes/vault-share/internal/vault"
)

func TestShare_FirstShareCreates(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "# A\nbody\n")

	res, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	assert.True(t, res.Uploaded)
	assert.Equal(t, "n1", res.ID)
	assert.Equal(t, "https://noteshare.site/n1", res.Link)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)

	rec, err := rig.store.Read("a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "n1", rec.ID)
	assert.False(t, rec.Updated.IsZero())
}

func TestShare_SecondShareSkipsUpload(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "# A\nbody\n")

	first, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	second, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	assert.False(t, second.Uploaded)
	assert.Equal(t, first.Link, second.Link)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
}

func TestShare_ChangedContentUpdates(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "# A\nbody\n")

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	// Edit the body, keeping the record intact.
	content, err := rig.vault.ReadNote("a.md")
	require.NoError(t, err)
	require.NoError(t, rig.vault.WriteNote("a.md", append(content, []byte("more\n")...)))

	res, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.True(t, res.Uploaded)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, "n1", rig.remote.lastUpdateID)
}

func TestShare_ForceUploadOverridesSkip(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "# A\nbody\n")

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	res, err := rig.coord.Share(t.Context(), "a.md", Options{ForceUpload: true})
	require.NoError(t, err)
	assert.True(t, res.Uploaded)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
}

func TestShare_LinkParseRoundTrip(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")

	res, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	id, ok := ParseShareURL(res.Link, testBaseURL)
	require.True(t, ok)
	assert.Equal(t, res.ID, id)
}

func TestShare_RecordWithoutHashReuploads(t *testing.T) {
	rig := newTestRig(t, false)
	// A bare link from an older record: valid identity, unknown state.
	writeNote(t, rig.vault, "a.md", "---\nshare_link: https://noteshare.site/n9\n---\nbody\n")

	res, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.True(t, res.Uploaded)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, "n9", rig.remote.lastUpdateID)
}

func TestShare_UnknownErrorShowsGenericToast(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")
	rig.remote.err = &api.Error{Kind: api.KindUnknown, Err: errors.New("API /v1/notes: Unknown error")}

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.Error(t, err)

	require.Len(t, rig.notify.errors, 1)
	assert.Equal(t, genericFailureMessage, rig.notify.errors[0])

	// No record may be written after a failed upload.
	rec, rerr := rig.store.Read("a.md")
	require.NoError(t, rerr)
	assert.Nil(t, rec)
}

func TestShare_OtherErrorsPropagateSilently(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")

	wantErr := &api.Error{Kind: api.KindValidation, Err: errors.New("title required")}
	rig.remote.err = wantErr

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, rig.notify.errors)
}

func TestShare_BusyIndicatorClearedOnEveryPath(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")

	// Success path.
	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.True(t, rig.notify.busyBalanced())

	// Failure path.
	rig.remote.err = errors.New("boom")
	_, err = rig.coord.Share(t.Context(), "a.md", Options{ForceUpload: true})
	require.Error(t, err)
	assert.True(t, rig.notify.busyBalanced())

	// Missing note path.
	_, err = rig.coord.Share(t.Context(), "missing.md", Options{})
	require.Error(t, err)
	assert.True(t, rig.notify.busyBalanced())
}

func TestShare_ClipboardOnByDefaultSetting(t *testing.T) {
	rig := newTestRig(t, true)
	writeNote(t, rig.vault, "a.md", "body\n")

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://noteshare.site/n1"}, rig.clip.copied())
}

func TestShare_ForceClipboard(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")

	// Default off: no copy.
	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.Empty(t, rig.clip.copied())

	// Forced: copies the stored link without a new upload.
	_, err = rig.coord.Share(t.Context(), "a.md", Options{ForceClipboard: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://noteshare.site/n1"}, rig.clip.copied())

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
}

func TestShare_ClipboardFailureIsBestEffort(t *testing.T) {
	rig := newTestRig(t, true)
	writeNote(t, rig.vault, "a.md", "body\n")
	rig.clip.err = errors.New("no clipboard")

	res, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://noteshare.site/n1", res.Link)
	assert.NotEmpty(t, rig.notify.successes)
}

func TestShare_ConcurrentCallsCollapse(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")
	rig.remote.release = make(chan struct{})

	var wg sync.WaitGroup

	results := make([]*Result, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rig.coord.Share(t.Context(), "a.md", Options{})
		}(i)

		// Let the first call reach the blocked upload before the
		// second joins it.
		time.Sleep(50 * time.Millisecond)
	}

	close(rig.remote.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Link, results[1].Link)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates+updates)
}

func TestShare_RecordWriteKeepsHashCurrent(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "---\ntags: journal\n---\n# A\nbody\n")

	_, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)

	// The record write refreshed the frontmatter (fresh timestamp and
	// all); the stored hash must still match what the next share
	// computes, or every share would re-upload.
	content, err := rig.vault.ReadNote("a.md")
	require.NoError(t, err)

	rec, err := rig.store.Read("a.md")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Digest(vault.NoteBody(content)), rec.Hash)

	second, err := rig.coord.Share(t.Context(), "a.md", Options{})
	require.NoError(t, err)
	assert.False(t, second.Uploaded)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
}

func TestShare_ForceClipboardSharesFirstWhenNeeded(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "a.md", "body\n")

	// Copy-link on a never-shared note creates the share, then copies.
	res, err := rig.coord.Share(t.Context(), "a.md", Options{ForceClipboard: true})
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, []string{res.Link}, rig.clip.copied())

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
}

func TestShare_TitleIgnoresFrontmatterComments(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "weekly plan.md", "---\n# note to self\ntags: x\n---\nno heading here\n")

	_, err := rig.coord.Share(t.Context(), "weekly plan.md", Options{})
	require.NoError(t, err)

	// The YAML comment must not become the title.
	assert.Equal(t, "weekly plan", rig.remote.title())
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    string
	}{
		{"heading", "a.md", "# My Title\nbody", "My Title"},
		{"heading not on first line", "a.md", "intro text\n# Real Title\n", "Real Title"},
		{"no heading", "notes/daily log.md", "just text", "daily log"},
		{"empty heading falls through", "a.md", "# \nbody", "a"},
		{"crlf", "a.md", "# Title\r\nbody", "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.path, []byte(tt.content)))
		})
	}
}

func TestShare_ScenarioCreateThenImmediateReshare(t *testing.T) {
	rig := newTestRig(t, false)
	writeNote(t, rig.vault, "d.md", "# D\ncontent\n")

	first, err := rig.coord.Share(t.Context(), "d.md", Options{})
	require.NoError(t, err)
	require.True(t, first.Uploaded)

	link := fmt.Sprintf("%s/%s", testBaseURL, first.ID)
	assert.Equal(t, link, first.Link)

	second, err := rig.coord.Share(t.Context(), "d.md", Options{})
	require.NoError(t, err)
	assert.False(t, second.Uploaded)
	assert.Equal(t, link, second.Link)

	creates, updates := rig.remote.calls()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
}
