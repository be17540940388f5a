package cards

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "cards.yaml"))
	require.NoError(t, err)
	return r
}

func TestRegisterAndLookup(t *testing.T) {
	r := tempRegistry(t)

	src := AudioSource{Type: Radio, URL: "https://example.com/stream"}
	require.NoError(t, r.Register(Mapping{ID: "a1b2", Source: src, Label: "Example"}))

	got, err := r.Lookup("a1b2")
	require.NoError(t, err)
	assert.Equal(t, src, got)

	_, err = r.Lookup("ffff")
	assert.True(t, errors.Is(err, ErrUnknownCard))
}

func TestRegisterTwice(t *testing.T) {
	r := tempRegistry(t)

	src := AudioSource{Type: Radio, URL: "https://example.com/stream"}
	require.NoError(t, r.Register(Mapping{ID: "a1b2", Source: src}))

	err := r.Register(Mapping{ID: "a1b2", Source: src})
	assert.True(t, errors.Is(err, ErrCardExists))
}

func TestRegisterInvalidSource(t *testing.T) {
	r := tempRegistry(t)

	err := r.Register(Mapping{ID: "a1b2", Source: AudioSource{Type: Radio, URL: "not a url"}})
	assert.Error(t, err)

	_, err = r.Lookup("a1b2")
	assert.True(t, errors.Is(err, ErrUnknownCard), "invalid mapping must not be stored")
}

func TestReassign(t *testing.T) {
	r := tempRegistry(t)

	first := AudioSource{Type: Radio, URL: "https://example.com/one"}
	second := AudioSource{Type: Podcast, URL: "https://books.example.com/item/li_1", Credentials: "audiobookshelf"}

	err := r.Reassign(Mapping{ID: "a1b2", Source: first})
	assert.True(t, errors.Is(err, ErrUnknownCard))

	require.NoError(t, r.Register(Mapping{ID: "a1b2", Source: first}))
	require.NoError(t, r.Reassign(Mapping{ID: "a1b2", Source: second}))

	got, err := r.Lookup("a1b2")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestRemove(t *testing.T) {
	r := tempRegistry(t)

	require.NoError(t, r.Register(Mapping{ID: "a1b2", Source: AudioSource{Type: Radio, URL: "https://example.com/s"}}))
	require.NoError(t, r.Remove("a1b2"))

	_, err := r.Lookup("a1b2")
	assert.True(t, errors.Is(err, ErrUnknownCard))

	err = r.Remove("a1b2")
	assert.True(t, errors.Is(err, ErrUnknownCard))
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.yaml")

	r, err := Open(path)
	require.NoError(t, err)

	src := AudioSource{Type: Radio, URL: "https://example.com/stream"}
	require.NoError(t, r.Register(Mapping{ID: "a1b2", Source: src, Label: "Example", Art: "https://example.com/logo.png"}))
	require.NoError(t, r.Register(Mapping{ID: "c3d4", Source: AudioSource{
		Type: Podcast, URL: "https://books.example.com/item/li_9", Credentials: "audiobookshelf",
	}}))

	// A fresh registry over the same file must yield equivalent mappings.
	reloaded, err := Open(path)
	require.NoError(t, err)

	got, err := reloaded.Lookup("a1b2")
	require.NoError(t, err)
	assert.Equal(t, src, got)

	m, err := reloaded.Get("a1b2")
	require.NoError(t, err)
	assert.Equal(t, "Example", m.Label)
	assert.Equal(t, "https://example.com/logo.png", m.Art)

	assert.Len(t, reloaded.All(), 2)
}

func TestReloadSkipsBrokenEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.yaml")
	content := `cards:
  a1b2:
    type: radio
    url: https://example.com/stream
  dead:
    type: radio
    url: "not a url"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Open(path)
	require.NoError(t, err)

	assert.Len(t, r.All(), 1)
	_, err = r.Lookup("a1b2")
	assert.NoError(t, err)
}

func TestAllSorted(t *testing.T) {
	r := tempRegistry(t)

	for _, id := range []string{"cc", "aa", "bb"} {
		require.NoError(t, r.Register(Mapping{ID: id, Source: AudioSource{Type: Radio, URL: "https://example.com/" + id}}))
	}

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "aa", all[0].ID)
	assert.Equal(t, "bb", all[1].ID)
	assert.Equal(t, "cc", all[2].ID)
}
