package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("platform: s3\nbucket: b\nquota: 1GiB\n"), 0o600))
}

func TestFileDiscoverer_Discover(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sessions")
	touch(t, filepath.Join(dir, "beta.session"))
	touch(t, filepath.Join(dir, "alpha.session"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(root, "session.session"))

	sources, err := NewFileDiscoverer(dir, "*.session").Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountSource{
		{Name: "session", Ref: filepath.Join(root, "session.session")},
		{Name: "alpha", Ref: filepath.Join(dir, "alpha.session")},
		{Name: "beta", Ref: filepath.Join(dir, "beta.session")},
	}, sources)
}

func TestFileDiscoverer_OrderIsStable(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		touch(t, filepath.Join(dir, name+".session"))
	}

	d := NewFileDiscoverer(dir, "*.session")
	first, err := d.Discover(context.Background())
	require.NoError(t, err)
	second, err := d.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "a", first[0].Name)
	assert.Equal(t, "c", first[2].Name)
}

func TestFileDiscoverer_SkipsBrokenEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "good.session"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.session"), 0o755))

	sources, err := NewFileDiscoverer(dir, "*.session").Discover(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
	var entryErr *zerrors.DiscoveryEntryError
	require.True(t, errors.As(err, &entryErr))
	assert.Equal(t, filepath.Join(dir, "dir.session"), entryErr.Entry)
	require.Len(t, sources, 1)
	assert.Equal(t, "good", sources[0].Name)
}

func TestFileDiscoverer_EmptyDir(t *testing.T) {
	sources, err := NewFileDiscoverer(filepath.Join(t.TempDir(), "missing"), "").Discover(context.Background())

	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestFileDiscoverer_Resolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acct.session")
	touch(t, path)
	d := NewFileDiscoverer(dir, "*.session")

	byPath, err := d.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountSource{Name: "acct", Ref: path}, byPath)

	byName, err := d.Resolve(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, byPath, byName)

	_, err = d.Resolve(context.Background(), filepath.Join(dir, "nope.session"))
	var notFound *zerrors.SessionNotFoundError
	require.True(t, errors.As(err, &notFound))
}
