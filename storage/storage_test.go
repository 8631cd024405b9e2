package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func useTempDir(t *testing.T) string {
	dir := t.TempDir()
	oldVal := confStorageDir.LoadedValue
	confStorageDir.LoadedValue = dir
	t.Cleanup(func() { confStorageDir.LoadedValue = oldVal })
	return dir
}

func TestPut(t *testing.T) {
	dir := useTempDir(t)

	contents := []byte("not really a png")
	name, err := Put("avatar.PNG", bytes.NewReader(contents))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".png"))

	// stored under a fresh name, never the caller's
	require.NotContains(t, name, "avatar")

	stored, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	require.Equal(t, contents, stored)
}

func TestPutUniqueNames(t *testing.T) {
	useTempDir(t)

	a, err := Put("same.jpg", bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	b, err := Put("same.jpg", bytes.NewReader([]byte("two")))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestPutBadExtension(t *testing.T) {
	useTempDir(t)

	for _, name := range []string{"script.exe", "noext", "archive.tar.gz", "image.png.exe"} {
		_, err := Put(name, bytes.NewReader(nil))
		require.Equal(t, ErrBadExtension, err, "name %q", name)
	}
}

func TestPublicURL(t *testing.T) {
	oldVal := confStorageBaseURL.LoadedValue
	confStorageBaseURL.LoadedValue = "/static/uploads"
	defer func() { confStorageBaseURL.LoadedValue = oldVal }()

	require.Equal(t, "/static/uploads/abc.png", PublicURL("abc.png"))
}
