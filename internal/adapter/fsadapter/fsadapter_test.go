package fsadapter

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const outRoot = "/out"

func newTestAdapter(t *testing.T) (*fsAdapter, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()

	return NewFSAdapterWithFS(fs, slog.New(slog.NewTextHandler(io.Discard, nil))), fs
}

func newTestRepository(t *testing.T) *entity.Repository {
	t.Helper()

	repo, err := entity.NewRepository("id", "https://git.example.com/radium/userhash", "src", "raw", "branch/master")
	require.NoError(t, err)

	return repo
}

func TestBuildTree(t *testing.T) {
	a, fs := newTestAdapter(t)
	repo := newTestRepository(t)

	dirs := []entity.Directory{
		{URL: repo.TreeURL(""), RelPath: ""},
		{URL: repo.TreeURL("docs"), RelPath: "docs"},
		{URL: repo.TreeURL("docs/api"), RelPath: "docs/api"},
	}

	tree, err := a.BuildTree(outRoot, repo, dirs)
	require.NoError(t, err)

	root := filepath.Join(outRoot, "userhash")
	require.Equal(t, root, tree.Root)
	require.Equal(t, []string{
		root,
		filepath.Join(root, "docs"),
		filepath.Join(root, "docs", "api"),
	}, tree.Dirs)

	for _, dir := range tree.Dirs {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		require.True(t, ok, dir)
	}

	p, ok := tree.Lookup("docs/api")
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "docs", "api"), p)

	// Second run over an existing tree.
	again, err := a.BuildTree(outRoot, repo, dirs)
	require.NoError(t, err)
	require.Equal(t, tree.Dirs, again.Dirs)

	entries, err := afero.ReadDir(fs, root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBuildTreeWithoutDirs(t *testing.T) {
	a, fs := newTestAdapter(t)

	tree, err := a.BuildTree(outRoot, newTestRepository(t), nil)
	require.NoError(t, err)
	require.Empty(t, tree.Dirs)

	ok, err := afero.DirExists(fs, tree.Root)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuildTreeInvalidPath(t *testing.T) {
	testCases := []struct {
		name string
		rel  string
	}{
		{name: "Parent segment", rel: "docs/../../etc"},
		{name: "Absolute", rel: "/etc"},
		{name: "Empty segment", rel: "docs//api"},
		{name: "Dot segment", rel: "./docs"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestAdapter(t)

			_, err := a.BuildTree(outRoot, newTestRepository(t), []entity.Directory{{RelPath: tc.rel}})
			require.ErrorIs(t, err, common.ErrInvalidPath)
		})
	}
}

func TestWriteFile(t *testing.T) {
	a, fs := newTestAdapter(t)
	require.NoError(t, fs.MkdirAll("/out/repo", 0o755))

	p, n, err := a.WriteFile("/out/repo", "index.txt", strings.NewReader("ok"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/out/repo", "index.txt"), p)
	require.EqualValues(t, 2, n)

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	require.Equal(t, "ok", string(data))
	requireDirNames(t, fs, "/out/repo", "index.txt")

	info, err := fs.Stat(p)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(fileMode), info.Mode().Perm())

	// Overwrite keeps only the new content.
	_, _, err = a.WriteFile("/out/repo", "index.txt", strings.NewReader("new"))
	require.NoError(t, err)

	data, err = afero.ReadFile(fs, p)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func requireDirNames(t *testing.T, fs afero.Fs, dir string, want ...string) {
	t.Helper()

	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	require.ElementsMatch(t, want, names)
}

func TestWriteFileSiblingWithPartSuffix(t *testing.T) {
	testCases := []struct {
		name  string
		order []string
	}{
		{name: "Suffixed name first", order: []string{"notes.part", "notes"}},
		{name: "Plain name first", order: []string{"notes", "notes.part"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, fs := newTestAdapter(t)
			require.NoError(t, fs.MkdirAll("/out/repo", 0o755))

			for _, name := range tc.order {
				_, _, err := a.WriteFile("/out/repo", name, strings.NewReader("content of "+name))
				require.NoError(t, err)
			}

			for _, name := range tc.order {
				data, err := afero.ReadFile(fs, filepath.Join("/out/repo", name))
				require.NoError(t, err)
				require.Equal(t, "content of "+name, string(data))
			}

			requireDirNames(t, fs, "/out/repo", "notes", "notes.part")
		})
	}
}

func TestWriteFileConcurrentSiblings(t *testing.T) {
	a, fs := newTestAdapter(t)
	require.NoError(t, fs.MkdirAll("/out/repo", 0o755))

	names := []string{"x", "x.part", "x.part.part"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, name := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, _, err := a.WriteFile("/out/repo", name, strings.NewReader("content of "+name))
				require.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, name := range names {
		data, err := afero.ReadFile(fs, filepath.Join("/out/repo", name))
		require.NoError(t, err)
		require.Equal(t, "content of "+name, string(data))
	}

	requireDirNames(t, fs, "/out/repo", names...)
}

func TestWriteFileFailure(t *testing.T) {
	a, fs := newTestAdapter(t)
	require.NoError(t, fs.MkdirAll("/out/repo", 0o755))

	_, _, err := a.WriteFile("/out/repo", "index.txt", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)
	requireDirNames(t, fs, "/out/repo")

	_, _, err = a.WriteFile("/out/repo", "../escape.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, common.ErrInvalidPath)
}

func TestMimeType(t *testing.T) {
	a, fs := newTestAdapter(t)
	require.NoError(t, afero.WriteFile(fs, "/out/readme.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/LICENSE", []byte("plain words"), 0o644))

	mt, err := a.MimeType("/out/readme.txt")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mt, "text/plain"), mt)

	mt, err = a.MimeType("/out/LICENSE")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mt, "text/plain"), mt)

	mt, err = a.MimeType("/out/missing")
	require.Error(t, err)
	require.Equal(t, mimeTypeUnknown, mt)
}

func TestTempDir(t *testing.T) {
	a, fs := newTestAdapter(t)

	dir, err := a.TempDir()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(dir), tempDirPrefix))

	ok, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreate(t *testing.T) {
	a, fs := newTestAdapter(t)

	w, err := a.Create("/reports/2026/report.txt")
	require.NoError(t, err)

	_, err = io.WriteString(w, "SHA256:\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := afero.ReadFile(fs, "/reports/2026/report.txt")
	require.NoError(t, err)
	require.Equal(t, "SHA256:\n", string(data))
}
