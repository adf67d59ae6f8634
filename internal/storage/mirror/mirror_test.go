package mirror

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jgivc/treemirror/internal/adapter/fsadapter"
	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const root = "/out/userhash"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.MirrorConfig {
	return &config.MirrorConfig{
		Workers:    4,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
		UserAgent:  "treemirror-test",
	}
}

func testTree() *entity.Tree {
	tree := entity.NewTree(root)
	tree.Add("", root)
	tree.Add("docs", filepath.Join(root, "docs"))

	return tree
}

func newTestServer(t *testing.T, contents map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := contents[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func remoteFile(base, rel, dir, name string) entity.RemoteFile {
	return entity.RemoteFile{
		URL:     base + "/radium/userhash/raw/branch/master/" + rel,
		RelPath: rel,
		Dir:     dir,
		Name:    name,
	}
}

func collect(t *testing.T, out <-chan entity.DownloadResult) []entity.DownloadResult {
	t.Helper()

	var results []entity.DownloadResult
	for r := range out {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].File.RelPath < results[j].File.RelPath
	})

	return results
}

func TestDownload(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/radium/userhash/raw/branch/master/index.txt":       "ok",
		"/radium/userhash/raw/branch/master/docs/readme.txt": "hello",
	})

	fs := afero.NewMemMapFs()
	m := NewMirrorStorage(srv.Client(), fsadapter.NewFSAdapterWithFS(fs, testLogger()), testConfig(), testLogger())

	files := []entity.RemoteFile{
		remoteFile(srv.URL, "index.txt", "", "index.txt"),
		remoteFile(srv.URL, "docs/readme.txt", "docs", "readme.txt"),
	}

	out, err := m.Download(context.Background(), testTree(), files)
	require.NoError(t, err)

	results := collect(t, out)
	require.Len(t, results, 2)

	want := map[string]string{
		filepath.Join(root, "docs", "readme.txt"): "hello",
		filepath.Join(root, "index.txt"):          "ok",
	}

	for _, r := range results {
		require.True(t, r.OK(), r.Err)

		content, ok := want[r.LocalPath]
		require.True(t, ok, r.LocalPath)
		require.Equal(t, filepath.Dir(r.LocalPath), mustLookup(t, testTree(), r.File.Dir))
		require.EqualValues(t, len(content), r.Size)

		data, err := afero.ReadFile(fs, r.LocalPath)
		require.NoError(t, err)
		require.Equal(t, content, string(data))
	}
}

func mustLookup(t *testing.T, tree *entity.Tree, rel string) string {
	t.Helper()

	p, ok := tree.Lookup(rel)
	require.True(t, ok)

	return p
}

func TestDownloadPerFileFailures(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/radium/userhash/raw/branch/master/index.txt": "ok",
	})

	fs := afero.NewMemMapFs()
	m := NewMirrorStorage(srv.Client(), fsadapter.NewFSAdapterWithFS(fs, testLogger()), testConfig(), testLogger())

	files := []entity.RemoteFile{
		remoteFile(srv.URL, "a/missing-dir.txt", "a", "missing-dir.txt"),
		remoteFile(srv.URL, "docs/gone.txt", "docs", "gone.txt"),
		remoteFile(srv.URL, "index.txt", "", "index.txt"),
	}

	out, err := m.Download(context.Background(), testTree(), files)
	require.NoError(t, err)

	results := collect(t, out)
	require.Len(t, results, 3)

	require.ErrorIs(t, results[0].Err, common.ErrPathResolutionMiss)
	require.ErrorIs(t, results[1].Err, common.ErrUnexpectedStatus)
	require.True(t, results[2].OK())

	ok, err := afero.Exists(fs, filepath.Join(root, "docs", "gone.txt"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDownloadRetry(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retries = 1

	m := NewMirrorStorage(srv.Client(), fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), testLogger()), cfg, testLogger())

	out, err := m.Download(context.Background(), testTree(), []entity.RemoteFile{remoteFile(srv.URL, "index.txt", "", "index.txt")})
	require.NoError(t, err)

	results := collect(t, out)
	require.Len(t, results, 1)
	require.True(t, results[0].OK(), results[0].Err)
	require.EqualValues(t, 2, calls.Load())
}

func TestDownloadTimeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond

	m := NewMirrorStorage(srv.Client(), fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), testLogger()), cfg, testLogger())

	out, err := m.Download(context.Background(), testTree(), []entity.RemoteFile{remoteFile(srv.URL, "index.txt", "", "index.txt")})
	require.NoError(t, err)

	results := collect(t, out)
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, common.ErrNetwork)
	require.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestDownloadAlreadyRunning(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	m := NewMirrorStorage(srv.Client(), fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), testLogger()), testConfig(), testLogger())
	files := []entity.RemoteFile{remoteFile(srv.URL, "index.txt", "", "index.txt")}

	out, err := m.Download(context.Background(), testTree(), files)
	require.NoError(t, err)

	_, err = m.Download(context.Background(), testTree(), files)
	require.ErrorIs(t, err, common.ErrMirrorAlreadyRunning)

	close(release)
	require.Len(t, collect(t, out), 1)

	require.Eventually(t, func() bool {
		out, err := m.Download(context.Background(), testTree(), nil)
		if err != nil {
			return false
		}

		return len(collect(t, out)) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDownloadNoFiles(t *testing.T) {
	m := NewMirrorStorage(http.DefaultClient, fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), testLogger()), testConfig(), testLogger())

	out, err := m.Download(context.Background(), testTree(), nil)
	require.NoError(t, err)
	require.Empty(t, collect(t, out))
}
