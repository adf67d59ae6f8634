package fsadapter

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/spf13/afero"
)

const (
	mimeTypeUnknown       = "application/octet-stream"
	mimeTypeCheckPartSize = 512

	fileMode      = 0o644
	partSuffix    = ".part"
	tempDirPrefix = "treemirror-"
)

type fsAdapter struct {
	fs  afero.Fs
	log *slog.Logger
}

func NewFSAdapter(log *slog.Logger) *fsAdapter {
	return NewFSAdapterWithFS(afero.NewOsFs(), log)
}

func NewFSAdapterWithFS(fs afero.Fs, log *slog.Logger) *fsAdapter {
	return &fsAdapter{
		fs:  fs,
		log: log.With(slog.String("item", "FSAdapter")),
	}
}

// TempDir creates a fresh output root.
func (a *fsAdapter) TempDir() (string, error) {
	dir, err := afero.TempDir(a.fs, "", tempDirPrefix)
	if err != nil {
		return "", fmt.Errorf("cannot create temp dir: %w", err)
	}

	return dir, nil
}

/*
BuildTree creates one local directory per remote directory:
 1. the root directory becomes <outRoot>/<repository name>;
 2. every other directory becomes <root>/<its relative path>.

Existing directories are left as they are. The returned tree is index
aligned with dirs.
*/
func (a *fsAdapter) BuildTree(outRoot string, repo *entity.Repository, dirs []entity.Directory) (*entity.Tree, error) {
	if err := checkName(repo.Name); err != nil {
		return nil, err
	}

	root := filepath.Join(outRoot, repo.Name)
	tree := entity.NewTree(root)

	for _, dir := range dirs {
		local, err := localPath(root, dir.RelPath)
		if err != nil {
			return nil, err
		}

		if err := a.fs.MkdirAll(local, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create dir %s: %w", local, err)
		}

		tree.Add(dir.RelPath, local)
	}

	// The root folder exists even when the walk produced nothing.
	if len(dirs) == 0 {
		if err := a.fs.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create dir %s: %w", root, err)
		}
	}

	a.log.Debug("Tree created", slog.String("root", root), slog.Int("dirs", len(tree.Dirs)))

	return tree, nil
}

// WriteFile streams r into dir/name. Content goes to a uniquely named
// hidden side file first and is renamed into place once complete, so a
// failed transfer never leaves a truncated file under the final name and
// no sibling file is ever used as scratch space.
func (a *fsAdapter) WriteFile(dir, name string, r io.Reader) (string, int64, error) {
	if err := checkName(name); err != nil {
		return "", 0, err
	}

	target := filepath.Join(dir, name)

	f, err := afero.TempFile(a.fs, dir, "."+name+".*"+partSuffix)
	if err != nil {
		return "", 0, fmt.Errorf("cannot create temp file for %s: %w", target, err)
	}
	part := f.Name()

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err == nil {
		// Temp files are created owner only.
		err = a.fs.Chmod(part, fileMode)
	}

	if err != nil {
		a.remove(part)

		return "", n, fmt.Errorf("cannot write file %s: %w", target, err)
	}

	if err := a.fs.Rename(part, target); err != nil {
		a.remove(part)

		return "", n, fmt.Errorf("cannot rename %s: %w", part, err)
	}

	return target, n, nil
}

func (a *fsAdapter) Open(name string) (io.ReadCloser, error) {
	return a.fs.Open(name)
}

// Create opens name for writing, creating missing parent directories.
func (a *fsAdapter) Create(name string) (io.WriteCloser, error) {
	if dir := filepath.Dir(name); dir != "" {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create dir %s: %w", dir, err)
		}
	}

	f, err := a.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("cannot create file %s: %w", name, err)
	}

	return f, nil
}

// MimeType guesses the content type by extension, then by content.
func (a *fsAdapter) MimeType(filePath string) (string, error) {
	if ext := filepath.Ext(filePath); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType, nil
		}
	}

	file, err := a.fs.Open(filePath)
	if err != nil {
		return mimeTypeUnknown, err
	}
	defer file.Close()

	buffer := make([]byte, mimeTypeCheckPartSize)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return mimeTypeUnknown, err
	}

	return http.DetectContentType(buffer[:n]), nil
}

func (a *fsAdapter) remove(name string) {
	if err := a.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		a.log.Warn("Cannot remove file", slog.String("path", name), slog.Any("error", err))
	}
}

// localPath maps a slash separated relative path under root.
func localPath(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}

	if path.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidPath, rel)
	}

	for _, seg := range strings.Split(rel, "/") {
		if err := checkName(seg); err != nil {
			return "", err
		}
	}

	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", common.ErrInvalidPath, name)
	}

	return nil
}
