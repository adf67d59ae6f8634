package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
)

type listingFetcher interface {
	Fetch(ctx context.Context, dirURL string) ([]entity.Entry, error)
}

type discoveryService struct {
	fetcher listingFetcher
	log     *slog.Logger
}

func NewDiscoveryService(fetcher listingFetcher, log *slog.Logger) *discoveryService {
	return &discoveryService{
		fetcher: fetcher,
		log:     log.With(slog.String("item", "DiscoveryService")),
	}
}

// Discover walks the remote tree depth first and returns every directory
// exactly once. The root is always at index 0. Children of a directory are
// appended together, then each child subtree is walked before the next
// sibling. Any listing error aborts the walk.
func (s *discoveryService) Discover(ctx context.Context, repo *entity.Repository) ([]entity.Directory, error) {
	root := entity.Directory{URL: repo.TreeURL(""), RelPath: ""}

	dirs := []entity.Directory{root}
	seen := map[string]struct{}{root.URL: {}}
	stack := []entity.Directory{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := s.fetcher.Fetch(ctx, current.URL)
		if err != nil {
			return nil, fmt.Errorf("cannot list %q: %w", current.URL, err)
		}

		var children []entity.Directory
		for _, e := range entries {
			if !e.IsDir {
				continue
			}

			rel, ok := repo.RelPath(e.Href)
			if !ok {
				s.log.Warn("Skip directory outside tree", slog.String("href", e.Href))
				continue
			}

			dir := entity.Directory{URL: repo.TreeURL(rel), RelPath: rel}
			if _, ok := seen[dir.URL]; ok {
				continue
			}

			seen[dir.URL] = struct{}{}
			children = append(children, dir)
		}

		dirs = append(dirs, children...)

		// Reversed, so the first child is walked first.
		for _, child := range slices.Backward(children) {
			stack = append(stack, child)
		}
	}

	s.log.Info("Tree discovered", slog.String("repository", repo.RootURL), slog.Int("directories", len(dirs)))

	return dirs, nil
}

// CollectFiles lists every directory again and returns the raw content
// location of each file, in directory order then page order. A file linked
// from more than one page is returned once. Entries linking outside the
// tree, files and directories alike, cannot be mirrored and are returned as
// listing failures, one per link.
func (s *discoveryService) CollectFiles(ctx context.Context, repo *entity.Repository,
	dirs []entity.Directory) ([]entity.RemoteFile, []entity.Failure, error) {
	var (
		files   []entity.RemoteFile
		skipped []entity.Failure
	)
	seen := make(map[string]struct{})
	seenSkipped := make(map[string]struct{})

	for _, dir := range dirs {
		entries, err := s.fetcher.Fetch(ctx, dir.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot list %q: %w", dir.URL, err)
		}

		for _, e := range entries {
			rel, ok := repo.RelPath(e.Href)
			if !ok {
				if _, ok := seenSkipped[e.Href]; !ok {
					seenSkipped[e.Href] = struct{}{}
					skipped = append(skipped, outsideTree(dir, e))
				}

				continue
			}

			if e.IsDir {
				continue
			}

			file := newRemoteFile(repo, rel)
			if _, ok := seen[file.URL]; ok {
				continue
			}

			seen[file.URL] = struct{}{}
			files = append(files, file)
		}
	}

	if len(skipped) > 0 {
		s.log.Warn("Entries outside tree", slog.String("repository", repo.RootURL), slog.Int("entries", len(skipped)))
	}

	s.log.Info("Files collected", slog.String("repository", repo.RootURL), slog.Int("files", len(files)))

	return files, skipped, nil
}

func outsideTree(dir entity.Directory, e entity.Entry) entity.Failure {
	kind := "file"
	if e.IsDir {
		kind = "directory"
	}

	return entity.Failure{
		URL:     e.Href,
		RelPath: path.Join(dir.RelPath, e.Name),
		Stage:   entity.StageListing,
		Error:   fmt.Sprintf("%s: %s %q listed on %s", common.ErrOutsideTree, kind, e.Name, dir.URL),
	}
}

func newRemoteFile(repo *entity.Repository, rel string) entity.RemoteFile {
	dir := path.Dir(rel)
	if dir == "." {
		dir = ""
	}

	return entity.RemoteFile{
		URL:     repo.RawURL(rel),
		RelPath: rel,
		Dir:     dir,
		Name:    path.Base(rel),
	}
}
