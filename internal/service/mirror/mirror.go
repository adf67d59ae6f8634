package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/util"
)

type Discoverer interface {
	Discover(ctx context.Context, repo *entity.Repository) ([]entity.Directory, error)
	CollectFiles(ctx context.Context, repo *entity.Repository, dirs []entity.Directory) ([]entity.RemoteFile, []entity.Failure, error)
}

type TreeBuilder interface {
	BuildTree(outRoot string, repo *entity.Repository, dirs []entity.Directory) (*entity.Tree, error)
}

type Downloader interface {
	Download(ctx context.Context, tree *entity.Tree, files []entity.RemoteFile) (<-chan entity.DownloadResult, error)
}

type Reporter interface {
	Digests(results []entity.DownloadResult, previous map[string]string) ([]entity.Digest, []entity.Failure)
}

type ManifestRepository interface {
	Load(ctx context.Context, repoID string) (*entity.Manifest, error)
	Save(ctx context.Context, report *entity.Report) error
}

type Publisher interface {
	Publish(ctx context.Context, report *entity.Report) ([]entity.Failure, error)
}

type MirrorService struct {
	discoverer Discoverer
	builder    TreeBuilder
	downloader Downloader
	reporter   Reporter
	manifests  ManifestRepository
	publisher  Publisher
	cfg        *config.RepositoryConfig
	log        *slog.Logger
}

// NewMirrorService wires the pipeline. manifests and publisher are optional
// and may be nil.
func NewMirrorService(discoverer Discoverer, builder TreeBuilder, downloader Downloader, reporter Reporter,
	manifests ManifestRepository, publisher Publisher, cfg *config.RepositoryConfig, log *slog.Logger) *MirrorService {
	return &MirrorService{
		discoverer: discoverer,
		builder:    builder,
		downloader: downloader,
		reporter:   reporter,
		manifests:  manifests,
		publisher:  publisher,
		cfg:        cfg,
		log:        log.With(slog.String("item", "MirrorService")),
	}
}

// Run mirrors the repository at rootURL into outDir and reports the
// digests of what was written. Listing failures are fatal; listed entries
// that cannot be mirrored and anything that goes wrong with a single file
// end up in the report instead.
func (s *MirrorService) Run(ctx context.Context, rootURL, outDir string) (*entity.Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := s.log.With(slog.String("run_id", runID))

	repo, err := entity.NewRepository("", rootURL, s.cfg.SourceSegment, s.cfg.RawSegment, s.cfg.Ref)
	if err != nil {
		log.Error("Invalid repository url", slog.String("url", rootURL), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", common.ErrInvalidRepositoryURL, err)
	}
	repo.ID = util.GetIDFromString(&repo.RootURL)

	log.Info("Start mirror", slog.String("repository", repo.RootURL), slog.String("out_dir", outDir))

	dirs, err := s.discoverer.Discover(ctx, repo)
	if err != nil {
		log.Error("Cannot discover tree", slog.Any("error", err))

		return nil, fmt.Errorf("cannot discover tree: %w", err)
	}

	files, skipped, err := s.discoverer.CollectFiles(ctx, repo, dirs)
	if err != nil {
		log.Error("Cannot collect files", slog.Any("error", err))

		return nil, fmt.Errorf("cannot collect files: %w", err)
	}

	tree, err := s.builder.BuildTree(outDir, repo, dirs)
	if err != nil {
		log.Error("Cannot build local tree", slog.Any("error", err))

		return nil, fmt.Errorf("cannot build local tree: %w", err)
	}

	out, err := s.downloader.Download(ctx, tree, files)
	if err != nil {
		return nil, fmt.Errorf("cannot start download: %w", err)
	}

	results := make([]entity.DownloadResult, 0, len(files))
	for result := range out {
		results = append(results, result)
	}

	if err := ctx.Err(); err != nil {
		log.Warn("Interrupted", slog.Int("done", len(results)), slog.Int("files", len(files)))

		return nil, err
	}

	report := &entity.Report{
		RunID:        runID,
		RepositoryID: repo.ID,
		Repository:   repo.RootURL,
		Name:         repo.Name,
		OutDir:       outDir,
		GeneratedAt:  started,
		Directories:  len(tree.Dirs),
		Files:        len(files),
	}

	digests, failures := s.reporter.Digests(results, s.previousDigests(ctx, log, repo.ID))
	report.Digests = digests
	report.Failures = append(skipped, failures...)

	if s.publisher != nil {
		failures, err := s.publisher.Publish(ctx, report)
		if err != nil {
			log.Error("Cannot publish mirror", slog.Any("error", err))
			failures = append(failures, entity.Failure{Stage: entity.StagePublish, Error: err.Error()})
		}

		report.Failures = append(report.Failures, failures...)
	}

	if s.manifests != nil {
		if err := s.manifests.Save(ctx, report); err != nil {
			log.Error("Cannot save manifest", slog.Any("error", err))
		}
	}

	report.Duration = time.Since(started)

	log.Info("Mirror done",
		slog.Int("directories", report.Directories),
		slog.Int("files", report.Files),
		slog.Int("digests", len(report.Digests)),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// previousDigests returns nil when there is nothing to compare against, and
// an empty map for a repository seen for the first time.
func (s *MirrorService) previousDigests(ctx context.Context, log *slog.Logger, repoID string) map[string]string {
	if s.manifests == nil {
		return nil
	}

	m, err := s.manifests.Load(ctx, repoID)
	switch {
	case errors.Is(err, common.ErrManifestNotFound):
		return map[string]string{}
	case err != nil:
		log.Error("Cannot load manifest", slog.Any("error", err))

		return nil
	}

	log.Info("Previous run", slog.String("previous_run_id", m.RunID), slog.Time("generated_at", m.GeneratedAt))

	if m.Digests == nil {
		return map[string]string{}
	}

	return m.Digests
}
