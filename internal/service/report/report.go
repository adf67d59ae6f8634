package report

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/jgivc/treemirror/internal/adapter/mdadapter"
	"github.com/jgivc/treemirror/internal/adapter/tpladapter"
	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/util"
)

type FileReader interface {
	Open(name string) (io.ReadCloser, error)
	MimeType(name string) (string, error)
}

type MarkdownConverter interface {
	Convert(src []byte) (*mdadapter.Document, error)
}

type PageRenderer interface {
	Parse(page *tpladapter.Page) (string, error)
}

type reportService struct {
	files FileReader
	md    MarkdownConverter
	page  PageRenderer
	log   *slog.Logger
}

func NewReportService(files FileReader, md MarkdownConverter, page PageRenderer, log *slog.Logger) *reportService {
	return &reportService{
		files: files,
		md:    md,
		page:  page,
		log:   log.With(slog.String("item", "ReportService")),
	}
}

/*
Digests hashes every downloaded file as it is on disk now.

Failed downloads and files that cannot be read back end up in the failure
list. When previous is not nil every digest is compared with the digest
stored for the same relative path and gets a status.
*/
func (s *reportService) Digests(results []entity.DownloadResult, previous map[string]string) ([]entity.Digest, []entity.Failure) {
	var (
		digests  []entity.Digest
		failures []entity.Failure
	)

	for _, r := range results {
		if !r.OK() {
			failures = append(failures, newFailure(r.File, entity.StageDownload, r.Err))

			continue
		}

		d, err := s.digest(r)
		if err != nil {
			s.log.Error("Cannot hash file", slog.String("path", r.LocalPath), slog.Any("error", err))
			failures = append(failures, newFailure(r.File, entity.StageDigest, err))

			continue
		}

		if previous != nil {
			d.Status = status(previous, d)
		}

		digests = append(digests, d)
	}

	slices.SortFunc(digests, func(a, b entity.Digest) int {
		return cmp.Compare(a.RelPath, b.RelPath)
	})
	slices.SortFunc(failures, func(a, b entity.Failure) int {
		return cmp.Or(cmp.Compare(a.RelPath, b.RelPath), cmp.Compare(a.Stage, b.Stage))
	})

	s.log.Info("Digests computed", slog.Int("digests", len(digests)), slog.Int("failures", len(failures)))

	return digests, failures
}

func (s *reportService) digest(r entity.DownloadResult) (entity.Digest, error) {
	f, err := s.files.Open(r.LocalPath)
	if err != nil {
		return entity.Digest{}, fmt.Errorf("%w: %w", common.ErrDigestIO, err)
	}
	defer f.Close()

	counter := &countingReader{r: f}

	sum, err := util.SHA256Hex(counter)
	if err != nil {
		return entity.Digest{}, fmt.Errorf("%w: %w", common.ErrDigestIO, err)
	}

	mimeType, err := s.files.MimeType(r.LocalPath)
	if err != nil {
		s.log.Warn("Cannot get file mimeType", slog.String("path", r.LocalPath), slog.Any("error", err))
	}

	return entity.Digest{
		Path:     r.LocalPath,
		RelPath:  r.File.RelPath,
		SHA256:   sum,
		Size:     counter.n,
		MIMEType: mimeType,
	}, nil
}

func status(previous map[string]string, d entity.Digest) entity.DigestStatus {
	old, ok := previous[d.RelPath]

	switch {
	case !ok:
		return entity.DigestStatusNew
	case old != d.SHA256:
		return entity.DigestStatusChanged
	default:
		return entity.DigestStatusUnchanged
	}
}

func newFailure(file entity.RemoteFile, stage string, err error) entity.Failure {
	return entity.Failure{
		URL:     file.URL,
		RelPath: file.RelPath,
		Stage:   stage,
		Error:   err.Error(),
	}
}

// Render writes report in one of the supported formats.
func (s *reportService) Render(w io.Writer, report *entity.Report, format string) error {
	switch format {
	case config.FormatText, "":
		return renderText(w, report)
	case config.FormatYAML:
		return renderYAML(w, report)
	case config.FormatMarkdown:
		return renderMarkdown(w, report, false)
	case config.FormatHTML:
		return s.renderHTML(w, report)
	default:
		return fmt.Errorf("unknown report format: %q", format)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
