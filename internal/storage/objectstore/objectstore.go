package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	metaSHA256 = "Sha256"
	metaRunID  = "Run-Id"

	contentTypeUnknown = "application/octet-stream"
)

type FileReader interface {
	Open(name string) (io.ReadCloser, error)
}

type publisher struct {
	client *minio.Client
	files  FileReader
	cfg    *config.PublishConfig

	initOnce sync.Once
	initErr  error

	log *slog.Logger
}

func NewPublisher(cfg *config.PublishConfig, files FileReader, log *slog.Logger) (*publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create s3 client: %w", err)
	}

	return &publisher{
		client: client,
		files:  files,
		cfg:    cfg,
		log:    log.With(slog.String("item", "Publisher")),
	}, nil
}

func (p *publisher) ensureBucket(ctx context.Context) error {
	p.initOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
		if err != nil {
			p.initErr = err
			return
		}

		if exists {
			return
		}

		p.log.Info("Create bucket", slog.String("bucket", p.cfg.Bucket))
		p.initErr = p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region})
	})

	return p.initErr
}

// Publish uploads every digested file of report. A file that cannot be
// uploaded is returned as a failure; the others are still uploaded.
func (p *publisher) Publish(ctx context.Context, report *entity.Report) ([]entity.Failure, error) {
	if len(report.Digests) == 0 {
		return nil, nil
	}

	if err := p.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("cannot ensure bucket %s: %w", p.cfg.Bucket, err)
	}

	var failures []entity.Failure
	for _, d := range report.Digests {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		key := objectKey(p.cfg.Prefix, report.Name, d.RelPath)
		if err := p.put(ctx, key, report.RunID, d); err != nil {
			p.log.Error("Cannot publish file", slog.String("key", key), slog.Any("error", err))
			failures = append(failures, entity.Failure{
				RelPath: d.RelPath,
				Stage:   entity.StagePublish,
				Error:   err.Error(),
			})

			continue
		}

		p.log.Debug("Published", slog.String("key", key))
	}

	p.log.Info("Mirror published", slog.String("bucket", p.cfg.Bucket),
		slog.Int("files", len(report.Digests)-len(failures)), slog.Int("failures", len(failures)))

	return failures, nil
}

func (p *publisher) put(ctx context.Context, key, runID string, d entity.Digest) error {
	f, err := p.files.Open(d.Path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", d.Path, err)
	}
	defer f.Close()

	contentType := d.MIMEType
	if contentType == "" {
		contentType = contentTypeUnknown
	}

	_, err = p.client.PutObject(ctx, p.cfg.Bucket, key, f, d.Size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			metaSHA256: d.SHA256,
			metaRunID:  runID,
		},
	})
	if err != nil {
		return fmt.Errorf("cannot put object %s: %w", key, err)
	}

	return nil
}

func objectKey(prefix, name, rel string) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{prefix, name, rel} {
		if s = strings.Trim(strings.TrimSpace(s), "/"); s != "" {
			parts = append(parts, s)
		}
	}

	return path.Join(parts...)
}
