package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/treemirror/internal/adapter/fsadapter"
	"github.com/jgivc/treemirror/internal/adapter/listing"
	"github.com/jgivc/treemirror/internal/adapter/mdadapter"
	"github.com/jgivc/treemirror/internal/adapter/tpladapter"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/repository/manifest"
	"github.com/jgivc/treemirror/internal/service/discovery"
	smirror "github.com/jgivc/treemirror/internal/service/mirror"
	"github.com/jgivc/treemirror/internal/service/report"
	"github.com/jgivc/treemirror/internal/storage/mirror"
	"github.com/jgivc/treemirror/internal/storage/objectstore"
	"github.com/redis/go-redis/v9"
)

const (
	pingTimeout = 5 * time.Second
)

type App struct {
	cfg      *config.Config
	stdout   io.Writer
	fsa      fsAdapter
	mirror   *smirror.MirrorService
	reporter reportRenderer
	rdb      *redis.Client
	log      *slog.Logger
}

type fsAdapter interface {
	TempDir() (string, error)
	Create(name string) (io.WriteCloser, error)
}

type listingFetcher interface {
	Fetch(ctx context.Context, dirURL string) ([]entity.Entry, error)
}

type reportRenderer interface {
	Render(w io.Writer, report *entity.Report, format string) error
}

func New(cfg *config.Config, stdout io.Writer) *App {
	return &App{
		cfg:    cfg,
		stdout: stdout,
	}
}

// Start builds every component of the pipeline. Redis and object storage
// are only touched when configured.
func (a *App) Start(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := newLogger(a.cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	a.log = log

	client := newHTTPClient(&a.cfg.HTTP)

	fetcher, err := newListingFetcher(client, a.cfg, log)
	if err != nil {
		return err
	}

	fsa := fsadapter.NewFSAdapter(log)
	a.fsa = fsa

	page, err := tpladapter.NewTplAdapter(a.cfg.Report.Template)
	if err != nil {
		return fmt.Errorf("cannot load report template: %w", err)
	}

	rs := report.NewReportService(fsa, mdadapter.NewConverter(), page, log)
	a.reporter = rs

	var manifests smirror.ManifestRepository
	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("cannot parse redis url: %w", err)
		}

		a.rdb = redis.NewClient(opt)

		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if _, err := a.rdb.Ping(pctx).Result(); err != nil {
			return fmt.Errorf("cannot connect to redis: %w", err)
		}

		manifests = manifest.NewManifestRepository(a.rdb, log)
	}

	var publisher smirror.Publisher
	if a.cfg.Publish.Enabled {
		p, err := objectstore.NewPublisher(&a.cfg.Publish, fsa, log)
		if err != nil {
			return fmt.Errorf("cannot create publisher: %w", err)
		}

		publisher = p
	}

	a.mirror = smirror.NewMirrorService(
		discovery.NewDiscoveryService(fetcher, log),
		fsa,
		mirror.NewMirrorStorage(client, fsa, a.cfg.MirrorConfig(), log),
		rs,
		manifests,
		publisher,
		&a.cfg.Repository,
		log,
	)

	return nil
}

// newListingFetcher puts the listing cache in front of the fetcher. A cache
// size of 0 turns caching off and every pass requests its pages again.
func newListingFetcher(client *http.Client, cfg *config.Config, log *slog.Logger) (listingFetcher, error) {
	var fetcher listingFetcher = listing.NewListingFetcher(client, cfg.FetcherConfig(), log)
	if cfg.Listing.CacheSize == 0 {
		return fetcher, nil
	}

	cached, err := listing.NewCachedFetcher(fetcher, cfg.Listing.CacheSize, log)
	if err != nil {
		return nil, err
	}

	return cached, nil
}

// Run mirrors the configured repository and writes the report.
func (a *App) Run(ctx context.Context) (*entity.Report, error) {
	outDir := a.cfg.Download.OutDir
	if outDir == "" {
		dir, err := a.fsa.TempDir()
		if err != nil {
			return nil, err
		}

		a.log.Info("Use temp dir", slog.String("out_dir", dir))
		outDir = dir
	}

	rep, err := a.mirror.Run(ctx, a.cfg.Repository.URL, outDir)
	if err != nil {
		return nil, err
	}

	if err := a.writeReport(rep); err != nil {
		return rep, fmt.Errorf("cannot write report: %w", err)
	}

	return rep, nil
}

func (a *App) writeReport(rep *entity.Report) error {
	if a.cfg.Report.File == "" {
		return a.reporter.Render(a.stdout, rep, a.cfg.Report.Format)
	}

	w, err := a.fsa.Create(a.cfg.Report.File)
	if err != nil {
		return err
	}

	if err := a.reporter.Render(w, rep, a.cfg.Report.Format); err != nil {
		w.Close()

		return err
	}

	a.log.Info("Report written", slog.String("path", a.cfg.Report.File))

	return w.Close()
}

func (a *App) Stop() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("Cannot close redis client", slog.Any("error", err))
		}
	}
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("unknown log level: %q", level)
	}

	return slog.New(slog.NewTextHandler(w, lo)), nil
}

// newHTTPClient keeps many idle connections to the one host being
// mirrored. Timeouts are applied per request.
func newHTTPClient(cfg *config.HTTPConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
