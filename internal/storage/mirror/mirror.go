package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/util"
)

type FileWriter interface {
	WriteFile(dir, name string, r io.Reader) (string, int64, error)
}

type mirrorStorage struct {
	running atomic.Bool
	client  *http.Client
	writer  FileWriter
	cfg     *config.MirrorConfig
	log     *slog.Logger
}

func NewMirrorStorage(client *http.Client, writer FileWriter, cfg *config.MirrorConfig, log *slog.Logger) *mirrorStorage {
	return &mirrorStorage{
		client: client,
		writer: writer,
		cfg:    cfg,
		log:    log.With(slog.String("item", "MirrorStorage")),
	}
}

// Download fetches files into the directories of tree using a fixed number
// of workers. Every file yields exactly one result on the returned channel,
// which is closed once all workers are done. A failed file never stops the
// others.
func (m *mirrorStorage) Download(ctx context.Context, tree *entity.Tree, files []entity.RemoteFile) (<-chan entity.DownloadResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, common.ErrMirrorAlreadyRunning
	}

	in := make(chan entity.RemoteFile, len(files))
	out := make(chan entity.DownloadResult, len(files))

	for _, file := range files {
		in <- file
	}
	close(in)

	workers := max(1, min(m.cfg.Workers, len(files)))

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go m.worker(ctx, n, tree, in, out, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
		m.running.Store(false)
	}()

	return out, nil
}

func (m *mirrorStorage) worker(ctx context.Context, n int, tree *entity.Tree, in chan entity.RemoteFile, out chan entity.DownloadResult, wg *sync.WaitGroup) {
	defer wg.Done()

	log := m.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for file := range in {
		result := m.download(ctx, log, tree, file)

		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		case out <- result:
		}
	}

	log.Debug("Done")
}

func (m *mirrorStorage) download(ctx context.Context, log *slog.Logger, tree *entity.Tree, file entity.RemoteFile) entity.DownloadResult {
	result := entity.DownloadResult{File: file}

	dir, ok := tree.Lookup(file.Dir)
	if !ok {
		result.Err = fmt.Errorf("%w: %q for %s", common.ErrPathResolutionMiss, file.Dir, file.URL)
		log.Error("Cannot place file", slog.String("url", file.URL), slog.Any("error", result.Err))

		return result
	}

	result.Err = util.Retry(ctx, m.cfg.Retries+1, m.cfg.RetryDelay, func(attempt int) error {
		if attempt > 1 {
			log.Warn("Retry download", slog.String("url", file.URL), slog.Int("attempt", attempt))
		}

		var err error
		result.LocalPath, result.Size, err = m.fetch(ctx, dir, file)

		return err
	})

	if result.Err != nil {
		log.Error("Cannot download file", slog.String("url", file.URL), slog.Any("error", result.Err))

		return result
	}

	log.Info("Downloaded", slog.String("path", result.LocalPath), slog.Int64("size", result.Size))

	return result
}

func (m *mirrorStorage) fetch(ctx context.Context, dir string, file entity.RemoteFile) (string, int64, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("cannot get %s: %w: %w", file.URL, common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)

		return "", 0, fmt.Errorf("cannot get %s: %w: %s", file.URL, common.ErrUnexpectedStatus, resp.Status)
	}

	localPath, size, err := m.writer.WriteFile(dir, file.Name, resp.Body)
	if err != nil {
		return "", size, fmt.Errorf("cannot store %s: %w", file.URL, err)
	}

	return localPath, size, nil
}
