package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyVersion1      = "v1"
	KeyVersion2      = "v2"
	KeyActiveVersion = "tm:av"   // STRING. tm:av:repo_id -> v1|v2
	KeyDigestMap     = "tm:dm"   // HASH. tm:dm:repo_id:ver rel_path: sha256
	KeyRunInfo       = "tm:run"  // HASH. tm:run:repo_id:ver run_id, generated_at, files, failures
	KeyRunHistory    = "tm:hist" // LIST. tm:hist:repo_id run ids, newest first

	fieldRunID       = "run_id"
	fieldGeneratedAt = "generated_at"
	fieldFiles       = "files"
	fieldFailures    = "failures"

	KeyEmpty     = ""
	KeySeparator = ":"

	historySize = 50
)

var (
	ClearableKeys = []string{KeyDigestMap, KeyRunInfo}
)

type manifestRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewManifestRepository(cl *redis.Client, log *slog.Logger) *manifestRepository {
	return &manifestRepository{
		cl:  cl,
		log: log.With(slog.String("item", "ManifestRepository")),
	}
}

// Save stores the digests of report under the standby version of its
// repository and then makes that version active. Readers see either the
// old or the new manifest, never a mix.
func (r *manifestRepository) Save(ctx context.Context, report *entity.Report) error {
	repoID := report.RepositoryID

	verActive, verStandby, err := r.getVersions(ctx, repoID)
	if err != nil {
		r.log.Error("Cannot get standby data version", slog.Any("error", err))

		return fmt.Errorf("cannot get active version: %w", err)
	}

	log := r.log.With(slog.String("repository_id", repoID))
	log.Info("Save manifest", slog.String("active_version", verActive), slog.String("standby_version", verStandby))

	if err := r.clearOldData(ctx, repoID, verStandby); err != nil {
		log.Error("Cannot clear old data", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot clear old data: %w", err)
	}

	if err := r.saveNewData(ctx, repoID, verStandby, report); err != nil {
		log.Error("Cannot save new data", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot save new data: %w", err)
	}

	if _, err := r.cl.Set(ctx, getKey(KeyActiveVersion, repoID), verStandby, 0).Result(); err != nil {
		log.Error("Cannot switch to new version", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot switch to new version: %w", err)
	}

	pipe := r.cl.Pipeline()
	pipe.LPush(ctx, getKey(KeyRunHistory, repoID), report.RunID)
	pipe.LTrim(ctx, getKey(KeyRunHistory, repoID), 0, historySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot update run history: %w", err)
	}

	return nil
}

// Load returns the active manifest of the repository.
func (r *manifestRepository) Load(ctx context.Context, repoID string) (*entity.Manifest, error) {
	ver, err := r.cl.Get(ctx, getKey(KeyActiveVersion, repoID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrManifestNotFound
		}

		return nil, fmt.Errorf("cannot get active version: %w", err)
	}

	pipe := r.cl.Pipeline()
	infoCmd := pipe.HGetAll(ctx, getKey(KeyRunInfo, repoID, ver))
	digestsCmd := pipe.HGetAll(ctx, getKey(KeyDigestMap, repoID, ver))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cannot load manifest: %w", err)
	}

	info := infoCmd.Val()
	if len(info) < 1 {
		return nil, common.ErrManifestNotFound
	}

	m := &entity.Manifest{
		RunID:   info[fieldRunID],
		Digests: digestsCmd.Val(),
	}

	if ts := info[fieldGeneratedAt]; ts != "" {
		if m.GeneratedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			r.log.Warn("Cannot parse run time", slog.String("value", ts), slog.Any("error", err))
		}
	}

	return m, nil
}

func (r *manifestRepository) saveNewData(ctx context.Context, repoID, ver string, report *entity.Report) error {
	pipe := r.cl.Pipeline()

	pipe.HSet(ctx, getKey(KeyRunInfo, repoID, ver),
		fieldRunID, report.RunID,
		fieldGeneratedAt, report.GeneratedAt.Format(time.RFC3339Nano),
		fieldFiles, len(report.Digests),
		fieldFailures, len(report.Failures),
	)

	if len(report.Digests) > 0 {
		digests := make([]any, 0, 2*len(report.Digests))
		for _, d := range report.Digests {
			digests = append(digests, d.RelPath, d.SHA256)
		}

		pipe.HSet(ctx, getKey(KeyDigestMap, repoID, ver), digests...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot save new data: %w", err)
	}

	return nil
}

func (r *manifestRepository) clearOldData(ctx context.Context, repoID, ver string) error {
	keys := make([]string, 0, len(ClearableKeys))
	for _, key := range ClearableKeys {
		keys = append(keys, getKey(key, repoID, ver))
	}

	count, err := r.cl.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("error deleting keys: %w", err)
	}

	r.log.Debug("Clear keys", slog.String("version", ver), slog.Int64("key_count", count))

	return nil
}

/*
getVersions return active and standby versions
*/
func (r *manifestRepository) getVersions(ctx context.Context, repoID string) (string, string, error) {
	ver, err := r.cl.Get(ctx, getKey(KeyActiveVersion, repoID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return KeyEmpty, KeyEmpty, fmt.Errorf("cannot get active version: %w", err)
	}

	return versions(ver)
}

func versions(active string) (string, string, error) {
	switch active {
	case KeyVersion1:
		return KeyVersion1, KeyVersion2, nil
	case KeyVersion2, KeyEmpty:
		// Nothing saved yet: v1 is written first.
		return KeyVersion2, KeyVersion1, nil
	}

	return KeyEmpty, KeyEmpty, fmt.Errorf("unknown version %q", active)
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
