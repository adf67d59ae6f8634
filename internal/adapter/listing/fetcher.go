package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/util"
)

const (
	maxPageSize = 32 << 20
)

type listingFetcher struct {
	client      *http.Client
	cfg         *config.FetcherConfig
	markers     Markers
	maxPageSize int64
	log         *slog.Logger
}

func NewListingFetcher(client *http.Client, cfg *config.FetcherConfig, log *slog.Logger) *listingFetcher {
	return &listingFetcher{
		client: client,
		cfg:    cfg,
		markers: Markers{
			EntryTag:   cfg.EntryTag,
			EntryClass: cfg.EntryClass,
			DirClass:   cfg.DirClass,
		},
		maxPageSize: maxPageSize,
		log:         log.With(slog.String("item", "ListingFetcher")),
	}
}

// Fetch downloads one listing page and returns its entries in page order.
func (f *listingFetcher) Fetch(ctx context.Context, dirURL string) ([]entity.Entry, error) {
	var (
		entries   []entity.Entry
		permanent error
	)

	err := util.Retry(ctx, f.cfg.Retries+1, f.cfg.RetryDelay, func(attempt int) error {
		if attempt > 1 {
			f.log.Warn("Retry listing", slog.String("url", dirURL), slog.Int("attempt", attempt))
		}

		var err error
		entries, err = f.fetch(ctx, dirURL)
		if errors.Is(err, common.ErrInvalidRepositoryURL) || errors.Is(err, common.ErrListingTooLarge) {
			// The same page comes back on retry.
			permanent = err
			return nil
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	if errors.Is(permanent, common.ErrListingTooLarge) {
		f.log.Error("Listing page is too large", slog.String("url", dirURL), slog.Int64("limit", f.maxPageSize))

		return nil, permanent
	}

	if entries == nil {
		return nil, f.invalid(dirURL)
	}

	f.log.Debug("Fetched listing", slog.String("url", dirURL), slog.Int("entries", len(entries)))

	return entries, nil
}

func (f *listingFetcher) invalid(dirURL string) error {
	f.log.Error("Page is not a listing", slog.String("url", dirURL))

	return fmt.Errorf("%w: %s", common.ErrInvalidRepositoryURL, dirURL)
}

func (f *listingFetcher) fetch(ctx context.Context, dirURL string) ([]entity.Entry, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dirURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidRepositoryURL, dirURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot get %s: %w: %w", dirURL, common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, common.ErrInvalidRepositoryURL
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("cannot get %s: %w: %s", dirURL, common.ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w: %w", dirURL, common.ErrNetwork, err)
	}

	if int64(len(body)) > f.maxPageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", common.ErrListingTooLarge, dirURL, f.maxPageSize)
	}

	entries, err := Parse(dirURL, bytes.NewReader(body), f.markers)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		// Markers without links still make a valid, empty listing.
		entries = []entity.Entry{}
	}

	return entries, nil
}
