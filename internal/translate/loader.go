package translate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goodieshq/bitbridge/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Loader keeps a Store filled from a remote translation document or a local file
type Loader struct {
	store  *Store
	client Doer
	url    string
}

type LoaderOpts struct {
	URL    string
	Client Doer
}

func NewLoader(store *Store, opts LoaderOpts) *Loader {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		store:  store,
		client: opts.Client,
		url:    opts.URL,
	}
}

func (l *Loader) install(t *Table, source string) bool {
	if !l.store.Replace(t) {
		log.Debug().Float64("version", t.Version).Str("source", source).Msg("Translations not newer, keeping current")
		return false
	}
	metrics.SetTranslationsVersion(t.Version)
	log.Info().
		Float64("version", t.Version).
		Strs("services", t.Names()).
		Str("source", source).
		Msg("Translations updated")
	return true
}

// Fetch downloads the translation document once. It reports whether the
// store was updated.
func (l *Loader) Fetch(ctx context.Context) (bool, error) {
	if l.url == "" {
		return false, fmt.Errorf("no translations url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create translations request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch translations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to fetch translations: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("failed to read translations: %w", err)
	}

	t, err := ParseTable(data)
	if err != nil {
		return false, err
	}
	return l.install(t, l.url), nil
}

// Poll fetches immediately and then on every interval until ctx is done.
// Fetch errors are logged; the current table stays in place.
func (l *Loader) Poll(ctx context.Context, interval time.Duration) error {
	if _, err := l.Fetch(ctx); err != nil {
		log.Error().Err(err).Msg("Initial translations fetch failed")
	}
	if interval <= 0 {
		return nil
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if _, err := l.Fetch(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Translations refresh failed")
			}
		}
	}
}

// LoadFile reads a translation document from disk
func (l *Loader) LoadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read translations (%s): %w", path, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return false, fmt.Errorf("failed to parse translations (%s): %w", path, err)
	}
	return l.install(t, path), nil
}

// Watch loads path and reloads it whenever it is written or replaced, until
// ctx is done. The parent directory is watched so that editors replacing the
// file by rename are picked up.
func (l *Loader) Watch(ctx context.Context, path string) error {
	if _, err := l.LoadFile(path); err != nil {
		log.Error().Err(err).Msg("Initial translations load failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if _, err := l.LoadFile(path); err != nil {
				log.Warn().Err(err).Msg("Translations reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Translations watcher error")
		}
	}
}
