package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoaderFetch(t *testing.T) {
	var version atomic.Int32
	version.Store(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version": %d, "carbon": {"GET": {"baseURL": "x", "endpoint": {}}}}`, version.Load())
	}))
	defer srv.Close()

	store := NewStore()
	l := NewLoader(store, LoaderOpts{URL: srv.URL, Client: srv.Client()})

	updated, err := l.Fetch(context.Background())
	if err != nil || !updated {
		t.Fatalf("first fetch: updated=%v err=%v", updated, err)
	}
	if store.Load().Version != 1 {
		t.Fatalf("version %v", store.Load().Version)
	}

	updated, err = l.Fetch(context.Background())
	if err != nil || updated {
		t.Fatalf("same version: updated=%v err=%v", updated, err)
	}

	version.Store(4)
	updated, err = l.Fetch(context.Background())
	if err != nil || !updated || store.Load().Version != 4 {
		t.Fatalf("newer version: updated=%v err=%v", updated, err)
	}
}

func TestLoaderFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.Write([]byte(`{"version":`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := NewStore()
	for _, u := range []string{"", srv.URL + "/down", srv.URL + "/broken"} {
		l := NewLoader(store, LoaderOpts{URL: u, Client: srv.Client()})
		if _, err := l.Fetch(context.Background()); err == nil {
			t.Fatalf("%q: expected error", u)
		}
	}
	if store.Load() != nil {
		t.Fatalf("failed fetches must not install a table")
	}
}

func TestLoaderPollStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		fmt.Fprintf(w, `{"version": %d}`, n)
	}))
	defer srv.Close()

	store := NewStore()
	l := NewLoader(store, LoaderOpts{URL: srv.URL, Client: srv.Client()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Poll(ctx, 10*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for hits.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("poller made only %d requests", hits.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
	if store.Load() == nil || store.Load().Version < 3 {
		t.Fatalf("store not refreshed: %+v", store.Load())
	}
}

func TestLoaderWatchReloadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "translations.json")
	if err := os.WriteFile(path, []byte(`{"version": 1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewStore()
	l := NewLoader(store, LoaderOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, path) }()

	waitVersion := func(want float64) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			if tbl := store.Load(); tbl != nil && tbl.Version == want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("version %v never loaded", want)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
	waitVersion(1)

	// the watcher may not be registered yet; keep rewriting until it notices
	deadline := time.After(3 * time.Second)
	for {
		if err := os.WriteFile(path, []byte(`{"version": 2}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if tbl := store.Load(); tbl != nil && tbl.Version == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("file change never picked up")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop")
	}
}
