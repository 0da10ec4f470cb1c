package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/translate"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeLink struct {
	state     string
	connected bool
}

func (f fakeLink) State() string   { return f.state }
func (f fakeLink) Connected() bool { return f.connected }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := NewServer(ServerOpts{Link: fakeLink{state: "connected", connected: true}})

	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" || body["link"] != "connected" {
		t.Fatalf("body %v", body)
	}
}

func TestReadyz(t *testing.T) {
	store := translate.NewStore()
	link := &fakeLink{state: "disconnected"}

	check := func(wantCode int, wantReady bool) readiness {
		t.Helper()
		s := NewServer(ServerOpts{Link: *link, Store: store})
		rec := get(t, s.Handler(), "/readyz")
		if rec.Code != wantCode {
			t.Fatalf("status %d, want %d", rec.Code, wantCode)
		}
		var r readiness
		decode(t, rec, &r)
		if r.Ready != wantReady {
			t.Fatalf("ready %v", r.Ready)
		}
		return r
	}

	check(http.StatusServiceUnavailable, false)

	store.Replace(&translate.Table{Version: 3})
	if r := check(http.StatusServiceUnavailable, false); r.TranslationsVersion != 3 {
		t.Fatalf("version %v", r.TranslationsVersion)
	}

	link.state, link.connected = "connected", true
	check(http.StatusOK, true)

	store2 := translate.NewStore()
	s := NewServer(ServerOpts{Link: *link, Store: store2})
	if rec := get(t, s.Handler(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("connected without translations: %d", rec.Code)
	}
}

func TestSessionAndTranslations(t *testing.T) {
	sess := session.New()
	if _, err := sess.Begin("9900"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	sess.SetHub("school-1", "hub-1")
	sess.IncPackets()
	store := translate.NewStore()

	s := NewServer(ServerOpts{Session: sess, Store: store})

	var snap session.Snapshot
	decode(t, get(t, s.Handler(), "/session"), &snap)
	if snap.SchoolID != "school-1" || snap.HubID != "hub-1" || snap.PacketCount != 1 || snap.SerialNumber != "9900" || snap.ID == "" {
		t.Fatalf("snapshot %+v", snap)
	}

	if rec := get(t, s.Handler(), "/translations"); rec.Code != http.StatusNotFound {
		t.Fatalf("no table: %d", rec.Code)
	}

	store.Replace(&translate.Table{Version: 2, Services: map[string]translate.ServiceTable{
		"weather": {}, "carbon": {},
	}})
	var body struct {
		Version  float64  `json:"version"`
		Services []string `json:"services"`
	}
	decode(t, get(t, s.Handler(), "/translations"), &body)
	if body.Version != 2 || strings.Join(body.Services, ",") != "carbon,weather" {
		t.Fatalf("translations %+v", body)
	}
}

func TestMetricsAndMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "bitbridge_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	s := NewServer(ServerOpts{Gatherer: reg})
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bitbridge_test_total 3") {
		t.Fatalf("metrics %d %q", rec.Code, rec.Body.String())
	}

	post := httptest.NewRecorder()
	s.Handler().ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/session", nil))
	if post.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /session: %d", post.Code)
	}
	if rec := get(t, s.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rec.Code)
	}
}

func TestStartStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := NewServer(ServerOpts{Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
