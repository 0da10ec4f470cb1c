package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
	"github.com/goodieshq/bitbridge/internal/session"
)

var testHosts = []string{
	"https://energy.example.org",
	"https://weather.example.org",
	"https://api.carbonintensity.org.uk",
}

// loadTestTable reads testdata/translations.json with every upstream host
// pointed at baseURL
func loadTestTable(t *testing.T, baseURL string) *Table {
	t.Helper()

	data, err := os.ReadFile("testdata/translations.json")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	doc := string(data)
	for _, host := range testHosts {
		doc = strings.ReplaceAll(doc, host, baseURL)
	}

	tbl, err := ParseTable([]byte(doc))
	if err != nil {
		t.Fatalf("parse testdata: %v", err)
	}
	return tbl
}

type upstream struct {
	mu       sync.Mutex
	requests []*url.URL
	routes   map[string]string
	status   int
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests = append(u.requests, r.URL)
	status := u.status
	u.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	body, ok := u.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (u *upstream) last(t *testing.T) *url.URL {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.requests) == 0 {
		t.Fatalf("no upstream request made")
	}
	return u.requests[len(u.requests)-1]
}

func newTestResolver(t *testing.T, routes map[string]string) (*Resolver, *Table, *upstream) {
	t.Helper()
	up := &upstream{routes: routes}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	r := NewResolver(ResolverOpts{Client: srv.Client()})
	return r, loadTestTable(t, srv.URL), up
}

func getMethod(t *testing.T, tbl *Table, service string) *Method {
	t.Helper()
	st, ok := tbl.Lookup(service)
	if !ok {
		t.Fatalf("service %q missing", service)
	}
	m, ok := st.Method(protocol.RequestGet)
	if !ok {
		t.Fatalf("service %q has no GET", service)
	}
	return m
}

func TestResolveEnergyLive(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/api/v1/energy-data/live/": `{"value": 512, "unit": "watt"}`,
	})

	v, err := r.Resolve(context.Background(), "energy", getMethod(t, tbl, "energy"), "energy/1234", session.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != packets.Int(512) {
		t.Fatalf("got %v", v)
	}

	q := up.last(t).Query()
	if q.Get("location_uid") != "1234" || q.Get("unit") != "watt" || q.Has("period_type") {
		t.Fatalf("unexpected query: %v", q)
	}
}

func TestResolveEnergyTotal(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/api/v1/energy-data/total/": `{"value": 12.5}`,
	})

	v, err := r.Resolve(context.Background(), "energy", getMethod(t, tbl, "energy"), "energy/1234/day/3", session.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != packets.Float(12.5) {
		t.Fatalf("got %v", v)
	}

	q := up.last(t).Query()
	want := url.Values{
		"period_type":  {"day"},
		"periods_ago":  {"3"},
		"unit":         {"kilowatt_hour"},
		"location_uid": {"1234"},
	}
	if q.Encode() != want.Encode() {
		t.Fatalf("query %q, want %q", q.Encode(), want.Encode())
	}
}

func TestResolveEnergyFallsBackToSchool(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/api/v1/energy-data/live/": `{"value": 1}`,
	})

	_, err := r.Resolve(context.Background(), "energy", getMethod(t, tbl, "energy"), "energy/", session.Snapshot{SchoolID: "school-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := up.last(t).Query().Get("location_uid"); got != "school-9" {
		t.Fatalf("location_uid %q", got)
	}
}

func TestResolveCarbon(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/intensity/":                 `{"data": [{"intensity": {"forecast": 230, "index": "moderate"}}]}`,
		"/regional/postcode/BN1":      `{"data": [{"data": [{"intensity": {"forecast": 101}}]}]}`,
		"/regional/postcode/BN1/junk": `{}`,
	})
	m := getMethod(t, tbl, "carbon")

	v, err := r.Resolve(context.Background(), "carbon", m, "carbon", session.Snapshot{})
	if err != nil {
		t.Fatalf("national: unexpected error: %v", err)
	}
	if v != packets.Int(230) {
		t.Fatalf("national: got %v", v)
	}

	v, err = r.Resolve(context.Background(), "carbon", m, "carbon/BN1", session.Snapshot{})
	if err != nil {
		t.Fatalf("regional: unexpected error: %v", err)
	}
	if v != packets.Int(101) {
		t.Fatalf("regional: got %v", v)
	}
	if path := up.last(t).Path; path != "/regional/postcode/BN1" {
		t.Fatalf("regional path %q", path)
	}
}

func TestResolveWeatherString(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/api/v1/weather/current/": `{"temperature": "mild"}`,
	})

	v, err := r.Resolve(context.Background(), "weather", getMethod(t, tbl, "weather"), "weather/current/London", session.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != packets.String("mild") {
		t.Fatalf("got %v", v)
	}
	q := up.last(t).Query()
	if q.Get("location") != "London" || q.Get("unit") != "c" {
		t.Fatalf("unexpected query: %v", q)
	}
}

func reason(t *testing.T, err error) string {
	t.Helper()
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	return terr.Reason
}

func TestResolveFailures(t *testing.T) {
	r, tbl, up := newTestResolver(t, map[string]string{
		"/api/v1/energy-data/live/": `{"other": 1}`,
		"/api/v1/weather/wind/":     `not json`,
	})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "energy", getMethod(t, tbl, "energy"), "energy/1", session.Snapshot{})
	if got := reason(t, err); got != "NO DATA (.value)" {
		t.Fatalf("missing field reason %q", got)
	}

	_, err = r.Resolve(ctx, "weather", getMethod(t, tbl, "weather"), "weather/wind", session.Snapshot{})
	if got := reason(t, err); got != "BAD RESPONSE" {
		t.Fatalf("bad json reason %q", got)
	}

	_, err = r.Resolve(ctx, "weather", getMethod(t, tbl, "weather"), "weather/rain", session.Snapshot{})
	if got := reason(t, err); got != "INVALID ENDPOINT (rain)" {
		t.Fatalf("endpoint reason %q", got)
	}

	_, err = r.Resolve(ctx, "solar", getMethod(t, tbl, "weather"), "solar/1", session.Snapshot{})
	if got := reason(t, err); got != "UNSUPPORTED SERVICE (solar)" {
		t.Fatalf("service reason %q", got)
	}

	up.mu.Lock()
	up.status = http.StatusInternalServerError
	up.mu.Unlock()
	_, err = r.Resolve(ctx, "energy", getMethod(t, tbl, "energy"), "energy/1", session.Snapshot{})
	if got := reason(t, err); got != "HTTP 500" {
		t.Fatalf("status reason %q", got)
	}
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestResolveNetworkFailure(t *testing.T) {
	r := NewResolver(ResolverOpts{Client: failingDoer{}})
	tbl := loadTestTable(t, "http://127.0.0.1:1")

	_, err := r.Resolve(context.Background(), "carbon", getMethod(t, tbl, "carbon"), "carbon", session.Snapshot{})
	if got := reason(t, err); got != "REQUEST FAILED" {
		t.Fatalf("reason %q", got)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestRegisterCustomService(t *testing.T) {
	up := &upstream{routes: map[string]string{"/tides/high": `{"height": [1.25]}`}}
	srv := httptest.NewServer(up)
	defer srv.Close()

	r := NewResolver(ResolverOpts{Client: srv.Client()})
	id := r.Registry().Register("tides", ServiceFuncs{
		EndpointFunc: func(map[string]string) string { return "high" },
	})
	if id <= ServiceCarbon {
		t.Fatalf("custom service id %d collides with built-ins", id)
	}
	if again := r.Registry().Register("tides", ServiceFuncs{}); again != id {
		t.Fatalf("re-register changed id: %d != %d", again, id)
	}
	r.Registry().Register("tides", ServiceFuncs{
		EndpointFunc: func(map[string]string) string { return "high" },
	})

	m := &Method{
		MicrobitQueryString: "/%place%",
		BaseURL:             srv.URL + "/tides/%endpoint%",
		Endpoint:            map[string]Endpoint{"high": {JSPath: "$.height[0]"}},
	}
	v, err := r.Resolve(context.Background(), "tides", m, "tides/whitby", session.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != packets.Float(1.25) {
		t.Fatalf("got %v", v)
	}
}

func TestExtractScalars(t *testing.T) {
	body := []byte(`{"a": {"b": [10, 2.5, "s", true, false, null, {"c": 1}]}}`)
	cases := []struct {
		path string
		want packets.Value
	}{
		{".a.b[0]", packets.Int(10)},
		{"a.b[1]", packets.Float(2.5)},
		{"$.a.b[2]", packets.String("s")},
		{".a.b[3]", packets.Int(1)},
		{".a.b[4]", packets.Int(0)},
	}
	for _, tc := range cases {
		got, err := Extract(body, tc.path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.path, got, tc.want)
		}
	}

	for _, path := range []string{".a.b[5]", ".a.b[6]", ".missing"} {
		if _, err := Extract(body, path); err == nil {
			t.Fatalf("%s: expected NO DATA", path)
		}
	}
}
