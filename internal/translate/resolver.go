package translate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goodieshq/bitbridge/internal/metrics"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Largest upstream response body read before extraction
const maxResponseBytes = 1 << 20

// Doer issues HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Resolver struct {
	client   Doer
	registry *Registry
	timeout  time.Duration
}

type ResolverOpts struct {
	Client   Doer
	Registry *Registry
	Timeout  time.Duration
}

func NewResolver(opts ResolverOpts) *Resolver {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	return &Resolver{
		client:   opts.Client,
		registry: opts.Registry,
		timeout:  opts.Timeout,
	}
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Request is a resolved outbound request for one hub query
type Request struct {
	Service  Service
	Name     string
	Endpoint string
	URL      string
	JSPath   string
}

// Prepare maps the query through the method's templates and builds the
// outbound request without sending it
func (r *Resolver) Prepare(name string, m *Method, query string, sess session.Snapshot) (*Request, error) {
	svc, spec, ok := r.registry.Lookup(name)
	if !ok {
		return nil, newError(nil, "UNSUPPORTED SERVICE (%s)", name)
	}

	q := MapQueryString(query, m.MicrobitQueryString)
	epName := spec.Endpoint(q)
	ep, ok := m.Endpoint[epName]
	if !ok {
		return nil, newError(nil, "INVALID ENDPOINT (%s)", epName)
	}

	resolved := merge(ep.Defaults(), q)
	resolved[KeyEndpoint] = epName

	u, err := url.Parse(BuildURL(m.BaseURL, resolved))
	if err != nil {
		return nil, newError(err, "BAD URL")
	}
	params := u.Query()
	for k, vs := range spec.Params(resolved, sess) {
		for _, v := range vs {
			params.Set(k, v)
		}
	}
	u.RawQuery = params.Encode()

	return &Request{
		Service:  svc,
		Name:     name,
		Endpoint: epName,
		URL:      u.String(),
		JSPath:   ep.JSPath,
	}, nil
}

// Resolve issues exactly one GET for the query and extracts the endpoint's
// scalar from the JSON response. All failures are returned as *Error.
func (r *Resolver) Resolve(ctx context.Context, name string, m *Method, query string, sess session.Snapshot) (packets.Value, error) {
	req, err := r.Prepare(name, m, query, sess)
	if err != nil {
		return packets.Value{}, err
	}

	body, err := r.fetch(ctx, req)
	if err != nil {
		return packets.Value{}, err
	}

	return Extract(body, req.JSPath)
}

func (r *Resolver) fetch(ctx context.Context, req *Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, newError(err, "BAD URL")
	}
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().Str("service", req.Name).Str("endpoint", req.Endpoint).Str("url", req.URL).Msg("Upstream request")

	t := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		metrics.RecordUpstream(req.Name, 0, time.Since(t))
		return nil, newError(err, "REQUEST FAILED")
	}
	defer resp.Body.Close()
	metrics.RecordUpstream(req.Name, resp.StatusCode, time.Since(t))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(nil, "HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(err, "REQUEST FAILED")
	}
	return body, nil
}

var indexToken = regexp.MustCompile(`\[(\d+)\]`)

// gjsonPath converts a jspath expression such as ".data[0].intensity.actual"
// into gjson syntax ("data.0.intensity.actual")
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = indexToken.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(path, ".")
}

// Extract pulls a single scalar out of a JSON document
func Extract(body []byte, path string) (packets.Value, error) {
	if !gjson.ValidBytes(body) {
		return packets.Value{}, newError(nil, "BAD RESPONSE")
	}

	res := gjson.GetBytes(body, gjsonPath(path))
	switch res.Type {
	case gjson.Number:
		v, _ := packets.ValueOf(res.Float())
		return v, nil
	case gjson.String:
		return packets.String(res.Str), nil
	case gjson.True:
		return packets.Int(1), nil
	case gjson.False:
		return packets.Int(0), nil
	default:
		return packets.Value{}, newError(nil, "NO DATA (%s)", path)
	}
}

func (r *Request) String() string {
	return fmt.Sprintf("%s/%s %s", r.Name, r.Endpoint, r.URL)
}
