package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/goodieshq/bitbridge/internal/protocol"
)

// Endpoint describes one backend route of a service method
type Endpoint struct {
	QueryObject map[string]any `json:"queryObject,omitempty"` // default query values
	JSPath      string         `json:"jspath"`                // path to the scalar in the response
}

// Method maps micro:bit queries of one request type to backend HTTP requests
type Method struct {
	MicrobitQueryString string              `json:"microbitQueryString"`
	BaseURL             string              `json:"baseURL"`
	Endpoint            map[string]Endpoint `json:"endpoint"`
}

// ServiceTable holds the per-request-type methods of one service
type ServiceTable struct {
	Get  *Method `json:"GET,omitempty"`
	Post *Method `json:"POST,omitempty"`
}

// Table is one version of the translation document. A Table is never mutated
// after it is parsed; refreshes swap in a whole new Table.
type Table struct {
	Version  float64
	Services map[string]ServiceTable
}

// ParseTable parses the translation JSON document
func ParseTable(data []byte) (*Table, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse translations: %w", err)
	}

	t := &Table{Services: make(map[string]ServiceTable)}

	versionRaw, ok := raw["version"]
	if !ok {
		return nil, ErrMissingVersion
	}
	if err := json.Unmarshal(versionRaw, &t.Version); err != nil {
		return nil, fmt.Errorf("failed to parse translations version: %w", err)
	}

	for name, msg := range raw {
		if name == "version" {
			continue
		}
		var st ServiceTable
		if err := json.Unmarshal(msg, &st); err != nil {
			return nil, fmt.Errorf("failed to parse service %q: %w", name, err)
		}
		t.Services[name] = st
	}

	return t, nil
}

func (t *Table) Lookup(service string) (ServiceTable, bool) {
	if t == nil {
		return ServiceTable{}, false
	}
	st, ok := t.Services[service]
	return st, ok
}

// Names returns the service names in sorted order
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.Services))
	for name := range t.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method selects GET or POST from the request type bits. GET wins when both are set.
func (st ServiceTable) Method(rt protocol.RequestType) (*Method, bool) {
	switch {
	case rt.Has(protocol.RequestGet):
		return st.Get, st.Get != nil
	case rt.Has(protocol.RequestPost):
		return st.Post, st.Post != nil
	default:
		return nil, false
	}
}

// Defaults renders the endpoint's queryObject values as strings
func (e Endpoint) Defaults() map[string]string {
	out := make(map[string]string, len(e.QueryObject))
	for k, v := range e.QueryObject {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

// Store holds the current translation table
type Store struct {
	current atomic.Pointer[Table]
}

func NewStore() *Store {
	return &Store{}
}

// Load returns the current table, or nil if none has been loaded
func (s *Store) Load() *Table {
	return s.current.Load()
}

// Replace installs t if it is newer than the current table
func (s *Store) Replace(t *Table) bool {
	if t == nil {
		return false
	}
	for {
		old := s.current.Load()
		if old != nil && t.Version <= old.Version {
			return false
		}
		if s.current.CompareAndSwap(old, t) {
			return true
		}
	}
}
