package translate

import (
	"net/url"
	"sync"

	"github.com/goodieshq/bitbridge/internal/session"
)

// Service identifies a backend the hub can query
type Service uint8

const (
	ServiceUnknown Service = iota
	ServiceEnergy
	ServiceWeather
	ServiceCarbon
)

func (s Service) String() string {
	switch s {
	case ServiceEnergy:
		return "energy"
	case ServiceWeather:
		return "weather"
	case ServiceCarbon:
		return "carbon"
	case ServiceUnknown:
		return "unknown"
	default:
		return "custom"
	}
}

// ServiceSpec shapes the outbound request for one service
type ServiceSpec interface {
	// Endpoint picks the endpoint name from the mapped query
	Endpoint(q map[string]string) string
	// Params returns the query parameters to add to the endpoint URL
	Params(q map[string]string, sess session.Snapshot) url.Values
}

// ServiceFuncs adapts plain functions to ServiceSpec
type ServiceFuncs struct {
	EndpointFunc func(q map[string]string) string
	ParamsFunc   func(q map[string]string, sess session.Snapshot) url.Values
}

func (f ServiceFuncs) Endpoint(q map[string]string) string {
	if f.EndpointFunc == nil {
		return q[KeyEndpoint]
	}
	return f.EndpointFunc(q)
}

func (f ServiceFuncs) Params(q map[string]string, sess session.Snapshot) url.Values {
	if f.ParamsFunc == nil {
		return url.Values{}
	}
	return f.ParamsFunc(q, sess)
}

type registered struct {
	id   Service
	spec ServiceSpec
}

// Registry maps service names from the translation table to their specs
type Registry struct {
	mu     sync.RWMutex
	byName map[string]registered
	next   Service
}

// NewRegistry returns a registry holding the energy, weather and carbon services
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]registered),
		next:   ServiceCarbon + 1,
	}
	r.byName[ServiceEnergy.String()] = registered{ServiceEnergy, energyService}
	r.byName[ServiceWeather.String()] = registered{ServiceWeather, weatherService}
	r.byName[ServiceCarbon.String()] = registered{ServiceCarbon, carbonService}
	return r
}

// Register adds or replaces a service and returns its identifier
func (r *Registry) Register(name string, spec ServiceSpec) Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		r.byName[name] = registered{existing.id, spec}
		return existing.id
	}
	id := r.next
	r.next++
	r.byName[name] = registered{id, spec}
	return id
}

func (r *Registry) Lookup(name string) (Service, ServiceSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byName[name]
	if !ok {
		return ServiceUnknown, nil, false
	}
	return reg.id, reg.spec, true
}

// copyParams copies the named keys that have a non-empty value
func copyParams(q map[string]string, keys ...string) url.Values {
	v := url.Values{}
	for _, k := range keys {
		if s := q[k]; s != "" {
			v.Set(k, s)
		}
	}
	return v
}

var energyService = ServiceFuncs{
	EndpointFunc: func(q map[string]string) string {
		if ep := q[KeyEndpoint]; ep != "" {
			return ep
		}
		if pt := q["period_type"]; pt == "" || pt == "live" {
			return "live"
		}
		return "total"
	},
	ParamsFunc: func(q map[string]string, sess session.Snapshot) url.Values {
		v := copyParams(q, "period_type", "periods_ago", "unit", "location_uid", "meter_type")
		if v.Get("period_type") == "live" {
			v.Del("period_type")
		}
		if v.Get("location_uid") == "" && sess.SchoolID != "" {
			v.Set("location_uid", sess.SchoolID)
		}
		return v
	},
}

var weatherService = ServiceFuncs{
	EndpointFunc: func(q map[string]string) string {
		if ep := q[KeyEndpoint]; ep != "" {
			return ep
		}
		return "current"
	},
	ParamsFunc: func(q map[string]string, _ session.Snapshot) url.Values {
		return copyParams(q, "location", "unit")
	},
}

var carbonService = ServiceFuncs{
	EndpointFunc: func(q map[string]string) string {
		if ep := q[KeyEndpoint]; ep != "" {
			return ep
		}
		if q["postcode"] != "" {
			return "regional"
		}
		return "national"
	},
}
