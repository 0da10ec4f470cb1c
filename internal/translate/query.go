package translate

import (
	"net/url"
	"regexp"
	"strings"
)

// Key under which MapQueryString stores the first query segment
const KeyService = "service"

// Key naming the endpoint to use, when the query template captures it
const KeyEndpoint = "endpoint"

var urlToken = regexp.MustCompile(`%([A-Za-z0-9_]+)(\?(=([^%]*))?)?%`)

// MapQueryString aligns a slash-delimited micro:bit query with a template of
// %name% and %name?% placeholders. The first query segment is the service.
// Mapping stops at the end of either side, or at an empty query segment
// opposite an optional placeholder.
func MapQueryString(query, format string) map[string]string {
	out := make(map[string]string)

	segments := strings.Split(strings.TrimPrefix(query, "/"), "/")
	out[KeyService] = segments[0]
	segments = segments[1:]

	format = strings.TrimPrefix(format, "/")
	if format == "" {
		return out
	}

	for i, tmpl := range strings.Split(format, "/") {
		if i >= len(segments) {
			break
		}
		name, optional, ok := parsePlaceholder(tmpl)
		value := segments[i]
		if !ok {
			// literal template segment, consumes the query segment
			continue
		}
		if value == "" && optional {
			break
		}
		out[name] = value
	}

	return out
}

func parsePlaceholder(seg string) (name string, optional bool, ok bool) {
	if len(seg) < 3 || seg[0] != '%' || seg[len(seg)-1] != '%' {
		return "", false, false
	}
	name = seg[1 : len(seg)-1]
	if strings.HasSuffix(name, "?") {
		name = strings.TrimSuffix(name, "?")
		optional = true
	}
	return name, optional, name != ""
}

// BuildURL substitutes %key% and %key?=default% tokens in template. A
// non-empty resolved value wins over the template default, which wins over
// the empty string. Values in the path keep their slashes; values after the
// template's '?' are query-escaped so they cannot add parameters.
func BuildURL(template string, resolved map[string]string) string {
	var b strings.Builder
	inQuery := false
	last := 0
	for _, m := range urlToken.FindAllStringSubmatchIndex(template, -1) {
		lit := template[last:m[0]]
		inQuery = inQuery || strings.Contains(lit, "?")
		b.WriteString(lit)

		key := template[m[2]:m[3]]
		v := resolved[key]
		switch {
		case v == "" && m[8] >= 0:
			b.WriteString(template[m[8]:m[9]])
		case v == "":
		case inQuery:
			b.WriteString(url.QueryEscape(v))
		default:
			b.WriteString(escapePath(v))
		}
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String()
}

// escapePath escapes each segment of v, keeping the slashes between them
func escapePath(v string) string {
	parts := strings.Split(v, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// merge lays query values over endpoint defaults; empty query values do not
// hide a default
func merge(defaults, query map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(query))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range query {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
