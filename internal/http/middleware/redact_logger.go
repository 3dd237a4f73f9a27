// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the scrubber used by the access log. Request bodies are
// never logged. Query strings and header values have obvious PII replaced
// (emails, phone numbers, UUIDs), credential-bearing query parameters are
// masked whole, and sensitive headers are dropped to "[REDACTED]".
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// RedactOptions adds project-specific names to the built-in masks.
type RedactOptions struct {
	// MaskHeaders are extra header names (case-insensitive) to mask.
	MaskHeaders []string
	// MaskParams are extra query parameter names (case-insensitive) to mask.
	MaskParams []string
}

var (
	// UUIDs go first so the loose phone pattern cannot eat their digit runs.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redactor scrubs request metadata before it reaches the logs.
type Redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

// NewRedactor masks Authorization, Cookie, Set-Cookie and the "token" and
// "access_token" query parameters, plus whatever opts adds.
func NewRedactor(opts RedactOptions) *Redactor {
	r := &Redactor{
		headers: lowerSet("authorization", "cookie", "set-cookie"),
		params:  lowerSet("token", "access_token"),
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, p := range opts.MaskParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.params[p] = struct{}{}
		}
	}
	return r
}

func lowerSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Text replaces UUIDs, emails and phone numbers in s.
func (r *Redactor) Text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Query masks credential parameters of a raw query string and scrubs the
// rest. Unparseable queries are scrubbed as plain text.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return raw
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.Text(raw)
	}
	masked := false
	for k := range vals {
		if _, ok := r.params[strings.ToLower(k)]; ok {
			vals[k] = []string{"REDACTED"}
			masked = true
		}
	}
	if masked {
		raw = vals.Encode()
	}
	return r.Text(raw)
}

// Headers returns a flattened, scrubbed copy of h.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.Text(strings.Join(vv, ", "))
	}
	return out
}
