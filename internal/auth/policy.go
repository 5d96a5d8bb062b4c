package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to a path, or to every path under it when Prefix is
// set. An empty Method matches any method.
type Rule struct {
	Path   string
	Prefix bool
	Method string
	Role   Role
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	if r.Prefix {
		return strings.HasPrefix(path, r.Path)
	}
	return path == r.Path
}

// DefaultRules are the roles required by the analytics API. First match wins.
var DefaultRules = []Rule{
	{Path: "/api/v1/datasets", Method: http.MethodPost, Role: RoleAnalyst},
	{Path: "/api/v1/datasets", Role: RoleViewer},
	{Path: "/api/v1/sessions", Method: http.MethodDelete, Role: RoleAnalyst},
	{Path: "/api/v1/analysis/", Prefix: true, Role: RoleViewer},
	{Path: "/api/v1/exports/", Prefix: true, Role: RoleViewer},
	{Path: "/api/v1/reports/narrative", Role: RoleAnalyst},
	{Path: "/api/v1/tariff/classify", Role: RoleViewer},
	{Path: "/api/v1/tariff/valuation", Role: RoleAnalyst},
	{Path: "/api/v1/measurements/valuation", Role: RoleAnalyst},
}

// Policy decides which requests skip the token check and which role the
// others need.
type Policy struct {
	open     map[string]bool
	openTree []string
	rules    []Rule
}

// NewDefaultPolicy builds the API policy. exemptPaths match exactly,
// exemptPrefixes match path prefixes.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	return NewPolicy(DefaultRules, exemptPaths, exemptPrefixes)
}

// NewPolicy builds a policy from explicit rules.
func NewPolicy(rules []Rule, exemptPaths []string, exemptPrefixes []string) Policy {
	p := Policy{
		open:     make(map[string]bool, len(exemptPaths)),
		openTree: append([]string(nil), exemptPrefixes...),
		rules:    append([]Rule(nil), rules...),
	}
	for _, path := range exemptPaths {
		p.open[path] = true
	}
	return p
}

// IsExempt reports whether the request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	path := r.URL.Path
	if p.open[path] {
		return true
	}
	for _, prefix := range p.openTree {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. Unlisted /api/ routes need
// a viewer for safe methods and an analyst otherwise; anything outside /api/
// is not guarded.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r.Method, r.URL.Path) {
			return rule.Role, true
		}
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	}
	return RoleAnalyst, true
}
