package crawl

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// HostPolicy decides which hosts may be crawled using glob patterns.
//
// Patterns are matched against the lower-cased hostname with '.' as the
// separator: "*.example.com" matches "www.example.com" but not
// "a.b.example.com", while "**.example.com" matches both.
type HostPolicy struct {
	allowedPatterns []glob.Glob
	deniedPatterns  []glob.Glob
}

// NewHostPolicy compiles the allow and deny lists.
func NewHostPolicy(allowed, denied []string) (*HostPolicy, error) {
	hp := &HostPolicy{}

	for _, pattern := range allowed {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid allowed host pattern '%s': %w", pattern, err)
		}
		hp.allowedPatterns = append(hp.allowedPatterns, g)
	}

	for _, pattern := range denied {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid denied host pattern '%s': %w", pattern, err)
		}
		hp.deniedPatterns = append(hp.deniedPatterns, g)
	}

	return hp, nil
}

// Allowed reports whether host may be crawled. A nil policy allows everything.
func (hp *HostPolicy) Allowed(host string) bool {
	if hp == nil {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	// Denied patterns take precedence
	for _, pattern := range hp.deniedPatterns {
		if pattern.Match(host) {
			return false
		}
	}

	// No allow list means everything not denied is allowed
	if len(hp.allowedPatterns) == 0 {
		return true
	}

	for _, pattern := range hp.allowedPatterns {
		if pattern.Match(host) {
			return true
		}
	}
	return false
}
