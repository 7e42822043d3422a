package har

import (
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// preservedAuthHeaders always survive ingest. A header whose lowercased
// name contains one of these is kept even when a tracking substring
// also matches.
var preservedAuthHeaders = []string{
	"authorization",
	"cookie",
	"x-api-key",
	"x-auth-token",
	"x-access-token",
	"x-csrf-token",
	"x-xsrf-token",
	"x-requested-with",
}

// trackingHeaderSubstrings mark analytics, fingerprinting and
// negotiation headers that only add noise to the LLM prompts.
var trackingHeaderSubstrings = []string{
	"sec-",
	"accept",
	"user-agent",
	"referer",
	"relic",
	"sentry",
	"datadog",
	"amplitude",
	"mixpanel",
	"segment",
	"heap",
	"hotjar",
	"fullstory",
	"pendo",
	"optimizely",
	"adobe",
	"analytics",
	"tracking",
	"telemetry",
	"clarity",
	"matomo",
	"plausible",
}

// DefaultExcludeKeywords is the provider denylist applied to URLs.
// Callers replace the whole list via Options.ExcludeKeywords.
var DefaultExcludeKeywords = []string{
	"google",
	"taboola",
	"datadog",
	"sentry",
	"facebook",
	"twitter",
	"linkedin",
	"amplitude",
	"mixpanel",
	"segment",
	"heap",
	"hotjar",
	"fullstory",
	"pendo",
	"optimizely",
	"adobe",
	"analytics",
	"tracking",
	"telemetry",
	"clarity",
	"matomo",
	"plausible",
}

// apiPathIndicators mark URLs that are API traffic regardless of the
// exclusion keywords.
var apiPathIndicators = []string{"/api/", "/v1/", "/v2/", "/rest/", "/graphql"}

// IsAuthHeader reports whether name is one of the always-preserved
// authentication headers.
func IsAuthHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, auth := range preservedAuthHeaders {
		if strings.Contains(lower, auth) {
			return true
		}
	}
	return false
}

// keepHeader decides whether a request header survives normalization.
func keepHeader(name string) bool {
	if IsAuthHeader(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, tracking := range trackingHeaderSubstrings {
		if strings.Contains(lower, tracking) {
			return false
		}
	}
	return true
}

// IsAPIURL reports whether the URL path looks like API traffic.
func IsAPIURL(url string) bool {
	lower := strings.ToLower(url)
	for _, indicator := range apiPathIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// assetContentTypes exclude static resources by response content type.
func isAssetContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"),
		strings.HasPrefix(ct, "font/"),
		strings.HasPrefix(ct, "text/css"),
		strings.HasPrefix(ct, "application/javascript"):
		return true
	}
	return false
}

// entryFilter holds the resolved filtering options for one parse.
type entryFilter struct {
	excludeKeywords   []string
	includeAllAPI     bool
	preserveAnalytics bool
	customFilters     []func(url string) bool
}

func newEntryFilter(opts Options) entryFilter {
	keywords := opts.ExcludeKeywords
	if keywords == nil {
		keywords = DefaultExcludeKeywords
	}
	return entryFilter{
		excludeKeywords:   keywords,
		includeAllAPI:     opts.IncludeAllAPIRequests,
		preserveAnalytics: opts.PreserveAnalytics,
		customFilters:     opts.CustomFilters,
	}
}

// keep applies the filtering rules in their documented order. The first
// rule that decides wins: analytics preservation keeps everything, the
// API inclusion rule keeps API URLs before any exclusion is consulted,
// then custom filters, the keyword denylist, the preflight drop and the
// asset drop each get a chance to exclude.
func (f entryFilter) keep(req *curl.Request) bool {
	if f.preserveAnalytics {
		return true
	}

	if f.includeAllAPI && IsAPIURL(req.URL) {
		return true
	}

	for _, custom := range f.customFilters {
		if custom(req.URL) {
			return false
		}
	}

	lowerURL := strings.ToLower(req.URL)
	for _, keyword := range f.excludeKeywords {
		if keyword != "" && strings.Contains(lowerURL, strings.ToLower(keyword)) {
			return false
		}
	}

	if req.Method == "OPTIONS" {
		return false
	}

	if req.Response != nil && isAssetContentType(req.Response.ContentType()) {
		return false
	}

	return true
}
