package har

import (
	"fmt"
	"strings"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// Quality grades how usable a capture is for analysis.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityEmpty     Quality = "empty"
)

// Counts are the raw tallies behind a quality grade.
type Counts struct {
	TotalEntries         int `json:"total_entries"`
	Relevant             int `json:"relevant"`
	APIRequests          int `json:"api_requests"`
	ModifyingRequests    int `json:"modifying_requests"`
	ResponsesWithContent int `json:"responses_with_content"`
	AuthRequests         int `json:"auth_requests"`
	TokenRequests        int `json:"token_requests"`
	AuthErrors           int `json:"auth_errors"`
}

// ValidationReport grades a capture and explains what, if anything,
// should be recaptured before analysis.
type ValidationReport struct {
	Quality         Quality      `json:"quality"`
	Counts          Counts       `json:"counts"`
	Issues          []string     `json:"issues,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Auth            AuthAnalysis `json:"auth"`
}

// URL fragments that mark a request as part of a login or token
// exchange flow.
var tokenURLKeywords = []string{"token", "login", "signin", "auth", "oauth", "session"}

func buildReport(totalEntries int, requests []*curl.Request, jar *CookieJar) *ValidationReport {
	counts := countRequests(totalEntries, requests)
	auth := AnalyzeAuth(requests, jar)

	report := &ValidationReport{
		Quality: gradeQuality(counts),
		Counts:  counts,
		Auth:    auth,
	}
	report.Issues, report.Recommendations = adviseOn(counts, auth)
	return report
}

func countRequests(totalEntries int, requests []*curl.Request) Counts {
	counts := Counts{
		TotalEntries: totalEntries,
		Relevant:     len(requests),
	}
	for _, req := range requests {
		if isAPIRequest(req) {
			counts.APIRequests++
		}
		if req.IsModifying() {
			counts.ModifyingRequests++
		}
		if req.Response != nil && req.Response.BodyText != "" {
			counts.ResponsesWithContent++
		}
		if hasAuthMaterial(req) {
			counts.AuthRequests++
		}
		if isTokenURL(req.URL) {
			counts.TokenRequests++
		}
		if req.Response != nil && (req.Response.Status == 401 || req.Response.Status == 403) {
			counts.AuthErrors++
		}
	}
	return counts
}

// isAPIRequest tags a request as an API call by URL shape or JSON
// response.
func isAPIRequest(req *curl.Request) bool {
	return IsAPIURL(req.URL) || (req.Response != nil && req.Response.IsJSON())
}

func hasAuthMaterial(req *curl.Request) bool {
	for _, header := range req.Headers.Sorted() {
		if IsAuthHeader(header.Name) {
			return true
		}
	}
	return false
}

func isTokenURL(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	for _, keyword := range tokenURLKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func gradeQuality(counts Counts) Quality {
	switch {
	case counts.Relevant == 0:
		return QualityEmpty
	case counts.AuthErrors > 0:
		return QualityPoor
	case counts.APIRequests >= 3 || counts.ModifyingRequests >= 2:
		return QualityExcellent
	case counts.Relevant >= 5 || counts.APIRequests >= 1:
		return QualityGood
	default:
		return QualityPoor
	}
}

func adviseOn(counts Counts, auth AuthAnalysis) (issues, recommendations []string) {
	if counts.Relevant == 0 {
		issues = append(issues, "no relevant requests survived filtering")
		recommendations = append(recommendations, "capture again and interact with the target workflow before saving the HAR")
		return issues, recommendations
	}

	if counts.AuthErrors > 0 {
		issues = append(issues, fmt.Sprintf("%d request(s) returned 401 or 403", counts.AuthErrors))
		recommendations = append(recommendations, "re-capture after a fresh login, the recorded credentials were rejected")
	}
	if counts.ResponsesWithContent == 0 {
		issues = append(issues, "no response bodies were captured")
		recommendations = append(recommendations, "enable response content in the capture tool so dependencies between requests can be traced")
	}
	if counts.APIRequests == 0 {
		issues = append(issues, "no API requests detected")
		recommendations = append(recommendations, "make sure the workflow actions, not just page loads, happen during the capture")
	}
	if !auth.HasAuthHeaders && !auth.HasCookies {
		recommendations = append(recommendations, "no authentication material found, authenticated workflows need the login traffic in the capture")
	}
	for _, info := range auth.ExpiredJWTs() {
		issues = append(issues, fmt.Sprintf("JWT in %s expired at %s", info.Header, info.ExpiresAt.Format("2006-01-02 15:04:05 MST")))
		recommendations = append(recommendations, "re-capture to refresh the expired token before replaying the workflow")
	}
	return issues, recommendations
}
