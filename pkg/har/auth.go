package har

import (
	"sort"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/harvest-ai/harvest/pkg/curl"
)

// Authentication mechanisms recognized in a capture.
const (
	AuthTypeBearer = "bearer"
	AuthTypeJWT    = "jwt"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "api-key"
	AuthTypeCSRF   = "csrf"
	AuthTypeCookie = "cookie"
)

const tokenSampleLength = 20

// JWTInfo describes one JWT found in the capture. Tokens are decoded
// without signature verification, the claims are informational only.
type JWTInfo struct {
	Header    string    `json:"header"`
	Subject   string    `json:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Expired   bool      `json:"expired"`
}

// AuthAnalysis summarizes the authentication material present in a
// capture.
type AuthAnalysis struct {
	HasAuthHeaders bool      `json:"has_auth_headers"`
	HasCookies     bool      `json:"has_cookies"`
	HasTokens      bool      `json:"has_tokens"`
	AuthTypes      []string  `json:"auth_types,omitempty"`
	TokenSamples   []string  `json:"token_samples,omitempty"`
	JWTs           []JWTInfo `json:"jwts,omitempty"`
}

// AnalyzeAuth scans requests and the cookie jar for authentication
// material: bearer and basic credentials, API key headers, CSRF
// tokens, and cookies. Bearer tokens shaped like JWTs are decoded
// for expiry insight.
func AnalyzeAuth(requests []*curl.Request, jar *CookieJar) AuthAnalysis {
	analysis := AuthAnalysis{}
	types := make(map[string]bool)
	samples := make(map[string]bool)
	seenJWTs := make(map[string]bool)

	addSample := func(token string) {
		if token == "" {
			return
		}
		analysis.HasTokens = true
		samples[truncateToken(token)] = true
	}

	for _, req := range requests {
		for _, header := range req.Headers.Sorted() {
			name := strings.ToLower(header.Name)
			for _, value := range header.Values {
				switch {
				case name == "authorization":
					analysis.HasAuthHeaders = true
					scheme, credentials, _ := strings.Cut(value, " ")
					switch strings.ToLower(scheme) {
					case "bearer":
						types[AuthTypeBearer] = true
						addSample(credentials)
						if info, ok := inspectJWT(header.Name, credentials); ok {
							types[AuthTypeJWT] = true
							if !seenJWTs[credentials] {
								seenJWTs[credentials] = true
								analysis.JWTs = append(analysis.JWTs, info)
							}
						}
					case "basic":
						types[AuthTypeBasic] = true
					default:
						addSample(value)
					}
				case name == "cookie":
					analysis.HasCookies = true
					types[AuthTypeCookie] = true
				case strings.Contains(name, "csrf-token") || strings.Contains(name, "xsrf-token"):
					analysis.HasAuthHeaders = true
					types[AuthTypeCSRF] = true
					addSample(value)
				case strings.Contains(name, "api-key") || strings.Contains(name, "auth-token") || strings.Contains(name, "access-token"):
					analysis.HasAuthHeaders = true
					types[AuthTypeAPIKey] = true
					addSample(value)
				}
			}
		}
	}

	if jar.Len() > 0 {
		analysis.HasCookies = true
		types[AuthTypeCookie] = true
	}

	analysis.AuthTypes = sortedKeys(types)
	analysis.TokenSamples = sortedKeys(samples)
	return analysis
}

// ExpiredJWTs returns the JWTs in the analysis that carry an
// expiration in the past.
func (a AuthAnalysis) ExpiredJWTs() []JWTInfo {
	var expired []JWTInfo
	for _, info := range a.JWTs {
		if info.Expired {
			expired = append(expired, info)
		}
	}
	return expired
}

// inspectJWT decodes a bearer credential as a JWT without verifying
// its signature. Returns false when the credential is not a JWT.
func inspectJWT(headerName, credential string) (JWTInfo, bool) {
	if strings.Count(credential, ".") != 2 {
		return JWTInfo{}, false
	}
	token, err := jwt.Parse([]byte(credential), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return JWTInfo{}, false
	}
	info := JWTInfo{
		Header:    headerName,
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		ExpiresAt: token.Expiration(),
	}
	info.Expired = !info.ExpiresAt.IsZero() && info.ExpiresAt.Before(time.Now())
	return info, true
}

func truncateToken(token string) string {
	if len(token) <= tokenSampleLength {
		return token
	}
	return token[:tokenSampleLength] + "..."
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
