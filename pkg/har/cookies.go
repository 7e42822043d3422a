package har

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// CookieEntry is one cookie with its optional attributes. In a cookie
// bundle file a bare string value is shorthand for {"value": ...}.
type CookieEntry struct {
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Expires  string `json:"expires,omitempty"`
}

// CookieJar holds cookies by name. Iteration helpers return names in
// sorted order so lookups and rendering are deterministic.
type CookieJar struct {
	entries map[string]CookieEntry
}

func NewCookieJar() *CookieJar {
	return &CookieJar{entries: make(map[string]CookieEntry)}
}

func (j *CookieJar) Set(name string, entry CookieEntry) {
	j.entries[name] = entry
}

func (j *CookieJar) Get(name string) (CookieEntry, bool) {
	entry, ok := j.entries[name]
	return entry, ok
}

func (j *CookieJar) Len() int {
	if j == nil {
		return 0
	}
	return len(j.entries)
}

// Names returns all cookie names in sorted order.
func (j *CookieJar) Names() []string {
	if j == nil {
		return nil
	}
	names := make([]string, 0, len(j.entries))
	for name := range j.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindByValue returns the name of the first cookie, in sorted name
// order, whose value equals the given string exactly.
func (j *CookieJar) FindByValue(value string) (string, bool) {
	if j == nil || value == "" {
		return "", false
	}
	for _, name := range j.Names() {
		if j.entries[name].Value == value {
			return name, true
		}
	}
	return "", false
}

// Merge copies every cookie from other into the jar, overwriting
// entries with the same name.
func (j *CookieJar) Merge(other *CookieJar) {
	if other == nil {
		return
	}
	for _, name := range other.Names() {
		j.entries[name] = other.entries[name]
	}
}

// Header renders the jar as a Cookie header value, names sorted.
func (j *CookieJar) Header() string {
	names := j.Names()
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+j.entries[name].Value)
	}
	return strings.Join(pairs, "; ")
}

// LoadCookieFile reads a cookie bundle: a JSON object keyed by cookie
// name whose values are either literal strings or attribute objects.
func LoadCookieFile(path string) (*CookieJar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file %s: %w", path, err)
	}
	jar, err := ParseCookieBundle(data)
	if err != nil {
		return nil, fmt.Errorf("cookie file %s: %w", path, err)
	}
	return jar, nil
}

// ParseCookieBundle parses the cookie bundle format from memory.
func ParseCookieBundle(data []byte) (*CookieJar, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid cookie bundle: %w", err)
	}

	jar := NewCookieJar()
	for name, value := range raw {
		var literal string
		if err := json.Unmarshal(value, &literal); err == nil {
			jar.Set(name, CookieEntry{Value: literal})
			continue
		}
		var entry CookieEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, fmt.Errorf("invalid cookie bundle: cookie %q is neither a string nor an object", name)
		}
		jar.Set(name, entry)
	}
	return jar, nil
}

// parseCookieHeader splits a Cookie header value into name/value
// pairs. Malformed fragments without an equals sign are skipped.
func parseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || name == "" {
			continue
		}
		cookies[name] = value
	}
	return cookies
}
