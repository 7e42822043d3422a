package curl

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Parse reconstructs a Request from a curl command. It understands the
// subset of flags Render emits plus the common aliases found in
// browser-exported commands (-d variants, -b, -u, -A, -e). Unknown
// boolean flags are ignored.
func Parse(curlText string) (*Request, error) {
	tokens, err := tokenize(curlText)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 || tokens[0] != "curl" {
		return nil, fmt.Errorf("not a curl command")
	}

	req := &Request{
		Headers:     NewHeaders(),
		QueryParams: url.Values{},
	}

	var rawURL, data string
	var hasData, hasMethod bool

	next := func(i *int, flag string) (string, error) {
		*i++
		if *i >= len(tokens) {
			return "", fmt.Errorf("flag %s is missing its value", flag)
		}
		return tokens[*i], nil
	}

	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "-X", "--request":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			req.Method = strings.ToUpper(value)
			hasMethod = true

		case "-H", "--header":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			name, headerValue, found := strings.Cut(value, ":")
			if !found {
				return nil, fmt.Errorf("malformed header %q", value)
			}
			req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(headerValue))

		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			data = value
			hasData = true

		case "-b", "--cookie":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			req.Headers.Add("Cookie", value)

		case "-u", "--user":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			req.Headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(value)))

		case "-A", "--user-agent":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			req.Headers.Set("User-Agent", value)

		case "-e", "--referer":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			req.Headers.Set("Referer", value)

		case "--url":
			value, err := next(&i, tok)
			if err != nil {
				return nil, err
			}
			rawURL = value

		case "-o", "--output", "-m", "--max-time", "--connect-timeout", "--retry":
			if _, err := next(&i, tok); err != nil {
				return nil, err
			}

		default:
			if strings.HasPrefix(tok, "-") {
				continue
			}
			if rawURL == "" {
				rawURL = tok
			}
		}
	}

	if rawURL == "" {
		return nil, fmt.Errorf("curl command has no URL")
	}
	req.URL = rawURL
	if u, err := url.Parse(rawURL); err == nil {
		for key, values := range u.Query() {
			req.QueryParams[key] = values
		}
	}

	if !hasMethod {
		// curl's own default: GET, or POST once a body is supplied.
		if hasData {
			req.Method = "POST"
		} else {
			req.Method = "GET"
		}
	}

	if hasData {
		contentType, _ := req.Headers.Get("Content-Type")
		req.Body = parseBody(data, contentType)
	}

	return req, nil
}

// parseBody interprets the --data payload. The declared content type
// wins; without one, JSON is attempted before falling back to raw text.
func parseBody(data, contentType string) *Body {
	ct := strings.ToLower(contentType)

	if strings.Contains(ct, "application/x-www-form-urlencoded") {
		if form, err := url.ParseQuery(data); err == nil {
			return &Body{Kind: BodyForm, Form: form}
		}
		return &Body{Kind: BodyRaw, Raw: data}
	}

	if ct == "" || strings.Contains(ct, "json") {
		var tree interface{}
		if err := json.Unmarshal([]byte(data), &tree); err == nil {
			return &Body{Kind: BodyJSON, JSON: tree, Raw: data}
		}
	}

	return &Body{Kind: BodyRaw, Raw: data}
}

// tokenize splits a command line with POSIX quoting: single quotes are
// literal, double quotes honor backslash escapes, and a backslash
// before a newline continues the line.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				i++
				continue
			}
			switch s[i+1] {
			case '\n':
				i += 2
			case '\r':
				if i+2 < len(s) && s[i+2] == '\n' {
					i += 3
				} else {
					i += 2
				}
			default:
				current.WriteByte(s[i+1])
				inToken = true
				i += 2
			}

		case c == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated single quote")
			}
			current.WriteString(s[i+1 : i+1+end])
			inToken = true
			i += end + 2

		case c == '"':
			i++
			closed := false
			for i < len(s) {
				if s[i] == '"' {
					closed = true
					i++
					break
				}
				if s[i] == '\\' && i+1 < len(s) {
					switch s[i+1] {
					case '"', '\\', '$', '`':
						current.WriteByte(s[i+1])
						i += 2
						continue
					case '\n':
						i += 2
						continue
					}
				}
				current.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated double quote")
			}
			inToken = true

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
			i++

		default:
			current.WriteByte(c)
			inToken = true
			i++
		}
	}
	flush()

	return tokens, nil
}
