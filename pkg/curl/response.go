package curl

import (
	"encoding/json"
	"strings"
	"sync"
)

// Response is a captured HTTP response. The JSON tree is parsed lazily
// on first access and only for JSON-like content types.
type Response struct {
	Status     int
	StatusText string
	Headers    *Headers
	BodyText   string

	jsonOnce sync.Once
	jsonTree interface{}
	jsonOK   bool
}

func NewResponse(status int, statusText string) *Response {
	return &Response{
		Status:     status,
		StatusText: statusText,
		Headers:    NewHeaders(),
	}
}

// ContentType returns the media type without parameters.
func (r *Response) ContentType() string {
	ct, _ := r.Headers.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsJSON reports whether the content type declares JSON.
func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/json")
}

// IsHTML reports whether the response is a document. Document responses
// are not treated as data sources during provenance search.
func (r *Response) IsHTML() bool {
	return strings.Contains(r.ContentType(), "text/html")
}

// JSON returns the parsed body tree when the content type is JSON-like
// and the body parses. Parsing happens once; failures degrade to text.
func (r *Response) JSON() (interface{}, bool) {
	r.jsonOnce.Do(func() {
		if !r.IsJSON() || r.BodyText == "" {
			return
		}
		var tree interface{}
		if err := json.Unmarshal([]byte(r.BodyText), &tree); err != nil {
			return
		}
		r.jsonTree = tree
		r.jsonOK = true
	})
	return r.jsonTree, r.jsonOK
}

// Contains reports whether value appears in the body text or any
// header value. This is the provenance-search primitive.
func (r *Response) Contains(value string) bool {
	if value == "" {
		return false
	}
	if strings.Contains(r.BodyText, value) {
		return true
	}
	if r.Headers != nil {
		for _, header := range r.Headers.Sorted() {
			for _, v := range header.Values {
				if strings.Contains(v, value) {
					return true
				}
			}
		}
	}
	return false
}
