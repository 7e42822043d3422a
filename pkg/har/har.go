// Package har loads HAR 1.2 captures and turns them into the filtered,
// normalized request sequence the analysis pipeline works on: auth
// headers preserved, analytics traffic dropped, query parameters
// unioned, bodies structured, plus a validation report grading whether
// the capture can support dependency analysis at all.
package har

import "errors"

// ErrInvalidFormat means the document is not a HAR 1.2 archive
// (missing log.entries).
var ErrInvalidFormat = errors.New("invalid HAR format: missing log.entries")

// ErrEmptyHar means no relevant requests survived filtering. Sessions
// cannot start on an empty capture.
var ErrEmptyHar = errors.New("HAR contains no relevant requests")

// Wire structures for the HAR 1.2 JSON document. Only the fields the
// pipeline reads are declared.

type document struct {
	Log *documentLog `json:"log"`
}

type documentLog struct {
	Entries []entry `json:"entries"`
}

type entry struct {
	StartedDateTime string        `json:"startedDateTime"`
	Request         entryRequest  `json:"request"`
	Response        entryResponse `json:"response"`
}

type entryRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	Headers     []nameValue  `json:"headers"`
	QueryString []nameValue  `json:"queryString"`
	Cookies     []wireCookie `json:"cookies"`
	PostData    *postData    `json:"postData"`
}

type entryResponse struct {
	Status     int          `json:"status"`
	StatusText string       `json:"statusText"`
	Headers    []nameValue  `json:"headers"`
	Cookies    []wireCookie `json:"cookies"`
	Content    *content     `json:"content"`
}

type nameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type postData struct {
	MimeType string      `json:"mimeType"`
	Text     string      `json:"text"`
	Params   []nameValue `json:"params"`
}

type content struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type wireCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  string `json:"expires"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}
