package proxy

import (
	"encoding/json"
	"strings"
)

// Request is one proxy call as received on POST /api/proxy.
type Request struct {
	ServerID string            `json:"server_id,omitempty"`
	Endpoint string            `json:"endpoint,omitempty"`
	Method   string            `json:"method,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Response is the upstream answer handed back untouched.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// OK reports a 2xx upstream status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

// normalizeMethod upper-cases m and defaults it to GET.
func normalizeMethod(m string) (string, bool) {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return "GET", true
	}
	return m, allowedMethods[m]
}

// hasBody reports whether raw carries a payload worth sending; a literal
// JSON null counts as absent.
func hasBody(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
