package recording

import (
	"bytes"
	"encoding/json"
	"net/url"
	"reflect"
	"strings"
	"time"
)

// Recording is the on-disk representation of one captured exchange.
type Recording struct {
	HTTPMethod string `json:"httpMethod"`
	URI        string `json:"uri"`
	Request    any    `json:"request"`
	HTTPStatus int    `json:"httpStatus"`
	Response   any    `json:"response"`
}

// Capture is an exchange handed to Store.Record.
type Capture struct {
	Method string
	// URI is the request target as sent by the client: escaped path plus
	// optional query.
	URI          string
	RequestBody  []byte
	StatusCode   int
	ResponseBody []byte
	// Time defaults to now.
	Time time.Time
}

// Recording converts the capture into its stored form.
func (c Capture) Recording() *Recording {
	var req any
	if len(c.RequestBody) > 0 {
		req = decodeBody(c.RequestBody)
	}
	return &Recording{
		HTTPMethod: strings.ToUpper(c.Method),
		URI:        c.URI,
		Request:    req,
		HTTPStatus: c.StatusCode,
		Response:   decodeBody(c.ResponseBody),
	}
}

// Equivalent reports whether r and o describe the same exchange: equal uri,
// request and response. Status is not part of the comparison.
func (r *Recording) Equivalent(o *Recording) bool {
	return r.URI == o.URI &&
		reflect.DeepEqual(r.Request, o.Request) &&
		reflect.DeepEqual(r.Response, o.Response)
}

// Body returns the response body as bytes and whether it is JSON.
func (r *Recording) Body() ([]byte, bool) {
	switch v := r.Response.(type) {
	case nil:
		return nil, false
	case string:
		return []byte(v), isJSONString(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return data, true
	}
}

// Key is the identity of a recording within its directory.
type Key struct {
	Method   string
	HasQuery bool
	HasBody  bool
}

// Prefix returns the file name prefix shared by every recording of k.
func (k Key) Prefix() string {
	q, b := "nq", "nb"
	if k.HasQuery {
		q = "qp"
	}
	if k.HasBody {
		b = "bp"
	}
	return strings.ToUpper(k.Method) + "_" + q + "_" + b + "_"
}

// location splits a request target into its decoded path and query flag.
func location(uri string) (path string, hasQuery bool, err error) {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return "", false, err
	}
	return u.Path, u.RawQuery != "", nil
}

// Timestamp formats t as YYYYMMDD_HHMMSS_mmm in UTC.
func Timestamp(t time.Time) string {
	return strings.Replace(t.UTC().Format("20060102_150405.000"), ".", "_", 1)
}

// decodeBody parses data as JSON, falling back to the raw string. Numbers
// stay json.Number so that stored and fresh values compare exactly. A body
// that is a JSON string literal is kept verbatim, quotes included, so replay
// returns the same bytes.
func decodeBody(data []byte) any {
	if len(data) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(data)
	}
	if _, ok := v.(string); ok {
		return string(data)
	}
	return v
}

// isJSONString reports whether s is exactly one JSON string literal.
func isJSONString(s string) bool {
	t := strings.TrimSpace(s)
	if len(t) < 2 || t[0] != '"' {
		return false
	}
	var v string
	return json.Unmarshal([]byte(t), &v) == nil
}

func unmarshalRecording(data []byte) (*Recording, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r Recording
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func marshalRecording(r *Recording) ([]byte, error) {
	return marshalIndented(r)
}

func marshalMessage(m *MessageRecord) ([]byte, error) {
	return marshalIndented(m)
}

func marshalIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
