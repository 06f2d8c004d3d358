package telemetry

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "clickchain/pkg/errors"
)

// Payload is the type-specific body of an event. The concrete type is one of
// NetworkRequest, Click, Keydown, Failure or Generic.
type Payload interface {
	Kind() EventType
	payload()
}

// Header is a single HTTP header line
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NetworkRequest is the payload of a network-request event
type NetworkRequest struct {
	URL             string   `json:"url"`
	Method          string   `json:"method"`
	Status          int      `json:"status"`
	StatusText      string   `json:"statusText"`
	MimeType        string   `json:"mimeType"`
	DurationMs      float64  `json:"time"`
	Headers         []Header `json:"headers"`
	ResponseHeaders []Header `json:"responseHeaders"`
	PostData        string   `json:"postData"`
	ResponseBody    string   `json:"responseBody"`
}

// Click is the payload of a click event
type Click struct {
	Tag   string `json:"tag"`
	ID    string `json:"id"`
	Class string `json:"class"`
	Text  string `json:"text"`
}

// KeyTarget describes the element that received a key press
type KeyTarget struct {
	Tag  string `json:"tag"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Keydown is the payload of a keydown event
type Keydown struct {
	Key    string    `json:"key"`
	Target KeyTarget `json:"target"`
}

// Failure is the payload of an error event
type Failure struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	Stack   string `json:"stack"`
}

// Generic carries the raw data of any other event type, and of known types
// whose data did not decode.
type Generic struct {
	Type EventType
	Data map[string]any
}

func (NetworkRequest) Kind() EventType { return TypeNetworkRequest }
func (Click) Kind() EventType          { return TypeClick }
func (Keydown) Kind() EventType        { return TypeKeydown }
func (Failure) Kind() EventType        { return TypeError }
func (g Generic) Kind() EventType      { return g.Type }

func (NetworkRequest) payload() {}
func (Click) payload()          {}
func (Keydown) payload()        {}
func (Failure) payload()        {}
func (Generic) payload()        {}

// ParseURL parses the request URL. Only absolute URLs with a hostname count.
func (r NetworkRequest) ParseURL() (*url.URL, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, pkgerrors.NewMalformedURLError(r.URL, nil)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, pkgerrors.NewMalformedURLError(r.URL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, pkgerrors.NewMalformedURLError(r.URL, nil)
	}
	return u, nil
}

// Host returns the request hostname, or an empty string for a malformed URL.
func (r NetworkRequest) Host() string {
	u, err := r.ParseURL()
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsPreflight reports whether the request is a CORS preflight
func (r NetworkRequest) IsPreflight() bool {
	return strings.EqualFold(r.Method, "OPTIONS")
}

// StatusClass buckets an HTTP status into 2xx, 3xx, 4xx or 5xx.
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return ""
	}
}

// DecodePayload turns an event's data bag into its typed payload. A field
// whose value has the wrong JSON type is left zero and the remaining fields
// still decode. Numeric strings are accepted for a request's status and time.
func DecodePayload(eventType EventType, data map[string]any) Payload {
	var (
		p   Payload
		err error
	)
	switch eventType {
	case TypeNetworkRequest:
		var v NetworkRequest
		err = decodeInto(data, &v)
		if v.Status == 0 {
			if f, ok := numberField(data, "status"); ok {
				v.Status = int(f)
			}
		}
		if v.DurationMs == 0 {
			if f, ok := numberField(data, "time"); ok {
				v.DurationMs = f
			}
		}
		p = v
	case TypeClick:
		var v Click
		err = decodeInto(data, &v)
		p = v
	case TypeKeydown:
		var v Keydown
		err = decodeInto(data, &v)
		p = v
	case TypeError:
		var v Failure
		err = decodeInto(data, &v)
		p = v
	default:
		return Generic{Type: eventType, Data: data}
	}
	if err != nil {
		return Generic{Type: eventType, Data: data}
	}
	return p
}

// decodeInto fills target from data. Type mismatches on individual fields are
// not errors: encoding/json skips the field and keeps decoding the rest.
func decodeInto(data map[string]any, target any) error {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	err = json.Unmarshal(raw, target)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
