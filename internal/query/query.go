// Package query builds request descriptors for the exchange rate data source.
package query

import (
	"net/url"
	"strings"
	"time"

	"ratefeed/internal/currency"
)

// Layout is the fixed UTC text format used in both requests and returned rows.
// Go layouts always use English month and day names, so the host locale never leaks in.
const Layout = "Mon, 02 Jan 2006 15:04:05 -0700"

// DefaultResource is the resource identifier of the exchange rate provider.
const DefaultResource = "content://com.example.divisawapi.divisasprovider/exchange_rates"

// Query parameter names understood by the source.
const (
	ParamCurrency  = "currency"
	ParamStartDate = "startDate"
	ParamEndDate   = "endDate"
)

// FormatUTC renders utcMillis in Layout with a +0000 zone marker.
func FormatUTC(utcMillis int64) string {
	return time.UnixMilli(utcMillis).UTC().Format(Layout)
}

// ParseUTC parses a Layout string and returns the instant in UTC.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Param is one query parameter. Params keep their insertion order.
type Param struct {
	Key   string
	Value string
}

// Request is an opaque descriptor of one source query.
type Request struct {
	Resource string
	Params   []Param
}

// Get returns the first value for key, or "".
func (r Request) Get(key string) string {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Encode renders the params as a query string in their original order.
func (r Request) Encode() string {
	var b strings.Builder
	for i, p := range r.Params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// URI returns the resource with the encoded query string appended.
func (r Request) URI() string {
	if len(r.Params) == 0 {
		return r.Resource
	}
	return r.Resource + "?" + r.Encode()
}

// Builder turns a selection into a Request against a fixed resource.
type Builder struct {
	Resource string
}

// NewBuilder creates a Builder; an empty resource selects DefaultResource.
func NewBuilder(resource string) Builder {
	if resource == "" {
		resource = DefaultResource
	}
	return Builder{Resource: resource}
}

// Build formats both bounds and returns the request. It cannot fail.
func (b Builder) Build(code currency.Code, utcStartMillis, utcEndMillis int64) Request {
	return Request{
		Resource: b.Resource,
		Params: []Param{
			{Key: ParamCurrency, Value: string(code)},
			{Key: ParamStartDate, Value: FormatUTC(utcStartMillis)},
			{Key: ParamEndDate, Value: FormatUTC(utcEndMillis)},
		},
	}
}
