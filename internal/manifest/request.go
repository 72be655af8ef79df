package manifest

import (
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"
)

// RequestType labels what a request fetches.
type RequestType string

// RequestTypeMPD is the only request type issued by the manifest loader.
const RequestTypeMPD RequestType = "MPD"

// Request describes a single manifest fetch. It is built once per load call
// and passed by value afterwards.
type Request struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Type            RequestType       `json:"type"`
	ServiceLocation string            `json:"service_location,omitempty"`
	QueryParams     map[string]string `json:"query_params,omitempty"`
	StartDate       time.Time         `json:"start_date"`
}

// RequestOption customises a Request.
type RequestOption func(*Request)

// WithServiceLocation tags the request with the service location it targets.
func WithServiceLocation(serviceLocation string) RequestOption {
	return func(r *Request) {
		r.ServiceLocation = serviceLocation
	}
}

// WithRequestID sets the request ID. An empty id keeps the generated one.
func WithRequestID(id string) RequestOption {
	return func(r *Request) {
		if id != "" {
			r.ID = id
		}
	}
}

// WithQueryParams adds query parameters appended to the URL when fetched.
func WithQueryParams(params map[string]string) RequestOption {
	return func(r *Request) {
		if len(params) > 0 {
			r.QueryParams = maps.Clone(params)
		}
	}
}

// WithStartDate overrides the request start time.
func WithStartDate(t time.Time) RequestOption {
	return func(r *Request) {
		r.StartDate = t
	}
}

// NewRequest builds a manifest request for rawURL. The start date defaults to
// now when no option sets it.
func NewRequest(rawURL string, opts ...RequestOption) Request {
	r := Request{
		ID:   uuid.New().String(),
		URL:  rawURL,
		Type: RequestTypeMPD,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.StartDate.IsZero() {
		r.StartDate = time.Now()
	}
	return r
}

// FetchURL returns the URL with QueryParams merged into its query string.
// Keys are added in sorted order so the result is stable.
func (r Request) FetchURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	q := u.Query()
	for _, k := range slices.Sorted(maps.Keys(r.QueryParams)) {
		q.Set(k, r.QueryParams[k])
	}
	u.RawQuery = q.Encode()
	return u.String()
}
