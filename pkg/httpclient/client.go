// Package httpclient is the outbound HTTP layer shared by fetchers, the scorer and the
// remote query source. Every request carries the radar user agent and bodies are encoded
// with goccy/go-json.
package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
)

// UserAgent identifies radar traffic to upstream services.
const UserAgent = "nation-radar/1.0"

// Response is the part of an HTTP response callers inspect.
type Response interface {
	Body() []byte
	StatusCode() int
	Header(name string) string
}

// Client issues the two request shapes the radar needs.
type Client interface {
	Get(ctx context.Context, url string, params, headers map[string]string) (Response, error)
	PostJSON(ctx context.Context, url string, body any, headers map[string]string) (Response, error)
}

// RestyClient implements Client on top of resty.
type RestyClient struct {
	client *resty.Client
}

func NewRestyClient(timeout time.Duration) *RestyClient {
	return &RestyClient{client: NewRestyHTTPClient(timeout)}
}

// NewRestyHTTPClient returns the configured resty client itself, for callers that need
// verbs or options beyond Client.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", UserAgent).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
}

func (r *RestyClient) Get(ctx context.Context, url string, params, headers map[string]string) (Response, error) {
	return r.do(ctx, resty.MethodGet, url, r.client.R().SetQueryParams(params), headers)
}

func (r *RestyClient) PostJSON(ctx context.Context, url string, body any, headers map[string]string) (Response, error) {
	req := r.client.R().SetHeader("Content-Type", "application/json").SetBody(body)
	return r.do(ctx, resty.MethodPost, url, req, headers)
}

func (r *RestyClient) do(ctx context.Context, method, url string, req *resty.Request, headers map[string]string) (Response, error) {
	resp, err := req.SetContext(ctx).SetHeaders(headers).Execute(method, url)
	if err != nil {
		return nil, err
	}
	return restyResponse{resp}, nil
}

type restyResponse struct{ r *resty.Response }

func (r restyResponse) Body() []byte              { return r.r.Body() }
func (r restyResponse) StatusCode() int           { return r.r.StatusCode() }
func (r restyResponse) Header(name string) string { return r.r.Header().Get(name) }
