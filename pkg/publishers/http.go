package publishers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"

	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/pkg/httpclient"
)

const (
	httpMaxRetries = 2
	httpRetryDelay = 250 * time.Millisecond
)

// httpPublisher posts each event as JSON to a webhook. Transport errors and 5xx responses
// are retried; 4xx responses are not.
type httpPublisher struct {
	id       string
	method   string
	url      string
	headers  map[string]string
	client   *resty.Client
	executor failsafe.Executor[*resty.Response]
	log      Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.HTTP.Method))
	if method == "" {
		method = httpDefaultMethod
	}
	timeout := cfg.HTTP.TimeoutSeconds
	if timeout <= 0 {
		timeout = httpDefaultTimeoutSeconds
	}

	retry := retrypolicy.NewBuilder[*resty.Response]().
		WithBackoff(httpRetryDelay, 4*httpRetryDelay).
		WithMaxRetries(httpMaxRetries).
		HandleIf(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		}).
		Build()

	return &httpPublisher{
		id:       cfg.ID,
		method:   method,
		url:      cfg.HTTP.URL,
		headers:  cfg.HTTP.Headers,
		client:   httpclient.NewRestyHTTPClient(time.Duration(timeout) * time.Second),
		executor: failsafe.With[*resty.Response](retry),
		log:      logger.Ensure(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := h.executor.WithContext(ctx).Get(func() (*resty.Response, error) {
		return h.client.R().
			SetContext(ctx).
			SetHeaders(h.headers).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Radar-Run-Id", evt.RunID).
			SetHeader("X-Radar-Keyword", evt.Keyword).
			SetHeader("X-Radar-Post-Id", evt.Post.ID).
			SetBody(body).
			Execute(h.method, h.url)
	})
	if resp != nil && resp.IsError() {
		h.log.WarnObj("http publisher rejected event", "publisher_http_error", map[string]any{
			"publisher_id": h.id,
			"status":       resp.StatusCode(),
			"post_id":      evt.Post.ID,
		})
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
	}
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	return nil
}

func bodySnippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
