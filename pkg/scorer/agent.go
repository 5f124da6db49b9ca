package scorer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/nationradar/nation-radar/pkg/httpclient"
)

const DefaultBaseURL = "https://open.service.crestal.network/v1"

// Options configures an AgentScorer.
type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MinInterval time.Duration // minimum spacing between scoring calls
	MaxRetries  int
	RetryDelay  time.Duration // initial backoff, doubled per retry
	MaxDelay    time.Duration
	// BreakerDelay is how long the circuit stays open after repeated failures.
	BreakerDelay time.Duration
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.MaxDelay < o.RetryDelay {
		o.MaxDelay = 8 * o.RetryDelay
	}
	if o.BreakerDelay <= 0 {
		o.BreakerDelay = 30 * time.Second
	}
	return o
}

// AgentScorer scores posts by opening a chat with the agent and sending the formatted post
// as one message. Calls are throttled and retried on transport errors, 429 and 5xx.
type AgentScorer struct {
	opts     Options
	client   httpclient.Client
	limiter  *rate.Limiter
	executor failsafe.Executor[httpclient.Response]
	breaker  circuitbreaker.CircuitBreaker[httpclient.Response]
}

// NewAgentScorer builds a scorer using a resty-backed client.
func NewAgentScorer(opts Options) *AgentScorer {
	opts = opts.withDefaults()
	return newAgentScorer(opts, httpclient.NewRestyClient(opts.Timeout))
}

func newAgentScorer(opts Options, client httpclient.Client) *AgentScorer {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	retry := retrypolicy.NewBuilder[httpclient.Response]().
		WithBackoff(opts.RetryDelay, opts.MaxDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()

	breaker := circuitbreaker.NewBuilder[httpclient.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(opts.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(shouldRetry).
		Build()

	return &AgentScorer{
		opts:     opts,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		executor: failsafe.With[httpclient.Response](retry, breaker),
		breaker:  breaker,
	}
}

func shouldRetry(resp httpclient.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type chatResponse struct {
	ID string `json:"id"`
}

type chatMessage struct {
	Message string `json:"message"`
}

// Score returns the normalized score the agent assigns to formatted.
// While the circuit is open it fails immediately without waiting on the rate limiter.
func (s *AgentScorer) Score(ctx context.Context, formatted string) (float64, error) {
	if s.BreakerOpen() {
		return 0, fmt.Errorf("%w: %w", ErrScoring, circuitbreaker.ErrOpen)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limiter: %w", ErrScoring, err)
	}

	body, err := s.post(ctx, s.opts.BaseURL+"/chats", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: create chat: %w", ErrScoring, err)
	}
	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return 0, fmt.Errorf("%w: decode chat: %w", ErrScoring, err)
	}
	if chat.ID == "" {
		return 0, fmt.Errorf("%w: chat response carried no id", ErrScoring)
	}

	body, err = s.post(ctx, fmt.Sprintf("%s/chats/%s/messages", s.opts.BaseURL, chat.ID), chatMessage{Message: formatted})
	if err != nil {
		return 0, fmt.Errorf("%w: send message: %w", ErrScoring, err)
	}

	return NormalizeScore(ExtractScore(lastMessage(body))), nil
}

func (s *AgentScorer) post(ctx context.Context, url string, payload any) ([]byte, error) {
	headers := map[string]string{}
	if s.opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.opts.APIKey
	}

	resp, err := s.executor.WithContext(ctx).Get(func() (httpclient.Response, error) {
		return s.client.PostJSON(ctx, url, payload, headers)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty response")
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, fmt.Errorf("status %d: %s", code, truncate(string(resp.Body()), 200))
	}
	return resp.Body(), nil
}

// lastMessage reads the agent reply, which is either a list of messages or a single one.
func lastMessage(body []byte) string {
	var list []chatMessage
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return list[len(list)-1].Message
	}
	var single chatMessage
	if err := json.Unmarshal(body, &single); err == nil {
		return single.Message
	}
	return ""
}

// BreakerOpen reports whether the circuit breaker is currently rejecting calls.
func (s *AgentScorer) BreakerOpen() bool {
	return s.breaker.IsOpen()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
