package scorer

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractScore(t *testing.T) {
	cases := map[string]float64{
		"Score: 1.5":              1.5,
		"I'd rate this 2":         2,
		"-5 is my verdict":        -5,
		"Score: 3.9 out of 2":     3.9,
		"no number in this reply": 0,
		"":                        0,
		"first 0.75 then 1.9":     0.75,
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractScore(in), in)
	}
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeScore(-5))
	assert.Equal(t, 2.0, NormalizeScore(3.9))
	assert.Equal(t, 1.25, NormalizeScore(1.25))
	assert.Equal(t, 0.0, NormalizeScore(math.NaN()))
	assert.Equal(t, 0.0, NormalizeScore(math.Inf(1)))
	assert.Equal(t, 2.0, NormalizeScore(ExtractScore("Score: 3.9")))
}

// agentServer fakes the chat API. reply renders the message endpoint body.
func agentServer(t *testing.T, reply func(call int32) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/chats":
			if r.Header.Get("Authorization") != "Bearer key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"id":"chat-1"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/chats/chat-1/messages":
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "Engagement: Likes") {
				t.Errorf("unexpected message body %s", body)
			}
			code, out := reply(calls.Add(1))
			w.WriteHeader(code)
			_, _ = io.WriteString(w, out)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testScorer(url string) *AgentScorer {
	opts := Options{
		BaseURL:    url,
		APIKey:     "key",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}.withDefaults()
	return NewAgentScorer(opts)
}

const prompt = "gm nation\n\nEngagement: Likes: 1, Retweets: 0, Replies: 0, Views: 0, Bookmarks: 0, Quote Tweets: 0"

func TestAgentScorerReadsLastMessageOfList(t *testing.T) {
	srv, _ := agentServer(t, func(int32) (int, string) {
		return http.StatusOK, `[{"message":"gm nation"},{"message":"Score: 1.4"}]`
	})

	score, err := testScorer(srv.URL).Score(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, 1.4, score)
}

func TestAgentScorerReadsSingleMessageAndClamps(t *testing.T) {
	srv, _ := agentServer(t, func(int32) (int, string) {
		return http.StatusOK, `{"message":"Score: 3.9"}`
	})

	score, err := testScorer(srv.URL).Score(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, 2.0, score)
}

func TestAgentScorerRetriesServerErrors(t *testing.T) {
	srv, calls := agentServer(t, func(call int32) (int, string) {
		if call == 1 {
			return http.StatusServiceUnavailable, `busy`
		}
		return http.StatusOK, `{"message":"0.8"}`
	})

	score, err := testScorer(srv.URL).Score(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAgentScorerFailsWithErrScoring(t *testing.T) {
	srv, calls := agentServer(t, func(int32) (int, string) {
		return http.StatusInternalServerError, `boom`
	})

	_, err := testScorer(srv.URL).Score(context.Background(), prompt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScoring))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAgentScorerDoesNotRetryClientErrors(t *testing.T) {
	srv, _ := agentServer(t, nil)
	s := testScorer(srv.URL)
	s.opts.APIKey = "wrong"

	_, err := s.Score(context.Background(), prompt)
	assert.ErrorIs(t, err, ErrScoring)
}

func TestAgentScorerRateLimitHonoursCancellation(t *testing.T) {
	srv, _ := agentServer(t, func(int32) (int, string) { return http.StatusOK, `{"message":"1"}` })
	opts := Options{BaseURL: srv.URL, APIKey: "key", MinInterval: time.Hour}.withDefaults()
	s := NewAgentScorer(opts)

	_, err := s.Score(context.Background(), prompt)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Score(ctx, prompt)
	assert.ErrorIs(t, err, ErrScoring)
}

func TestAgentScorerFailsFastWhileCircuitOpen(t *testing.T) {
	srv, calls := agentServer(t, func(int32) (int, string) { return http.StatusOK, `{"message":"1"}` })
	s := testScorer(srv.URL)
	s.breaker.Open()
	require.True(t, s.BreakerOpen())

	_, err := s.Score(context.Background(), prompt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScoring)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(0), calls.Load())

	s.breaker.Close()
	score, err := s.Score(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}
