package fetchers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nationradar/nation-radar/internal/domain"
)

const (
	twitterDefaultCount    = "50"
	twitterDefaultMaxPages = 3
	twitterRateLimitWait   = 30 * time.Second
)

var twitterDefaultCategories = []string{"Top", "Latest"}

// twitterFetcher searches posts through a RapidAPI Twitter search endpoint.
type twitterFetcher struct {
	src           Source
	client        HTTPClient
	headers       map[string]string
	categories    []string
	maxPages      int
	rateLimitWait time.Duration
	quality       qualityFilter
	filterQuality bool
	now           func() time.Time
}

// NewTwitterFetcher builds a rapidapi_twitter fetcher for src.
func NewTwitterFetcher(src Source, client HTTPClient) (Fetcher, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if src.BaseURL == "" {
		return nil, fmt.Errorf("fetcher %q base_url is empty", src.ID)
	}

	headers := Headers(src)
	if key := ConfigSecret(src, "api_key"); key != "" {
		headers["X-RapidAPI-Key"] = key
	}
	host := ConfigString(src, "host", "")
	if host == "" {
		if u, err := url.Parse(src.BaseURL); err == nil {
			host = u.Host
		}
	}
	if host != "" {
		headers["X-RapidAPI-Host"] = host
	}

	return &twitterFetcher{
		src:           src,
		client:        client,
		headers:       headers,
		categories:    ConfigStrings(src, "categories", twitterDefaultCategories),
		maxPages:      ConfigInt(src, "max_pages", twitterDefaultMaxPages),
		rateLimitWait: time.Duration(ConfigInt(src, "rate_limit_wait_ms", int(twitterRateLimitWait/time.Millisecond))) * time.Millisecond,
		quality:       newQualityFilter(ConfigStrings(src, "spam_indicators", defaultSpamIndicators)),
		filterQuality: ConfigBool(src, "quality_filter", true),
		now:           time.Now,
	}, nil
}

func (f *twitterFetcher) ID() string { return f.src.ID }

// Fetch collects every configured category for keyword plus the exact-phrase variation,
// then filters by id, lookback window and quality.
func (f *twitterFetcher) Fetch(ctx context.Context, keyword string) ([]domain.Post, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is empty")
	}

	type query struct{ term, category string }
	queries := make([]query, 0, len(f.categories)+1)
	for _, c := range f.categories {
		queries = append(queries, query{term: keyword, category: c})
	}
	queries = append(queries, query{term: `"` + strings.Trim(keyword, `"`) + `"`, category: "Latest"})

	var (
		all  []domain.Post
		errs []error
	)
	for i, q := range queries {
		posts, err := f.fetchPaged(ctx, q.term, q.category)
		all = append(all, posts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s/%s: %w", q.term, q.category, err))
		}
		if i < len(queries)-1 {
			if err := sleep(ctx, f.src.RequestDelay()); err != nil {
				return nil, err
			}
		}
	}

	if len(all) == 0 && len(errs) == len(queries) {
		return nil, errors.Join(errs...)
	}

	posts := uniqueByID(all)
	posts = withinLookback(posts, f.now().Add(-f.src.Lookback()))
	if f.filterQuality {
		posts = f.quality.apply(posts, keyword)
	}
	if len(posts) == 0 {
		return nil, ErrNoResults
	}
	return posts, nil
}

// fetchPaged follows the bottom cursor for up to maxPages pages. A 429 waits once and
// retries the same page.
func (f *twitterFetcher) fetchPaged(ctx context.Context, term, category string) ([]domain.Post, error) {
	endpoint := f.src.BaseURL + "/search/" + url.PathEscape(term)

	var (
		out      []domain.Post
		cursor   string
		retried  bool
		requests int
	)
	for requests < f.maxPages {
		params := map[string]string{"count": twitterDefaultCount, "category": category}
		if cursor != "" {
			params["cursor"] = cursor
		}

		body, err := fetchBody(ctx, f.client, endpoint, f.src.ID, params, f.headers)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code == http.StatusTooManyRequests && !retried {
				retried = true
				if err := sleep(ctx, f.rateLimitWait); err != nil {
					return out, err
				}
				continue
			}
			if errors.As(err, &se) && se.code == http.StatusNotFound {
				return out, nil
			}
			return out, err
		}
		requests++
		retried = false

		page, next, err := parseSearchPage(body)
		if err != nil {
			return out, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		if next == "" {
			break
		}
		cursor = next

		if requests < f.maxPages {
			if err := sleep(ctx, f.src.RequestDelay()); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

type searchResponse struct {
	Entries []timelineInstruction `json:"entries"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
	Content struct {
		CursorType string `json:"cursorType"`
		Value      string `json:"value"`
	} `json:"content"`
}

type timelineEntry struct {
	Content struct {
		EntryType   string `json:"entryType"`
		ItemContent struct {
			ItemType     string `json:"itemType"`
			TweetResults struct {
				Result *tweetResult `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type tweetResult struct {
	Legacy *tweetLegacy `json:"legacy"`
	Core   struct {
		UserResults struct {
			Result struct {
				Legacy struct {
					ScreenName string `json:"screen_name"`
				} `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Views json.RawMessage `json:"views"`
}

// tweetLegacy keeps counters untyped: a malformed counter reads as zero instead of failing
// the whole page.
type tweetLegacy struct {
	IDStr         string `json:"id_str"`
	FullText      string `json:"full_text"`
	CreatedAt     string `json:"created_at"`
	FavoriteCount any    `json:"favorite_count"`
	RetweetCount  any    `json:"retweet_count"`
	ReplyCount    any    `json:"reply_count"`
	QuoteCount    any    `json:"quote_count"`
	BookmarkCount any    `json:"bookmark_count"`
}

// parseSearchPage extracts posts and the bottom cursor from a search response.
func parseSearchPage(body []byte) ([]domain.Post, string, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("decode search response: %w", err)
	}

	var (
		posts  []domain.Post
		cursor string
	)
	for _, ins := range resp.Entries {
		switch ins.Type {
		case "TimelineAddEntries":
			for _, e := range ins.Entries {
				if e.Content.EntryType != "TimelineTimelineItem" || e.Content.ItemContent.ItemType != "TimelineTweet" {
					continue
				}
				if p, ok := e.Content.ItemContent.TweetResults.Result.post(); ok {
					posts = append(posts, p)
				}
			}
		case "TimelineAddCursor":
			if ins.Content.CursorType == "Bottom" {
				cursor = ins.Content.Value
			}
		}
	}
	return posts, cursor, nil
}

func (r *tweetResult) post() (domain.Post, bool) {
	if r == nil || r.Legacy == nil {
		return domain.Post{}, false
	}
	username := r.Core.UserResults.Result.Legacy.ScreenName
	if username == "" {
		username = "unknown"
	}
	l := r.Legacy
	return domain.Post{
		ID:        l.IDStr,
		Text:      l.FullText,
		Username:  username,
		CreatedAt: l.CreatedAt,
		Engagement: domain.Engagement{
			Likes:       toInt64(l.FavoriteCount),
			Retweets:    toInt64(l.RetweetCount),
			Replies:     toInt64(l.ReplyCount),
			QuoteTweets: toInt64(l.QuoteCount),
			Bookmarks:   toInt64(l.BookmarkCount),
			Views:       parseViews(r.Views),
		}.Sanitize(),
	}, true
}

// parseViews accepts {"count": "123"}, {"count": 123}, "123" or 123.
func parseViews(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var obj struct {
		Count any `json:"count"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Count != nil {
		return toInt64(obj.Count)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return toInt64(v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
