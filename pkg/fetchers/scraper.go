package fetchers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nationradar/nation-radar/internal/domain"
)

const (
	maxHTMLBodyBytes     = 2 << 20 // 2 MiB
	scraperDefaultPath   = "/search"
	scraperDefaultPages  = 1
	scraperDateLayout    = "Jan 2, 2006 · 3:04 PM MST"
	scraperOutputLayout  = time.RFC3339
	scraperCursorParam   = "cursor"
	scraperQueryParam    = "q"
	scraperFilterParam   = "f"
	scraperFilterDefault = "tweets"
)

// scraperFetcher reads the HTML search page of a nitter-style front end.
type scraperFetcher struct {
	src      Source
	client   HTTPClient
	headers  map[string]string
	path     string
	maxPages int
	now      func() time.Time
}

// NewScraperFetcher builds a web_scraper fetcher for src.
func NewScraperFetcher(src Source, client HTTPClient) (Fetcher, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if src.BaseURL == "" {
		return nil, fmt.Errorf("fetcher %q base_url is empty", src.ID)
	}
	return &scraperFetcher{
		src:      src,
		client:   client,
		headers:  Headers(src),
		path:     ConfigString(src, "search_path", scraperDefaultPath),
		maxPages: ConfigInt(src, "max_pages", scraperDefaultPages),
		now:      time.Now,
	}, nil
}

func (f *scraperFetcher) ID() string { return f.src.ID }

func (f *scraperFetcher) Fetch(ctx context.Context, keyword string) ([]domain.Post, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is empty")
	}

	var (
		all    []domain.Post
		cursor string
	)
	for page := 0; page < f.maxPages; page++ {
		params := map[string]string{scraperFilterParam: scraperFilterDefault, scraperQueryParam: keyword}
		if cursor != "" {
			params[scraperCursorParam] = cursor
		}

		body, err := fetchBody(ctx, f.client, f.src.BaseURL+f.path, f.src.ID, params, f.headers)
		if err != nil {
			if len(all) > 0 {
				break
			}
			return nil, err
		}
		if len(body) > maxHTMLBodyBytes {
			body = body[:maxHTMLBodyBytes]
		}

		posts, next, err := parseTimeline(body)
		if err != nil {
			return nil, err
		}
		all = append(all, posts...)
		if next == "" || len(posts) == 0 {
			break
		}
		cursor = next

		if page < f.maxPages-1 {
			if err := sleep(ctx, f.src.RequestDelay()); err != nil {
				return nil, err
			}
		}
	}

	posts := withinLookback(uniqueByID(all), f.now().Add(-f.src.Lookback()))
	if len(posts) == 0 {
		return nil, ErrNoResults
	}
	return posts, nil
}

// parseTimeline extracts posts and the next-page cursor from a search results page.
func parseTimeline(body []byte) ([]domain.Post, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	var posts []domain.Post
	doc.Find(".timeline-item").Each(func(_ int, item *goquery.Selection) {
		if item.HasClass("show-more") {
			return
		}
		href, _ := item.Find("a.tweet-link").First().Attr("href")
		username, id := parseStatusPath(href)
		if id == "" {
			return
		}
		if u := strings.TrimPrefix(strings.TrimSpace(item.Find(".username").First().Text()), "@"); u != "" {
			username = u
		}

		created := ""
		if title, ok := item.Find(".tweet-date a").First().Attr("title"); ok {
			created = normalizeScrapedDate(title)
		}

		posts = append(posts, domain.Post{
			ID:         id,
			Text:       strings.TrimSpace(item.Find(".tweet-content").First().Text()),
			Username:   username,
			CreatedAt:  created,
			Engagement: parseStats(item.Find(".tweet-stats .tweet-stat")),
		})
	})

	cursor := ""
	if href, ok := doc.Find(".show-more a").Last().Attr("href"); ok {
		if u, err := url.Parse(href); err == nil {
			cursor = u.Query().Get(scraperCursorParam)
		}
	}
	return posts, cursor, nil
}

// parseStatusPath splits "/{user}/status/{id}#m" into its parts.
func parseStatusPath(href string) (string, string) {
	href = strings.SplitN(href, "#", 2)[0]
	href = strings.SplitN(href, "?", 2)[0]
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" {
		return "", ""
	}
	return parts[0], parts[2]
}

func normalizeScrapedDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(scraperDateLayout, s); err == nil {
		return t.UTC().Format(scraperOutputLayout)
	}
	return s
}

func parseStats(stats *goquery.Selection) domain.Engagement {
	var e domain.Engagement
	stats.Each(func(_ int, stat *goquery.Selection) {
		n := parseCount(stat.Text())
		icon := stat.Find("span[class^='icon-'], span[class*=' icon-']").First()
		switch {
		case icon.HasClass("icon-comment"):
			e.Replies = n
		case icon.HasClass("icon-retweet"):
			e.Retweets = n
		case icon.HasClass("icon-quote"):
			e.QuoteTweets = n
		case icon.HasClass("icon-heart"):
			e.Likes = n
		case icon.HasClass("icon-views"), icon.HasClass("icon-play"):
			e.Views = n
		}
	})
	return e.Sanitize()
}

func parseCount(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
