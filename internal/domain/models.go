package domain

import (
	"fmt"
	"strings"
	"time"
)

// Domain contains core models shared by the pipeline, the store and the query layer.

// Engagement holds the named counters a source reports for a post. Missing counters are zero.
type Engagement struct {
	Likes       int64 `json:"likes" yaml:"likes"`
	Retweets    int64 `json:"retweets" yaml:"retweets"`
	Replies     int64 `json:"replies" yaml:"replies"`
	Views       int64 `json:"views" yaml:"views"`
	Bookmarks   int64 `json:"bookmarks" yaml:"bookmarks"`
	QuoteTweets int64 `json:"quote_tweets" yaml:"quote_tweets"`
}

// HasSignal reports whether any counter is non-zero.
func (e Engagement) HasSignal() bool {
	return e.Likes > 0 || e.Retweets > 0 || e.Replies > 0 ||
		e.Views > 0 || e.Bookmarks > 0 || e.QuoteTweets > 0
}

// Sanitize clamps negative counters to zero.
func (e Engagement) Sanitize() Engagement {
	clamp := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		return v
	}
	return Engagement{
		Likes:       clamp(e.Likes),
		Retweets:    clamp(e.Retweets),
		Replies:     clamp(e.Replies),
		Views:       clamp(e.Views),
		Bookmarks:   clamp(e.Bookmarks),
		QuoteTweets: clamp(e.QuoteTweets),
	}
}

// String renders the counters the way the scoring prompt expects them.
func (e Engagement) String() string {
	return fmt.Sprintf("Likes: %d, Retweets: %d, Replies: %d, Views: %d, Bookmarks: %d, Quote Tweets: %d",
		e.Likes, e.Retweets, e.Replies, e.Views, e.Bookmarks, e.QuoteTweets)
}

// Post is a raw record produced by a fetcher.
type Post struct {
	ID         string     `json:"id" yaml:"id"`
	Text       string     `json:"text" yaml:"text"`
	Username   string     `json:"username" yaml:"username"`
	CreatedAt  string     `json:"created_at" yaml:"created_at"`
	Engagement Engagement `json:"engagement" yaml:"engagement"`
}

// ScoredPost is a post with its quality score in [0, 2].
type ScoredPost struct {
	Post
	Score float64 `json:"score"`
}

// StoredPost is a scored post as persisted by the content store.
type StoredPost struct {
	ScoredPost
	URL        string    `json:"url"`
	InsertedAt time.Time `json:"inserted_at"`
}

const permalinkBase = "https://x.com"

// Permalink builds the public URL for a post, or "" when username or id is missing.
func Permalink(username, id string) string {
	username = strings.TrimSpace(username)
	id = strings.TrimSpace(id)
	if username == "" || id == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/status/%s", permalinkBase, username, id)
}

// SeenFingerprintRecord maps a content fingerprint to the post that first carried it.
type SeenFingerprintRecord struct {
	Fingerprint string    `json:"fingerprint"`
	CanonicalID string    `json:"canonical_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}
