package dedup

import (
	"strings"
	"time"

	"github.com/nationradar/nation-radar/internal/domain"
)

var createdAtLayouts = []string{
	"Mon Jan 02 15:04:05 -0700 2006", // twitter legacy created_at
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseCreatedAt parses the source-formatted timestamp of a post.
func ParseCreatedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type batchEntry struct {
	post    domain.Post
	created time.Time
	valid   bool
}

// earlier reports whether a candidate with the given timestamp beats the current entry.
// Unparseable timestamps count as the latest possible time.
func (e batchEntry) earlier(created time.Time, valid bool) bool {
	switch {
	case !valid:
		return false
	case !e.valid:
		return true
	default:
		return created.Before(e.created)
	}
}

// DedupeEarliest keeps, for every distinct content fingerprint in posts, the post with the
// earliest created_at. Posts whose text normalizes to "" are dropped. Survivors are
// returned in the order their fingerprint first appeared.
func DedupeEarliest(posts []domain.Post) []domain.Post {
	if len(posts) == 0 {
		return nil
	}

	byFP := make(map[Fingerprint]int, len(posts))
	entries := make([]batchEntry, 0, len(posts))

	for _, p := range posts {
		normalized := Normalize(p.Text)
		if normalized == "" {
			continue
		}
		fp := fingerprintNormalized(normalized)
		created, valid := ParseCreatedAt(p.CreatedAt)

		idx, exists := byFP[fp]
		if !exists {
			byFP[fp] = len(entries)
			entries = append(entries, batchEntry{post: p, created: created, valid: valid})
			continue
		}
		if entries[idx].earlier(created, valid) {
			entries[idx] = batchEntry{post: p, created: created, valid: valid}
		}
	}

	out := make([]domain.Post, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.post)
	}
	return out
}
