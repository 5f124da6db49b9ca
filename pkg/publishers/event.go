package publishers

import (
	"time"

	"github.com/nationradar/nation-radar/internal/domain"
)

// Event announces a post newly admitted to the content store.
type Event struct {
	Keyword  string            `json:"keyword"`
	RunID    string            `json:"run_id"`
	Post     domain.StoredPost `json:"post"`
	StoredAt time.Time         `json:"stored_at"`
}

// NewEvent constructs an Event for a post stored while processing keyword.
func NewEvent(runID, keyword string, post domain.StoredPost) Event {
	return Event{
		Keyword:  keyword,
		RunID:    runID,
		Post:     post,
		StoredAt: time.Now().UTC(),
	}
}

// attributes are the routing attributes attached to queued messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"keyword": e.Keyword,
		"run_id":  e.RunID,
		"post_id": e.Post.ID,
	}
}
