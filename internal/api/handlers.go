package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nationradar/nation-radar/internal/domain"
)

var endpoints = []string{
	"/api/tweets",
	"/api/leaderboard",
	"/api/stats",
	"/api/search",
	"/api/posts/all",
}

type handlers struct {
	q       Querier
	service string
	now     func() time.Time
}

func (h *handlers) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Nation Radar API",
		"status":    "operational",
		"endpoints": endpoints,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
	})
}

func (h *handlers) latest(c *gin.Context) {
	posts, err := h.q.Latest(c.Request.Context(), limitParam(c))
	if err != nil {
		degraded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"data":         nonNil(posts),
		"count":        len(posts),
		"last_updated": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) leaderboard(c *gin.Context) {
	posts, err := h.q.Leaderboard(c.Request.Context(), limitParam(c))
	if err != nil {
		degraded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    nonNil(posts),
		"count":   len(posts),
	})
}

func (h *handlers) stats(c *gin.Context) {
	st, err := h.q.Stats(c.Request.Context())
	if err != nil {
		degraded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     "operational",
		"statistics": st,
		"timestamp":  h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query parameter 'q' is required"})
		return
	}
	posts, err := h.q.Search(c.Request.Context(), q, limitParam(c))
	if err != nil {
		degraded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"query":   q,
		"results": nonNil(posts),
		"count":   len(posts),
	})
}

func (h *handlers) all(c *gin.Context) {
	posts, err := h.q.All(c.Request.Context())
	if err != nil {
		degraded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    nonNil(posts),
		"count":   len(posts),
	})
}

// degraded reports a read failure without failing the process.
func degraded(c *gin.Context, err error) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"status":  "degraded",
		"error":   err.Error(),
	})
}

// limitParam returns 0 for a missing or malformed limit, which selects the default.
func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

func nonNil(posts []domain.StoredPost) []domain.StoredPost {
	if posts == nil {
		return []domain.StoredPost{}
	}
	return posts
}
