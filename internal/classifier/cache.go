package classifier

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/harrison/gradewalker/internal/models"
)

// Cache holds responses for identical submissions. A nil *Cache is a no-op.
type Cache struct {
	entries *lru.Cache[string, Response]
}

// NewCache creates a Cache bounded to size entries.
func NewCache(size int) *Cache {
	entries, err := lru.New[string, Response](size)
	if err != nil {
		return nil
	}
	return &Cache{entries: entries}
}

// CacheKey hashes the question and every unit.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.QuestionText))
	for _, u := range req.Units {
		h.Write([]byte{0})
		h.Write([]byte(u.Label))
		h.Write([]byte{0})
		h.Write([]byte(u.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached response.
func (c *Cache) Get(key string) (Response, bool) {
	if c == nil {
		return Response{}, false
	}
	resp, ok := c.entries.Get(key)
	if !ok {
		return Response{}, false
	}
	resp.SuggestedRequirements = append([]string(nil), resp.SuggestedRequirements...)
	return resp, true
}

// Add stores resp unless it is an ERROR or SKIPPED verdict.
func (c *Cache) Add(key string, resp Response) {
	if c == nil {
		return
	}
	if resp.Verdict == models.VerdictError || resp.Verdict == models.VerdictSkipped {
		return
	}
	c.entries.Add(key, resp)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
