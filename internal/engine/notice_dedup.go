package engine

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// noticeDedup suppresses re-display of identical degraded messages inside
// a TTL window. The backend greets every fresh subscriber with the same
// "No alerts yet." frame, so without this a reconnect storm spams the
// display.
type noticeDedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func newNoticeDedup(maxKeys int, ttl time.Duration) *noticeDedup {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &noticeDedup{cache: c, ttl: ttl}
}

func (d *noticeDedup) isDuplicate(text string) bool {
	if seenAt, ok := d.cache.Get(text); ok {
		if time.Since(seenAt) < d.ttl {
			return true
		}
		// Expired but still in LRU? Update it.
	}
	d.cache.Add(text, time.Now())
	return false
}
