package detect

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver builds BrowserDetect values, reusing parsed user agents.
type Resolver struct {
	cache *lru.Cache[string, *UADetector]
}

// NewResolver creates a resolver caching up to size parsed user agents.
func NewResolver(size int) (*Resolver, error) {
	cache, err := lru.New[string, *UADetector](max(size, 1))
	if err != nil {
		return nil, fmt.Errorf("create user agent cache: %w", err)
	}
	return &Resolver{cache: cache}, nil
}

// Detector returns a BrowserDetect for userAgent with the given refinement
// sources, either of which may be nil.
func (r *Resolver) Detector(userAgent string, hints HighEntropySource, ts TroubleshootingSource) *BrowserDetect {
	return newBrowserDetect(r.parse(userAgent), hints, ts)
}

// Len reports the number of cached user agents.
func (r *Resolver) Len() int { return r.cache.Len() }

func (r *Resolver) parse(userAgent string) *UADetector {
	if d, ok := r.cache.Get(userAgent); ok {
		return d
	}
	d := NewUADetector(userAgent)
	r.cache.Add(userAgent, d)
	return d
}
