package annotation

import (
	"context"
	"net/http"
	"sync"

	"github.com/lewtec/scriptorium/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestCacheKey contextKey = "request_cache"

// RequestCache memoizes image lookups for a single HTTP request
type RequestCache struct {
	mu     sync.RWMutex
	images []*domain.Image
	byID   map[string]*domain.Image
}

// NewRequestCache creates a new request cache
func NewRequestCache() *RequestCache {
	return &RequestCache{byID: make(map[string]*domain.Image)}
}

// Images returns every image, querying repo at most once per request
func (rc *RequestCache) Images(ctx context.Context, repo domain.ImageRepository) ([]*domain.Image, error) {
	rc.mu.RLock()
	images := rc.images
	rc.mu.RUnlock()
	if images != nil {
		return images, nil
	}

	images, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.images = images
	for _, img := range images {
		rc.byID[img.ID] = img
	}
	return images, nil
}

// Image looks up one image, nil if it does not exist
func (rc *RequestCache) Image(ctx context.Context, repo domain.ImageRepository, id string) (*domain.Image, error) {
	rc.mu.RLock()
	img, ok := rc.byID[id]
	rc.mu.RUnlock()
	if ok {
		return img, nil
	}

	img, err := repo.Get(ctx, id)
	if err != nil || img == nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.byID[id] = img
	return img, nil
}

// WithRequestCache adds a request cache to the context
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey, NewRequestCache())
}

// GetRequestCache retrieves the request cache from context, a fresh one if
// the middleware did not run
func GetRequestCache(ctx context.Context) *RequestCache {
	if cache, ok := ctx.Value(requestCacheKey).(*RequestCache); ok {
		return cache
	}
	return NewRequestCache()
}

// requestCacheMiddleware adds a request cache to the context for each request
func requestCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestCache(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
