// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters holds one rate limiter per external endpoint. Concurrent callers
// of the same endpoint serialize on that endpoint's limiter; distinct
// endpoints do not block each other. Per prd001-evidence R5.2.
type Limiters struct {
	mu        sync.Mutex
	spacing   time.Duration
	overrides map[string]time.Duration
	byKey     map[string]*rate.Limiter
}

// NewLimiters returns a registry that enforces spacing between consecutive
// calls to any one endpoint. Zero spacing disables limiting.
func NewLimiters(spacing time.Duration) *Limiters {
	return &Limiters{
		spacing:   spacing,
		overrides: make(map[string]time.Duration),
		byKey:     make(map[string]*rate.Limiter),
	}
}

// DefaultLimiters is the process-wide registry used by collaborators that
// are not given one explicitly.
var DefaultLimiters = NewLimiters(time.Second)

// SetSpacing overrides the spacing for one endpoint key. It replaces any
// limiter already created for the key.
func (l *Limiters) SetSpacing(key string, spacing time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = spacing
	delete(l.byKey, key)
}

// Wait blocks until a call to the endpoint identified by key may proceed or
// ctx is done.
func (l *Limiters) Wait(ctx context.Context, key string) error {
	return l.limiter(key).Wait(ctx)
}

func (l *Limiters) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.byKey[key]; ok {
		return lim
	}
	spacing := l.spacing
	if s, ok := l.overrides[key]; ok {
		spacing = s
	}
	var lim *rate.Limiter
	if spacing <= 0 {
		lim = rate.NewLimiter(rate.Inf, 1)
	} else {
		lim = rate.NewLimiter(rate.Every(spacing), 1)
	}
	l.byKey[key] = lim
	return lim
}

// EndpointKey returns the limiter key for a request URL: scheme and host.
// NCBI and similar services meter per host, not per path.
func EndpointKey(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
