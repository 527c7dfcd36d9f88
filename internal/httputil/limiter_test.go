// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/errs"
)

func TestLimiters_SpacesSameEndpoint(t *testing.T) {
	l := NewLimiters(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(ctx, "https://eutils.example"))
	}
	// First call passes immediately; the next two each wait one interval.
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestLimiters_ConcurrentCallersSerialize(t *testing.T) {
	l := NewLimiters(30 * time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(ctx, "k"))
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, stamps, 4)
	first, last := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 80*time.Millisecond)
}

func TestLimiters_DistinctEndpointsIndependent(t *testing.T) {
	l := NewLimiters(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "a"))
	require.NoError(t, l.Wait(ctx, "b"))
}

func TestLimiters_WaitRespectsContext(t *testing.T) {
	l := NewLimiters(time.Hour)
	require.NoError(t, l.Wait(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "a"))
}

func TestLimiters_ZeroSpacingAndOverride(t *testing.T) {
	l := NewLimiters(0)
	ctx := context.Background()
	start := time.Now()
	for range 10 {
		require.NoError(t, l.Wait(ctx, "free"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	l.SetSpacing("slow", time.Hour)
	require.NoError(t, l.Wait(ctx, "slow"))
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, "slow"))
}

func TestEndpointKey(t *testing.T) {
	u, err := url.Parse("https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi?db=pubmed")
	require.NoError(t, err)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov", EndpointKey(u))
}

func TestClient_FetchClassifiesStatus(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "evidence-engine/test", r.Header.Get("User-Agent"))
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer ts.Close()

	c := &Client{HTTP: ts.Client(), Limiters: NewLimiters(0), UserAgent: "evidence-engine/test"}
	ctx := context.Background()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/good", nil)
	body, err := c.Fetch(ctx, req, "test.good")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/bad", nil)
	_, err = c.Fetch(ctx, req, "test.bad")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalService))
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_FetchUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := ts.URL
	ts.Close()

	c := &Client{Limiters: NewLimiters(0)}
	req, _ := http.NewRequest(http.MethodGet, addr, nil)
	_, err := c.Fetch(context.Background(), req, "test.down")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalService))
}
