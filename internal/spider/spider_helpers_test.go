package spider

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func validJAR(fill byte) []byte {
	return append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{fill}, 2000)...)
}

// noSleep records requested backoffs without waiting.
type noSleep struct{ waits []time.Duration }

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.waits = append(n.waits, d)
	return ctx.Err()
}

func testFetcher(s *noSleep) *Fetcher {
	f := NewFetcher(&http.Client{})
	f.Sleep = s.sleep
	return f
}

// upstream serves body with status and counts hits.
type upstream struct {
	*httptest.Server
	hits int32
}

func newUpstream(t *testing.T, status int, body []byte) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.hits, 1)
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) Hits() int { return int(atomic.LoadInt32(&u.hits)) }

func newBlockingUpstream(t *testing.T, release <-chan struct{}, body []byte, mu *sync.Mutex, hits *int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*hits++
		mu.Unlock()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}
