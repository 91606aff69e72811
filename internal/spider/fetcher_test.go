package spider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/tvboxproxy/internal/httpclient"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validJAR(0)))
	assert.ErrorIs(t, Validate([]byte("PK\x03\x04")), ErrTooSmall)
	bad := validJAR(0)
	bad[0] = 'X'
	assert.ErrorIs(t, Validate(bad), ErrBadMagic)
	assert.NoError(t, Validate(FallbackBinary()), "embedded fallback is itself a valid archive")
}

func TestFetch_success(t *testing.T) {
	body := validJAR(3)
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write(body)
	}))
	defer srv.Close()

	s := &noSleep{}
	b, err := testFetcher(s).Fetch(context.Background(), srv.URL+"/jar/custom_spider.jar", time.Second, 1)
	require.NoError(t, err)
	assert.Equal(t, body, b)
	assert.Empty(t, s.waits)
	assert.Equal(t, "*/*", got.Get("Accept"))
	assert.Equal(t, "identity", got.Get("Accept-Encoding"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, uaMobile, got.Get("User-Agent"))
}

func TestFetch_retriesWithLinearBackoff(t *testing.T) {
	up := newUpstream(t, http.StatusOK, []byte("tiny"))
	s := &noSleep{}
	_, err := testFetcher(s).Fetch(context.Background(), up.URL, time.Second, 2)
	require.ErrorIs(t, err, ErrCandidateExhausted)
	assert.ErrorIs(t, err, ErrTooSmall, "last cause is wrapped")
	assert.Equal(t, 3, up.Hits())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.waits)
}

func TestFetch_statusAndMagicErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		up := newUpstream(t, http.StatusNotFound, validJAR(0))
		_, err := testFetcher(&noSleep{}).Fetch(context.Background(), up.URL, time.Second, 0)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusNotFound, se.Code)
		assert.Equal(t, 1, up.Hits())
		assert.Empty(t, se.Edge)
	})
	t.Run("cloudflare block", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "cloudflare")
			w.Header().Set("CF-RAY", "8a1b2c3d4e-SJC")
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(srv.Close)
		_, err := testFetcher(&noSleep{}).Fetch(context.Background(), srv.URL, time.Second, 0)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "CF-RAY=8a1b2c3d4e-SJC", se.Edge)
		assert.Contains(t, err.Error(), "cloudflare CF-RAY")
	})
	t.Run("html instead of zip", func(t *testing.T) {
		page := make([]byte, 2000)
		copy(page, "<html>")
		up := newUpstream(t, http.StatusOK, page)
		_, err := testFetcher(&noSleep{}).Fetch(context.Background(), up.URL, time.Second, 0)
		assert.ErrorIs(t, err, ErrBadMagic)
	})
}

func TestFetch_oversizedPayloadRejected(t *testing.T) {
	up := newUpstream(t, http.StatusOK, validJAR(2))
	f := testFetcher(&noSleep{})
	f.MaxBytes = MinBinarySize + 10
	_, err := f.Fetch(context.Background(), up.URL, time.Second, 0)
	require.ErrorIs(t, err, ErrCandidateExhausted)
	assert.ErrorIs(t, err, httpclient.ErrBodyTooLarge, "no truncated JAR is accepted")
}

func TestFetch_perAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	start := time.Now()
	_, err := testFetcher(&noSleep{}).Fetch(context.Background(), srv.URL, 50*time.Millisecond, 1)
	require.ErrorIs(t, err, ErrCandidateExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_cancelledContext(t *testing.T) {
	up := newUpstream(t, http.StatusOK, validJAR(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testFetcher(&noSleep{}).Fetch(ctx, up.URL, time.Second, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCandidateExhausted)
	assert.Equal(t, 0, up.Hits())
}

func TestUserAgentFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://raw.githubusercontent.com/FongMi/CatVodSpider/main/jar/custom_spider.jar", uaCurl},
		{"https://ghproxy.net/https://raw.githubusercontent.com/FongMi/CatVodSpider/main/jar/custom_spider.jar", uaCurl},
		{"https://gitee.com/x/raw/master/spider.jar", uaDesktop},
		{"https://gitcode.net/x/spider.jar", uaDesktop},
		{"https://cdn.jsdelivr.net/gh/FongMi/CatVodSpider@main/jar/spider.jar", uaDeco},
		{"https://fastly.jsdelivr.net/gh/x/spider.jar", uaDeco},
		{"https://agit.ai/Yoursmile7/TVBox/raw/branch/master/jar/custom_spider.jar", uaMobile},
		{"https://GitHub.COM/x", uaCurl},
		{"not a url", uaMobile},
	}
	for _, tt := range tests {
		if got := userAgentFor(tt.url); got != tt.want {
			t.Errorf("userAgentFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
