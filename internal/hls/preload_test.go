package hls

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProxiedSegmentURLs(t *testing.T) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString(listBase + "http%3A%2F%2Fcdn%2Fsub.m3u8\n")
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&b, "#EXTINF:4,\n%shttp%%3A%%2F%%2Fcdn%%2Fs%d.ts\n", segBase, i)
	}
	got := ProxiedSegmentURLs(b.String(), 5)
	assert.Equal(t, []string{"http://cdn/s1.ts", "http://cdn/s2.ts", "http://cdn/s3.ts", "http://cdn/s4.ts", "http://cdn/s5.ts"}, got)
}

func TestPreloader_warmsFirstSegments(t *testing.T) {
	srv := newSegServer(t, echoPath)
	c := NewSegmentCache(50, time.Minute, srv.Client())
	p := NewPreloader(c, 5, 1000)

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&sb, "#EXTINF:4,\nseg%d.ts\n", i)
	}
	rewritten := Rewrite(sb.String(), srv.URL+"/live/index.m3u8", segBase)
	p.Warm(rewritten)
	p.Wait()

	for i := 1; i <= 5; i++ {
		assert.True(t, c.Contains(fmt.Sprintf("%s/live/seg%d.ts", srv.URL, i)), "seg%d warmed", i)
	}
	assert.False(t, c.Contains(srv.URL+"/live/seg6.ts"))
}

func TestPreloader_errorsIgnoredAndCachedSkipped(t *testing.T) {
	srv := newSegServer(t, echoPath)
	c := NewSegmentCache(50, time.Minute, srv.Client())
	p := NewPreloader(c, 5, 1000)

	p.WarmURLs([]string{srv.URL + "/a.ts", "http://127.0.0.1:1/unreachable.ts"})
	p.Wait()
	assert.True(t, c.Contains(srv.URL+"/a.ts"))

	p.WarmURLs([]string{srv.URL + "/a.ts"})
	p.Wait()
	assert.Equal(t, 1, srv.Hits("/a.ts"))
}

func TestPreloader_predictedSuccessors(t *testing.T) {
	srv := newSegServer(t, echoPath)
	c := NewSegmentCache(50, time.Minute, srv.Client())
	p := NewPreloader(c, 5, 1000)
	p.WarmURLs(PredictNext(srv.URL+"/seg_009.ts", 2))
	p.Wait()
	assert.True(t, c.Contains(srv.URL+"/seg_010.ts"))
	assert.True(t, c.Contains(srv.URL+"/seg_011.ts"))
}
