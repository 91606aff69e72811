package tvbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscription_standard(t *testing.T) {
	body := []byte(`{
		"spider": "https://upstream.example/spider.jar;md5;abc",
		"sites": [
			{"key":"a","name":"A","type":3,"api":"csp_A","ext":{"x":1},"searchable":1},
			{"key":"b","name":"B","type":1,"api":"https://b.example/api.php/provide/vod","is_adult":true}
		],
		"parses": [{"name":"p","type":1,"url":"https://p.example/?url="}],
		"lives": [{"name":"live","url":"https://l.example/tv.m3u"}]
	}`)
	sub, err := ParseSubscription(body)
	require.NoError(t, err)
	assert.Equal(t, "https://upstream.example/spider.jar;md5;abc", sub.Spider)
	require.Len(t, sub.Sites, 2)
	assert.Equal(t, "csp_A", sub.Sites[0].API)
	assert.JSONEq(t, `{"x":1}`, string(sub.Sites[0].Ext))
	assert.False(t, sub.Sites[0].Adult())
	assert.True(t, sub.Sites[1].Adult())
	assert.Len(t, sub.Parses, 1)
	assert.Len(t, sub.Lives, 1)
}

func TestParseSubscription_apiSite(t *testing.T) {
	body := []byte(`{"cache_time":7200,"api_site":{
		"zy.example.com":{"name":"资源站","api":"https://zy.example.com/api.php/provide/vod"},
		"my-cms.net:8080":{"name":"CMS","api":"https://my-cms.net:8080/maccms/api"},
		"spider.io":{"name":"Spider","api":"https://spider.io/x"},
		"hot.example":{"name":"🔞 Hot","api":"https://hot.example/api.php/provide/vod"},
		"broken":{"name":"No API"}
	}}`)
	sub, err := ParseSubscription(body)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpider, sub.Spider)
	assert.Equal(t, defaultParses(), sub.Parses)
	require.Len(t, sub.Sites, 4, "entries without api are skipped")

	assert.Equal(t, "zy_example_com", sub.Sites[0].Key)
	assert.Equal(t, 1, sub.Sites[0].Type)
	assert.Equal(t, "my_cms_net_8080", sub.Sites[1].Key)
	assert.Equal(t, 1, sub.Sites[1].Type)
	assert.Equal(t, "spider_io", sub.Sites[2].Key)
	assert.Equal(t, 3, sub.Sites[2].Type)
	assert.True(t, sub.Sites[3].Adult())
	assert.False(t, sub.Sites[0].Adult())
	require.NotNil(t, sub.Sites[0].Searchable)
	assert.Equal(t, 1, *sub.Sites[0].Searchable)
}

func TestParseSubscription_invalid(t *testing.T) {
	_, err := ParseSubscription([]byte("<html>502</html>"))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseSubscription([]byte(`{"sites":"not-a-list"}`))
	assert.Error(t, err)
}

func TestIsAdultName(t *testing.T) {
	for _, s := range []string{"Adult Zone", "18+影院", "NSFW", "成人频道", "情色", "🔞"} {
		assert.True(t, IsAdultName(s), s)
	}
	assert.False(t, IsAdultName("新闻"))
}
