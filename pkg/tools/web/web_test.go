package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fparis&rut=x">Paris travel guide</a>
  <a class="result__snippet">Everything about Paris.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.org/louvre">The Louvre</a>
  <a class="result__snippet">Museum opening hours.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.net/third">Third</a>
</div>
</body></html>`

const articlePage = `<html><head><title>Guide</title><script>var x = 1;</script></head><body>
<nav>menu</nav>
<main><h1>Paris</h1><p>The <a href="/louvre">Louvre</a> is big.</p></main>
<footer>footer</footer>
</body></html>`

func newServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html/":
			lastQuery = r.URL.Query().Get("q")
			_, _ = w.Write([]byte(searchPage))
		case "/article":
			_, _ = w.Write([]byte(articlePage))
		case "/long":
			_, _ = w.Write([]byte("<main><p>" + strings.Repeat("a", 500) + "</p></main>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &lastQuery
}

func TestSearch(t *testing.T) {
	srv, q := newServer(t)
	c := NewClient(Options{SearchURL: srv.URL + "/html/", MaxResults: 2})

	results, err := c.Search(context.Background(), "paris museums")

	require.NoError(t, err)
	assert.Equal(t, "paris museums", *q)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Title: "Paris travel guide", URL: "https://example.com/paris", Snippet: "Everything about Paris."}, results[0])
	assert.Equal(t, "https://example.org/louvre", results[1].URL)
}

func TestSearchTool(t *testing.T) {
	srv, _ := newServer(t)
	tb := NewClient(Options{SearchURL: srv.URL + "/html/"}).Tools()

	res, err := tb.Call(context.Background(), nil, content.ToolCall{Name: "web_search", Arguments: `{"query":"paris"}`})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text, "## Search Results\n"))
	assert.Contains(t, res.Text, "[The Louvre](https://example.org/louvre)\nMuseum opening hours.")
}

func TestFormatResultsEmpty(t *testing.T) {
	assert.Contains(t, FormatResults(nil), "No results found")
}

func TestVisit(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(Options{})

	md, err := c.Visit(context.Background(), srv.URL+"/article")

	require.NoError(t, err)
	assert.Contains(t, md, "# Paris")
	assert.Contains(t, md, "[Louvre]("+srv.URL+"/louvre)")
	assert.NotContains(t, md, "menu")
	assert.NotContains(t, md, "var x")
}

func TestVisitTruncates(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(Options{MaxLength: 100})

	md, err := c.Visit(context.Background(), srv.URL+"/long")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, strings.Repeat("a", 100)))
	assert.Contains(t, md, "truncated")
}

func TestVisitErrors(t *testing.T) {
	srv, _ := newServer(t)
	tb := NewClient(Options{}).Tools()

	for _, u := range []string{"not a url", "ftp://example.com/x", srv.URL + "/missing"} {
		_, err := tb.Call(context.Background(), nil, content.ToolCall{
			Name: "visit_webpage", Arguments: `{"url":"` + u + `"}`,
		})
		var ee *toolbox.ExecutionError
		assert.ErrorAs(t, err, &ee, u)
	}
}
