// Package web provides web_search over the DuckDuckGo HTML endpoint and
// visit_webpage, which fetches a page and returns it as markdown.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

const (
	DefaultSearchURL  = "https://html.duckduckgo.com/html/"
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout    = 20 * time.Second
	DefaultMaxResults = 10
	DefaultMaxLength  = 40000

	maxBodyBytes = 5 << 20
)

// Options configures the web tools. Zero values pick the defaults.
type Options struct {
	SearchURL  string
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
	// MaxLength caps visit_webpage output in characters.
	MaxLength  int
	HTTPClient *http.Client
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client performs searches and page fetches.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient applies defaults to opts.
func NewClient(opts Options) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{opts: opts, http: hc}
}

// Search queries the search endpoint and returns at most MaxResults hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{"q": {query}}
	doc, err := c.fetch(ctx, c.opts.SearchURL+"?"+form.Encode())
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(".result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return len(results) < c.opts.MaxResults
	})

	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Visit fetches rawURL and converts its main content to markdown, truncated
// to MaxLength characters.
func (c *Client) Visit(ctx context.Context, rawURL string) (string, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	doc, err := c.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	md, err := htmltomarkdown.ConvertString(
		mainContent(doc),
		converter.WithDomain(u.Scheme+"://"+u.Host),
	)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", rawURL, err)
	}

	return truncate(cleanMarkdown(md), c.opts.MaxLength), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

func mainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	for _, sel := range []string{"main", "article", "#content, #main", ".content, .main", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if h, err := s.Html(); err == nil && strings.TrimSpace(h) != "" {
				return h
			}
		}
	}

	h, _ := doc.Html()
	return h
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func cleanMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n..._This content has been truncated._"
}

// FormatResults renders hits as a markdown list.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found. Try a less restrictive query."
	}

	var b strings.Builder
	b.WriteString("## Search Results\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n[%s](%s)\n%s\n", r.Title, r.URL, r.Snippet)
	}
	return b.String()
}

// Tools returns web_search and visit_webpage backed by c.
func (c *Client) Tools() *toolbox.ToolBox {
	return toolbox.MustNew(
		toolbox.Tool{
			Name:        "web_search",
			Description: "Performs a web search for the query and returns the top results with titles, links and snippets.",
			Params: []toolbox.Param{
				{Name: "query", Type: toolbox.TypeString, Description: "the search query"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
				results, err := c.Search(ctx, in.String("query"))
				if err != nil {
					return nil, err
				}
				return FormatResults(results), nil
			},
		},
		toolbox.Tool{
			Name:        "visit_webpage",
			Description: "Visits a webpage at the given url and returns its content as markdown.",
			Params: []toolbox.Param{
				{Name: "url", Type: toolbox.TypeString, Description: "the url of the webpage to visit"},
			},
			OutputType: toolbox.TypeString,
			Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
				return c.Visit(ctx, in.String("url"))
			},
		},
	)
}

// New returns the web tools with default options.
func New() *toolbox.ToolBox {
	return NewClient(Options{}).Tools()
}
