package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves the raw HTML served at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// CollyFetcher fetches pages with a fresh colly collector per request.
type CollyFetcher struct {
	userAgent string
	headers   map[string]string
}

func NewCollyFetcher(opts *Options) *CollyFetcher {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}
	return &CollyFetcher{userAgent: opts.UserAgent, headers: headers}
}

func (f *CollyFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
	})

	var body string
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", url, r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		return "", fmt.Errorf("failed to visit %s: %w", url, err)
	}
	if fetchErr != nil {
		return "", fetchErr
	}

	return body, nil
}

// StaticLauncher serves pages from a Fetcher without running scripts.
type StaticLauncher struct {
	fetcher Fetcher
}

func NewStaticLauncher(fetcher Fetcher) *StaticLauncher {
	return &StaticLauncher{fetcher: fetcher}
}

func (l *StaticLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewStaticSession(l.fetcher), nil
}

type StaticSession struct {
	fetcher Fetcher
}

func NewStaticSession(fetcher Fetcher) *StaticSession {
	return &StaticSession{fetcher: fetcher}
}

func (s *StaticSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewDocumentPage(s.fetcher), nil
}

func (s *StaticSession) Close() error { return nil }

// DocumentPage is a Page over a parsed HTML document. The DOM never changes
// after load, so WaitForSelector resolves immediately.
type DocumentPage struct {
	fetcher Fetcher
	doc     *goquery.Document
	url     string
}

func NewDocumentPage(fetcher Fetcher) *DocumentPage {
	return &DocumentPage{fetcher: fetcher}
}

// Load replaces the current document with html as if it had been served at url.
func (p *DocumentPage) Load(url, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse document %s: %w", url, err)
	}
	p.doc = doc
	p.url = url
	return nil
}

// URL returns the address of the loaded document.
func (p *DocumentPage) URL() string { return p.url }

func (p *DocumentPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.fetcher == nil {
		return fmt.Errorf("navigate to %s: no fetcher configured", url)
	}

	html, err := p.fetcher.Fetch(ctx, url, timeout)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return p.Load(url, html)
}

func (p *DocumentPage) QueryOne(ctx context.Context, selector string) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.doc == nil {
		return nil, ErrNotNavigated
	}

	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &documentElement{sel: sel}, nil
}

func (p *DocumentPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.doc == nil {
		return nil, ErrNotNavigated
	}

	var elements []Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &documentElement{sel: s})
	})
	return elements, nil
}

func (p *DocumentPage) WaitForSelector(ctx context.Context, selector string, _ time.Duration) (Element, error) {
	el, err := p.QueryOne(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrSelectorTimeout, selector)
	}
	return el, nil
}

func (p *DocumentPage) Close() error {
	p.doc = nil
	return nil
}

type documentElement struct {
	sel *goquery.Selection
}

func (e *documentElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

func (e *documentElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.sel.AttrOr(name, ""), nil
}
