// Package browsertest provides an in-memory storefront and a launcher that
// records page lifecycles, for exercising the crawler without a browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
)

var ErrNotFound = errors.New("page not found")

// Site serves canned HTML by exact URL and records every fetch.
type Site struct {
	mu       sync.Mutex
	pages    map[string]string
	handlers map[string]func() (string, error)
	visits   []string
}

func NewSite() *Site {
	return &Site{
		pages:    make(map[string]string),
		handlers: make(map[string]func() (string, error)),
	}
}

func (s *Site) Add(url, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	return s
}

// Handle installs fn as the responder for url, taking precedence over Add.
func (s *Site) Handle(url string, fn func() (string, error)) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[url] = fn
	return s
}

// Fail makes every fetch of url return err.
func (s *Site) Fail(url string, err error) *Site {
	return s.Handle(url, func() (string, error) { return "", err })
}

func (s *Site) Fetch(ctx context.Context, url string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.visits = append(s.visits, url)
	fn, hasHandler := s.handlers[url]
	html, hasPage := s.pages[url]
	s.mu.Unlock()

	if hasHandler {
		return fn()
	}
	if !hasPage {
		return "", fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return html, nil
}

// Visits returns the fetched URLs in order.
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

// VisitCount returns how often url was fetched.
func (s *Site) VisitCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.visits {
		if v == url {
			n++
		}
	}
	return n
}

// Launcher opens static sessions over a Site and counts what it hands out.
type Launcher struct {
	Site *Site
	// LaunchErr, when set, is returned by every Launch call.
	LaunchErr error

	launched       atomic.Int64
	sessionsClosed atomic.Int64
	pagesOpened    atomic.Int64
	pagesClosed    atomic.Int64
}

func NewLauncher(site *Site) *Launcher {
	return &Launcher{Site: site}
}

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.launched.Add(1)
	return &session{Session: browser.NewStaticSession(l.Site), l: l}, nil
}

func (l *Launcher) Launched() int64       { return l.launched.Load() }
func (l *Launcher) SessionsClosed() int64 { return l.sessionsClosed.Load() }
func (l *Launcher) PagesOpened() int64    { return l.pagesOpened.Load() }

// OpenPages is the number of pages opened but not yet closed.
func (l *Launcher) OpenPages() int64 {
	return l.pagesOpened.Load() - l.pagesClosed.Load()
}

type session struct {
	browser.Session
	l      *Launcher
	closed atomic.Bool
}

func (s *session) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := s.Session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	s.l.pagesOpened.Add(1)
	return &page{Page: p, l: s.l}, nil
}

func (s *session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.l.sessionsClosed.Add(1)
	}
	return s.Session.Close()
}

type page struct {
	browser.Page
	l      *Launcher
	closed atomic.Bool
}

func (p *page) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.l.pagesClosed.Add(1)
	}
	return p.Page.Close()
}
