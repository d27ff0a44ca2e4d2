// Package collyfetcher implements a static-markup PageProvider using gocolly
// and goquery. It does not execute JavaScript; scroll and pointer movement
// are accepted and ignored.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	// Timeout caps one page request. Config.StaticConfig fills it from the
	// crawler navigation timeout when unset.
	Timeout time.Duration `mapstructure:"timeout"`
	// ViewportWidth and ViewportHeight are reported to the pacer.
	ViewportWidth  int `mapstructure:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height"`
}

// ErrNoDocument is returned by queries made before a successful Navigate.
var ErrNoDocument = errors.New("no document loaded")

// Provider implements crawler.PageProvider over plain HTTP.
type Provider struct {
	cfg       Config
	collector *colly.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	doc     *goquery.Document
	current *url.URL
}

var _ crawler.PageProvider = (*Provider)(nil)

// New builds a Provider with its own collector and cookie jar.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Provider{cfg: cfg, collector: c, logger: logger}
}

// Navigate fetches rawURL and parses the response as the current document.
func (p *Provider) Navigate(ctx context.Context, rawURL string) error {
	target, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	var (
		doc      *goquery.Document
		parseErr error
	)
	// Clones share the HTTP backend and cookie jar but not callbacks.
	collector := p.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		p.logger.Debug("static page fetched",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Int("bytes", len(r.Body)),
		)
	})

	if err := runCollector(ctx, collector, rawURL); err != nil {
		return err
	}
	if parseErr != nil {
		return fmt.Errorf("parse document: %w", parseErr)
	}
	if doc == nil {
		return fmt.Errorf("no response for %s", rawURL)
	}

	p.mu.Lock()
	p.doc = doc
	p.current = target
	p.mu.Unlock()
	return nil
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// QueryAll matches selector against the current document.
func (p *Provider) QueryAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	return wrap(doc.Find(selector)), nil
}

// Cookies returns the jar cookies for the current page.
func (p *Provider) Cookies(context.Context) ([]crawler.Cookie, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	jar := p.collector.Cookies(current.String())
	out := make([]crawler.Cookie, 0, len(jar))
	for _, c := range jar {
		out = append(out, crawler.CookieFromHTTP(c))
	}
	return out, nil
}

// SetCookies stores cookies in the jar for the current page's host.
func (p *Provider) SetCookies(_ context.Context, cookies []crawler.Cookie) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil || len(cookies) == 0 {
		return nil
	}
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, c.ToHTTP())
	}
	if err := p.collector.SetCookies(current.String(), httpCookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Scroll is a no-op for static documents.
func (p *Provider) Scroll(ctx context.Context, _ int) error {
	return ctx.Err()
}

// MoveMouse is a no-op for static documents.
func (p *Provider) MoveMouse(ctx context.Context, _, _ float64) error {
	return ctx.Err()
}

// Viewport reports the configured viewport size.
func (p *Provider) Viewport(context.Context) (int, int, error) {
	return p.cfg.ViewportWidth, p.cfg.ViewportHeight, nil
}

type element struct {
	sel *goquery.Selection
}

func wrap(sel *goquery.Selection) []crawler.Element {
	out := make([]crawler.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out
}

func (e element) QueryAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wrap(e.sel.Find(selector)), nil
}

// Text approximates rendered text by collapsing whitespace runs.
func (e element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e element) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
