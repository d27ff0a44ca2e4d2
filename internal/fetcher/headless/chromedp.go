// Package headless provides a PageProvider backed by a headless Chrome
// instance driven through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Config controls the browser launched by the provider.
type Config struct {
	Headless     bool   `mapstructure:"headless"`
	UserAgent    string `mapstructure:"user_agent"`
	ExecPath     string `mapstructure:"exec_path"`
	NoSandbox    bool   `mapstructure:"no_sandbox"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
	// MinNavigationInterval spaces out navigations; zero disables the limit.
	MinNavigationInterval time.Duration `mapstructure:"min_navigation_interval"`
}

const (
	defaultWindowWidth  = 1920
	defaultWindowHeight = 1080
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("headless provider closed")

// hideAutomation runs before any page script on every new document.
const hideAutomation = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-AU', 'en'] });
`

// Provider implements crawler.PageProvider with one browser tab.
type Provider struct {
	cfg         Config
	logger      *zap.Logger
	limiter     *rate.Limiter
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ crawler.PageProvider = (*Provider)(nil)

// New launches the browser and opens the tab used for every navigation.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = defaultWindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = defaultWindowHeight
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	p := &Provider{
		cfg:         cfg,
		logger:      logger,
		limiter:     newLimiter(cfg.MinNavigationInterval),
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}
	err := p.run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideAutomation).Do(ctx)
			return err
		}),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Info("Headless browser started",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.WindowWidth),
		zap.Int("height", cfg.WindowHeight),
	)
	return p, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Close shuts down the tab and the browser process.
func (p *Provider) Close() {
	if p == nil {
		return
	}
	p.tabCancel()
	p.allocCancel()
}

// run executes actions on the tab while honoring ctx's cancellation and
// deadline.
func (p *Provider) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.tabCtx.Err() != nil {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads rawURL and waits for the document body.
func (p *Provider) Navigate(ctx context.Context, rawURL string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigation limiter: %w", err)
		}
	}
	if err := p.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	return nil
}

// QueryAll returns every element in the document matching selector.
func (p *Provider) QueryAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	return p.queryNodes(ctx, selector)
}

func (p *Provider) queryNodes(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]crawler.Element, error) {
	var nodes []*cdp.Node
	opts = append(opts, chromedp.ByQueryAll, chromedp.AtLeast(0))
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{provider: p, node: n})
	}
	return out, nil
}

// Cookies returns the browser cookies visible to the current page.
func (p *Provider) Cookies(ctx context.Context) ([]crawler.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make([]crawler.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, fromNetworkCookie(c))
	}
	return out, nil
}

// SetCookies installs cookies into the browser.
func (p *Provider) SetCookies(ctx context.Context, cookies []crawler.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, toCookieParam(c))
	}
	if err := p.run(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Scroll scrolls the window vertically by deltaY pixels.
func (p *Provider) Scroll(ctx context.Context, deltaY int) error {
	script := fmt.Sprintf("window.scrollBy(0, %d);", deltaY)
	if err := p.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// MoveMouse dispatches a pointer move to (x, y).
func (p *Provider) MoveMouse(ctx context.Context, x, y float64) error {
	if err := p.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	return nil
}

// Viewport reports the inner size of the window.
func (p *Provider) Viewport(ctx context.Context) (int, int, error) {
	var size []float64
	if err := p.run(ctx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &size)); err != nil {
		return 0, 0, fmt.Errorf("viewport: %w", err)
	}
	if len(size) != 2 {
		return p.cfg.WindowWidth, p.cfg.WindowHeight, nil
	}
	return int(math.Round(size[0])), int(math.Round(size[1])), nil
}

type element struct {
	provider *Provider
	node     *cdp.Node
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	return e.provider.queryNodes(ctx, selector, chromedp.FromNode(e.node))
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.provider.run(ctx, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("node text: %w", err)
	}
	return text, nil
}

func (e *element) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attribute(name)
	return v, ok, nil
}

func fromNetworkCookie(c *network.Cookie) crawler.Cookie {
	out := crawler.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	// Session cookies report -1.
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		out.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return out
}

func toCookieParam(c crawler.Cookie) *network.CookieParam {
	param := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if !c.Expires.IsZero() {
		ts := cdp.TimeSinceEpoch(c.Expires)
		param.Expires = &ts
	}
	return param
}
