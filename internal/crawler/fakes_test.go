package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeNode is an in-memory Element keyed by selector.
type fakeNode struct {
	text     string
	textErr  error
	attrs    map[string]string
	children map[string][]Element
}

func (n *fakeNode) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.children[selector], nil
}

func (n *fakeNode) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return n.text, n.textErr
}

func (n *fakeNode) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := n.attrs[name]
	return v, ok, nil
}

func textNode(s string) *fakeNode {
	return &fakeNode{text: s}
}

type cardOption func(*fakeNode)

func withLocality(line string) cardOption {
	return func(n *fakeNode) {
		n.children[DefaultSelectors().AddressLine2] = []Element{textNode(line)}
	}
}

func withFeatures(slots ...string) cardOption {
	return func(n *fakeNode) {
		wrapper := &fakeNode{children: map[string][]Element{}}
		for _, s := range slots {
			wrapper.children[DefaultSelectors().FeatureText] = append(wrapper.children[DefaultSelectors().FeatureText], textNode(s))
		}
		n.children[DefaultSelectors().FeaturesWrapper] = []Element{wrapper}
	}
}

func withAlt(alt string) cardOption {
	return func(n *fakeNode) {
		img := &fakeNode{attrs: map[string]string{"alt": alt}}
		n.children[DefaultSelectors().LazyImage] = []Element{img}
	}
}

func withTag(tag string) cardOption {
	return func(n *fakeNode) {
		n.children[DefaultSelectors().ListingCardTag] = []Element{textNode(tag)}
	}
}

func withoutAddress() cardOption {
	return func(n *fakeNode) {
		delete(n.children, DefaultSelectors().AddressLine1)
	}
}

// listingCard builds a card carrying the primary fields under the default selectors.
func listingCard(address string, opts ...cardOption) *fakeNode {
	sel := DefaultSelectors()
	n := &fakeNode{children: map[string][]Element{
		sel.AddressLine1: {textNode(address)},
		sel.AgentName:    {textNode("Jane Agent")},
		sel.AgencyName:   {textNode("Harcourts Carlton")},
		sel.Price:        {textNode(" $1,250,000 ")},
	}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func cards(page, n int) []Element {
	out := make([]Element, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, listingCard(fmt.Sprintf("%d/%d Lygon Street", page, i+1)))
	}
	return out
}

// fakeProvider serves canned listing cards per page number.
type fakeProvider struct {
	mu sync.Mutex

	pages    map[int][]Element
	fallback int
	navErr   map[int]error
	panicOn  int

	current    int
	visited    []string
	cookieSets [][]Cookie
	scrolls    []int
	moves      [][2]float64
}

func newFakeProvider(pages map[int][]Element) *fakeProvider {
	return &fakeProvider{pages: pages, navErr: map[int]error{}}
}

func (p *fakeProvider) Navigate(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_, page, err := SplitPageURL(rawURL)
	if err != nil {
		return err
	}
	p.visited = append(p.visited, rawURL)
	if err := p.navErr[page]; err != nil {
		return err
	}
	p.current = page
	return nil
}

func (p *fakeProvider) QueryAll(_ context.Context, selector string) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != DefaultSelectors().ListingCard {
		return nil, errors.New("unexpected selector " + selector)
	}
	if p.panicOn != 0 && p.current == p.panicOn {
		panic("renderer crashed")
	}
	if found, ok := p.pages[p.current]; ok {
		return found, nil
	}
	return cards(p.current, p.fallback), nil
}

func (p *fakeProvider) Cookies(context.Context) ([]Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []Cookie{{Name: "session", Value: fmt.Sprintf("p%d", p.current), Domain: "example.com", Path: "/"}}, nil
}

func (p *fakeProvider) SetCookies(_ context.Context, cookies []Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookieSets = append(p.cookieSets, append([]Cookie(nil), cookies...))
	return nil
}

func (p *fakeProvider) Scroll(_ context.Context, deltaY int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, deltaY)
	return nil
}

func (p *fakeProvider) MoveMouse(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves = append(p.moves, [2]float64{x, y})
	return nil
}

func (p *fakeProvider) Viewport(context.Context) (int, int, error) {
	return 1280, 800, nil
}

func (p *fakeProvider) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// recordingSink captures every exported result.
type recordingSink struct {
	mu      sync.Mutex
	results []AttemptResult
	err     error
}

func (s *recordingSink) Export(ctx context.Context, result AttemptResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	s.results = append(s.results, result)
	if s.err != nil {
		return "", s.err
	}
	return "/out/listings.csv", nil
}

func (s *recordingSink) Results() []AttemptResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AttemptResult(nil), s.results...)
}
