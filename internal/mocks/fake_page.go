package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// ErrNotVisible is returned by FakePage.WaitForSelector on timeout.
var ErrNotVisible = errors.New("selector not visible")

// FakePage is a scriptable in-memory schemas.PageDriver. Elements are keyed
// by the exact selector string callers use. Hooks let tests change the page
// in response to navigation or clicks, the way a real site would.
type FakePage struct {
	mu sync.Mutex

	url      string
	elements map[string][]*FakeElement
	cookies  []schemas.Cookie
	calls    []string

	// OnGoto runs after every successful navigation, before Goto returns.
	OnGoto func(p *FakePage, url string)
	// GotoErr, when set, is returned by every Goto.
	GotoErr error

	HTML          string
	ContentErr    error
	Shot          []byte
	ScreenshotErr error
	CookiesErr    error

	// PollInterval is how often WaitForSelector re-checks the page.
	PollInterval time.Duration
}

var _ schemas.PageDriver = (*FakePage)(nil)

// NewFakePage creates an empty page.
func NewFakePage() *FakePage {
	return &FakePage{
		elements:     map[string][]*FakeElement{},
		Shot:         []byte("\x89PNG"),
		HTML:         "<html><head><title>fake</title></head><body></body></html>",
		PollInterval: 2 * time.Millisecond,
	}
}

// Set replaces the elements matched by selector.
func (p *FakePage) Set(selector string, elements ...*FakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range elements {
		e.page = p
	}
	p.elements[selector] = elements
}

// Clear removes every element matched by selector.
func (p *FakePage) Clear(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Calls returns the recorded interactions in order.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallCount counts recorded interactions equal to call.
func (p *FakePage) CallCount(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (p *FakePage) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// SetCookies seeds the browser cookie jar.
func (p *FakePage) SetCookies(cookies []schemas.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append([]schemas.Cookie(nil), cookies...)
}

func (p *FakePage) Goto(ctx context.Context, url string, _ schemas.WaitCondition, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record("goto %s", url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.mu.Lock()
	p.url = url
	hook := p.OnGoto
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if p.anyVisible(selector) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrNotVisible, selector)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.PollInterval):
		}
	}
}

func (p *FakePage) anyVisible(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.elements[selector] {
		if e.visible() {
			return true
		}
	}
	return false
}

func (p *FakePage) LocateAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	found := p.elements[selector]
	out := make([]schemas.Element, 0, len(found))
	for _, e := range found {
		out = append(out, e)
	}
	return out, nil
}

func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	if !p.anyVisible(selector) {
		return fmt.Errorf("fill: %w: %s", ErrNotVisible, selector)
	}
	p.record("fill %s", selector)
	return nil
}

func (p *FakePage) Press(ctx context.Context, selector, key string) error {
	if !p.anyVisible(selector) {
		return fmt.Errorf("press: %w: %s", ErrNotVisible, selector)
	}
	p.record("press %s %s", selector, key)
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.record("screenshot")
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return p.Shot, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.record("content")
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	return p.HTML, nil
}

func (p *FakePage) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.Cookie(nil), p.cookies...), nil
}

func (p *FakePage) AddCookies(ctx context.Context, cookies []schemas.Cookie) error {
	p.record("add_cookies %d", len(cookies))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// FakeElement is a node on a FakePage.
type FakeElement struct {
	mu sync.Mutex

	Name    string
	Text    string
	Attrs   map[string]string
	Hidden  bool
	TextErr error
	// ClickErr, when set, is returned by Click.
	ClickErr error
	// OnClick runs after a successful click.
	OnClick func(p *FakePage)

	children map[string][]*FakeElement
	clicks   int
	page     *FakePage
}

var _ schemas.Element = (*FakeElement)(nil)

// NewFakeElement creates a visible element.
func NewFakeElement(name, text string) *FakeElement {
	return &FakeElement{Name: name, Text: text, Attrs: map[string]string{}}
}

// WithAttr sets an attribute and returns the element.
func (e *FakeElement) WithAttr(name, value string) *FakeElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Attrs == nil {
		e.Attrs = map[string]string{}
	}
	e.Attrs[name] = value
	return e
}

// WithChild registers a descendant matched by selector and returns the element.
func (e *FakeElement) WithChild(selector string, children ...*FakeElement) *FakeElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.children == nil {
		e.children = map[string][]*FakeElement{}
	}
	e.children[selector] = append(e.children[selector], children...)
	return e
}

// Clicks returns how many times the element was clicked successfully.
func (e *FakeElement) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *FakeElement) visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Hidden
}

func (e *FakeElement) IsVisible(ctx context.Context, _ time.Duration) bool {
	return ctx.Err() == nil && e.visible()
}

func (e *FakeElement) InnerText(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.Text, nil
}

func (e *FakeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *FakeElement) Click(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	err := e.ClickErr
	hook := e.OnClick
	page := e.page
	if err == nil {
		e.clicks++
	}
	e.mu.Unlock()

	if page != nil {
		page.record("click %s", e.Name)
	}
	if err != nil {
		return err
	}
	if hook != nil && page != nil {
		hook(page)
	}
	return nil
}

func (e *FakeElement) LocateAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	found := e.children[selector]
	out := make([]schemas.Element, 0, len(found))
	for _, c := range found {
		c.page = e.page
		out = append(out, c)
	}
	return out, nil
}
