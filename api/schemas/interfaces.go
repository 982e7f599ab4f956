package schemas

import (
	"context"
	"time"
)

// -- Page Driver Interfaces --

// WaitCondition is the load state Goto waits for before returning.
type WaitCondition string

const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
)

// Cookie is the driver-neutral representation of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// PageDriver abstracts a single browser page. The orchestrator holds the only
// reference; every other component borrows it for the duration of a call.
type PageDriver interface {
	Goto(ctx context.Context, url string, until WaitCondition, timeout time.Duration) error
	// WaitForSelector blocks until the selector is visible or the timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	LocateAll(ctx context.Context, selector string) ([]Element, error)
	Fill(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Content(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookies(ctx context.Context, cookies []Cookie) error
	URL(ctx context.Context) (string, error)
}

// Element is a handle to a node on the current page. Handles go stale after
// any navigation and must be re-located.
type Element interface {
	IsVisible(ctx context.Context, timeout time.Duration) bool
	InnerText(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context, timeout time.Duration) error
	LocateAll(ctx context.Context, selector string) ([]Element, error)
}

// -- Storage Interfaces --

// Well-known keys in the run's key-value store.
const (
	KeyCookies    = "cookies"
	KeyLoginShot  = "login.png"
	KeyPageHTML   = "page.html"
	KeyRunSummary = "summary"
)

// Content types used for stored records.
const (
	ContentTypeJSON = "application/json"
	ContentTypePNG  = "image/png"
	ContentTypeHTML = "text/html"
)

// KeyValueStore is a durable key-value store scoped to a namespace.
type KeyValueStore interface {
	// GetValue returns the stored bytes and false when the key does not exist.
	GetValue(ctx context.Context, key string) ([]byte, bool, error)
	SetValue(ctx context.Context, key string, value []byte, contentType string) error
	Close() error
}
