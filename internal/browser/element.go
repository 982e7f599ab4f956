// internal/browser/element.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

const visibilityPollInterval = 100 * time.Millisecond

// JS bodies evaluated with `this` bound to the element.
const (
	jsIsVisible = `function() {
		if (!this.isConnected) return false;
		const style = window.getComputedStyle(this);
		if (style.display === 'none' || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
		const rect = this.getBoundingClientRect();
		return rect.width > 0 || rect.height > 0;
	}`
	jsInnerText = `function() { return (this.innerText || this.textContent || '').trim(); }`
	jsAttribute = `function(name) { return this.hasAttribute(name) ? this.getAttribute(name) : null; }`
)

// nodeElement is an Element backed by a DOM node of the session's tab.
type nodeElement struct {
	session *Session
	node    *cdp.Node
}

var _ schemas.Element = (*nodeElement)(nil)

// IsVisible reports whether the element becomes visible within timeout. A
// zero timeout checks once.
func (e *nodeElement) IsVisible(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		var visible bool
		if err := e.call(ctx, jsIsVisible, &visible); err == nil && visible {
			return true
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(visibilityPollInterval):
		}
	}
}

func (e *nodeElement) InnerText(ctx context.Context) (string, error) {
	var text string
	if err := e.call(ctx, jsInnerText, &text); err != nil {
		return "", fmt.Errorf("reading element text: %w", err)
	}
	return text, nil
}

func (e *nodeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value *string
	if err := e.call(ctx, jsAttribute, &value, name); err != nil {
		return "", false, fmt.Errorf("reading attribute %q: %w", name, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *nodeElement) Click(ctx context.Context, timeout time.Duration) error {
	opCtx, cancel := e.session.op(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Click([]cdp.NodeID{e.node.NodeID}, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click on <%s> failed: %w", e.node.LocalName, err)
	}
	return nil
}

// LocateAll finds descendants of this element.
func (e *nodeElement) LocateAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	return e.session.locate(ctx, selector, e.node)
}

// call runs fn with `this` bound to the element and decodes its return value into res.
func (e *nodeElement) call(ctx context.Context, fn string, res any, args ...string) error {
	opCtx, cancel := e.session.op(ctx, defaultActionTimeout)
	defer cancel()

	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}

	return chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolving node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		result, exception, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithArguments(callArgs).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return exception
		}
		if len(result.Value) == 0 {
			return nil
		}
		return json.Unmarshal(result.Value, res)
	}))
}
