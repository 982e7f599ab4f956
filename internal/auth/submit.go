// File: internal/auth/submit.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// ErrNoControl means a strategy found nothing it could activate.
var ErrNoControl = errors.New("no matching submit control")

const defaultStrategyTimeout = 5 * time.Second

// SubmitStrategy resolves and activates one kind of login submit control.
type SubmitStrategy interface {
	Name() string
	Timeout() time.Duration
	Submit(ctx context.Context, driver schemas.PageDriver) error
}

// SubmitChain tries each strategy in order until one submits the form.
type SubmitChain []SubmitStrategy

// DefaultSubmitChain is text match, then form submit buttons, then Enter.
func DefaultSubmitChain(site schemas.SiteConfig, pref schemas.SubmitPreference) SubmitChain {
	return SubmitChain{
		&TextMatchStrategy{Selector: site.LoginButtons, Text: site.LoginText, Preference: pref},
		&FormSubmitStrategy{Form: site.LoginForm, Buttons: site.SubmitButtons, Preference: pref},
		&EnterKeyStrategy{Field: site.PasswordInput},
	}
}

// Submit runs the chain and returns the name of the strategy that succeeded.
func (c SubmitChain) Submit(ctx context.Context, driver schemas.PageDriver, logger *zap.Logger) (string, error) {
	var errs []error
	for _, s := range c {
		sctx, cancel := context.WithTimeout(ctx, s.Timeout())
		err := s.Submit(sctx, driver)
		cancel()
		if err == nil {
			logger.Debug("Login form submitted.", zap.String("strategy", s.Name()))
			return s.Name(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("Submit strategy did not apply.", zap.String("strategy", s.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return "", fmt.Errorf("all submit strategies failed: %w", errors.Join(errs...))
}

// TextMatchStrategy clicks a control whose accessible text equals Text.
type TextMatchStrategy struct {
	Selector   string
	Text       string
	Preference schemas.SubmitPreference
	Wait       time.Duration
}

func (s *TextMatchStrategy) Name() string { return "text_match" }

func (s *TextMatchStrategy) Timeout() time.Duration { return orDefault(s.Wait) }

func (s *TextMatchStrategy) Submit(ctx context.Context, driver schemas.PageDriver) error {
	if s.Selector == "" || s.Text == "" {
		return ErrNoControl
	}
	candidates, err := driver.LocateAll(ctx, s.Selector)
	if err != nil {
		return err
	}
	want := normalize(s.Text)
	var matches []schemas.Element
	for _, el := range candidates {
		if !el.IsVisible(ctx, 0) {
			continue
		}
		if accessibleText(ctx, el) == want {
			matches = append(matches, el)
		}
	}
	return clickPreferred(ctx, matches, s.Preference, s.Timeout())
}

// FormSubmitStrategy clicks an enabled submit control inside the login form.
type FormSubmitStrategy struct {
	Form       string
	Buttons    string
	Preference schemas.SubmitPreference
	Wait       time.Duration
}

func (s *FormSubmitStrategy) Name() string { return "form_submit" }

func (s *FormSubmitStrategy) Timeout() time.Duration { return orDefault(s.Wait) }

func (s *FormSubmitStrategy) Submit(ctx context.Context, driver schemas.PageDriver) error {
	if s.Form == "" || s.Buttons == "" {
		return ErrNoControl
	}
	forms, err := driver.LocateAll(ctx, s.Form)
	if err != nil {
		return err
	}
	var matches []schemas.Element
	for _, form := range forms {
		buttons, err := form.LocateAll(ctx, s.Buttons)
		if err != nil {
			continue
		}
		for _, b := range buttons {
			if disabled(ctx, b) || !b.IsVisible(ctx, 0) {
				continue
			}
			matches = append(matches, b)
		}
	}
	return clickPreferred(ctx, matches, s.Preference, s.Timeout())
}

// EnterKeyStrategy presses Enter in the password field.
type EnterKeyStrategy struct {
	Field string
	Wait  time.Duration
}

func (s *EnterKeyStrategy) Name() string { return "enter_key" }

func (s *EnterKeyStrategy) Timeout() time.Duration { return orDefault(s.Wait) }

func (s *EnterKeyStrategy) Submit(ctx context.Context, driver schemas.PageDriver) error {
	if s.Field == "" {
		return ErrNoControl
	}
	return driver.Press(ctx, s.Field, "Enter")
}

func clickPreferred(ctx context.Context, matches []schemas.Element, pref schemas.SubmitPreference, timeout time.Duration) error {
	idx := pref.Pick(len(matches))
	if idx < 0 {
		return ErrNoControl
	}
	return matches[idx].Click(ctx, timeout)
}

// accessibleText approximates the accessible name: visible text, then the
// value of input controls, then aria-label.
func accessibleText(ctx context.Context, el schemas.Element) string {
	if text, err := el.InnerText(ctx); err == nil && normalize(text) != "" {
		return normalize(text)
	}
	for _, attr := range []string{"value", "aria-label"} {
		if v, ok, err := el.Attribute(ctx, attr); err == nil && ok && normalize(v) != "" {
			return normalize(v)
		}
	}
	return ""
}

func disabled(ctx context.Context, el schemas.Element) bool {
	if _, ok, err := el.Attribute(ctx, "disabled"); err == nil && ok {
		return true
	}
	v, ok, err := el.Attribute(ctx, "aria-disabled")
	return err == nil && ok && strings.EqualFold(v, "true")
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func orDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultStrategyTimeout
}
