package schemas

import (
	"strings"
	"time"
)

// -- Run Configuration Schemas --

// Mode selects what a run is allowed to do on the target site.
type Mode string

const (
	// ModeDryRun discovers targets and reports them without touching anything.
	ModeDryRun Mode = "dry-run"
	// ModeRepost clicks the repost control of every eligible target.
	ModeRepost Mode = "repost"
)

// Valid reports whether the mode is one the scheduler knows how to run.
func (m Mode) Valid() bool {
	return m == ModeDryRun || m == ModeRepost
}

// AuthStrategy selects how an automated (non-manual) run acquires a session.
type AuthStrategy string

const (
	AuthCredentials AuthStrategy = "credentials"
	AuthCookies     AuthStrategy = "cookies"
	// AuthManual is never configured directly; it is selected by ManualLoginEnabled.
	AuthManual AuthStrategy = "manual"
)

// SubmitPreference decides which control wins when several match a submit strategy.
type SubmitPreference string

const (
	// PreferSecond picks the second match when at least two exist. The first
	// "log in" control on the target site is usually a duplicate header button.
	PreferSecond SubmitPreference = "second"
	PreferFirst  SubmitPreference = "first"
)

// Pick returns the index to use out of n matching candidates, or -1 when n is zero.
func (p SubmitPreference) Pick(n int) int {
	switch {
	case n <= 0:
		return -1
	case n >= 2 && p != PreferFirst:
		return 1
	default:
		return 0
	}
}

// ListingFilter holds the predicates a listing row must satisfy to become a Target.
type ListingFilter struct {
	StatusIn      []string `json:"statusIn" yaml:"status_in"`
	TitleIncludes []string `json:"titleIncludes" yaml:"title_includes"`
	MaxActions    int      `json:"maxActions" yaml:"max_actions"`
}

// DelayRange bounds the randomized pacing delay before each action.
type DelayRange struct {
	MinMs int `json:"minMs" yaml:"min_ms"`
	MaxMs int `json:"maxMs" yaml:"max_ms"`
}

// Credentials are the stored account credentials used by the credential login strategy.
type Credentials struct {
	Email    string `json:"-" yaml:"-"`
	Password string `json:"-" yaml:"-"`
}

// Present reports whether both halves of the credential pair are set.
func (c Credentials) Present() bool {
	return strings.TrimSpace(c.Email) != "" && c.Password != ""
}

// SiteConfig captures every URL and selector the automation needs to know
// about the target site. They are isolated here because the site changes its
// markup from time to time.
type SiteConfig struct {
	LoginURL    string `mapstructure:"login_url" json:"loginUrl" yaml:"login_url"`
	ListingsURL string `mapstructure:"listings_url" json:"listingsUrl" yaml:"listings_url"`

	EmailInput    string `mapstructure:"email_input" json:"emailInput" yaml:"email_input"`
	PasswordInput string `mapstructure:"password_input" json:"passwordInput" yaml:"password_input"`
	LoginForm     string `mapstructure:"login_form" json:"loginForm" yaml:"login_form"`
	// LoginButtons are candidate controls filtered by their accessible "log in" text.
	LoginButtons  string `mapstructure:"login_buttons" json:"loginButtons" yaml:"login_buttons"`
	LoginText     string `mapstructure:"login_text" json:"loginText" yaml:"login_text"`
	SubmitButtons string `mapstructure:"submit_buttons" json:"submitButtons" yaml:"submit_buttons"`

	// AuthenticatedMarker only renders on the authenticated listings page.
	AuthenticatedMarker string `mapstructure:"authenticated_marker" json:"authenticatedMarker" yaml:"authenticated_marker"`
	ChallengeMarker     string `mapstructure:"challenge_marker" json:"challengeMarker" yaml:"challenge_marker"`

	ListingsTable  string `mapstructure:"listings_table" json:"listingsTable" yaml:"listings_table"`
	ListingRows    string `mapstructure:"listing_rows" json:"listingRows" yaml:"listing_rows"`
	HeaderCell     string `mapstructure:"header_cell" json:"headerCell" yaml:"header_cell"`
	TitleCell      string `mapstructure:"title_cell" json:"titleCell" yaml:"title_cell"`
	StatusCell     string `mapstructure:"status_cell" json:"statusCell" yaml:"status_cell"`
	PostingIDField string `mapstructure:"posting_id_field" json:"postingIdField" yaml:"posting_id_field"`
	PostingIDAttr  string `mapstructure:"posting_id_attr" json:"postingIdAttr" yaml:"posting_id_attr"`
	RepostControl  string `mapstructure:"repost_control" json:"repostControl" yaml:"repost_control"`
}

// RunConfig is the immutable configuration of a single run. It is built once
// at the process boundary and handed to every component by value.
type RunConfig struct {
	Mode               Mode             `json:"mode"`
	ListingFilter      ListingFilter    `json:"listingFilter"`
	DelayRange         DelayRange       `json:"delayRange"`
	SettleMs           int              `json:"settleMs"`
	TimeoutMs          int              `json:"timeoutMs"`
	Headless           bool             `json:"headless"`
	ManualLoginEnabled bool             `json:"manualLoginEnabled"`
	AuthStrategy       AuthStrategy     `json:"authStrategy"`
	SubmitPreference   SubmitPreference `json:"submitPreference"`
	Credentials        Credentials      `json:"-"`
	Site               SiteConfig       `json:"site"`
}

// maxLoginConfirmWait caps the post-submit confirmation wait so login can never
// consume the whole run budget.
const maxLoginConfirmWait = 60 * time.Second

// Timeout returns the run budget as a duration.
func (c RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LoginConfirmTimeout returns min(Timeout, 60s).
func (c RunConfig) LoginConfirmTimeout() time.Duration {
	if t := c.Timeout(); t > 0 && t < maxLoginConfirmWait {
		return t
	}
	return maxLoginConfirmWait
}

// SettleDelay returns the fixed post-action settle interval.
func (c RunConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// EffectiveAuthStrategy resolves the single acquisition strategy of the run.
func (c RunConfig) EffectiveAuthStrategy() AuthStrategy {
	if c.ManualLoginEnabled {
		return AuthManual
	}
	return c.AuthStrategy
}
