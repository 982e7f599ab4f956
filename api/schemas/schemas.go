package schemas

import (
	"time"
)

// -- Session State --

// SessionState is derived by observing the current page. It is never cached
// across navigations because the site can invalidate a session at any time.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	ChallengeDetected
	Expired
)

func (s SessionState) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case ChallengeDetected:
		return "challenge_detected"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// -- Listing Schemas --

// ListingRow is one visible row of the account's listing table. Rows are
// rebuilt from scratch on every read; the page is the only source of truth.
type ListingRow struct {
	PostingID string
	Title     string
	Status    string
	// Action is the clickable repost control, nil when the row is not repostable.
	Action Element
}

// Target is a ListingRow that passed the filter and carries an action handle.
// A Target with a posting id is consumed at most once per run.
type Target struct {
	ListingRow
}

// Key labels the listing in logs. Titles are not unique, so only the posting
// id identifies a listing across re-discoveries.
func (t Target) Key() string {
	if t.PostingID != "" {
		return "id:" + t.PostingID
	}
	return "title:" + t.Title
}

// Ref returns the reportable reference for this target.
func (t Target) Ref() ListingRef {
	return ListingRef{PostingID: t.PostingID, Title: t.Title}
}

// ListingRef is the identity of a listing as recorded in the run summary.
type ListingRef struct {
	PostingID string `json:"postingId,omitempty"`
	Title     string `json:"title"`
}

// -- Summary Schemas --

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusOK    RunStatus = "ok"
	StatusError RunStatus = "error"
)

// ActionFailure records a single target whose click was rejected.
type ActionFailure struct {
	ListingRef
	Error string `json:"error"`
}

// Diagnostics is the outcome of a best-effort artifact capture.
type Diagnostics struct {
	Tag           string    `json:"tag"`
	ScreenshotKey string    `json:"screenshotKey,omitempty"`
	HTMLKey       string    `json:"htmlKey,omitempty"`
	PageTitle     string    `json:"pageTitle,omitempty"`
	TableRows     int       `json:"tableRows"`
	MarkerPresent bool      `json:"markerPresent"`
	Errors        []string  `json:"errors,omitempty"`
	CapturedAt    time.Time `json:"capturedAt"`
}

// RunSummary is the run's single durable result.
type RunSummary struct {
	RunID              string          `json:"runId"`
	Status             RunStatus       `json:"status"`
	Mode               Mode            `json:"mode"`
	ErrorCode          ErrorCode       `json:"errorCode,omitempty"`
	Message            string          `json:"message"`
	RepostFound        int             `json:"repostFound"`
	RepostClicked      int             `json:"repostClicked"`
	ActedOn            []ListingRef    `json:"actedOn"`
	WouldActOn         []ListingRef    `json:"wouldActOn,omitempty"`
	Failures           []ActionFailure `json:"failures,omitempty"`
	Unconfirmed        *ListingRef     `json:"unconfirmed,omitempty"`
	VerificationBanner *bool           `json:"verificationBanner,omitempty"`
	Diagnostics        []Diagnostics   `json:"diagnostics,omitempty"`
	StartedAt          time.Time       `json:"startedAt"`
	FinishedAt         time.Time       `json:"finishedAt"`
}
