// File: internal/reporting/summary.go
package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// ErrSummaryWritten is returned when a summary is persisted more than once.
var ErrSummaryWritten = errors.New("run summary already written")

const pessimisticMessage = "run did not complete"

// SummaryBuilder accumulates the run summary. It starts pessimistic so any
// path that never reaches a terminal branch still reports an error.
type SummaryBuilder struct {
	mu      sync.Mutex
	summary schemas.RunSummary
	written bool
	now     func() time.Time
}

// NewSummaryBuilder starts a summary for runID in the pessimistic state.
func NewSummaryBuilder(runID string, mode schemas.Mode, now func() time.Time) *SummaryBuilder {
	if now == nil {
		now = time.Now
	}
	return &SummaryBuilder{
		now: now,
		summary: schemas.RunSummary{
			RunID:     runID,
			Status:    schemas.StatusError,
			Mode:      mode,
			ErrorCode: schemas.ErrCodeUnexpected,
			Message:   pessimisticMessage,
			ActedOn:   []schemas.ListingRef{},
			StartedAt: now().UTC(),
		},
	}
}

// Finish replaces the summary wholesale with a terminal record. Run identity
// and diagnostics captured so far are carried over.
func (b *SummaryBuilder) Finish(s schemas.RunSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.summary
	s.RunID = prev.RunID
	s.StartedAt = prev.StartedAt
	if s.Mode == "" {
		s.Mode = prev.Mode
	}
	if s.ActedOn == nil {
		s.ActedOn = []schemas.ListingRef{}
	}
	s.Diagnostics = append(prev.Diagnostics, s.Diagnostics...)
	if s.Status == schemas.StatusOK {
		s.ErrorCode = ""
	}
	b.summary = s
}

// Fail marks the summary as failed with err's code and message, keeping
// every counter recorded so far.
func (b *SummaryBuilder) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary.Status = schemas.StatusError
	b.summary.ErrorCode = schemas.CodeOf(err)
	b.summary.Message = schemas.MessageOf(err)
}

// AddDiagnostics attaches a capture result.
func (b *SummaryBuilder) AddDiagnostics(d schemas.Diagnostics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary.Diagnostics = append(b.summary.Diagnostics, d)
}

// Snapshot returns a copy of the current summary.
func (b *SummaryBuilder) Snapshot() schemas.RunSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.summary
	s.ActedOn = append([]schemas.ListingRef{}, s.ActedOn...)
	s.WouldActOn = append([]schemas.ListingRef(nil), s.WouldActOn...)
	s.Failures = append([]schemas.ActionFailure(nil), s.Failures...)
	s.Diagnostics = append([]schemas.Diagnostics(nil), s.Diagnostics...)
	return s
}

// Persist writes the summary under the summary key. Only the first call
// writes; later calls return ErrSummaryWritten.
func (b *SummaryBuilder) Persist(ctx context.Context, store schemas.KeyValueStore) (schemas.RunSummary, error) {
	b.mu.Lock()
	if b.written {
		b.mu.Unlock()
		return b.Snapshot(), ErrSummaryWritten
	}
	b.written = true
	b.summary.FinishedAt = b.now().UTC()
	b.mu.Unlock()

	s := b.Snapshot()
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return s, fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := store.SetValue(ctx, schemas.KeyRunSummary, raw, schemas.ContentTypeJSON); err != nil {
		return s, fmt.Errorf("failed to write run summary: %w", err)
	}
	return s, nil
}
