package listings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/mocks"
)

func TestMatches(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		filter schemas.ListingFilter
		row    schemas.ListingRow
		want   bool
	}{
		{"title substring is case-insensitive", schemas.ListingFilter{TitleIncludes: []string{"downtown"}}, schemas.ListingRow{Title: "2BR Apartment - Downtown"}, true},
		{"title OR over includes", schemas.ListingFilter{TitleIncludes: []string{"bike", "sofa"}}, schemas.ListingRow{Title: "Leather SOFA"}, true},
		{"title mismatch", schemas.ListingFilter{TitleIncludes: []string{"bike"}}, schemas.ListingRow{Title: "Leather sofa"}, false},
		{"empty includes pass everything", schemas.ListingFilter{}, schemas.ListingRow{Title: "anything"}, true},
		{"status membership", schemas.ListingFilter{StatusIn: []string{"expired", "removed"}}, schemas.ListingRow{Status: "expired"}, true},
		{"status membership is case-insensitive", schemas.ListingFilter{StatusIn: []string{"Expired"}}, schemas.ListingRow{Status: " EXPIRED "}, true},
		{"status is exact, not substring", schemas.ListingFilter{StatusIn: []string{"expired"}}, schemas.ListingRow{Status: "expired soon"}, false},
		{"status outside allow list", schemas.ListingFilter{StatusIn: []string{"expired"}}, schemas.ListingRow{Status: "active"}, false},
		{"unreadable status is never excluded", schemas.ListingFilter{StatusIn: []string{"expired"}}, schemas.ListingRow{Status: ""}, true},
		{"both predicates must hold", schemas.ListingFilter{StatusIn: []string{"active"}, TitleIncludes: []string{"bike"}}, schemas.ListingRow{Title: "bike", Status: "deleted"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Matches(tt.filter, tt.row))
		})
	}
}

var testSite = schemas.SiteConfig{
	ListingsTable:  "table.account-table",
	ListingRows:    "table.account-table tr",
	HeaderCell:     "th",
	TitleCell:      "td.title",
	StatusCell:     "td.status",
	PostingIDField: "input[name=postingID]",
	PostingIDAttr:  "value",
	RepostControl:  "input.repost",
}

type rowSpec struct {
	id, title, status string
	hidden            bool
	header            bool
	noControl         bool
	disabledControl   bool
}

func buildRow(spec rowSpec) (*mocks.FakeElement, *mocks.FakeElement) {
	row := &mocks.FakeElement{Name: "row-" + spec.title, Text: spec.title + " " + spec.status, Hidden: spec.hidden}
	if spec.header {
		return row.WithChild("th", mocks.NewFakeElement("th", "title")), nil
	}
	row.WithChild("td.title", mocks.NewFakeElement("title", spec.title))
	if spec.status != "" {
		row.WithChild("td.status", mocks.NewFakeElement("status", spec.status))
	}
	if spec.id != "" {
		row.WithChild("input[name=postingID]", mocks.NewFakeElement("id", "").WithAttr("value", spec.id))
	}
	if spec.noControl {
		return row, nil
	}
	control := mocks.NewFakeElement("repost-"+spec.title, "repost")
	if spec.disabledControl {
		control.WithAttr("disabled", "disabled")
	}
	row.WithChild("input.repost", control)
	return row, control
}

func listingsPage(specs ...rowSpec) *mocks.FakePage {
	page := mocks.NewFakePage()
	page.Set("table.account-table", mocks.NewFakeElement("table", ""))
	rows := make([]*mocks.FakeElement, 0, len(specs))
	for _, s := range specs {
		row, _ := buildRow(s)
		rows = append(rows, row)
	}
	page.Set("table.account-table tr", rows...)
	return page
}

func refs(targets []schemas.Target) []schemas.ListingRef {
	out := make([]schemas.ListingRef, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Ref())
	}
	return out
}

func TestDiscover(t *testing.T) {
	page := listingsPage(
		rowSpec{header: true},
		rowSpec{id: "101", title: "Road bike", status: "active"},
		rowSpec{id: "102", title: "Hidden desk", status: "active", hidden: true},
		rowSpec{id: "103", title: "Old couch", status: "expired"},
		rowSpec{id: "104", title: "Lamp", status: "deleted", noControl: true},
		rowSpec{id: "105", title: "Mirror", status: "active", disabledControl: true},
		rowSpec{title: "No id table", status: ""},
		rowSpec{id: "107", title: "Draft", status: "draft"},
	)

	d := NewDiscoverer(testSite, zaptest.NewLogger(t), 50*time.Millisecond)
	targets, err := d.Discover(context.Background(), page, schemas.ListingFilter{StatusIn: []string{"active", "expired"}})
	require.NoError(t, err)

	want := []schemas.ListingRef{
		{PostingID: "101", Title: "Road bike"},
		{PostingID: "103", Title: "Old couch"},
		{Title: "No id table"},
	}
	if diff := cmp.Diff(want, refs(targets)); diff != "" {
		t.Errorf("discovered targets mismatch (-want +got):\n%s", diff)
	}
	for _, target := range targets {
		assert.NotNil(t, target.Action)
	}
	assert.Equal(t, "title:No id table", targets[2].Key())
}

func TestDiscoverLogsEveryVisiblePosting(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	page := listingsPage(
		rowSpec{header: true},
		rowSpec{id: "1", title: "Bike", status: "active"},
		rowSpec{id: "2", title: "Desk", status: "active", noControl: true},
		rowSpec{id: "3", title: "Ghost", status: "active", hidden: true},
	)

	d := NewDiscoverer(testSite, zap.New(core), 50*time.Millisecond)
	_, err := d.Discover(context.Background(), page, schemas.ListingFilter{})
	require.NoError(t, err)

	postings := logs.FilterMessage("Posting row.").AllUntimed()
	require.Len(t, postings, 2, "hidden rows are not logged")
	for i, want := range []string{"Bike active", "Desk active"} {
		fields := postings[i].ContextMap()
		assert.EqualValues(t, i+1, fields["posting"])
		assert.Equal(t, want, fields["text"])
	}
}

func TestDiscoverMissingTable(t *testing.T) {
	page := mocks.NewFakePage()
	d := NewDiscoverer(testSite, zaptest.NewLogger(t), 20*time.Millisecond)

	targets, err := d.Discover(context.Background(), page, schemas.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDiscoverer(testSite, zaptest.NewLogger(t), time.Second)

	_, err := d.Discover(ctx, mocks.NewFakePage(), schemas.ListingFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverDegradesUnreadableFields(t *testing.T) {
	page := mocks.NewFakePage()
	page.Set("table.account-table", mocks.NewFakeElement("table", ""))

	row := mocks.NewFakeElement("row", "")
	row.TextErr = errors.New("detached")
	title := mocks.NewFakeElement("title", "")
	title.TextErr = errors.New("detached")
	row.WithChild("td.title", title).
		WithChild("td.status", mocks.NewFakeElement("status", "active")).
		WithChild("input.repost", mocks.NewFakeElement("repost", "repost"))

	next, _ := buildRow(rowSpec{id: "9", title: "Next row", status: "active"})
	page.Set("table.account-table tr", row, next)

	d := NewDiscoverer(testSite, zaptest.NewLogger(t), 20*time.Millisecond)
	targets, err := d.Discover(context.Background(), page, schemas.ListingFilter{TitleIncludes: nil})
	require.NoError(t, err)
	require.Len(t, targets, 2, "one unreadable field never drops the row or the ones after it")
	assert.Empty(t, targets[0].Title)
	assert.Equal(t, "active", targets[0].Status)
	assert.Equal(t, "Next row", targets[1].Title)
}

func TestDiscoverPreservesPageOrder(t *testing.T) {
	specs := make([]rowSpec, 0, 20)
	want := make([]schemas.ListingRef, 0, 20)
	for i := 20; i > 0; i-- {
		id := fmt.Sprint(i)
		specs = append(specs, rowSpec{id: id, title: "listing " + id, status: "active"})
		want = append(want, schemas.ListingRef{PostingID: id, Title: "listing " + id})
	}
	d := NewDiscoverer(testSite, zaptest.NewLogger(t), 20*time.Millisecond)
	targets, err := d.Discover(context.Background(), listingsPage(specs...), schemas.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, refs(targets)))
}
