package listings

import (
	"strings"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// Matches reports whether row passes both predicates of f. The title
// predicate is a case-insensitive substring OR; an empty list passes. The
// status predicate only applies when both the allow list and the row's status
// are non-empty, so rows whose status cell could not be read are not excluded.
func Matches(f schemas.ListingFilter, row schemas.ListingRow) bool {
	return titleMatches(f.TitleIncludes, row.Title) && statusMatches(f.StatusIn, row.Status)
}

func titleMatches(includes []string, title string) bool {
	if len(includes) == 0 {
		return true
	}
	folded := strings.ToLower(title)
	for _, needle := range includes {
		if strings.Contains(folded, strings.ToLower(strings.TrimSpace(needle))) {
			return true
		}
	}
	return false
}

func statusMatches(allowed []string, status string) bool {
	status = strings.TrimSpace(status)
	if len(allowed) == 0 || status == "" {
		return true
	}
	for _, s := range allowed {
		if strings.EqualFold(strings.TrimSpace(s), status) {
			return true
		}
	}
	return false
}
