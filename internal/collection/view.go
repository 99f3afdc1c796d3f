package collection

import (
	"fmt"
	"sort"

	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"golang.org/x/text/collate"
)

// SortOption orders a view of the collection
type SortOption string

const (
	SortTitleAsc   SortOption = "title-asc"
	SortTitleDesc  SortOption = "title-desc"
	SortAuthorAsc  SortOption = "author-asc"
	SortAuthorDesc SortOption = "author-desc"
)

// ParseSort accepts the sort option names; "" means title-asc
func ParseSort(value string) (SortOption, error) {
	switch opt := SortOption(value); opt {
	case "":
		return SortTitleAsc, nil
	case SortTitleAsc, SortTitleDesc, SortAuthorAsc, SortAuthorDesc:
		return opt, nil
	default:
		return "", fmt.Errorf("invalid sort option %q", value)
	}
}

// View returns the books on the given shelf (all shelves when status is
// empty) sorted by opt with locale-aware comparison.
func (s *Store) View(opt SortOption, status models.Status) []models.Book {
	books := s.List()

	filtered := books[:0]
	for _, book := range books {
		if status == "" || book.Status == status {
			filtered = append(filtered, book)
		}
	}

	// Collators are not safe for concurrent use; build one per view.
	collator := collate.New(s.locale)
	field := func(b models.Book) string { return b.Title }
	desc := false
	switch opt {
	case SortTitleDesc:
		desc = true
	case SortAuthorAsc:
		field = func(b models.Book) string { return b.Author }
	case SortAuthorDesc:
		field = func(b models.Book) string { return b.Author }
		desc = true
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		cmp := collator.CompareString(field(filtered[i]), field(filtered[j]))
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return filtered
}
