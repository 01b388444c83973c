// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// View selects the primary sort key of the result list. The secondary key
// is always DateAdded descending.
type View string

const (
	ViewDateAdded View = "date_added"
	ViewTopic     View = "topic"
	ViewJournal   View = "journal"
	ViewYear      View = "year"
)

// ParseView maps a user-supplied name to a View. Unknown names fall back
// to ViewDateAdded and report false.
func ParseView(s string) (View, bool) {
	switch View(s) {
	case ViewDateAdded, ViewTopic, ViewJournal, ViewYear:
		return View(s), true
	case "":
		return ViewDateAdded, true
	default:
		return ViewDateAdded, false
	}
}

// FilterDimension names one filterable field.
type FilterDimension string

const (
	FilterTopic   FilterDimension = "topic"
	FilterJournal FilterDimension = "journal"
	FilterYear    FilterDimension = "year"
)

// FilterSet holds the selected value per dimension. An empty string means
// the dimension is unset and does not constrain results. Active
// dimensions combine with AND semantics.
type FilterSet struct {
	Topic   string `json:"topic" yaml:"topic"`
	Journal string `json:"journal" yaml:"journal"`
	Year    string `json:"year" yaml:"year"`
}

// IsEmpty reports whether no dimension is set.
func (f FilterSet) IsEmpty() bool {
	return f.Topic == "" && f.Journal == "" && f.Year == ""
}

// With returns a copy of f with dimension d set to value.
func (f FilterSet) With(d FilterDimension, value string) FilterSet {
	switch d {
	case FilterTopic:
		f.Topic = value
	case FilterJournal:
		f.Journal = value
	case FilterYear:
		f.Year = value
	}
	return f
}
