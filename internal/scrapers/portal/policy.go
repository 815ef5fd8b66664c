package portal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Locator is one entry of a fallback chain, the first locator whose selector matches wins.
type Locator struct {
	Name     string
	Selector string
}

// LoginLocators holds the fallback chains used to find the login form, they are ordered most
// specific first to accommodate different markup of the login page.
type LoginLocators struct {
	Username []Locator
	Password []Locator
	// Submit may find nothing, in that case enter is pressed inside the password field.
	Submit []Locator
}

var DefaultLoginLocators = LoginLocators{
	Username: []Locator{
		{Name: "username name", Selector: `input[name="username"]`},
		{Name: "username id", Selector: `input#username`},
		{Name: "user name", Selector: `input[name="user"]`},
		{Name: "email type", Selector: `input[type="email"]`},
		{Name: "username autocomplete", Selector: `input[autocomplete="username"]`},
		{Name: "first text input", Selector: `form input[type="text"]`},
	},
	Password: []Locator{
		{Name: "password name", Selector: `input[name="password"]`},
		{Name: "password id", Selector: `input#password`},
		{Name: "password type", Selector: `input[type="password"]`},
	},
	Submit: []Locator{
		{Name: "submit button", Selector: `button[type="submit"]`},
		{Name: "submit input", Selector: `input[type="submit"]`},
		{Name: "form button", Selector: `form button`},
	},
}

// Classification is a bitset of deviations a marker signals.
type Classification int

const (
	Changed Classification = 1 << iota
	Cancelled
)

// Marker is a heuristic deviation signal, either a selector matched against the lesson element
// (itself or a descendant) or a case-insensitive substring of its text.
//
// The defaults are derived from observed portal markup and have a known false-negative risk: a
// renamed class silently stops being detected.
type Marker struct {
	Name           string
	Selector       string
	TextContains   string
	Classification Classification
}

func (m Marker) matches(lesson *goquery.Selection, lowerText string) bool {
	if m.Selector != "" && (lesson.Is(m.Selector) || lesson.Find(m.Selector).Length() > 0) {
		return true
	}
	if m.TextContains != "" && strings.Contains(lowerText, strings.ToLower(m.TextContains)) {
		return true
	}
	return false
}

// MarkerPolicy is the table consulted to classify a lesson element.
type MarkerPolicy []Marker

var DefaultMarkerPolicy = MarkerPolicy{
	{Name: "substitution class", Selector: ".substitution", Classification: Changed},
	{Name: "changed class", Selector: ".changed", Classification: Changed},
	{Name: "cancelled class", Selector: ".cancelled", Classification: Changed | Cancelled},
	{Name: "warning badge", Selector: ".badge-warning", Classification: Changed},
	{Name: "danger badge", Selector: ".badge-danger", Classification: Changed},
	{Name: "struck through", Selector: `[style*="line-through"]`, Classification: Changed},
	{Name: "cancelled text", TextContains: "entfällt", Classification: Cancelled},
	{Name: "cancelled text", TextContains: "fällt aus", Classification: Cancelled},
}

// Classify folds every matching marker into one classification, a non-empty note always counts
// as a change.
func (p MarkerPolicy) Classify(lesson *goquery.Selection, text, note string) Classification {
	var result Classification
	if note != "" {
		result |= Changed
	}
	lowerText := strings.ToLower(text)
	for _, m := range p {
		if m.matches(lesson, lowerText) {
			result |= m.Classification
		}
	}
	return result
}

// Layout holds the selectors describing the timetable grid.
type Layout struct {
	Table string
	// HeaderCells is a fallback chain, the first selector producing cells wins. The first cell is
	// the hour column and is skipped.
	HeaderCells []string
	Rows        string
	Cells       string
	Lesson      string
	Subject     string
	Teacher     string
	Room        string
	Note        string
}

var DefaultLayout = Layout{
	Table:       "table.timetable",
	HeaderCells: []string{"thead tr:first-child th", "tr:first-child th"},
	Rows:        "tbody tr:has(td)",
	Cells:       "td, th",
	Lesson:      ".lesson",
	Subject:     ".lesson-left",
	Teacher:     ".lesson-right",
	Room:        ".lesson-bottom",
	Note:        ".lesson-info, .substitution-info",
}
