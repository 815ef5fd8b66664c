package portal

import (
	"stundenplan-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Extractor parses the rendered timetable grid into raw slots. It reads the document only.
type Extractor struct {
	Layout Layout
	Policy MarkerPolicy
}

// NewExtractor returns an Extractor with the default layout and marker policy.
func NewExtractor() Extractor {
	return Extractor{Layout: DefaultLayout, Policy: DefaultMarkerPolicy}
}

// own keeps the matches of selector that belong to table itself, not to a table nested in a cell.
func own(table *goquery.Selection, selector string) *goquery.Selection {
	return table.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest("table").IsSelection(table)
	})
}

func (e Extractor) dayLabels(table *goquery.Selection) []string {
	for _, selector := range e.Layout.HeaderCells {
		cells := own(table, selector)
		if cells.Length() == 0 {
			continue
		}
		labels := []string{}
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 {
				return
			}
			labels = append(labels, htmlutil.SelectionText(cell))
		})
		return labels
	}
	return []string{}
}

// regionText prefers the text of a nested span, an absent region yields "".
func regionText(lesson *goquery.Selection, selector string) string {
	region := lesson.Find(selector).First()
	if region.Length() == 0 {
		return ""
	}
	span := region.Find("span").First()
	if span.Length() > 0 {
		text := htmlutil.SelectionText(span)
		if text != "" {
			return text
		}
	}
	return htmlutil.SelectionText(region)
}

func (e Extractor) slot(lesson *goquery.Selection, hour int, day string) (RawSlot, bool) {
	subject := regionText(lesson, e.Layout.Subject)
	if subject == "" {
		return RawSlot{}, false
	}

	note := ""
	if e.Layout.Note != "" {
		note = htmlutil.SelectionText(lesson.Find(e.Layout.Note))
	}
	class := e.Policy.Classify(lesson, htmlutil.SelectionText(lesson), note)

	return RawSlot{
		Hour:           hour,
		Day:            day,
		Subject:        subject,
		Teacher:        regionText(lesson, e.Layout.Teacher),
		Room:           regionText(lesson, e.Layout.Room),
		IsSubstitution: class&Changed != 0,
		IsCancelled:    class&Cancelled != 0,
		Note:           note,
	}, true
}

// Extract reads the first timetable table of doc. A missing table yields an empty week, cells
// without a lesson element or without a subject contribute nothing.
func (e Extractor) Extract(doc *goquery.Document) WeekSchedule {
	table := doc.Find(e.Layout.Table).First()
	if table.Length() == 0 {
		return newWeekSchedule([]string{})
	}

	labels := e.dayLabels(table)
	week := newWeekSchedule(labels)
	// a repeated label belongs to the first column carrying it
	firstColumn := make(map[string]int, len(labels))
	for i := len(labels) - 1; i >= 0; i-- {
		firstColumn[labels[i]] = i
	}

	own(table, e.Layout.Rows).Each(func(row int, tr *goquery.Selection) {
		hour := row + 1
		tr.ChildrenFiltered(e.Layout.Cells).Each(func(col int, cell *goquery.Selection) {
			if col == 0 {
				return
			}
			dayIdx := col - 1
			if dayIdx >= len(labels) {
				return
			}
			lesson := cell.Find(e.Layout.Lesson).First()
			if lesson.Length() == 0 {
				return
			}
			day := labels[dayIdx]
			if firstColumn[day] != dayIdx {
				return
			}
			slot, ok := e.slot(lesson, hour, day)
			if !ok {
				return
			}
			week.Slots[day] = append(week.Slots[day], slot)
		})
	})

	return week
}
