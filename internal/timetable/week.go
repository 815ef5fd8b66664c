package timetable

import (
	"strings"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/scrapers/portal"
	"time"
)

type WeekDay struct {
	Day     string   `json:"day"`
	Date    string   `json:"date"`
	Lessons []Lesson `json:"lessons"`
}

type Week struct {
	WeekStart string    `json:"weekStart"`
	Days      []WeekDay `json:"days"`
}

var weekdayOrder = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
}

// dayOffset finds the weekday of a column label, counted in days from monday.
func dayOffset(label string) (int, bool) {
	for i, weekday := range weekdayOrder {
		if strings.Contains(label, Abbreviation(weekday)) {
			return i, true
		}
	}
	return 0, false
}

// BuildWeek lays out every recognizable day column of week starting at monday, in document order.
// Columns whose label names no weekday are left out.
func BuildWeek(week portal.WeekSchedule, monday time.Time) Week {
	out := Week{
		WeekStart: chrono.FormatDate(monday),
		Days:      []WeekDay{},
	}
	for _, label := range week.Days {
		offset, ok := dayOffset(label)
		if !ok {
			continue
		}
		date := monday.AddDate(0, 0, offset)
		out.Days = append(out.Days, WeekDay{
			Day:     label,
			Date:    chrono.FormatDate(date),
			Lessons: ToLessons(week.Slots[label], date),
		})
	}
	return out
}
