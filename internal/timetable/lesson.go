// Package timetable turns raw portal slots into lessons and derives substitutions from them.
// Everything in here is pure.
package timetable

import (
	"fmt"
	"stundenplan-backend/internal/components/chrono"
	"stundenplan-backend/internal/scrapers/portal"
	"time"
)

type Lesson struct {
	Id      string `json:"id"`
	Subject string `json:"subject"`
	Teacher string `json:"teacher"`
	Room    string `json:"room"`
	// OriginalRoom is the regular room of a moved lesson. The portal grid does not expose it, so
	// extraction never fills it in.
	OriginalRoom   string `json:"originalRoom,omitempty"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	LessonNumber   int    `json:"lessonNumber"`
	Date           string `json:"date"`
	IsSubstitution bool   `json:"isSubstitution"`
	IsCancelled    bool   `json:"isCancelled"`
	Note           string `json:"note,omitempty"`
}

// LessonId is deterministic in date and lesson number.
func LessonId(date string, hour int) string {
	return fmt.Sprintf("%s-%d", date, hour)
}

// PeriodTimes approximates the clock times of a lesson with 45 minute periods starting at 08:00.
// It is not a real bell schedule and has to stay exactly like this for compatibility with
// existing clients.
func PeriodTimes(hour int) (start, end string) {
	elapsed := (hour - 1) * 45
	startHour := 8 + (hour-1)*3/4
	startMinute := elapsed % 60
	endMinute := (startMinute + 45) % 60
	endHour := startHour + (startMinute+45)/60
	return fmt.Sprintf("%02d:%02d", startHour, startMinute), fmt.Sprintf("%02d:%02d", endHour, endMinute)
}

// ToLessons converts the slots of one day into lessons on date. Slots without a subject are
// dropped.
func ToLessons(slots []portal.RawSlot, date time.Time) []Lesson {
	day := chrono.FormatDate(date)
	lessons := make([]Lesson, 0, len(slots))
	for _, slot := range slots {
		if slot.Subject == "" {
			continue
		}
		start, end := PeriodTimes(slot.Hour)
		lessons = append(lessons, Lesson{
			Id:             LessonId(day, slot.Hour),
			Subject:        slot.Subject,
			Teacher:        slot.Teacher,
			Room:           slot.Room,
			StartTime:      start,
			EndTime:        end,
			LessonNumber:   slot.Hour,
			Date:           day,
			IsSubstitution: slot.IsSubstitution,
			IsCancelled:    slot.IsCancelled,
			Note:           slot.Note,
		})
	}
	return lessons
}

// CancelledOnly keeps the cancelled lessons.
func CancelledOnly(lessons []Lesson) []Lesson {
	out := []Lesson{}
	for _, l := range lessons {
		if l.IsCancelled {
			out = append(out, l)
		}
	}
	return out
}

var weekdayAbbreviations = map[time.Weekday]string{
	time.Monday:    "Mo",
	time.Tuesday:   "Di",
	time.Wednesday: "Mi",
	time.Thursday:  "Do",
	time.Friday:    "Fr",
}

// Abbreviation returns the short german weekday name used by the portal headers, weekends have
// none.
func Abbreviation(weekday time.Weekday) string {
	return weekdayAbbreviations[weekday]
}

// DaySlots picks the column of date out of a week, a date without a matching column has no
// slots.
func DaySlots(week portal.WeekSchedule, date time.Time) []portal.RawSlot {
	_, slots, ok := week.Lookup(Abbreviation(date.Weekday()))
	if !ok {
		return []portal.RawSlot{}
	}
	return slots
}

// DayLessons is DaySlots followed by ToLessons.
func DayLessons(week portal.WeekSchedule, date time.Time) []Lesson {
	return ToLessons(DaySlots(week, date), date)
}
