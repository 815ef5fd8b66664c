package commands

import (
	"fmt"
	"io"
	"stundenplan-backend/internal/timetable"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	cancelledStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Strikethrough(true)
	substitutionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headingStyle      = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// headers are german labels, keep their casing
	t.Style().Format.Header = text.FormatDefault
	t.SetOutputMirror(w)
	return t
}

func lessonStatus(l timetable.Lesson) string {
	switch {
	case l.IsCancelled:
		return "entfällt"
	case l.IsSubstitution:
		return "Vertretung"
	default:
		return ""
	}
}

func styleFor(l timetable.Lesson) lipgloss.Style {
	switch {
	case l.IsCancelled:
		return cancelledStyle
	case l.IsSubstitution:
		return substitutionStyle
	default:
		return lipgloss.NewStyle()
	}
}

func lessonRow(l timetable.Lesson) table.Row {
	style := styleFor(l)
	return table.Row{
		l.LessonNumber,
		fmt.Sprintf("%s-%s", l.StartTime, l.EndTime),
		style.Render(l.Subject),
		style.Render(l.Teacher),
		style.Render(l.Room),
		l.Note,
		lessonStatus(l),
	}
}

func renderLessons(w io.Writer, lessons []timetable.Lesson) {
	if len(lessons) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no lessons"))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Zeit", "Fach", "Lehrer", "Raum", "Hinweis", "Status"})
	for _, l := range lessons {
		t.AppendRow(lessonRow(l))
	}
	t.Render()
}

func renderSubstitutions(w io.Writer, subs []timetable.Substitution) {
	if len(subs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no substitutions"))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Datum", "Fach", "Lehrer", "Vertretung", "Raum", "Art", "Hinweis"})
	for _, s := range subs {
		style := substitutionStyle
		if s.Type == timetable.CANCELLATION {
			style = cancelledStyle
		}
		substitute := s.SubstituteTeacher
		if s.SubstituteSubject != "" && s.SubstituteSubject != s.OriginalSubject {
			substitute = fmt.Sprintf("%s (%s)", s.SubstituteTeacher, s.SubstituteSubject)
		}
		t.AppendRow(table.Row{
			s.LessonNumber,
			s.Date,
			style.Render(s.OriginalSubject),
			s.OriginalTeacher,
			substitute,
			s.Room,
			string(s.Type),
			s.Note,
		})
	}
	t.Render()
}

func renderWeek(w io.Writer, week timetable.Week) {
	fmt.Fprintln(w, headingStyle.Render("Woche ab "+week.WeekStart))
	for _, day := range week.Days {
		fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%s (%s)", day.Day, day.Date)))
		renderLessons(w, day.Lessons)
	}
}
