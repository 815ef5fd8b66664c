package timetable

type SubstitutionType string

const (
	SUBSTITUTION SubstitutionType = "SUBSTITUTION"
	CANCELLATION SubstitutionType = "CANCELLATION"
	ROOM_CHANGE  SubstitutionType = "ROOM_CHANGE"
	OTHER        SubstitutionType = "OTHER"
)

const (
	UnknownTeacher   = "Unbekannt"
	NoteCancelled    = "Stunde entfällt"
	NoteSubstitution = "Vertretung"
)

type Substitution struct {
	Id                string           `json:"id"`
	Date              string           `json:"date"`
	LessonNumber      int              `json:"lessonNumber"`
	OriginalSubject   string           `json:"originalSubject"`
	OriginalTeacher   string           `json:"originalTeacher"`
	SubstituteSubject string           `json:"substituteSubject,omitempty"`
	SubstituteTeacher string           `json:"substituteTeacher,omitempty"`
	Room              string           `json:"room,omitempty"`
	IsCancelled       bool             `json:"isCancelled"`
	Note              string           `json:"note,omitempty"`
	Type              SubstitutionType `json:"type"`
}

func substitutionType(l Lesson, substituteSubject, substituteTeacher string) SubstitutionType {
	switch {
	case l.IsCancelled:
		return CANCELLATION
	case substituteTeacher != "" || substituteSubject != "":
		return SUBSTITUTION
	case l.OriginalRoom != "" && l.OriginalRoom != l.Room:
		return ROOM_CHANGE
	default:
		return OTHER
	}
}

func toSubstitution(l Lesson) Substitution {
	sub := Substitution{
		Id:              "sub-" + l.Id,
		Date:            l.Date,
		LessonNumber:    l.LessonNumber,
		OriginalSubject: l.Subject,
		Room:            l.Room,
		IsCancelled:     l.IsCancelled,
	}

	if l.IsCancelled {
		sub.OriginalTeacher = UnknownTeacher
		sub.Note = NoteCancelled
		sub.Type = CANCELLATION
		return sub
	}

	sub.OriginalTeacher = l.Teacher
	sub.SubstituteSubject = l.Subject
	sub.SubstituteTeacher = l.Teacher
	sub.Type = substitutionType(l, sub.SubstituteSubject, sub.SubstituteTeacher)
	sub.Note = NoteSubstitution
	if sub.Type == OTHER && l.Note != "" {
		sub.Note = l.Note
	}
	return sub
}

// ToSubstitutions emits one substitution for every cancelled or changed lesson, cancellation takes
// precedence over every other signal.
func ToSubstitutions(lessons []Lesson) []Substitution {
	out := []Substitution{}
	for _, l := range lessons {
		if !l.IsCancelled && !l.IsSubstitution {
			continue
		}
		out = append(out, toSubstitution(l))
	}
	return out
}
