package portal

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawSlot is one occupied (day, hour) cell of the rendered weekly grid.
type RawSlot struct {
	Hour           int    `json:"hour"`
	Day            string `json:"day"`
	Subject        string `json:"class"`
	Teacher        string `json:"teacher"`
	Room           string `json:"room"`
	IsSubstitution bool   `json:"isSubstitution"`
	IsCancelled    bool   `json:"isCancelled"`
	Note           string `json:"note,omitempty"`
}

// WeekSchedule maps the day labels of one week, in document order, to their slots in row order.
type WeekSchedule struct {
	Days  []string
	Slots map[string][]RawSlot
}

// newWeekSchedule keeps the first occurrence of each label.
func newWeekSchedule(days []string) WeekSchedule {
	week := WeekSchedule{
		Days:  make([]string, 0, len(days)),
		Slots: make(map[string][]RawSlot, len(days)),
	}
	for _, d := range days {
		if _, seen := week.Slots[d]; seen {
			continue
		}
		week.Days = append(week.Days, d)
		week.Slots[d] = []RawSlot{}
	}
	return week
}

// Lookup returns the first day label (in document order) containing abbreviation, along with its
// slots.
func (w WeekSchedule) Lookup(abbreviation string) (string, []RawSlot, bool) {
	if abbreviation == "" {
		return "", nil, false
	}
	for _, label := range w.Days {
		if strings.Contains(label, abbreviation) {
			return label, w.Slots[label], true
		}
	}
	return "", nil, false
}

// MarshalJSON encodes the week as an object whose keys keep document order.
func (w WeekSchedule) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, label := range w.Days {
		if i > 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		slots := w.Slots[label]
		if slots == nil {
			slots = []RawSlot{}
		}
		value, err := json.Marshal(slots)
		if err != nil {
			return nil, err
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}
