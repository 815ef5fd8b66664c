package chrono

import (
	"sync"
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the location the schedule is published for.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct {
	location *time.Location
}

// NewStandardTime loads the named location, an empty name means Europe/Berlin.
func NewStandardTime(name string) (StandardTime, error) {
	if name == "" {
		name = "Europe/Berlin"
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return StandardTime{}, err
	}
	return StandardTime{location: location}, nil
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardTime) Location() *time.Location {
	return s.location
}

// ManualTime is a TimeAPI that only moves when told to.
type ManualTime struct {
	mutex sync.Mutex
	now   time.Time
}

func NewManualTime(now time.Time) *ManualTime {
	return &ManualTime{now: now}
}

func (m *ManualTime) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *ManualTime) Advance(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = m.now.Add(d)
}

func (m *ManualTime) Set(now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
}

// Midnight truncates a time to the start of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

const DateLayout = "2006-01-02"

// FormatDate renders a time as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses an ISO calendar date in the given location.
func ParseDate(value string, location *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, location)
}
