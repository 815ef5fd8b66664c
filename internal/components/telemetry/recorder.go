package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelWarning
	LevelBroken
	LevelCount
)

type Report struct {
	Level  Level
	Id     string
	Params []any
}

// RecordingAPI keeps every report in memory, it is used by tests to check that failures are
// actually surfaced.
type RecordingAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{}
}

func (r *RecordingAPI) record(level Level, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Level: level, Id: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record(LevelBroken, id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record(LevelWarning, id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record(LevelDebug, msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record(LevelCount, id, []any{count})
}

// Reports returns a copy of every report with the given level.
func (r *RecordingAPI) Reports(level Level) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if rep.Level == level {
			out = append(out, rep)
		}
	}
	return out
}

// Has reports whether a report of the given level exists whose id ends with `suffix`. Suffix
// matching ignores the namespaces added by ScopedAPI.
func (r *RecordingAPI) Has(level Level, suffix string) bool {
	for _, rep := range r.Reports(level) {
		if strings.HasSuffix(rep.Id, suffix) {
			return true
		}
	}
	return false
}
