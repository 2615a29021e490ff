// Package timetable holds the schedule domain: the weekly records the
// registration system returns, the user's personal events folded into
// them, and the aggregation that turns both into the week-bucketed
// view the presentation layer consumes.
package timetable

import (
	"fmt"
	"strings"
	"time"

	"github.com/Penlika/tkb/events"
)

type Semester struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	StartDate   time.Time `json:"start_date,omitempty"`
	EndDate     time.Time `json:"end_date,omitempty"`
}

// ClassEntry is one class occurrence as the remote system reports it.
// Replaced wholesale on every fetch, never patched.
type ClassEntry struct {
	SubjectName string    `json:"subject_name"`
	SubjectCode string    `json:"subject_code"`
	WeekNumber  int       `json:"week_number"`
	DayOfWeek   int       `json:"day_of_week"`
	StartPeriod int       `json:"start_period"`
	PeriodCount int       `json:"period_count"`
	Room        string    `json:"room"`
	Lecturer    string    `json:"lecturer"`
	Date        time.Time `json:"date"`
}

// RawWeek is one week record from the remote timetable. HasRange is
// false when the week descriptor could not be parsed; such weeks still
// render but can never match personal events.
type RawWeek struct {
	WeekNumber int          `json:"week_number"`
	Descriptor string       `json:"descriptor"`
	StartDate  time.Time    `json:"start_date,omitempty"`
	EndDate    time.Time    `json:"end_date,omitempty"`
	HasRange   bool         `json:"has_range"`
	Classes    []ClassEntry `json:"classes"`
}

// FetchResult is what one full protocol run against the remote system
// produces.
type FetchResult struct {
	Semester  Semester   `json:"semester"`
	Semesters []Semester `json:"semesters"`
	Weeks     []RawWeek  `json:"weeks"`
}

type EntryKind string

const (
	KindClass EntryKind = "class"
	KindEvent EntryKind = "event"
)

// ScheduleEntry is the normalized union of a class and a personal
// event. Derived on every aggregation pass and never persisted on its
// own; only whole week buckets are cached.
type ScheduleEntry struct {
	Kind        EntryKind `json:"kind"`
	Title       string    `json:"title"`
	WeekNumber  int       `json:"week_number"`
	DayOfWeek   int       `json:"day_of_week"`
	StartPeriod int       `json:"start_period"`
	PeriodCount int       `json:"period_count"`
	Location    string    `json:"location"`
	PersonName  string    `json:"person_name"`
	Date        time.Time `json:"date"`
	TimeRange   string    `json:"time_range"`
	Online      bool      `json:"online"`
}

type WeekBucket struct {
	WeekNumber     int             `json:"week_number"`
	DateRangeLabel string          `json:"date_range_label"`
	Entries        []ScheduleEntry `json:"entries"`
}

// dayNames follows the remote system's 1=Sunday..7=Saturday numbering.
var dayNames = map[int]string{
	1: "Chủ nhật",
	2: "Thứ hai",
	3: "Thứ ba",
	4: "Thứ tư",
	5: "Thứ năm",
	6: "Thứ sáu",
	7: "Thứ bảy",
}

// DayName returns the Vietnamese label for a normalized day-of-week.
func DayName(dayOfWeek int) string {
	if name, ok := dayNames[dayOfWeek]; ok {
		return name
	}
	return fmt.Sprintf("Thứ %d", dayOfWeek)
}

// NormalizeDayOfWeek maps a concrete date onto the remote system's
// 1=Sunday..7=Saturday convention. Go already counts Sunday as 0 so the
// shift is uniform, but the convention is load-bearing: it must match
// what the remote records carry in thu_kieu_so.
func NormalizeDayOfWeek(date time.Time) int {
	return int(date.Weekday()) + 1
}

// IsOnlineRoom reports whether a room code marks an online class.
func IsOnlineRoom(room string) bool {
	lowered := strings.ToLower(room)
	return strings.Contains(lowered, "online") || strings.Contains(lowered, "elearning")
}

// DisplayRoom truncates a room code at its first dash, the way the
// remote system's own clients render it.
func DisplayRoom(room string) string {
	for i := 0; i < len(room); i++ {
		if room[i] == '-' {
			return room[:i]
		}
	}
	return room
}

func personalToEntry(weekNumber int, event events.PersonalEvent) ScheduleEntry {
	date := events.AsCalendarDate(event.Date)
	return ScheduleEntry{
		Kind:        KindEvent,
		Title:       event.Title,
		WeekNumber:  weekNumber,
		DayOfWeek:   NormalizeDayOfWeek(date),
		StartPeriod: event.StartPeriod,
		PeriodCount: event.PeriodCount,
		Location:    event.Location,
		PersonName:  event.OrganizerName,
		Date:        date,
		TimeRange:   TimeRangeFor(event.StartPeriod, event.PeriodCount),
	}
}

func classToEntry(weekNumber int, class ClassEntry) ScheduleEntry {
	return ScheduleEntry{
		Kind:        KindClass,
		Title:       class.SubjectName,
		WeekNumber:  weekNumber,
		DayOfWeek:   class.DayOfWeek,
		StartPeriod: class.StartPeriod,
		PeriodCount: class.PeriodCount,
		Location:    DisplayRoom(class.Room),
		PersonName:  class.Lecturer,
		Date:        events.AsCalendarDate(class.Date),
		TimeRange:   TimeRangeFor(class.StartPeriod, class.PeriodCount),
		Online:      IsOnlineRoom(class.Room),
	}
}
