package timetable

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Penlika/tkb/events"
)

// Filter narrows the aggregated view. A zero Filter keeps everything.
type Filter struct {
	// Search is matched case-insensitively against entry titles and
	// lecturer/organizer names.
	Search string `json:"search"`
	// Day keeps only entries on this normalized day-of-week (1..7);
	// zero means all days.
	Day int `json:"day"`
}

type Aggregation struct {
	Weeks []WeekBucket `json:"weeks"`
	// DaysWithMatches is computed from the search-filtered (but not
	// day-filtered) entries so day buttons can highlight days that
	// still hold matches while another day is selected.
	DaysWithMatches []int `json:"days_with_matches"`
}

// Aggregate merges the remote weekly records with the user's personal
// events into week-bucketed, time-ordered schedule entries. Pure: the
// same inputs always produce the same output, so callers re-run it on
// every input or filter change instead of patching incrementally.
func Aggregate(rawWeeks []RawWeek, personal []events.PersonalEvent, filter Filter) Aggregation {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	matchedDays := make(map[int]bool)
	var buckets []WeekBucket

	for _, week := range mergeWeeks(rawWeeks) {
		entries := make([]ScheduleEntry, 0, len(week.Classes))
		for _, class := range week.Classes {
			entries = append(entries, classToEntry(week.WeekNumber, class))
		}
		for _, event := range personal {
			if weekContains(week, events.AsCalendarDate(event.Date)) {
				entries = append(entries, personalToEntry(week.WeekNumber, event))
			}
		}

		// search filter first: its survivors drive the day highlights
		// even when a day filter then removes them
		searched := entries[:0:0]
		for _, entry := range entries {
			if matchesSearch(entry, search) {
				searched = append(searched, entry)
				matchedDays[entry.DayOfWeek] = true
			}
		}

		kept := searched
		if filter.Day != 0 {
			kept = searched[:0:0]
			for _, entry := range searched {
				if entry.DayOfWeek == filter.Day {
					kept = append(kept, entry)
				}
			}
		}
		if len(kept) == 0 {
			continue
		}

		sortEntries(kept)
		buckets = append(buckets, WeekBucket{
			WeekNumber:     week.WeekNumber,
			DateRangeLabel: weekLabel(week),
			Entries:        kept,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WeekNumber < buckets[j].WeekNumber
	})

	days := make([]int, 0, len(matchedDays))
	for day := range matchedDays {
		days = append(days, day)
	}
	sort.Ints(days)

	return Aggregation{Weeks: buckets, DaysWithMatches: days}
}

// mergeWeeks folds remote records sharing a week number into one week,
// appending their classes. The first record for a number keeps the
// descriptor and date range; that is how the remote system's own
// clients title merged sections.
func mergeWeeks(rawWeeks []RawWeek) []RawWeek {
	merged := make([]RawWeek, 0, len(rawWeeks))
	index := make(map[int]int, len(rawWeeks))
	for _, week := range rawWeeks {
		at, seen := index[week.WeekNumber]
		if !seen {
			index[week.WeekNumber] = len(merged)
			merged = append(merged, week)
			continue
		}
		classes := make([]ClassEntry, 0, len(merged[at].Classes)+len(week.Classes))
		classes = append(classes, merged[at].Classes...)
		classes = append(classes, week.Classes...)
		merged[at].Classes = classes
	}
	return merged
}

// weekContains is inclusive on both boundaries. All dates are already
// normalized to midnight so only calendar dates compare.
func weekContains(week RawWeek, date time.Time) bool {
	if !week.HasRange {
		return false
	}
	return !date.Before(week.StartDate) && !date.After(week.EndDate)
}

func matchesSearch(entry ScheduleEntry, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(entry.Title), search) ||
		strings.Contains(strings.ToLower(entry.PersonName), search)
}

func sortEntries(entries []ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartPeriod != b.StartPeriod {
			return a.StartPeriod < b.StartPeriod
		}
		// classes before events, then title, for a stable ordering
		if a.Kind != b.Kind {
			return a.Kind == KindClass
		}
		return a.Title < b.Title
	})
}

func weekLabel(week RawWeek) string {
	if !week.HasRange {
		return fmt.Sprintf("Tuần %d", week.WeekNumber)
	}
	const layout = "02/01/06"
	return fmt.Sprintf(
		"Tuần %d (%s - %s)",
		week.WeekNumber,
		week.StartDate.Format(layout),
		week.EndDate.Format(layout),
	)
}
