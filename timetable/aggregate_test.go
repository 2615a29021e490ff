package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Penlika/tkb/events"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func scheduleWeek() RawWeek {
	return RawWeek{
		WeekNumber: 36,
		Descriptor: "Tuần 36 [từ ngày 01/04/25 đến ngày 07/04/25]",
		StartDate:  date(2025, 4, 1),
		EndDate:    date(2025, 4, 7),
		HasRange:   true,
		Classes: []ClassEntry{
			{
				SubjectName: "Toán cao cấp",
				SubjectCode: "MATH101",
				WeekNumber:  36,
				DayOfWeek:   2,
				StartPeriod: 1,
				PeriodCount: 2,
				Room:        "I3.503",
				Lecturer:    "Nguyễn Văn A",
			},
			{
				SubjectName: "Vật lý đại cương",
				SubjectCode: "PHYS101",
				WeekNumber:  36,
				DayOfWeek:   6,
				StartPeriod: 6,
				PeriodCount: 3,
				Room:        "Online-Teams",
				Lecturer:    "Trần Thị B",
			},
		},
	}
}

func clubMeeting() events.PersonalEvent {
	// 2025-04-03 is a Thursday, normalized day 5
	return events.PersonalEvent{
		ID:            "ev-1",
		Title:         "Club Meeting",
		Date:          date(2025, 4, 3),
		StartPeriod:   3,
		PeriodCount:   1,
		Location:      "Student hall",
		OrganizerName: "CLB Guitar",
	}
}

func TestAggregateMergesEventsIntoMatchingWeek(t *testing.T) {
	aggregation := Aggregate([]RawWeek{scheduleWeek()}, []events.PersonalEvent{clubMeeting()}, Filter{})

	require.Len(t, aggregation.Weeks, 1)
	week := aggregation.Weeks[0]
	assert.Equal(t, "Tuần 36 (01/04/25 - 07/04/25)", week.DateRangeLabel)
	require.Len(t, week.Entries, 3)

	// day order: Math on Monday (2), Club Meeting on Thursday (5), Physics on Friday (6)
	assert.Equal(t, "Toán cao cấp", week.Entries[0].Title)
	assert.Equal(t, KindEvent, week.Entries[1].Kind)
	assert.Equal(t, 5, week.Entries[1].DayOfWeek)
	assert.Equal(t, "Vật lý đại cương", week.Entries[2].Title)
	assert.True(t, week.Entries[2].Online)
	assert.Equal(t, "07:00 - 08:30", week.Entries[0].TimeRange)
	assert.Equal(t, []int{2, 5, 6}, aggregation.DaysWithMatches)
}

func TestAggregateMergesDuplicateWeekRecords(t *testing.T) {
	first := scheduleWeek()
	second := RawWeek{
		WeekNumber: 36,
		Descriptor: "Tuần 36 [từ ngày 01/04/25 đến ngày 07/04/25]",
		StartDate:  date(2025, 4, 1),
		EndDate:    date(2025, 4, 7),
		HasRange:   true,
		Classes: []ClassEntry{
			{SubjectName: "Hóa học", DayOfWeek: 4, StartPeriod: 6, PeriodCount: 2},
		},
	}

	aggregation := Aggregate([]RawWeek{first, second}, nil, Filter{})

	require.Len(t, aggregation.Weeks, 1, "records sharing a week number form one bucket")
	week := aggregation.Weeks[0]
	assert.Equal(t, 36, week.WeekNumber)
	assert.Equal(t, "Tuần 36 (01/04/25 - 07/04/25)", week.DateRangeLabel)
	require.Len(t, week.Entries, 3)
	// entries from both records, sorted together by day
	assert.Equal(t, "Toán cao cấp", week.Entries[0].Title)
	assert.Equal(t, "Hóa học", week.Entries[1].Title)
	assert.Equal(t, "Vật lý đại cương", week.Entries[2].Title)
}

func TestAggregateIsIdempotent(t *testing.T) {
	weeks := []RawWeek{scheduleWeek()}
	personal := []events.PersonalEvent{clubMeeting()}
	first := Aggregate(weeks, personal, Filter{Search: "a", Day: 2})
	second := Aggregate(weeks, personal, Filter{Search: "a", Day: 2})
	assert.Equal(t, first, second)
}

func TestAggregateInclusiveBoundaries(t *testing.T) {
	week := scheduleWeek()
	onStart := clubMeeting()
	onStart.Date = date(2025, 4, 1)
	onEnd := clubMeeting()
	onEnd.ID = "ev-2"
	onEnd.Date = date(2025, 4, 7)
	outside := clubMeeting()
	outside.ID = "ev-3"
	outside.Date = date(2025, 4, 8)

	aggregation := Aggregate(
		[]RawWeek{week},
		[]events.PersonalEvent{onStart, onEnd, outside},
		Filter{},
	)
	require.Len(t, aggregation.Weeks, 1)
	eventCount := 0
	for _, entry := range aggregation.Weeks[0].Entries {
		if entry.Kind == KindEvent {
			eventCount++
		}
	}
	assert.Equal(t, 2, eventCount, "both boundary dates belong to the week, the day after does not")
}

func TestAggregateWeekWithoutRangeNeverMatchesEvents(t *testing.T) {
	week := scheduleWeek()
	week.HasRange = false

	aggregation := Aggregate([]RawWeek{week}, []events.PersonalEvent{clubMeeting()}, Filter{})
	require.Len(t, aggregation.Weeks, 1)
	assert.Equal(t, "Tuần 36", aggregation.Weeks[0].DateRangeLabel)
	for _, entry := range aggregation.Weeks[0].Entries {
		assert.Equal(t, KindClass, entry.Kind)
	}
}

func TestAggregateSearchFilter(t *testing.T) {
	aggregation := Aggregate(
		[]RawWeek{scheduleWeek()},
		[]events.PersonalEvent{clubMeeting()},
		Filter{Search: "toán"},
	)
	require.Len(t, aggregation.Weeks, 1)
	require.Len(t, aggregation.Weeks[0].Entries, 1)
	assert.Equal(t, "Toán cao cấp", aggregation.Weeks[0].Entries[0].Title)
	assert.Equal(t, []int{2}, aggregation.DaysWithMatches)
}

func TestAggregateSearchMatchesPersonName(t *testing.T) {
	aggregation := Aggregate(
		[]RawWeek{scheduleWeek()},
		[]events.PersonalEvent{clubMeeting()},
		Filter{Search: "guitar"},
	)
	require.Len(t, aggregation.Weeks, 1)
	assert.Equal(t, "Club Meeting", aggregation.Weeks[0].Entries[0].Title)
}

func TestAggregateDayFilterDropsEmptyWeeks(t *testing.T) {
	quietWeek := RawWeek{
		WeekNumber: 37,
		StartDate:  date(2025, 4, 8),
		EndDate:    date(2025, 4, 14),
		HasRange:   true,
		Classes: []ClassEntry{
			{SubjectName: "Hóa học", DayOfWeek: 3, StartPeriod: 1, PeriodCount: 2},
		},
	}
	aggregation := Aggregate(
		[]RawWeek{scheduleWeek(), quietWeek},
		nil,
		Filter{Day: 2},
	)
	require.Len(t, aggregation.Weeks, 1, "week 37 has no Monday entries and must vanish")
	assert.Equal(t, 36, aggregation.Weeks[0].WeekNumber)
}

func TestAggregateDayHighlightsIgnoreDayFilter(t *testing.T) {
	// day 2 is selected but the Thursday and Friday entries still light up
	aggregation := Aggregate(
		[]RawWeek{scheduleWeek()},
		[]events.PersonalEvent{clubMeeting()},
		Filter{Day: 2},
	)
	assert.Equal(t, []int{2, 5, 6}, aggregation.DaysWithMatches)
	require.Len(t, aggregation.Weeks, 1)
	require.Len(t, aggregation.Weeks[0].Entries, 1)
}

func TestNormalizeDayOfWeek(t *testing.T) {
	assert.Equal(t, 1, NormalizeDayOfWeek(date(2025, 4, 6)), "Sunday")
	assert.Equal(t, 2, NormalizeDayOfWeek(date(2025, 4, 7)), "Monday")
	assert.Equal(t, 7, NormalizeDayOfWeek(date(2025, 4, 5)), "Saturday")
}

func TestDisplayRoom(t *testing.T) {
	assert.Equal(t, "I3.503", DisplayRoom("I3.503-Cơ sở chính"))
	assert.Equal(t, "B2.101", DisplayRoom("B2.101"))
	assert.True(t, IsOnlineRoom("Online-Teams"))
	assert.True(t, IsOnlineRoom("ELEARNING"))
	assert.False(t, IsOnlineRoom("I3.503"))
}
