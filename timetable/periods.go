package timetable

import "fmt"

// The campus day is ten fixed periods: three before the mid-morning
// break, two more before lunch, five in the afternoon. Start/end times
// are static; only the table below should ever encode them.
type periodSlot struct {
	start string
	end   string
}

var periodSlots = map[int]periodSlot{
	1:  {"07:00", "07:45"},
	2:  {"07:45", "08:30"},
	3:  {"08:30", "09:15"},
	4:  {"09:35", "10:20"},
	5:  {"10:20", "11:05"},
	6:  {"13:00", "13:45"},
	7:  {"13:45", "14:30"},
	8:  {"14:30", "15:15"},
	9:  {"15:15", "16:00"},
	10: {"16:00", "16:45"},
}

const (
	minPeriod = 1
	maxPeriod = 10
)

// TimeRangeFor renders the wall-clock span of a class starting at
// startPeriod and lasting periodCount periods, annotating spans that
// cross the mid-morning or lunch boundary. Out-of-range input falls
// back to a period-number label instead of failing.
func TimeRangeFor(startPeriod, periodCount int) string {
	endPeriod := startPeriod + periodCount - 1
	if startPeriod < minPeriod || periodCount < 1 || endPeriod > maxPeriod {
		return fmt.Sprintf("Period %d - %d", startPeriod, endPeriod)
	}

	label := periodSlots[startPeriod].start + " - " + periodSlots[endPeriod].end
	var breaks []string
	if startPeriod <= 3 && endPeriod >= 4 {
		breaks = append(breaks, "20-minute break")
	}
	if startPeriod <= 5 && endPeriod >= 6 {
		breaks = append(breaks, "lunch break")
	}
	if len(breaks) > 0 {
		label += " (" + breaks[0]
		if len(breaks) == 2 {
			label += ", " + breaks[1]
		}
		label += ")"
	}
	return label
}

// PeriodSlot returns the wall-clock start and end of a single period,
// with ok=false for indexes outside the table.
func PeriodSlot(period int) (start, end string, ok bool) {
	slot, ok := periodSlots[period]
	return slot.start, slot.end, ok
}
