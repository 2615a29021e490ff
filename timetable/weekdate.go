package timetable

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrMalformedWeekDescriptor marks a week whose free-text date range
// could not be parsed. Such weeks stay in the output without a range;
// they are logged, never surfaced as a hard failure.
var ErrMalformedWeekDescriptor = errors.New("malformed week descriptor")

// The remote system describes a week as free text of the form
// "[từ ngày 01/04/25 đến ngày 07/04/25]". Dates are dd/mm with either
// a two or four digit year.
var weekDescriptorRe = regexp.MustCompile(`\[từ ngày\s+(\d{1,2}/\d{1,2}/\d{2,4})\s+đến ngày\s+(\d{1,2}/\d{1,2}/\d{2,4})\]`)

var weekDateLayouts = []string{"02/01/06", "02/01/2006"}

// ParseWeekDescriptor extracts the inclusive start and end calendar
// dates from a week descriptor string.
func ParseWeekDescriptor(descriptor string) (start, end time.Time, err error) {
	match := weekDescriptorRe.FindStringSubmatch(descriptor)
	if match == nil {
		return start, end, fmt.Errorf("%w: %q", ErrMalformedWeekDescriptor, descriptor)
	}
	start, err = parseWeekDate(match[1])
	if err != nil {
		return start, end, err
	}
	end, err = parseWeekDate(match[2])
	if err != nil {
		return start, end, err
	}
	return start, end, nil
}

func parseWeekDate(value string) (time.Time, error) {
	for _, layout := range weekDateLayouts {
		parsed, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrMalformedWeekDescriptor, value)
}
