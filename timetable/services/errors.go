package services

// clients wrap any error coming out of their protocol run
//    http/transport errors get ErrTemporaryNetworkFailure
//    shape/contract violations get ErrIncorrectAssumption

import (
	"errors"
	"fmt"
)

var (
	// no bearer token is available; surfaced immediately, the caller
	// must re-authenticate before anything can be fetched
	ErrAuthMissing = errors.New("no bearer token available")

	// retrying later could work
	ErrTemporaryNetworkFailure = errors.New("network failure")

	// retrying probably wouldn't work; flags the run for manual review
	ErrIncorrectAssumption = errors.New("unrecoverable failure")

	// the semester list came back empty; retrying won't help without
	// upstream data so this is never retried automatically
	ErrNoSemestersAvailable = errors.New("no semesters available")
)

// FetchError tags a failure with the protocol step (1-4) it happened
// on. The whole sequence is retried as a unit: steps 1 and 3 are
// session side effects, so no single step is safe to retry alone.
type FetchError struct {
	Step int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("timetable fetch failed at step %d: %v", e.Step, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StepOf returns the failing protocol step, or 0 when err did not come
// out of a fetch sequence.
func StepOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Step
	}
	return 0
}
