package timetable

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/Penlika/tkb/events"
)

// Fetcher runs the remote protocol. Implemented by the tdmu client and
// by test fakes.
type Fetcher interface {
	Fetch(ctx context.Context, logger slog.Logger, token, semesterCode string) (FetchResult, error)
}

// inputs is the one combined snapshot both producers write through a
// single atomic pointer, so an aggregation pass always reads a
// consistent pair instead of two independently mutated fields.
type inputs struct {
	weeks     []RawWeek
	personal  []events.PersonalEvent
	semester  Semester
	semesters []Semester
	haveWeeks bool
}

// Refresher owns the two input streams (full refetches of the remote
// timetable, live personal-event snapshots) and re-runs the aggregation
// whenever either one moves.
type Refresher struct {
	fetcher Fetcher
	store   events.Store
	cache   Cache
	logger  *slog.Logger

	userID       string
	token        string
	semesterCode string

	writeMu sync.Mutex
	state   atomic.Pointer[inputs]

	// generation guards against a torn-down consumer receiving a fetch
	// that was still in flight when it closed; closed stops fetches
	// that have not even started yet
	generation atomic.Int64
	inFlight   atomic.Bool
	closed     atomic.Bool

	subMu  sync.Mutex
	subs   map[int]chan Aggregation
	nextID int

	unsubscribe events.Unsubscribe
	cronRunner  *cron.Cron
	cancel      context.CancelFunc
}

func NewRefresher(fetcher Fetcher, store events.Store, cache Cache, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		logger:  logger,
		subs:    make(map[int]chan Aggregation),
	}
}

// Start subscribes to the personal-event store, kicks off an initial
// fetch, and optionally schedules periodic refetches from a cron spec.
func (r *Refresher) Start(ctx context.Context, userID, token, semesterCode, refreshCron string) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.userID = userID
	r.token = token
	r.semesterCode = semesterCode

	unsubscribe, err := r.store.Subscribe(ctx, userID, r.onEvents, r.onSubscriptionError)
	if err != nil {
		cancel()
		return fmt.Errorf("could not subscribe to personal events: %w", err)
	}
	r.unsubscribe = unsubscribe

	if refreshCron != "" {
		r.cronRunner = cron.New()
		_, err := r.cronRunner.AddFunc(refreshCron, func() {
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("scheduled refetch failed", "err", err)
			}
		})
		if err != nil {
			r.Close()
			return fmt.Errorf("bad refresh cron spec %q: %w", refreshCron, err)
		}
		r.cronRunner.Start()
	}

	go func() {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("initial timetable fetch failed, serving cache if any", "err", err)
		}
	}()
	return nil
}

// Refresh runs one full fetch sequence. Fetches are serialized: a call
// while another is in flight is a no-op.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.closed.Load() {
		return nil
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Debug("fetch already in flight, ignoring refresh request")
		return nil
	}
	defer r.inFlight.Store(false)

	generation := r.generation.Load()
	result, err := r.fetcher.Fetch(ctx, *r.logger, r.token, r.semesterCode)
	if err != nil {
		return err
	}
	if r.generation.Load() != generation {
		// consumer went away while the sequence ran; drop the result
		r.logger.Debug("discarding fetch result from a stale generation")
		return nil
	}

	r.writeMu.Lock()
	next := r.snapshotLocked()
	next.weeks = result.Weeks
	next.semester = result.Semester
	next.semesters = result.Semesters
	next.haveWeeks = true
	r.state.Store(&next)
	r.writeMu.Unlock()

	if err := SaveSemesters(r.cache, result.Semesters); err != nil {
		r.logger.Warn("could not cache semester list", "err", err)
	}
	if err := SaveLastSemester(r.cache, result.Semester.Code); err != nil {
		r.logger.Warn("could not record last semester", "err", err)
	}
	r.afterChange()
	return nil
}

func (r *Refresher) onEvents(personal []events.PersonalEvent) {
	r.writeMu.Lock()
	next := r.snapshotLocked()
	next.personal = personal
	r.state.Store(&next)
	r.writeMu.Unlock()
	r.afterChange()
}

func (r *Refresher) onSubscriptionError(err error) {
	// the last-known snapshot keeps feeding the aggregator until the
	// subscription recovers and delivers a fresh one
	r.logger.Warn("personal event subscription error", "err", err)
}

// snapshotLocked copies the current inputs so writers never mutate a
// snapshot readers may still hold.
func (r *Refresher) snapshotLocked() inputs {
	current := r.state.Load()
	if current == nil {
		return inputs{}
	}
	return *current
}

func (r *Refresher) afterChange() {
	current := r.state.Load()
	if current == nil {
		return
	}
	full := Aggregate(current.weeks, current.personal, Filter{})
	if current.haveWeeks && current.semester.Code != "" {
		if err := SaveWeeks(r.cache, current.semester.Code, full.Weeks); err != nil {
			r.logger.Warn("could not cache aggregated weeks", "err", err)
		}
	}
	r.broadcast(full)
}

// Schedule aggregates the current snapshots under the given filter.
// When no fetch has succeeded yet it serves the cached buckets for the
// last-used semester instead; fromCache reports which happened.
func (r *Refresher) Schedule(filter Filter) (result Aggregation, fromCache bool) {
	current := r.state.Load()
	if current != nil && current.haveWeeks {
		return Aggregate(current.weeks, current.personal, filter), false
	}

	code := r.semesterCode
	if code == "" {
		if last, ok, err := LoadLastSemester(r.cache); err == nil && ok {
			code = last
		}
	}
	if code == "" {
		return Aggregation{}, false
	}
	weeks, ok, err := LoadWeeks(r.cache, code)
	if err != nil {
		r.logger.Warn("could not load cached weeks", "semester", code, "err", err)
		return Aggregation{}, false
	}
	if !ok {
		return Aggregation{}, false
	}
	return filterBuckets(weeks, filter), true
}

// Semester reports the selected semester once a fetch has succeeded.
func (r *Refresher) Semester() (Semester, bool) {
	current := r.state.Load()
	if current == nil || !current.haveWeeks {
		return Semester{}, false
	}
	return current.semester, true
}

// Semesters lists known semesters, falling back to the cached list.
func (r *Refresher) Semesters() []Semester {
	current := r.state.Load()
	if current != nil && len(current.semesters) > 0 {
		return current.semesters
	}
	semesters, ok, err := LoadSemesters(r.cache)
	if err != nil || !ok {
		return nil
	}
	return semesters
}

// Subscribe returns a channel carrying the unfiltered aggregation
// after every input change. Slow consumers only ever see the latest
// state: pending values are replaced, not queued.
func (r *Refresher) Subscribe() (<-chan Aggregation, func()) {
	ch := make(chan Aggregation, 1)
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	if current := r.state.Load(); current != nil {
		ch <- Aggregate(current.weeks, current.personal, Filter{})
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

func (r *Refresher) broadcast(aggregation Aggregation) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- aggregation:
		default:
			// drop the stale pending value and keep only the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- aggregation:
			default:
			}
		}
	}
}

// Close tears the consumer down. A fetch still in flight will find the
// generation moved and discard its result on arrival.
func (r *Refresher) Close() {
	r.closed.Store(true)
	r.generation.Add(1)
	if r.cronRunner != nil {
		r.cronRunner.Stop()
	}
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// filterBuckets re-applies a filter to cached buckets, which carry
// everything needed to filter without the raw inputs.
func filterBuckets(weeks []WeekBucket, filter Filter) Aggregation {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	matchedDays := make(map[int]bool)
	var kept []WeekBucket
	for _, week := range weeks {
		searched := make([]ScheduleEntry, 0, len(week.Entries))
		for _, entry := range week.Entries {
			if matchesSearch(entry, search) {
				searched = append(searched, entry)
				matchedDays[entry.DayOfWeek] = true
			}
		}
		entries := searched
		if filter.Day != 0 {
			entries = entries[:0:0]
			for _, entry := range searched {
				if entry.DayOfWeek == filter.Day {
					entries = append(entries, entry)
				}
			}
		}
		if len(entries) == 0 {
			continue
		}
		kept = append(kept, WeekBucket{
			WeekNumber:     week.WeekNumber,
			DateRangeLabel: week.DateRangeLabel,
			Entries:        entries,
		})
	}

	days := make([]int, 0, len(matchedDays))
	for day := range matchedDays {
		days = append(days, day)
	}
	sort.Ints(days)
	return Aggregation{Weeks: kept, DaysWithMatches: days}
}
