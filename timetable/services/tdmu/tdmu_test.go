package tdmu

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	log "github.com/sirupsen/logrus"

	"github.com/Penlika/tkb/timetable/services"
	"github.com/Penlika/tkb/timetable/services/tdmu/testtdmu"
)

const (
	stepOne = iota + 1
	stepTwo
	stepThree
	stepFour
)

func testLogger() slog.Logger {
	return *slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T) (*Client, *testtdmu.MockServer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mock := testtdmu.NewMockServer(testLogger(), ctx)
	logrusLogger := log.New()
	logrusLogger.SetOutput(io.Discard)
	client := NewClient(mock.URL(), log.NewEntry(logrusLogger))
	return client, mock
}

func activeCode(code int) *int { return &code }

func defaultFixtures(mock *testtdmu.MockServer) {
	mock.SetSemesters(activeCode(20242),
		testtdmu.SemesterFixture{Code: 20241, Name: "Học kỳ 1 2024-2025"},
		testtdmu.SemesterFixture{Code: 20242, Name: "Học kỳ 2 2024-2025"},
	)
	mock.SetWeeks(testtdmu.WeekFixture{
		WeekNumber: 36,
		Info:       "Tuần 36 [từ ngày 01/04/25 đến ngày 07/04/25]",
		Classes: []testtdmu.ClassFixture{
			{
				SubjectName: "Toán cao cấp",
				SubjectCode: "MATH101",
				DayOfWeek:   2,
				StartPeriod: 1,
				PeriodCount: 2,
				Room:        "I3.503",
				Lecturer:    "Nguyễn Văn A",
				Date:        "2025-04-07T00:00:00",
			},
		},
	})
}

func TestFetchHappyPath(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)

	result, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if result.Semester.Code != "20242" {
		t.Errorf("expected the active semester, got %q", result.Semester.Code)
	}
	if len(result.Semesters) != 2 {
		t.Errorf("expected 2 semesters, got %d", len(result.Semesters))
	}
	if len(result.Weeks) != 1 {
		t.Fatalf("expected 1 week, got %d", len(result.Weeks))
	}
	week := result.Weeks[0]
	if !week.HasRange {
		t.Error("week descriptor should have parsed into a range")
	}
	if len(week.Classes) != 1 || week.Classes[0].SubjectCode != "MATH101" {
		t.Errorf("classes did not come through: %+v", week.Classes)
	}
	if week.Classes[0].Date.IsZero() {
		t.Error("class date should have parsed")
	}

	for step := stepOne; step <= stepFour; step++ {
		if got := mock.Hits(step); got != 1 {
			t.Errorf("step %d hit %d times, want 1", step, got)
		}
	}
}

func TestFetchAbsorbsMalformedWeekDescriptor(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	mock.SetWeeks(
		testtdmu.WeekFixture{
			WeekNumber: 36,
			Info:       "Tuần 36 [từ ngày 01/04/25 đến ngày 07/04/25]",
		},
		testtdmu.WeekFixture{
			WeekNumber: 37,
			Info:       "Tuần 37",
			Classes: []testtdmu.ClassFixture{
				{SubjectName: "Hóa học", DayOfWeek: 3, StartPeriod: 1, PeriodCount: 2},
			},
		},
	)

	result, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if err != nil {
		t.Fatalf("an unparseable descriptor must not fail the fetch: %v", err)
	}
	if len(result.Weeks) != 2 {
		t.Fatalf("expected both weeks, got %d", len(result.Weeks))
	}
	degraded := result.Weeks[1]
	if degraded.HasRange {
		t.Error("week 37 has no parseable range and must carry none")
	}
	if !degraded.StartDate.IsZero() || !degraded.EndDate.IsZero() {
		t.Errorf("range dates leaked: %v - %v", degraded.StartDate, degraded.EndDate)
	}
	if len(degraded.Classes) != 1 {
		t.Errorf("classes of the degraded week must survive, got %d", len(degraded.Classes))
	}
	if !result.Weeks[0].HasRange {
		t.Error("week 36 should still parse")
	}
}

func TestFetchPicksFirstSemesterWithoutActive(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	mock.SetSemesters(nil,
		testtdmu.SemesterFixture{Code: 20241, Name: "Học kỳ 1"},
		testtdmu.SemesterFixture{Code: 20242, Name: "Học kỳ 2"},
	)

	result, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.Semester.Code != "20241" {
		t.Errorf("expected the first listed semester, got %q", result.Semester.Code)
	}
}

func TestFetchHonorsExplicitSemester(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)

	result, err := client.Fetch(context.Background(), testLogger(), "token-1", "20241")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.Semester.Code != "20241" {
		t.Errorf("explicit code ignored, got %q", result.Semester.Code)
	}

	// a code the server never listed is still honored
	result, err = client.Fetch(context.Background(), testLogger(), "token-1", "19999")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.Semester.Code != "19999" {
		t.Errorf("unlisted code not honored, got %q", result.Semester.Code)
	}
}

func TestFetchRetriesFullSequenceOnce(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	mock.FailStep(stepTwo, 1)

	_, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if err != nil {
		t.Fatalf("fetch should succeed on the second sequence: %v", err)
	}

	// the whole sequence restarts: session init runs again too
	if got := mock.Hits(stepOne); got != 2 {
		t.Errorf("session init hit %d times, want 2", got)
	}
	if got := mock.Hits(stepTwo); got != 2 {
		t.Errorf("semester list hit %d times, want 2", got)
	}
	if got := mock.Hits(stepFour); got != 1 {
		t.Errorf("weekly fetch hit %d times, want 1", got)
	}
}

func TestFetchGivesUpAfterOneRetry(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	mock.FailStep(stepTwo, 5)

	_, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := services.StepOf(err); got != stepTwo {
		t.Errorf("failing step = %d, want %d", got, stepTwo)
	}
	if got := mock.Hits(stepTwo); got != 2 {
		t.Errorf("semester list hit %d times, want exactly 2 (one retry)", got)
	}
}

type trackedBody struct {
	io.ReadCloser
	closed *atomic.Bool
}

func (b *trackedBody) Close() error {
	b.closed.Store(true)
	return b.ReadCloser.Close()
}

type bodyTracker struct {
	base http.RoundTripper

	mu     sync.Mutex
	bodies []*atomic.Bool
}

func (t *bodyTracker) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		closed := new(atomic.Bool)
		resp.Body = &trackedBody{ReadCloser: resp.Body, closed: closed}
		t.mu.Lock()
		t.bodies = append(t.bodies, closed)
		t.mu.Unlock()
	}
	return resp, err
}

func TestFailedStepResponseBodiesAreClosed(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	mock.FailStep(stepTwo, 5)

	tracker := &bodyTracker{base: client.httpClient.Transport}
	client.httpClient.Transport = tracker

	if _, err := client.Fetch(context.Background(), testLogger(), "token-1", ""); err == nil {
		t.Fatal("expected the fetch to fail")
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if len(tracker.bodies) == 0 {
		t.Fatal("tracker saw no responses")
	}
	for i, closed := range tracker.bodies {
		if !closed.Load() {
			t.Errorf("response body %d was never closed", i)
		}
	}
}

func TestFetchStepTimeout(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)
	client.stepTimeout = 100 * time.Millisecond
	mock.DelayStep(stepTwo, time.Second)

	_, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if !errors.Is(err, services.ErrTemporaryNetworkFailure) {
		t.Fatalf("expected a network failure, got %v", err)
	}
	if got := services.StepOf(err); got != stepTwo {
		t.Errorf("failing step = %d, want %d", got, stepTwo)
	}
	if got := mock.Hits(stepTwo); got != 2 {
		t.Errorf("timed-out step hit %d times, want exactly 2 (one retry)", got)
	}
}

func TestFetchEmptySemesterListIsNotRetried(t *testing.T) {
	client, mock := testClient(t)
	mock.SetSemesters(nil)

	_, err := client.Fetch(context.Background(), testLogger(), "token-1", "")
	if !errors.Is(err, services.ErrNoSemestersAvailable) {
		t.Fatalf("expected ErrNoSemestersAvailable, got %v", err)
	}
	if got := mock.Hits(stepOne); got != 1 {
		t.Errorf("an empty semester list must not trigger a sequence retry, init hit %d times", got)
	}
}

func TestFetchWithoutToken(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)

	_, err := client.Fetch(context.Background(), testLogger(), "", "")
	if !errors.Is(err, services.ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
	if got := mock.Hits(stepOne); got != 0 {
		t.Errorf("no requests should leave the client without a token, got %d", got)
	}
}

func TestListSemesters(t *testing.T) {
	client, mock := testClient(t)
	defaultFixtures(mock)

	semesters, active, err := client.ListSemesters(context.Background(), testLogger(), "token-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(semesters) != 2 {
		t.Errorf("expected 2 semesters, got %d", len(semesters))
	}
	if active != "20242" {
		t.Errorf("active code = %q, want 20242", active)
	}
	if got := mock.Hits(stepThree); got != 0 {
		t.Errorf("listing semesters must stop after step 2, device config hit %d times", got)
	}
}

func TestMockRejectsUnprimedSessions(t *testing.T) {
	_, mock := testClient(t)
	defaultFixtures(mock)

	// a raw request that skips session init must bounce off the mock,
	// otherwise it cannot catch a client that reorders the steps
	req, err := http.NewRequest(http.MethodPost, mock.URL()+"/sch/w-locdshockytkbuser", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer fresh-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("unprimed semester list = %d, want 409", resp.StatusCode)
	}
}

func TestStepName(t *testing.T) {
	if got := StepName(stepSessionInit); got != "session init" {
		t.Errorf("StepName(1) = %q", got)
	}
	if got := StepName(9); got != "step 9" {
		t.Errorf("StepName(9) = %q", got)
	}
}
