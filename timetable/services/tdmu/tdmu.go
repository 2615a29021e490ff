// Package tdmu speaks the registration system's weekly-timetable
// protocol. The server keeps an implicit session keyed to the bearer
// token, primed by two calls whose response bodies are never used, so
// the four steps below must run in order and be retried as one unit.
package tdmu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/timetable"
	"github.com/Penlika/tkb/timetable/services"
)

const DefaultBaseURL = "https://dkmh.tdmu.edu.vn/api"

const (
	pathSessionInit  = "/dkmh/w-checkvalidallchucnang"
	pathSemesterList = "/sch/w-locdshockytkbuser"
	pathDeviceConfig = "/sch/w-locdsdoituongthoikhoabieu"
	pathWeeklyFetch  = "/sch/w-locdstkbtuanusertheohocky"
)

const (
	stepSessionInit = iota + 1
	stepSemesterList
	stepDeviceConfig
	stepWeeklyFetch
)

// each HTTP step gets its own deadline, distinct from however long the
// caller is willing to wait for the whole sequence
const defaultStepTimeout = 15 * time.Second

// one automatic retry of the full sequence before surfacing
const sequenceAttempts = 2

type Client struct {
	baseURL     string
	httpClient  *http.Client
	stepTimeout time.Duration
}

func NewClient(baseURL string, logger *log.Entry) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limiter := services.NewAdaptiveRateLimiter(rate.Every(250*time.Millisecond), 5, rate.Every(500*time.Millisecond))
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  services.NewRetryClientWithLimiter(logger, limiter),
		stepTimeout: defaultStepTimeout,
	}
}

// Fetch runs the full protocol and returns the weekly timetable for
// one semester. An explicit semesterCode overrides the server's active
// selection silently; empty picks the active semester, falling back to
// the first listed one.
func (c *Client) Fetch(
	ctx context.Context,
	logger slog.Logger,
	token string,
	semesterCode string,
) (timetable.FetchResult, error) {
	var result timetable.FetchResult
	if token == "" {
		return result, services.ErrAuthMissing
	}

	err := retry.Do(
		func() error {
			sequenceResult, err := c.runSequence(ctx, logger, token, semesterCode)
			if err != nil {
				return err
			}
			result = sequenceResult
			return nil
		},
		retry.Attempts(sequenceAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// empty semester lists and shape violations won't improve
			// on a replay of the same sequence
			return !errors.Is(err, services.ErrNoSemestersAvailable) &&
				!errors.Is(err, services.ErrIncorrectAssumption)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn("retrying full timetable sequence", "attempt", attempt+1, "err", err)
		}),
	)
	return result, err
}

// ListSemesters runs only the session-init and semester-list steps.
func (c *Client) ListSemesters(
	ctx context.Context,
	logger slog.Logger,
	token string,
) ([]timetable.Semester, string, error) {
	if token == "" {
		return nil, "", services.ErrAuthMissing
	}
	if err := c.initSession(ctx, token); err != nil {
		return nil, "", err
	}
	return c.listSemesters(ctx, token)
}

func (c *Client) runSequence(
	ctx context.Context,
	logger slog.Logger,
	token string,
	semesterCode string,
) (timetable.FetchResult, error) {
	var result timetable.FetchResult

	if err := c.initSession(ctx, token); err != nil {
		return result, err
	}

	semesters, activeCode, err := c.listSemesters(ctx, token)
	if err != nil {
		return result, err
	}
	selected, err := selectSemester(semesters, activeCode, semesterCode)
	if err != nil {
		return result, err
	}
	logger.Info("selected semester", "code", selected.Code, "name", selected.DisplayName)

	if err := c.loadDeviceConfig(ctx, token); err != nil {
		return result, err
	}

	weeks, err := c.fetchWeeklyTimetable(ctx, logger, token, selected.Code)
	if err != nil {
		return result, err
	}

	result.Semester = selected
	result.Semesters = semesters
	result.Weeks = weeks
	return result, nil
}

// request body shapes the server insists on, nulls included

type paging struct {
	Limit int `json:"limit"`
	Page  int `json:"page"`
}

type ordering struct {
	Name      *string `json:"name"`
	OrderType *int    `json:"order_type"`
}

type additional struct {
	Paging   paging     `json:"paging"`
	Ordering []ordering `json:"ordering"`
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func (c *Client) initSession(ctx context.Context, token string) error {
	body := map[string]any{
		"ma_menu": "1",
		"additional": additional{
			Paging:   paging{Limit: 1, Page: 1},
			Ordering: []ordering{{Name: nil, OrderType: intPtr(1)}},
		},
	}
	// response body is never used; the call exists to prime the session
	return c.post(ctx, stepSessionInit, token, pathSessionInit, body, nil)
}

type semesterListResponse struct {
	Data struct {
		ActiveCode json.Number `json:"hoc_ky_theo_ngay_hien_tai"`
		Semesters  []struct {
			Code      json.Number `json:"hoc_ky"`
			Name      string      `json:"ten_hoc_ky"`
			StartDate string      `json:"ngay_bat_dau"`
			EndDate   string      `json:"ngay_ket_thuc"`
		} `json:"ds_hoc_ky"`
	} `json:"data"`
}

func (c *Client) listSemesters(ctx context.Context, token string) ([]timetable.Semester, string, error) {
	body := map[string]any{
		"filter": map[string]any{"is_tieng_anh": nil},
		"additional": additional{
			Paging:   paging{Limit: 100, Page: 1},
			Ordering: []ordering{{Name: strPtr("hoc_ky"), OrderType: intPtr(1)}},
		},
	}
	var resp semesterListResponse
	if err := c.post(ctx, stepSemesterList, token, pathSemesterList, body, &resp); err != nil {
		return nil, "", err
	}

	semesters := make([]timetable.Semester, 0, len(resp.Data.Semesters))
	for _, entry := range resp.Data.Semesters {
		semesters = append(semesters, timetable.Semester{
			Code:        entry.Code.String(),
			DisplayName: entry.Name,
			StartDate:   parseRemoteDate(entry.StartDate),
			EndDate:     parseRemoteDate(entry.EndDate),
		})
	}
	return semesters, resp.Data.ActiveCode.String(), nil
}

func (c *Client) loadDeviceConfig(ctx context.Context, token string) error {
	// empty body, discarded response; skipping it makes step 4 fail
	return c.post(ctx, stepDeviceConfig, token, pathDeviceConfig, map[string]any{}, nil)
}

type weeklyResponse struct {
	Data struct {
		Weeks []struct {
			WeekNumber int    `json:"tuan_hoc_ky"`
			Info       string `json:"thong_tin_tuan"`
			Classes    []struct {
				SubjectName string `json:"ten_mon"`
				SubjectCode string `json:"ma_mon"`
				DayOfWeek   int    `json:"thu_kieu_so"`
				StartPeriod int    `json:"tiet_bat_dau"`
				PeriodCount int    `json:"so_tiet"`
				Room        string `json:"ma_phong"`
				Lecturer    string `json:"ten_giang_vien"`
				Date        string `json:"ngay_hoc"`
			} `json:"ds_thoi_khoa_bieu"`
		} `json:"ds_tuan_tkb"`
	} `json:"data"`
}

func (c *Client) fetchWeeklyTimetable(
	ctx context.Context,
	logger slog.Logger,
	token string,
	semesterCode string,
) ([]timetable.RawWeek, error) {
	body := map[string]any{
		"filter": map[string]any{
			"hoc_ky":     semesterCodeValue(semesterCode),
			"ten_hoc_ky": "",
		},
		"additional": additional{
			Paging:   paging{Limit: 100, Page: 1},
			Ordering: []ordering{{Name: nil, OrderType: nil}},
		},
	}
	var resp weeklyResponse
	if err := c.post(ctx, stepWeeklyFetch, token, pathWeeklyFetch, body, &resp); err != nil {
		return nil, err
	}

	weeks := make([]timetable.RawWeek, 0, len(resp.Data.Weeks))
	for _, rawWeek := range resp.Data.Weeks {
		week := timetable.RawWeek{
			WeekNumber: rawWeek.WeekNumber,
			Descriptor: rawWeek.Info,
		}
		start, end, err := timetable.ParseWeekDescriptor(rawWeek.Info)
		if err != nil {
			// degraded, not fatal: the week renders without a range and
			// personal events can never land in it
			logger.Warn("week descriptor did not parse",
				"week", rawWeek.WeekNumber, "descriptor", rawWeek.Info, "err", err)
		} else {
			week.StartDate = start
			week.EndDate = end
			week.HasRange = true
		}
		for _, class := range rawWeek.Classes {
			week.Classes = append(week.Classes, timetable.ClassEntry{
				SubjectName: class.SubjectName,
				SubjectCode: class.SubjectCode,
				WeekNumber:  rawWeek.WeekNumber,
				DayOfWeek:   class.DayOfWeek,
				StartPeriod: class.StartPeriod,
				PeriodCount: class.PeriodCount,
				Room:        class.Room,
				Lecturer:    class.Lecturer,
				Date:        parseRemoteDate(class.Date),
			})
		}
		weeks = append(weeks, week)
	}
	return weeks, nil
}

func (c *Client) post(
	ctx context.Context,
	step int,
	token string,
	path string,
	body any,
	out any,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &services.FetchError{Step: step, Err: errors.Join(services.ErrIncorrectAssumption, err)}
	}

	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(stepCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &services.FetchError{Step: step, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &services.FetchError{Step: step, Err: services.RespOrStatusErr(nil, err)}
	}
	defer resp.Body.Close()
	if err := services.RespOrStatusErr(resp, nil); err != nil {
		// drain so the connection can be reused by the next attempt
		_, _ = io.Copy(io.Discard, resp.Body)
		return &services.FetchError{Step: step, Err: err}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &services.FetchError{Step: step, Err: errors.Join(services.ErrIncorrectAssumption, err)}
	}
	return nil
}

func selectSemester(
	semesters []timetable.Semester,
	activeCode string,
	explicitCode string,
) (timetable.Semester, error) {
	if explicitCode != "" {
		for _, semester := range semesters {
			if semester.Code == explicitCode {
				return semester, nil
			}
		}
		// the caller asked for a code the list doesn't know; honor it
		return timetable.Semester{Code: explicitCode}, nil
	}
	if len(semesters) == 0 {
		return timetable.Semester{}, services.ErrNoSemestersAvailable
	}
	if activeCode != "" {
		for _, semester := range semesters {
			if semester.Code == activeCode {
				return semester, nil
			}
		}
	}
	return semesters[0], nil
}

// semesterCodeValue keeps numeric codes numeric on the wire, which is
// what the server's own clients send.
func semesterCodeValue(code string) any {
	if n, err := strconv.Atoi(code); err == nil {
		return n
	}
	return code
}

var remoteDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseRemoteDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range remoteDateLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return events.AsCalendarDate(parsed)
		}
	}
	return time.Time{}
}

// StepName labels a protocol step for logs and error surfaces.
func StepName(step int) string {
	switch step {
	case stepSessionInit:
		return "session init"
	case stepSemesterList:
		return "semester list"
	case stepDeviceConfig:
		return "device config"
	case stepWeeklyFetch:
		return "weekly timetable"
	default:
		return fmt.Sprintf("step %d", step)
	}
}
