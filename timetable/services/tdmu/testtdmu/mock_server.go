// Package testtdmu runs an in-process stand-in for the registration
// API that enforces the same session-priming order the real server
// does, so client tests fail if the protocol steps ever run out of
// order.
package testtdmu

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionState struct {
	id           string
	primed       bool
	deviceLoaded bool
}

// SemesterFixture mirrors one ds_hoc_ky entry.
type SemesterFixture struct {
	Code int    `json:"hoc_ky"`
	Name string `json:"ten_hoc_ky"`
}

// ClassFixture mirrors one ds_thoi_khoa_bieu entry.
type ClassFixture struct {
	SubjectName string `json:"ten_mon"`
	SubjectCode string `json:"ma_mon"`
	DayOfWeek   int    `json:"thu_kieu_so"`
	StartPeriod int    `json:"tiet_bat_dau"`
	PeriodCount int    `json:"so_tiet"`
	Room        string `json:"ma_phong"`
	Lecturer    string `json:"ten_giang_vien"`
	Date        string `json:"ngay_hoc"`
}

// WeekFixture mirrors one ds_tuan_tkb entry.
type WeekFixture struct {
	WeekNumber int            `json:"tuan_hoc_ky"`
	Info       string         `json:"thong_tin_tuan"`
	Classes    []ClassFixture `json:"ds_thoi_khoa_bieu"`
}

type MockServer struct {
	server *httptest.Server
	logger slog.Logger

	mu         sync.Mutex
	sessions   map[string]*sessionState
	activeCode *int
	semesters  []SemesterFixture
	weeks      []WeekFixture
	failures   map[int]int
	delays     map[int]time.Duration
	hits       map[int]int
}

// NewMockServer starts the server; it closes once ctx ends.
func NewMockServer(logger slog.Logger, ctx context.Context) *MockServer {
	m := &MockServer{
		logger:   logger,
		sessions: make(map[string]*sessionState),
		failures: make(map[int]int),
		delays:   make(map[int]time.Duration),
		hits:     make(map[int]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /dkmh/w-checkvalidallchucnang", m.handleSessionInit)
	mux.HandleFunc("POST /sch/w-locdshockytkbuser", m.handleSemesterList)
	mux.HandleFunc("POST /sch/w-locdsdoituongthoikhoabieu", m.handleDeviceConfig)
	mux.HandleFunc("POST /sch/w-locdstkbtuanusertheohocky", m.handleWeeklyFetch)

	m.server = httptest.NewServer(mux)
	go func() {
		<-ctx.Done()
		m.server.Close()
	}()
	return m
}

func (m *MockServer) URL() string { return m.server.URL }

func (m *MockServer) SetSemesters(activeCode *int, semesters ...SemesterFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCode = activeCode
	m.semesters = semesters
}

func (m *MockServer) SetWeeks(weeks ...WeekFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weeks = weeks
}

// FailStep makes the next `times` requests to a step answer 500.
func (m *MockServer) FailStep(step, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[step] = times
}

// DelayStep holds a step's responses long enough to trip client
// timeouts.
func (m *MockServer) DelayStep(step int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[step] = delay
}

// Hits reports how many requests a step has received.
func (m *MockServer) Hits(step int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[step]
}

const (
	stepSessionInit = iota + 1
	stepSemesterList
	stepDeviceConfig
	stepWeeklyFetch
)

// begin records a hit, applies failure/delay injection, and returns
// the caller's session. ok=false means the response was already
// written.
func (m *MockServer) begin(w http.ResponseWriter, r *http.Request, step int) (*sessionState, bool) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return nil, false
	}

	m.mu.Lock()
	m.hits[step]++
	if m.failures[step] > 0 {
		m.failures[step]--
		m.mu.Unlock()
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return nil, false
	}
	delay := m.delays[step]
	session, ok := m.sessions[token]
	if !ok {
		session = &sessionState{id: uuid.New().String()}
		m.sessions[token] = session
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return nil, false
		}
	}
	return session, true
}

func (m *MockServer) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	session, ok := m.begin(w, r, stepSessionInit)
	if !ok {
		return
	}
	m.mu.Lock()
	session.primed = true
	m.mu.Unlock()
	m.logger.Info("session primed", "session", session.id)
	writeJSON(w, map[string]any{"data": map[string]any{}})
}

func (m *MockServer) handleSemesterList(w http.ResponseWriter, r *http.Request) {
	session, ok := m.begin(w, r, stepSemesterList)
	if !ok {
		return
	}
	if !m.requirePrimed(w, session) {
		return
	}
	m.mu.Lock()
	payload := map[string]any{
		"data": map[string]any{
			"hoc_ky_theo_ngay_hien_tai": m.activeCode,
			"ds_hoc_ky":                 m.semesters,
		},
	}
	m.mu.Unlock()
	writeJSON(w, payload)
}

func (m *MockServer) handleDeviceConfig(w http.ResponseWriter, r *http.Request) {
	session, ok := m.begin(w, r, stepDeviceConfig)
	if !ok {
		return
	}
	if !m.requirePrimed(w, session) {
		return
	}
	m.mu.Lock()
	session.deviceLoaded = true
	m.mu.Unlock()
	writeJSON(w, map[string]any{"data": map[string]any{}})
}

func (m *MockServer) handleWeeklyFetch(w http.ResponseWriter, r *http.Request) {
	session, ok := m.begin(w, r, stepWeeklyFetch)
	if !ok {
		return
	}
	if !m.requirePrimed(w, session) {
		return
	}
	m.mu.Lock()
	deviceLoaded := session.deviceLoaded
	m.mu.Unlock()
	if !deviceLoaded {
		m.logger.Error("weekly fetch before device config", "session", session.id)
		http.Error(w, "device config not loaded for session", http.StatusConflict)
		return
	}

	var body struct {
		Filter struct {
			SemesterCode json.Number `json:"hoc_ky"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if body.Filter.SemesterCode.String() == "" {
		http.Error(w, "missing hoc_ky filter", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	payload := map[string]any{
		"data": map[string]any{"ds_tuan_tkb": m.weeks},
	}
	m.mu.Unlock()
	writeJSON(w, payload)
}

func (m *MockServer) requirePrimed(w http.ResponseWriter, session *sessionState) bool {
	m.mu.Lock()
	primed := session.primed
	m.mu.Unlock()
	if !primed {
		m.logger.Error("request before session init", "session", session.id)
		http.Error(w, "session not primed", http.StatusConflict)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
