package serverschedule

import (
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/timetable"
)

type scheduleHandler struct {
	refresher *timetable.Refresher
	store     events.Store
	userID    string
	logger    *slog.Logger
}

type scheduleResponse struct {
	Semester        *timetable.Semester    `json:"semester,omitempty"`
	Weeks           []timetable.WeekBucket `json:"weeks"`
	DaysWithMatches []int                  `json:"days_with_matches"`
	FromCache       bool                   `json:"from_cache"`
}

func (h *scheduleHandler) getSchedule(w http.ResponseWriter, r *http.Request) {
	filter := timetable.Filter{
		Search: r.URL.Query().Get("search"),
	}
	if rawDay := r.URL.Query().Get("day"); rawDay != "" {
		day, err := strconv.Atoi(rawDay)
		if err != nil || day < 1 || day > 7 {
			http.Error(w, "day must be 1 (Sunday) through 7 (Saturday)", http.StatusBadRequest)
			return
		}
		filter.Day = day
	}

	aggregation, fromCache := h.refresher.Schedule(filter)
	resp := scheduleResponse{
		Weeks:           aggregation.Weeks,
		DaysWithMatches: aggregation.DaysWithMatches,
		FromCache:       fromCache,
	}
	if semester, ok := h.refresher.Semester(); ok {
		resp.Semester = &semester
	}
	h.writeJSON(w, resp)
}

func (h *scheduleHandler) getSemesters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.refresher.Semesters())
}

type periodResponse struct {
	Period int    `json:"period"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func (h *scheduleHandler) getPeriods(w http.ResponseWriter, r *http.Request) {
	var periods []periodResponse
	for period := 1; ; period++ {
		start, end, ok := timetable.PeriodSlot(period)
		if !ok {
			break
		}
		periods = append(periods, periodResponse{Period: period, Start: start, End: end})
	}
	h.writeJSON(w, periods)
}

func (h *scheduleHandler) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		h.logger.Error("manual refresh failed", "err", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *scheduleHandler) putEvent(w http.ResponseWriter, r *http.Request) {
	var event events.PersonalEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.Title == "" || event.Date.IsZero() {
		http.Error(w, "event needs a title and a date", http.StatusBadRequest)
		return
	}

	id, err := h.store.Put(r.Context(), h.userID, event)
	if err != nil {
		h.logger.Error("could not store event", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, map[string]string{"id": id})
}

func (h *scheduleHandler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if err := h.store.Delete(r.Context(), h.userID, eventID); err != nil {
		h.logger.Error("could not delete event", "id", eventID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *scheduleHandler) writeJSON(w http.ResponseWriter, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		h.logger.Error("could not marshal response", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
