package serverschedule

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/timetable"
)

func PopulateScheduleRoutes(
	r *chi.Router,
	refresher *timetable.Refresher,
	store events.Store,
	userID string,
	logger slog.Logger,
) {
	scheduleHandler := scheduleHandler{
		refresher: refresher,
		store:     store,
		userID:    userID,
		logger:    &logger,
	}

	(*r).Get("/", scheduleHandler.getSchedule)
	(*r).Get("/semesters", scheduleHandler.getSemesters)
	(*r).Get("/periods", scheduleHandler.getPeriods)
	(*r).Get("/live", scheduleHandler.liveSchedule)
	(*r).Post("/refresh", scheduleHandler.triggerRefresh)

	(*r).Route("/events", func(r chi.Router) {
		r.Post("/", scheduleHandler.putEvent)
		r.Delete("/{eventID}", scheduleHandler.deleteEvent)
	})
}
