package serverschedule

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Penlika/tkb/timetable"
)

// live updates are OK to be lost while the socket is down; a client that
// reconnects immediately gets the current aggregation as its first frame

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

const (
	liveWriteDeadline = 10 * time.Second
	livePingInterval  = 30 * time.Second
)

func (h *scheduleHandler) liveSchedule(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("could not upgrade", "err", err)
		return
	}

	updates, unsubscribe := h.refresher.Subscribe()
	defer unsubscribe()

	// the read loop only exists to notice the peer going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(livePingInterval)
	defer pings.Stop()
	defer conn.Close()

	for {
		select {
		case aggregation, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteDeadline))
			if err := conn.WriteJSON(liveFrame(aggregation, h.refresher)); err != nil {
				h.logger.Debug("live schedule write failed", "err", err)
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func liveFrame(aggregation timetable.Aggregation, refresher *timetable.Refresher) scheduleResponse {
	frame := scheduleResponse{
		Weeks:           aggregation.Weeks,
		DaysWithMatches: aggregation.DaysWithMatches,
	}
	if semester, ok := refresher.Semester(); ok {
		frame.Semester = &semester
	}
	return frame
}
