package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pion/webrtc/v4"

	"github.com/cwrk-planet/meet-relay/internal/domain"
	"github.com/cwrk-planet/meet-relay/internal/postgres"
	"github.com/cwrk-planet/meet-relay/internal/service"
	"github.com/cwrk-planet/meet-relay/pkg/httputil"
)

type StatsProvider interface {
	Stats() service.Stats
}

type MeetingLister interface {
	List(ctx context.Context, room string, limit int, cursor string) ([]domain.MeetingEvent, string, error)
}

type Handler struct {
	stats      StatsProvider
	meetings   MeetingLister
	iceServers []webrtc.ICEServer
}

// NewHandler builds the handler set. meetings may be nil when the meeting log
// is disabled.
func NewHandler(stats StatsProvider, meetings MeetingLister, iceServers []webrtc.ICEServer) *Handler {
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{}
	}
	return &Handler{
		stats:      stats,
		meetings:   meetings,
		iceServers: iceServers,
	}
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.stats.Stats())
}

// GET /ice-servers
func (h *Handler) ICEServers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	httputil.OK(w, ICEServersResponse{ICEServers: h.iceServers})
}

// GET /meetings?room=&limit=&cursor=
func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	if h.meetings == nil {
		httputil.Error(w, http.StatusNotFound, "meeting log disabled")
		return
	}

	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	events, next, err := h.meetings.List(r.Context(), q.Get("room"), limit, q.Get("cursor"))
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			httputil.Error(w, http.StatusBadRequest, "invalid_cursor")
			return
		}
		slog.Error("handler.ListMeetings:", slog.Any("err", err))
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []domain.MeetingEvent{}
	}

	httputil.OK(w, MeetingsResponse{Items: events, NextCursor: next})
}
