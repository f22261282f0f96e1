package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	alarms "alarmcast/internal/alarms/domain"
	"alarmcast/internal/audit"
	"alarmcast/internal/auth"
)

const timeLayout = time.RFC3339

// SnapshotProvider yields the latest successful alarm poll.
type SnapshotProvider interface {
	Latest() (alarms.Snapshot, bool)
}

// PermissionSource resolves the monitored items a user may see.
type PermissionSource interface {
	PermittedItems(ctx context.Context, userID string) (map[string]struct{}, error)
}

// Presence exposes the current session population.
type Presence interface {
	OnlineUserIDs() []string
	UserCount() int
	ConnectionCount() int
}

// SessionSource lists recent session events.
type SessionSource interface {
	Recent(ctx context.Context, limit int) ([]audit.SessionEvent, error)
}

// ActiveAlarmsHandler serves the caller's permitted slice of the active
// alarm set.
type ActiveAlarmsHandler struct {
	snapshots SnapshotProvider
	resolver  PermissionSource
}

// NewActiveAlarmsHandler constructs an ActiveAlarmsHandler.
func NewActiveAlarmsHandler(snapshots SnapshotProvider, resolver PermissionSource) *ActiveAlarmsHandler {
	return &ActiveAlarmsHandler{snapshots: snapshots, resolver: resolver}
}

type activeAlarmsResponse struct {
	AlarmCount int                  `json:"alarm_count"`
	Timestamp  int64                `json:"timestamp"`
	TakenAt    string               `json:"taken_at"`
	Alarms     []alarms.ActiveAlarm `json:"alarms"`
}

// ServeHTTP handles GET /api/v1/alarms/active.
func (h *ActiveAlarmsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.snapshots == nil || h.resolver == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	permitted, err := h.resolver.PermittedItems(r.Context(), userID)
	if err != nil {
		http.Error(w, "resolve permissions error", http.StatusInternalServerError)
		return
	}

	snap, ok := h.snapshots.Latest()
	if !ok {
		http.Error(w, "no alarm snapshot yet", http.StatusServiceUnavailable)
		return
	}
	visible := snap.FilterByItems(permitted)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(activeAlarmsResponse{
		AlarmCount: len(visible),
		Timestamp:  snap.TakenAt.Unix(),
		TakenAt:    snap.TakenAt.Format(timeLayout),
		Alarms:     visible,
	})
}

// OnlineStatsHandler serves current session counts.
type OnlineStatsHandler struct {
	presence Presence
}

// NewOnlineStatsHandler constructs an OnlineStatsHandler.
func NewOnlineStatsHandler(presence Presence) *OnlineStatsHandler {
	return &OnlineStatsHandler{presence: presence}
}

type onlineStatsResponse struct {
	OnlineUsers     int      `json:"online_users"`
	OpenConnections int      `json:"open_connections"`
	UserIDs         []string `json:"user_ids"`
}

// ServeHTTP handles GET /api/v1/online.
func (h *OnlineStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.presence == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	userIDs := h.presence.OnlineUserIDs()
	sort.Strings(userIDs)
	if userIDs == nil {
		userIDs = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(onlineStatsResponse{
		OnlineUsers:     h.presence.UserCount(),
		OpenConnections: h.presence.ConnectionCount(),
		UserIDs:         userIDs,
	})
}

// RecentSessionsHandler serves the newest connect/disconnect events.
type RecentSessionsHandler struct {
	sessions SessionSource
}

// NewRecentSessionsHandler constructs a RecentSessionsHandler.
func NewRecentSessionsHandler(sessions SessionSource) *RecentSessionsHandler {
	return &RecentSessionsHandler{sessions: sessions}
}

// ServeHTTP handles GET /api/v1/sessions/recent.
func (h *RecentSessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.sessions == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	events, err := h.sessions.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "query sessions error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.SessionEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
