package notif

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gocampus/internal/common"
)

// NotificationHandler serves the offline inbox over REST.
type NotificationHandler struct {
	service *NotificationService
	logger  *slog.Logger
}

func NewNotificationHandler(service *NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkAsRead).Methods(http.MethodPut)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.WriteError(w, h.logger, common.Unauthenticated("authorization required"))
		return
	}

	list, err := h.service.GetUserNotifications(r.Context(), id.UserID, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.WriteError(w, h.logger, common.Unauthenticated("authorization required"))
		return
	}

	count, err := h.service.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.WriteError(w, h.logger, common.Unauthenticated("authorization required"))
		return
	}
	notificationID, err := common.PathUint(r, "id")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	if err := h.service.MarkAsRead(r.Context(), notificationID, id.UserID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
