package studygroup

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gocampus/internal/common"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/studygroups", h.List).Methods(http.MethodGet)
	r.HandleFunc("/studygroups", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/studygroups/my-groups", h.MyGroups).Methods(http.MethodGet)
	r.HandleFunc("/studygroups/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/studygroups/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/studygroups/{id:[0-9]+}/join", h.Join).Methods(http.MethodPost)
	r.HandleFunc("/studygroups/{id:[0-9]+}/leave", h.Leave).Methods(http.MethodPost)
}

// withUser resolves the authenticated caller.
func (h *Handler) withUser(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.WriteError(w, h.logger, common.Unauthenticated("authorization required"))
		return 0, false
	}
	return id.UserID, true
}

func (h *Handler) groupID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := common.PathUint(r, "id")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}

	filter := Filter{Subject: r.URL.Query().Get("subject")}
	if raw := r.URL.Query().Get("isOnline"); raw != "" {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			common.WriteError(w, h.logger, common.Invalid("invalid isOnline"))
			return
		}
		filter.IsOnline = &online
	}

	groups, err := h.service.ListGroups(r.Context(), userID, filter)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, groups)
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	groups, err := h.service.ListMyGroups(r.Context(), userID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, groups)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, group)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	group, err := h.service.CreateGroup(r.Context(), userID, in)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, group)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	group, err := h.service.JoinGroup(r.Context(), groupID, userID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, group)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	group, err := h.service.LeaveGroup(r.Context(), groupID, userID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, group)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.withUser(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), groupID, userID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
