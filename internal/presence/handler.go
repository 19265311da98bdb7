package presence

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"gocampus/internal/common"
)

const maxLookup = 200

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/presence", h.Lookup).Methods(http.MethodGet)
}

// Lookup serves GET /presence?userIds=1,2,3
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("userIds")
	if raw == "" {
		common.WriteError(w, nil, common.Invalid("userIds is required"))
		return
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxLookup {
		common.WriteError(w, nil, common.Invalid("at most %d userIds per request", maxLookup))
		return
	}
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			common.WriteError(w, nil, common.Invalid("invalid user id %q", p))
			return
		}
		ids = append(ids, id)
	}

	snapshot := h.tracker.Lookup(r.Context(), ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, snapshot[id])
	}
	common.WriteJSON(w, http.StatusOK, out)
}
