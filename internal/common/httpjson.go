package common

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the error taxonomy. Internal errors are logged, not echoed.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "error", err)
	}
	WriteJSON(w, status, errorBody{Error: PublicMessage(err), Code: ErrorCode(err)})
}

func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return Invalid("invalid request body")
	}
	return nil
}

// PathUint parses a numeric mux route variable.
func PathUint(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, Invalid("invalid %s", name)
	}
	return v, nil
}

// QueryUint returns def when the parameter is absent.
func QueryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, Invalid("invalid %s", name)
	}
	return v, nil
}
