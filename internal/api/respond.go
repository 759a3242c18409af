package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"task-manager/internal/cerr"
	"task-manager/internal/clog"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

// writeError maps err to its HTTP status. Only the coded message reaches the
// client; the full error goes to the access log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := cerr.From(err)
	clog.AddError(r.Context(), err)
	writeJSON(w, e.Code.HTTPCode(), errorResponse{Code: e.Code.String(), Error: e.Msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return cerr.Invalid("request body is empty")
		}
		return cerr.NewError(cerr.InvalidArgument, "malformed JSON body", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, cerr.NewError(cerr.InvalidArgument, "invalid "+name, err)
	}
	return uint(id), nil
}
