package server

import (
	"encoding/json"
	"net/http"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// Handlers answer through these helpers so every body carries the
// envelope and the request id the middleware assigned. The request id
// is read from the request context, never passed around by hand.

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	writeEnvelope(w, r, http.StatusOK, model.Response{Data: data})
}

func respondCreated(w http.ResponseWriter, r *http.Request, data any) {
	writeEnvelope(w, r, http.StatusCreated, model.Response{Data: data})
}

func respondList(w http.ResponseWriter, r *http.Request, data any, total int, opts model.ListOptions) {
	writeEnvelope(w, r, http.StatusOK, model.Response{
		Data:       data,
		Pagination: model.NewPagination(total, opts),
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError) {
	writeEnvelope(w, r, status, model.Response{Error: apiErr})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, resp model.Response) {
	resp.RequestID = RequestIDFromContext(r.Context())
	resp.Status = "ok"
	if resp.Error != nil {
		resp.Status = "error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
