package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/electricitymaps/carbonshift/internal/store"
	"github.com/electricitymaps/carbonshift/pkg/model"
)

func (s *Server) handleCreateStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string            `json:"name"`
		Policy *model.WaitPolicy `json:"policy"`
		Labels map[string]string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, &model.APIError{
			Code:    model.APIErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "name", Message: "name is required"}))
		return
	}
	if req.Policy == nil {
		respondError(w, r, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "policy", Message: "policy is required"}))
		return
	}
	if err := req.Policy.Validate(); err != nil {
		var schedErr *model.SchedulerError
		msg := err.Error()
		if errors.As(err, &schedErr) {
			msg = schedErr.Message
		}
		respondError(w, r, http.StatusBadRequest,
			model.NewValidationError("invalid policy",
				model.FieldError{Field: "policy", Message: msg}))
		return
	}

	now := time.Now().UTC()
	step := &model.Step{
		ID:        "step_" + uuid.New().String(),
		Name:      req.Name,
		State:     model.StepStatePending,
		Policy:    *req.Policy,
		Labels:    req.Labels,
		CreatedAt: now,
	}
	if step.Labels == nil {
		step.Labels = map[string]string{}
	}

	if err := s.store.CreateStep(r.Context(), step); err != nil {
		respondError(w, r, http.StatusInternalServerError,
			&model.APIError{Code: model.APIErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("step created", "id", step.ID, "name", step.Name,
		"patience", step.Policy.Patience, "expected_duration", step.Policy.ExpectedDuration)

	respondCreated(w, r, step)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	opts := model.DefaultListOptions()
	if state := r.URL.Query().Get("state"); state != "" {
		opts.State = state
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts.Clamp()

	steps, total, err := s.store.ListSteps(r.Context(), opts)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			&model.APIError{Code: model.APIErrInternal, Message: err.Error()})
		return
	}

	respondList(w, r, steps, total, opts)
}

func (s *Server) handleGetStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	step, err := s.store.GetStep(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			&model.APIError{Code: model.APIErrInternal, Message: err.Error()})
		return
	}
	if step == nil {
		respondError(w, r, http.StatusNotFound, model.NewNotFoundError("step", id))
		return
	}
	respondOK(w, r, step)
}

// handleCancelStep cancels a PENDING or WAITING step. A cancelled
// WAITING step keeps its registered wake-up in the store; the due scan
// ignores non-WAITING rows, so the registration is simply abandoned.
func (s *Server) handleCancelStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	step, err := s.store.GetStep(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			&model.APIError{Code: model.APIErrInternal, Message: err.Error()})
		return
	}
	if step == nil {
		respondError(w, r, http.StatusNotFound, model.NewNotFoundError("step", id))
		return
	}

	if !step.State.CanTransitionTo(model.StepStateCancelled) {
		respondError(w, r, http.StatusConflict, &model.APIError{
			Code:    model.APIErrConflict,
			Message: "cannot cancel step in state " + string(step.State),
		})
		return
	}

	prev := step.State
	now := time.Now().UTC()
	step.State = model.StepStateCancelled
	step.CompletedAt = &now

	if err := s.store.UpdateStep(r.Context(), step, prev); err != nil {
		if errors.Is(err, store.ErrStaleStep) {
			respondError(w, r, http.StatusConflict, &model.APIError{
				Code:    model.APIErrConflict,
				Message: "step state changed, retry the cancellation",
			})
			return
		}
		respondError(w, r, http.StatusInternalServerError,
			&model.APIError{Code: model.APIErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("step cancelled", "id", step.ID, "had_wakeup", step.WakeAt != nil)

	respondOK(w, r, map[string]any{
		"id":    step.ID,
		"state": step.State,
	})
}
