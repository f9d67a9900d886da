package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/framesched/internal/analysis"
	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/pkg/model"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, opts, total)
}

// loadRun fetches the run named by the {id} URL parameter, writing a 404 or
// 500 response and returning nil when it cannot.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) *model.Run {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return nil
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.loadRun(w, r)
	if run == nil {
		return
	}
	respondOK(w, RequestIDFromContext(r.Context()), run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.loadRun(w, r)
	if run == nil {
		return
	}
	if err := s.store.DeleteRun(r.Context(), run.ID); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	s.logger.Info("run deleted", "run_id", run.ID)
	respondOK(w, reqID, map[string]any{"id": run.ID, "deleted": true})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	run := s.loadRun(w, r)
	if run == nil {
		return
	}

	records, total, err := s.store.ListHistory(r.Context(), run.ID, opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	respondList(w, reqID, records, opts, total)
}

func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.loadRun(w, r)
	if run == nil {
		return
	}

	boxes, err := s.store.ListScheduledBoxes(r.Context(), run.ID)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, boxes)
}

type groupsResponse struct {
	RunID    string                `json:"run_id"`
	Bucket   float64               `json:"bucket"`
	MissRate string                `json:"miss_rate"`
	Groups   []analysis.GroupStats `json:"groups"`
}

// handleGroups summarizes a run's history per depth group, using the deadline
// table the run was configured with.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.loadRun(w, r)
	if run == nil {
		return
	}

	cfg, err := config.FromMap(run.Config)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	records, err := s.store.AllHistory(r.Context(), run.ID)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}

	respondOK(w, reqID, groupsResponse{
		RunID:    run.ID,
		Bucket:   cfg.Deadlines.Bucket,
		MissRate: run.Counters.MissRate().String(),
		Groups:   analysis.Groups(records, cfg.Deadlines),
	})
}
