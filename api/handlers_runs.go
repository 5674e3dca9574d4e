package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"idx-flow/database"
	"idx-flow/pipeline"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if s.trigger != nil && s.trigger.Busy() {
		status = "running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "pipeline": status})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	minLimit, maxLimit := 1, database.MaxRunLimit
	limit := getIntParam(r, "limit", database.DefaultRunLimit, &minLimit, &maxLimit)
	feature := r.URL.Query().Get("feature")

	runs, err := s.runs.ListRuns(r.Context(), feature, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		var notFound *database.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, "run not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleTrigger starts a run in the background and answers 202 immediately.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")
	if !pipeline.ValidFeature(feature) {
		respondWithError(w, http.StatusBadRequest, "unknown feature "+feature, nil)
		return
	}

	err := s.trigger.Go(s.runCtx, feature, database.TriggerManual)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		respondWithError(w, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "failed to start run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "feature": feature})
}

// handleLastRun reports the latest finished run of a feature.
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")
	if !pipeline.ValidFeature(feature) {
		respondWithError(w, http.StatusBadRequest, "unknown feature "+feature, nil)
		return
	}

	if s.last != nil {
		ev, err := s.last.Last(r.Context(), feature)
		if err != nil {
			log.Warn().Err(err).Msgf("⚠️  Last-run cache unavailable for %s", feature)
		} else if ev != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"feature": feature,
				"source":  "cache",
				"event":   ev,
			})
			return
		}
	}

	runs, err := s.runs.ListRuns(r.Context(), feature, 1)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if len(runs) == 0 {
		respondWithError(w, http.StatusNotFound, "no runs for "+feature, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feature": feature,
		"source":  "tracker",
		"run":     runs[0],
	})
}
