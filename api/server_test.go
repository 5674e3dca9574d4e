package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"idx-flow/batch"
	"idx-flow/database"
	models "idx-flow/database/models_pkg"
	"idx-flow/pipeline"
	"idx-flow/storage"
	"idx-flow/tracker"
)

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Go(ctx context.Context, feature, trigger string) error {
	return m.Called(feature, trigger).Error(0)
}

func (m *mockTrigger) Busy() bool {
	return m.Called().Bool(0)
}

func newTestServer(t *testing.T, trig Trigger) (*Server, *tracker.MemoryTracker, *storage.MemoryStore) {
	runs := tracker.NewMemoryTracker()
	objects := storage.NewMemoryStore()
	return NewServer(context.Background(), runs, trig, objects, nil, nil), runs, objects
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	trig := new(mockTrigger)
	trig.On("Busy").Return(true)
	s, _, _ := newTestServer(t, trig)

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body["pipeline"])
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name     string
		feature  string
		result   error
		wantCode int
	}{
		{"accepted", pipeline.FeatureAll, nil, http.StatusAccepted},
		{"busy", pipeline.FeatureIngest, pipeline.ErrBusy, http.StatusConflict},
		{"unknown feature", "backtest", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := new(mockTrigger)
			if pipeline.ValidFeature(tt.feature) {
				trig.On("Go", tt.feature, "manual").Return(tt.result).Once()
			}
			s, _, _ := newTestServer(t, trig)

			rec := do(t, s, http.MethodPost, "/api/pipeline/"+tt.feature)
			assert.Equal(t, tt.wantCode, rec.Code)
			trig.AssertExpectations(t)
		})
	}
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s, runs, _ := newTestServer(t, new(mockTrigger))

	id, err := runs.CreateRun(ctx, pipeline.FeatureIngest, "scheduled")
	require.NoError(t, err)
	require.NoError(t, runs.MarkCompleted(ctx, id, batch.Stats{Total: 3, Success: 2, Skipped: 1}))

	rec := do(t, s, http.MethodGet, "/api/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	var run database.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Success)

	rec = do(t, s, http.MethodGet, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/runs?feature=ingest&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

type staticLastRuns map[string]*tracker.Event

func (l staticLastRuns) Last(_ context.Context, feature string) (*tracker.Event, error) {
	return l[feature], nil
}

func TestLastRun(t *testing.T) {
	ctx := context.Background()
	s, runs, _ := newTestServer(t, new(mockTrigger))

	rec := do(t, s, http.MethodGet, "/api/pipeline/ingest/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/pipeline/bogus/last")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id, err := runs.CreateRun(ctx, pipeline.FeatureIngest, "scheduled")
	require.NoError(t, err)
	require.NoError(t, runs.MarkCompleted(ctx, id, batch.Stats{Total: 1, Success: 1}))

	var body struct {
		Source string                `json:"source"`
		Run    *database.PipelineRun `json:"run"`
		Event  *tracker.Event        `json:"event"`
	}
	rec = do(t, s, http.MethodGet, "/api/pipeline/ingest/last")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tracker", body.Source)
	require.NotNil(t, body.Run)
	assert.Equal(t, id, body.Run.ID)

	s.WithLastRuns(staticLastRuns{
		pipeline.FeatureIngest: {Type: tracker.EventCompleted, RunID: "cached-run", Feature: pipeline.FeatureIngest},
	})
	body.Run, body.Event = nil, nil
	rec = do(t, s, http.MethodGet, "/api/pipeline/ingest/last")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cache", body.Source)
	require.NotNil(t, body.Event)
	assert.Equal(t, "cached-run", body.Event.RunID)

	// a miss in the cache still answers from the tracker
	rec = do(t, s, http.MethodGet, "/api/pipeline/orderflow/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObjects(t *testing.T) {
	ctx := context.Background()
	s, _, objects := newTestServer(t, new(mockTrigger))
	require.NoError(t, objects.Put(ctx, "accumulation/2024-03-15.csv", []byte("code\nAAAA\n"), storage.ContentTypeCSV))

	rec := do(t, s, http.MethodGet, "/api/objects?prefix=accumulation/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accumulation/2024-03-15.csv")

	rec = do(t, s, http.MethodGet, "/api/objects/accumulation/2024-03-15.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code\nAAAA\n", rec.Body.String())
	assert.Equal(t, storage.ContentTypeCSV, rec.Header().Get("Content-Type"))

	rec = do(t, s, http.MethodGet, "/api/objects/accumulation/2024-03-14.csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/objects?prefix=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
