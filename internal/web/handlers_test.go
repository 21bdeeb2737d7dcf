package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/justestif/go-dual-gravity/internal/engine"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/selection"
)

type fakeStages struct {
	err       error
	initCalls atomic.Int32
	runCalls  atomic.Int32
	lastInit  engine.InitRequest
}

func (f *fakeStages) Init(ctx context.Context, req engine.InitRequest) (*engine.InitResponse, error) {
	f.initCalls.Add(1)
	f.lastInit = req
	if f.err != nil {
		return nil, f.err
	}
	return &engine.InitResponse{
		SeedArtistID:     req.Playback.Track.PrimaryArtist().ID,
		UpdatedGravities: gravity.Map{Player1: 0.32, Player2: 0.32},
		ExplorationPhase: gravity.PhaseExploration,
	}, nil
}

func (f *fakeStages) Candidates(ctx context.Context, req engine.CandidatesRequest) (*engine.CandidatesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &engine.CandidatesResponse{}, nil
}

func (f *fakeStages) Score(ctx context.Context, req engine.ScoreRequest) (*engine.ScoreResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &engine.ScoreResponse{Debug: engine.ScoreDebug{Strategy: selection.StrategyBalanced, Phase: gravity.PhaseExploration}}, nil
}

func (f *fakeStages) Run(ctx context.Context, req engine.InitRequest, progress engine.ProgressFunc) (*engine.RunResponse, error) {
	f.runCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	progress(engine.ProgressInit, 10)
	progress(engine.ProgressFinalize, 100)
	option := engine.OptionTrack{Track: music.Track{ID: "x"}}
	option.Metrics.Source = music.SourceRelatedTopTracks
	return &engine.RunResponse{Score: engine.ScoreResponse{OptionTracks: []engine.OptionTrack{option}}}, nil
}

const validInit = `{
	"playbackState": {"track": {"id": "t1", "name": "Song", "artists": [{"id": "a1", "name": "Band"}], "playable": true}, "isPlaying": true},
	"roundNumber": 2,
	"turnNumber": 3,
	"activePlayerId": "player1",
	"playerTargets": {"player1": {"name": "Radiohead"}, "player2": {"name": "Bjork"}},
	"playerGravities": {"player1": 0.4, "player2": 0.3},
	"playedTrackIds": ["p1"]
}`

func do(t *testing.T, stages Stages, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(DefaultServerConfig(), stages)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	rec := do(t, &fakeStages{}, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthReportsFailingCheck(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), &fakeStages{},
		WithHealthCheck("cache", func(context.Context) error { return nil }),
		WithHealthCheck("store", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "store") || !strings.Contains(body, "connection refused") {
		t.Errorf("body = %s, want the failing probe", body)
	}
	if strings.Contains(body, `"cache"`) {
		t.Errorf("body = %s, passing probe reported as failed", body)
	}
}

func TestInitDecodesRequest(t *testing.T) {
	stages := &fakeStages{}
	rec := do(t, stages, http.MethodPost, "/v1/dgs/init", validInit)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	req := stages.lastInit
	if req.Round != 2 || req.ActivePlayer != music.Player1 || req.Gravities.Player1 != 0.4 {
		t.Errorf("decoded request = %+v", req)
	}
	if req.Targets.Player2.Name != "Bjork" || len(req.PlayedTrackIDs) != 1 {
		t.Errorf("decoded targets/played = %+v / %v", req.Targets, req.PlayedTrackIDs)
	}

	var resp engine.InitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SeedArtistID != "a1" || resp.ExplorationPhase != gravity.PhaseExploration {
		t.Errorf("response = %+v", resp)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/v1/dgs/init", `{"roundNumber":`},
		{"round zero", "/v1/dgs/init", strings.Replace(validInit, `"roundNumber": 2`, `"roundNumber": 0`, 1)},
		{"unknown player", "/v1/dgs/init", strings.Replace(validInit, `"activePlayerId": "player1"`, `"activePlayerId": "player3"`, 1)},
		{"target without name or id", "/v1/dgs/init", strings.Replace(validInit, `{"name": "Bjork"}`, `{}`, 1)},
		{"empty artist id", "/v1/dgs/candidates", `{"artistIds": ["a1", ""], "currentArtistId": "a0"}`},
		{"drift out of range", "/v1/dgs/score", `{"roundNumber": 1, "currentPlayerId": "player2", "ogDrift": 1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := &fakeStages{}
			rec := do(t, stages, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if errorBody(t, rec) == "" {
				t.Error("empty error message")
			}
			if stages.initCalls.Load() != 0 {
				t.Error("stage ran on an invalid request")
			}
		})
	}
}

func TestStageErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad stage input", &engine.StageError{Stage: engine.StageInit, Message: "playback state has no current track"}, http.StatusBadRequest},
		{"collaborator failure", &engine.StageError{Stage: engine.StageScore, Message: "score stage failed: track store is empty", Err: errors.New("track store is empty")}, http.StatusBadGateway},
		{"timeout", &engine.StageError{Stage: engine.StageInit, Message: "init stage failed", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, &fakeStages{err: tt.err}, http.MethodPost, "/v1/dgs/init", validInit)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if got := errorBody(t, rec); got != tt.err.Error() {
				t.Errorf("error = %q, want %q", got, tt.err.Error())
			}
		})
	}
}

func TestSelectRunsAllStages(t *testing.T) {
	stages := &fakeStages{}
	rec := do(t, stages, http.MethodPost, "/v1/dgs/select", validInit)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if stages.runCalls.Load() != 1 {
		t.Errorf("Run called %d times, want 1", stages.runCalls.Load())
	}
	var resp engine.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Score.OptionTracks) != 1 {
		t.Errorf("options = %+v", resp.Score.OptionTracks)
	}
}

func TestScoreRejectsSeedWithoutSource(t *testing.T) {
	body := `{"roundNumber": 1, "currentPlayerId": "player1", "seeds": [{"track": {"id": "c1", "artists": [{"id": "a1"}]}}]}`
	rec := do(t, &fakeStages{}, http.MethodPost, "/v1/dgs/score", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := errorBody(t, rec); !strings.Contains(msg, "Source") {
		t.Errorf("error = %q, want it to name the source field", msg)
	}
}

func TestRespondJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]music.Source{"source": 0})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := errorBody(t, rec); !strings.Contains(msg, "encoding response") {
		t.Errorf("error = %q, want an encoding error", msg)
	}
}

func TestScoreAndCandidatesRoutes(t *testing.T) {
	rec := do(t, &fakeStages{}, http.MethodPost, "/v1/dgs/candidates", `{"artistIds": ["a1"], "currentArtistId": "a0"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("candidates status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, &fakeStages{}, http.MethodPost, "/v1/dgs/score", `{"roundNumber": 1, "currentPlayerId": "player2", "ogDrift": 0.2}`)
	if rec.Code != http.StatusOK {
		t.Errorf("score status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, &fakeStages{}, http.MethodGet, "/v1/dgs/score", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET score status = %d, want 405", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, &fakeStages{}, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
