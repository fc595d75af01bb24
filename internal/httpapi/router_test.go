package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIPHER-000/chess-AI-sub000/internal/config"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine/enginetest"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/scheduler"
	"github.com/CIPHER-000/chess-AI-sub000/internal/service"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Pipeline) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.PutUser(ctx, &model.User{ID: 1, Username: "alice", Tier: model.TierFree, AIAnalysesLimit: 5}))
	require.NoError(t, st.PutGame(ctx, &model.Game{
		ID:      10,
		UserID:  1,
		Moves:   []string{"d4", "d5", "c4"},
		White:   model.Player{Username: "alice", Rating: 1500},
		Black:   model.Player{Username: "bob", Rating: 1500},
		Winner:  "draw",
		EndTime: time.Now().Add(-time.Hour),
	}))

	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			BestMax: 10, ExcellentMax: 25, GoodMax: 50, InaccuracyMax: 100, MistakeMax: 300,
			AccuracyDivisor: 10,
		},
		Scheduler: config.SchedulerConfig{Workers: 1},
		Tier:      config.TierConfig{FreeLimit: 5},
	}
	p, err := service.Build(cfg, st, &enginetest.Factory{Script: enginetest.Constant(0)}, zerolog.Nop())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = p.Run(runCtx)
		close(stopped)
	}()
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), p.Service))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return srv, p
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDEcho(t *testing.T) {
	srv, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestAnalyzeAndFetch(t *testing.T) {
	srv, p := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/users/1/analyze", `{"game_ids":[10]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out scheduler.Outcome
	decode(t, resp, &out)
	assert.Equal(t, 1, out.GamesQueued)
	assert.Equal(t, model.ModeAIEnhanced, out.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.Service.WaitBatch(ctx, out.BatchID)
	require.NoError(t, err)

	resp = do(t, http.MethodGet, srv.URL+"/v1/batches/"+out.BatchID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var polled scheduler.Outcome
	decode(t, resp, &polled)
	assert.True(t, polled.Done())
	assert.Equal(t, 1, polled.Count(scheduler.StatusSucceeded))

	resp = do(t, http.MethodGet, srv.URL+"/v1/games/10/analysis", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res model.GameAnalysisResult
	decode(t, resp, &res)
	assert.Equal(t, model.ResultDraw, res.UserResult)
	assert.Len(t, res.Moves, 3)

	resp = do(t, http.MethodGet, srv.URL+"/v1/users/1/analyses?skip=0&limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page service.ResultPage
	decode(t, resp, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Results, 1)
	assert.Equal(t, int64(10), page.Results[0].GameID)

	resp = do(t, http.MethodGet, srv.URL+"/v1/users/1/analyses?skip=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, service.DefaultPageSize, page.Limit)
	assert.Empty(t, page.Results)

	// nothing left to analyse
	resp = do(t, http.MethodPost, srv.URL+"/v1/users/1/analyze", `{"all_unanalyzed":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Equal(t, scheduler.EmptyNoGames, out.EmptyReason)

	resp = do(t, http.MethodDelete, srv.URL+"/v1/games/10/analysis", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/v1/games/10/analysis", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown user", http.MethodPost, "/v1/users/9/analyze", `{"days":7}`, http.StatusNotFound},
		{"unknown game id", http.MethodPost, "/v1/users/1/analyze", `{"game_ids":[99]}`, http.StatusNotFound},
		{"no selection", http.MethodPost, "/v1/users/1/analyze", `{}`, http.StatusBadRequest},
		{"two selections", http.MethodPost, "/v1/users/1/analyze", `{"days":3,"all_unanalyzed":true}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/users/1/analyze", `{`, http.StatusBadRequest},
		{"bad user id", http.MethodGet, "/v1/users/abc/quota", "", http.StatusBadRequest},
		{"unknown batch", http.MethodGet, "/v1/batches/nope", "", http.StatusNotFound},
		{"cancel unknown batch", http.MethodDelete, "/v1/batches/nope", "", http.StatusNotFound},
		{"unanalysed game", http.MethodGet, "/v1/games/10/analysis", "", http.StatusNotFound},
		{"missing game", http.MethodGet, "/v1/games/99/analysis", "", http.StatusNotFound},
		{"bad summary time", http.MethodGet, "/v1/users/1/summary?start=yesterday", "", http.StatusBadRequest},
		{"bad tier", http.MethodPut, "/v1/users/1/tier", `{"tier":"gold"}`, http.StatusBadRequest},
		{"rated and unrated", http.MethodPost, "/v1/users/1/analyze", `{"days":3,"rated_only":true,"unrated_only":true}`, http.StatusBadRequest},
		{"rated filter on ids", http.MethodPost, "/v1/users/1/analyze", `{"game_ids":[10],"rated_only":true}`, http.StatusBadRequest},
		{"negative game count", http.MethodPost, "/v1/users/1/analyze", `{"days":3,"game_count":-1}`, http.StatusBadRequest},
		{"analyses unknown user", http.MethodGet, "/v1/users/9/analyses", "", http.StatusNotFound},
		{"analyses bad skip", http.MethodGet, "/v1/users/1/analyses?skip=-1", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			var e ErrorResponse
			decode(t, resp, &e)
			assert.NotEmpty(t, e.Error)
			assert.NotEmpty(t, e.RequestID)
		})
	}
}

func TestQuotaTierAndSummary(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/v1/users/1/quota", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q model.QuotaStatus
	decode(t, resp, &q)
	assert.Equal(t, 5, q.Remaining)

	resp = do(t, http.MethodPut, srv.URL+"/v1/users/1/tier", `{"tier":"pro"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &q)
	assert.Equal(t, model.TierPro, q.Tier)
	assert.Equal(t, model.Unlimited, q.Remaining)

	resp = do(t, http.MethodGet, srv.URL+"/v1/users/1/summary?start=2020-01-01T00:00:00Z&end=2020-02-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum model.UserPerformanceSummary
	decode(t, resp, &sum)
	assert.Zero(t, sum.GamesAnalyzed)
	assert.Nil(t, sum.ACPL)

	resp = do(t, http.MethodGet, srv.URL+"/v1/pool/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st scheduler.Status
	decode(t, resp, &st)
	assert.Equal(t, 1, st.Workers)
}

func TestAnalyzeRequestSelection(t *testing.T) {
	sel, err := AnalyzeRequest{Days: 7, TimeClasses: []string{"blitz"}}.Selection()
	require.NoError(t, err)
	assert.Equal(t, scheduler.SelectRecent, sel.Kind)
	assert.Equal(t, []string{"blitz"}, sel.TimeClasses)

	_, err = AnalyzeRequest{}.Selection()
	assert.ErrorIs(t, err, model.ErrInvalidSelection)

	sel, err = AnalyzeRequest{AllUnanalyzed: true, UnratedOnly: true, GameCount: 25}.Selection()
	require.NoError(t, err)
	require.NotNil(t, sel.Rated)
	assert.False(t, *sel.Rated)
	assert.Equal(t, 25, sel.MaxGames)

	sel, err = AnalyzeRequest{Days: 3, RatedOnly: true}.Selection()
	require.NoError(t, err)
	require.NotNil(t, sel.Rated)
	assert.True(t, *sel.Rated)
}

func TestAnalyzeRatedOnlySkipsCasualGames(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/v1/users/1/analyze", `{"all_unanalyzed":true,"rated_only":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out scheduler.Outcome
	decode(t, resp, &out)
	assert.Zero(t, out.GamesQueued)
	assert.Equal(t, scheduler.EmptyNoGames, out.EmptyReason)
}
