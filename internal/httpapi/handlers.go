package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/scheduler"
)

var errBadRequest = errors.New("bad request")

// AnalyzeRequest is the body of POST /v1/users/{userID}/analyze. Exactly one
// of GameIDs, Days and AllUnanalyzed selects the games.
type AnalyzeRequest struct {
	GameIDs         []int64  `json:"game_ids"`
	Days            int      `json:"days"`
	AllUnanalyzed   bool     `json:"all_unanalyzed"`
	TimeClasses     []string `json:"time_classes"`
	RatedOnly       bool     `json:"rated_only"`
	UnratedOnly     bool     `json:"unrated_only"`
	GameCount       int      `json:"game_count"`
	ForceReanalysis bool     `json:"force_reanalysis"`
}

// Selection converts the request into a scheduler selection.
func (a AnalyzeRequest) Selection() (scheduler.Selection, error) {
	set := 0
	sel := scheduler.Selection{TimeClasses: a.TimeClasses}
	if len(a.GameIDs) > 0 {
		set++
		sel.Kind = scheduler.SelectExplicit
		sel.GameIDs = a.GameIDs
	}
	if a.Days > 0 {
		set++
		sel.Kind = scheduler.SelectRecent
		sel.Days = a.Days
	}
	if a.AllUnanalyzed {
		set++
		sel.Kind = scheduler.SelectUnanalyzed
	}
	if set != 1 {
		return scheduler.Selection{}, fmt.Errorf("exactly one of game_ids, days, all_unanalyzed is required: %w", model.ErrInvalidSelection)
	}
	switch {
	case a.RatedOnly && a.UnratedOnly:
		return scheduler.Selection{}, fmt.Errorf("rated_only and unrated_only are exclusive: %w", model.ErrInvalidSelection)
	case a.RatedOnly:
		rated := true
		sel.Rated = &rated
	case a.UnratedOnly:
		rated := false
		sel.Rated = &rated
	}
	sel.MaxGames = a.GameCount
	return sel, sel.Validate()
}

// TierRequest is the body of PUT /v1/users/{userID}/tier.
type TierRequest struct {
	Tier       model.Tier `json:"tier"`
	ResetTrial bool       `json:"reset_trial"`
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, errBadRequest)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, errBadRequest)
	}
	return nil
}

// intParam reads an optional non-negative query integer; absent means 0.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, errBadRequest)
	}
	return n, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", name, raw, errBadRequest)
	}
	return t, nil
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sel, err := req.Selection()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.AnalyzeBatch(r.Context(), userID, sel, req.ForceReanalysis)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if out.GamesQueued == 0 {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, out)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.BatchStatus(chi.URLParam(r, "batchID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.CancelBatch(chi.URLParam(r, "batchID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) gameAnalysis(w http.ResponseWriter, r *http.Request) {
	gameID, err := idParam(r, "gameID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.GetGameResult(r.Context(), gameID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	gameID, err := idParam(r, "gameID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteGameResult(r.Context(), gameID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	start, err := timeParam(r, "start")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sum, err := h.svc.GetUserSummary(r.Context(), userID, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, sum)
}

func (h *Handler) analyses(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	skip, err := intParam(r, "skip")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.svc.ListUserResults(r.Context(), userID, skip, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, page)
}

func (h *Handler) quota(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.svc.GetQuotaStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, q)
}

func (h *Handler) setTier(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req TierRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !req.Tier.Valid() {
		h.writeError(w, r, fmt.Errorf("unknown tier %q: %w", req.Tier, errBadRequest))
		return
	}
	q, err := h.svc.SetTier(r.Context(), userID, req.Tier, req.ResetTrial)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, q)
}

func (h *Handler) poolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.PoolStatus())
}
