package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

type createSeasonRequest struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Config  season.Config   `json:"config"`
	Players []roster.Player `json:"players"`
}

func (h *Handler) createSeason(w http.ResponseWriter, r *http.Request) {
	var req createSeasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sn, err := h.svc.CreateSeason(r.Context(), service.CreateSeasonInput{
		ID:      req.ID,
		Name:    req.Name,
		Config:  req.Config,
		Players: req.Players,
		ActorID: gmID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

func (h *Handler) startSeason(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.StartSeason(r.Context(), chi.URLParam(r, "seasonID"), gmID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (h *Handler) listSeasons(w http.ResponseWriter, r *http.Request) {
	var statuses []season.Status
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, season.Status(s))
	}
	list, err := h.svc.ListSeasons(r.Context(), statuses...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seasons": list})
}

func (h *Handler) getSeason(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.GetSeason(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (h *Handler) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.svc.ListPlayers(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

type commitRequest struct {
	PlayerID string `json:"player_id"`
	Hash     string `json:"hash"`
}

func (h *Handler) commitSeed(w http.ResponseWriter, r *http.Request) {
	seasonID := chi.URLParam(r, "seasonID")
	var req commitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	playerID, err := actor(r, seasonID, req.PlayerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inst, err := h.svc.CommitSeed(r.Context(), service.CommitInput{SeasonID: seasonID, PlayerID: playerID, Hash: req.Hash})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type revealRequest struct {
	PlayerID string `json:"player_id"`
	Seed     string `json:"seed"`
}

func (h *Handler) revealSeed(w http.ResponseWriter, r *http.Request) {
	seasonID := chi.URLParam(r, "seasonID")
	var req revealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	playerID, err := actor(r, seasonID, req.PlayerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inst, err := h.svc.RevealSeed(r.Context(), service.RevealInput{SeasonID: seasonID, PlayerID: playerID, Seed: req.Seed})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type voteRequest struct {
	VoterID  string `json:"voter_id"`
	TargetID string `json:"target_id"`
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	seasonID := chi.URLParam(r, "seasonID")
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	voterID, err := actor(r, seasonID, req.VoterID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.CastVote(r.Context(), service.VoteInput{SeasonID: seasonID, VoterID: voterID, TargetID: req.TargetID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

type idolRequest struct {
	HolderID string `json:"holder_id"`
}

func (h *Handler) playIdol(w http.ResponseWriter, r *http.Request) {
	seasonID := chi.URLParam(r, "seasonID")
	var req idolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	holderID, err := actor(r, seasonID, req.HolderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	play, err := h.svc.PlayIdol(r.Context(), service.IdolInput{SeasonID: seasonID, HolderID: holderID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

type companionRequest struct {
	SelectorID  string `json:"selector_id"`
	CompanionID string `json:"companion_id"`
}

func (h *Handler) selectCompanion(w http.ResponseWriter, r *http.Request) {
	seasonID := chi.URLParam(r, "seasonID")
	var req companionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	selectorID, err := actor(r, seasonID, req.SelectorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sn, err := h.svc.SelectCompanion(r.Context(), service.CompanionInput{SeasonID: seasonID, SelectorID: selectorID, CompanionID: req.CompanionID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

type deltaRequest struct {
	Day   int         `json:"day"`
	Delta stats.Delta `json:"delta"`
}

func (h *Handler) applyDelta(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.svc.ApplyDelta(r.Context(), service.DeltaInput{
		SeasonID: chi.URLParam(r, "seasonID"),
		PlayerID: chi.URLParam(r, "playerID"),
		Day:      req.Day,
		Delta:    req.Delta,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) getDailyState(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(r.URL.Query().Get("day"), "day", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.svc.GetDailyState(r.Context(), chi.URLParam(r, "seasonID"), chi.URLParam(r, "playerID"), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type controlRequest struct {
	Signal   string `json:"signal"`
	Duration string `json:"duration,omitempty"`
	Name     string `json:"name,omitempty"`
	Note     string `json:"note,omitempty"`
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sig, err := service.ParseSignal(req.Signal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := durationParam(req.Duration)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sn, err := h.svc.Control(r.Context(), service.ControlInput{
		SeasonID: chi.URLParam(r, "seasonID"),
		Signal:   sig,
		Duration: d,
		Name:     req.Name,
		Note:     req.Note,
		ActorID:  gmID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := intParam(q.Get("after"), "after", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.svc.ListEvents(r.Context(), storage.EventQuery{
		SeasonID: chi.URLParam(r, "seasonID"),
		AfterSeq: uint64(after),
		Limit:    limit,
		Filter:   q.Get("filter"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) verifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifyChain(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(chi.URLParam(r, "day"), "day", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.svc.ListChallenges(r.Context(), chi.URLParam(r, "seasonID"), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

func (h *Handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(chi.URLParam(r, "day"), "day", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inst, err := h.svc.ChallengeView(r.Context(), challenge.Key{
		SeasonID: chi.URLParam(r, "seasonID"),
		Day:      day,
		Round:    challenge.Round(chi.URLParam(r, "round")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) getVoteRound(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(chi.URLParam(r, "day"), "day", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	audit, err := h.svc.VoteRound(r.Context(), chi.URLParam(r, "seasonID"), day, vote.Round(chi.URLParam(r, "round")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	attempts, err := h.svc.ListAttempts(r.Context(), chi.URLParam(r, "seasonID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.DaySummaries(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (h *Handler) listEliminations(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListEliminations(r.Context(), chi.URLParam(r, "seasonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eliminations": records})
}

func (h *Handler) serveLive(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		http.NotFound(w, r)
		return
	}
	seasonID := chi.URLParam(r, "seasonID")
	if _, err := h.svc.GetSeason(r.Context(), seasonID); err != nil {
		h.writeError(w, r, err)
		return
	}
	after, err := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	if err != nil {
		after = 0
	}
	h.live.Serve(w, r, seasonID, after)
}
