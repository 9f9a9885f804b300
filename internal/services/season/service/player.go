package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/outlast/internal/platform/errors"
	"github.com/louisbranch/outlast/internal/services/season/domain/challenge"
	"github.com/louisbranch/outlast/internal/services/season/domain/event"
	"github.com/louisbranch/outlast/internal/services/season/domain/roster"
	"github.com/louisbranch/outlast/internal/services/season/domain/season"
	"github.com/louisbranch/outlast/internal/services/season/domain/stats"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/orchestrator"
	"github.com/louisbranch/outlast/internal/services/season/storage"
)

// CommitInput submits a client seed commitment.
type CommitInput struct {
	SeasonID string
	PlayerID string
	Hash     string
}

type committedPayload struct {
	EncounterID string `json:"encounter_id"`
	Hash        string `json:"hash"`
	CommitOrder int    `json:"commit_order"`
}

// CommitSeed records the player's seed hash on the challenge they are
// entered in today. Repeating the same hash is a no-op.
func (s *Service) CommitSeed(ctx context.Context, in CommitInput) (challenge.Instance, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return challenge.Instance{}, err
	}
	playerID, err := requireID("player id", in.PlayerID)
	if err != nil {
		return challenge.Instance{}, err
	}

	var (
		out    challenge.Instance
		stored []event.Event
	)
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := liveSeason(ctx, tx, seasonID)
		if err != nil {
			return err
		}
		inst, err := currentChallenge(ctx, tx, sn, playerID, apperrors.CodeChallengeNotOpen)
		if err != nil {
			return err
		}
		before, _, _ := inst.Entrant(playerID)
		updated, err := inst.Commit(playerID, in.Hash, s.orch.Now())
		if err != nil {
			return err
		}
		out = updated
		if before.Committed() {
			s.logger.Warn().Str("season_id", sn.ID).Str("player_id", playerID).Msg("commitment already recorded")
			return nil
		}
		if err := tx.SaveChallenge(ctx, updated); err != nil {
			return err
		}
		entrant, _, _ := updated.Entrant(playerID)
		evt, err := event.New(sn.ID, sn.DayIndex, event.KindChallengeCommitted, playerID, committedPayload{
			EncounterID: updated.EncounterID(),
			Hash:        entrant.ClientSeedHash,
			CommitOrder: entrant.CommitOrder,
		})
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorPlayer, playerID))
		return err
	})
	if err != nil {
		return challenge.Instance{}, err
	}
	s.orch.Publish(ctx, stored)
	return out.Public(), nil
}

// RevealInput submits a client seed after lock.
type RevealInput struct {
	SeasonID string
	PlayerID string
	Seed     string
}

type revealedPayload struct {
	EncounterID string `json:"encounter_id"`
}

type incidentPayload struct {
	EncounterID string         `json:"encounter_id"`
	PlayerID    string         `json:"player_id"`
	Code        apperrors.Code `json:"code"`
	Error       string         `json:"error"`
}

// RevealSeed records the player's seed. A seed that does not hash to the
// stored commitment is rejected, nothing is stored, and an integrity
// incident is written to the audit log.
func (s *Service) RevealSeed(ctx context.Context, in RevealInput) (challenge.Instance, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return challenge.Instance{}, err
	}
	playerID, err := requireID("player id", in.PlayerID)
	if err != nil {
		return challenge.Instance{}, err
	}

	var (
		out      challenge.Instance
		stored   []event.Event
		mismatch *incidentPayload
		day      int
	)
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := liveSeason(ctx, tx, seasonID)
		if err != nil {
			return err
		}
		day = sn.DayIndex
		inst, err := currentChallenge(ctx, tx, sn, playerID, apperrors.CodeChallengeNotLocked)
		if err != nil {
			return err
		}
		before, _, _ := inst.Entrant(playerID)
		updated, err := inst.Reveal(playerID, in.Seed, s.orch.Now())
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeCommitMismatch) {
				mismatch = &incidentPayload{
					EncounterID: inst.EncounterID(),
					PlayerID:    playerID,
					Code:        apperrors.CodeCommitMismatch,
					Error:       err.Error(),
				}
			}
			return err
		}
		out = updated
		if before.Revealed() {
			s.logger.Warn().Str("season_id", sn.ID).Str("player_id", playerID).Msg("seed already revealed")
			return nil
		}
		if err := tx.SaveChallenge(ctx, updated); err != nil {
			return err
		}
		evt, err := event.New(sn.ID, sn.DayIndex, event.KindChallengeRevealed, playerID, revealedPayload{EncounterID: updated.EncounterID()})
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorPlayer, playerID))
		return err
	})
	if err != nil {
		if mismatch != nil {
			if incidentErr := s.recordIncident(ctx, seasonID, day, playerID, *mismatch); incidentErr != nil {
				return challenge.Instance{}, errors.Join(err, incidentErr)
			}
		}
		return challenge.Instance{}, err
	}
	s.orch.Publish(ctx, stored)
	return out.Public(), nil
}

func (s *Service) recordIncident(ctx context.Context, seasonID string, day int, playerID string, payload incidentPayload) error {
	s.logger.Error().
		Str("season_id", seasonID).
		Str("player_id", playerID).
		Str("encounter_id", payload.EncounterID).
		Msg("revealed seed does not match commitment")

	evt, err := event.New(seasonID, day, event.KindIntegrityIncident, payload.EncounterID, payload)
	if err != nil {
		return err
	}
	var stored []event.Event
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		var err error
		stored, err = appendAll(ctx, tx, evt.By(event.ActorPlayer, playerID))
		return err
	})
	if err != nil {
		return err
	}
	s.orch.Publish(ctx, stored)
	return nil
}

// VoteInput casts or replaces a ballot.
type VoteInput struct {
	SeasonID string
	VoterID  string
	TargetID string
}

// CastVote stores the voter's ballot in the open round. Ballots stay secret
// until the round is tallied, so no audit event is written here.
func (s *Service) CastVote(ctx context.Context, in VoteInput) (vote.Vote, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return vote.Vote{}, err
	}
	voterID, err := requireID("voter id", in.VoterID)
	if err != nil {
		return vote.Vote{}, err
	}
	targetID, err := requireID("target id", in.TargetID)
	if err != nil {
		return vote.Vote{}, err
	}

	var out vote.Vote
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := liveSeason(ctx, tx, seasonID)
		if err != nil {
			return err
		}
		box, err := openRound(ctx, tx, sn)
		if err != nil {
			return err
		}
		voter, err := tx.GetPlayer(ctx, sn.ID, voterID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return ineligible(apperrors.CodeVoterIneligible, "voter is not on the roster", voterID)
			}
			return err
		}
		if err := checkVoter(box, voter); err != nil {
			return err
		}
		target, err := tx.GetPlayer(ctx, sn.ID, targetID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return badTarget("target is not on the roster", targetID)
			}
			return err
		}
		if !target.Active() || !box.Eligibility.CanTarget(targetID) || targetID == voterID {
			return badTarget("target cannot receive votes in this round", targetID)
		}
		out = vote.Vote{
			SeasonID: sn.ID,
			Day:      box.Day,
			Round:    box.Round,
			VoterID:  voterID,
			TargetID: targetID,
			CastAt:   s.orch.Now(),
		}
		return tx.PutVote(ctx, out)
	})
	if err != nil {
		return vote.Vote{}, err
	}
	return out, nil
}

// checkVoter enforces the round eligibility. Jurors vote only in the jury
// round, and only when listed explicitly.
func checkVoter(box storage.VoteRound, voter roster.Player) error {
	if box.Round == vote.RoundJury {
		if voter.Role != roster.RoleJuror || len(box.Eligibility.Voters) == 0 || !box.Eligibility.CanVote(voter.ID) {
			return ineligible(apperrors.CodeVoterIneligible, "only jurors vote for the winner", voter.ID)
		}
		return nil
	}
	if !voter.Active() {
		return ineligible(apperrors.CodePlayerNotActive, "player is no longer competing", voter.ID)
	}
	if !box.Eligibility.CanVote(voter.ID) {
		return ineligible(apperrors.CodeVoterIneligible, "player cannot vote in this round", voter.ID)
	}
	return nil
}

// IdolInput plays a holder's idol.
type IdolInput struct {
	SeasonID string
	HolderID string
}

type idolPayload struct {
	Round vote.Round `json:"round"`
}

// PlayIdol negates every ballot against the holder in the open round. The
// negation is applied when the round closes.
func (s *Service) PlayIdol(ctx context.Context, in IdolInput) (storage.IdolPlay, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return storage.IdolPlay{}, err
	}
	holderID, err := requireID("holder id", in.HolderID)
	if err != nil {
		return storage.IdolPlay{}, err
	}

	var (
		play   storage.IdolPlay
		stored []event.Event
	)
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := liveSeason(ctx, tx, seasonID)
		if err != nil {
			return err
		}
		box, err := openRound(ctx, tx, sn)
		if err != nil {
			return err
		}
		if box.Round == vote.RoundJury {
			return apperrors.New(apperrors.CodeVoteClosed, "idols cannot be played in the jury vote")
		}
		holder, err := tx.GetPlayer(ctx, sn.ID, holderID)
		if err != nil {
			return err
		}
		if !holder.Active() {
			return ineligible(apperrors.CodePlayerNotActive, "player is no longer competing", holderID)
		}
		play = storage.IdolPlay{
			SeasonID: sn.ID,
			Day:      box.Day,
			Round:    box.Round,
			HolderID: holderID,
			PlayedAt: s.orch.Now(),
		}
		if err := tx.RecordIdolPlay(ctx, play); err != nil {
			return err
		}
		evt, err := event.New(sn.ID, sn.DayIndex, event.KindIdolPlayed, holderID, idolPayload{Round: box.Round})
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorPlayer, holderID))
		return err
	})
	if err != nil {
		return storage.IdolPlay{}, err
	}
	s.orch.Publish(ctx, stored)
	return play, nil
}

// CompanionInput names the final immunity winner's companion.
type CompanionInput struct {
	SeasonID    string
	SelectorID  string
	CompanionID string
}

type companionPayload struct {
	Selector  string `json:"selector"`
	Companion string `json:"companion"`
	Default   bool   `json:"default"`
}

// SelectCompanion records the finalist the final immunity winner takes to
// the final. The choice may be changed until the selection window closes.
func (s *Service) SelectCompanion(ctx context.Context, in CompanionInput) (season.Season, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return season.Season{}, err
	}
	selectorID, err := requireID("selector id", in.SelectorID)
	if err != nil {
		return season.Season{}, err
	}
	companionID, err := requireID("companion id", in.CompanionID)
	if err != nil {
		return season.Season{}, err
	}

	var (
		updated season.Season
		stored  []event.Event
	)
	err = s.store.Atomic(ctx, func(tx storage.Gateway) error {
		sn, err := liveSeason(ctx, tx, seasonID)
		if err != nil {
			return err
		}
		if sn.NextPhase != season.PhaseFinalDuelOpen || sn.Phase != season.PhaseFinalistSelection {
			return apperrors.New(apperrors.CodeSelectionClosed, "companion selection is not open")
		}
		inst, err := tx.GetChallenge(ctx, challenge.Key{SeasonID: sn.ID, Day: sn.DayIndex, Round: challenge.RoundFinalImmunity})
		if err != nil {
			return err
		}
		if inst.Results == nil || inst.Results.Top() != selectorID {
			return apperrors.WithMetadata(apperrors.CodePermissionDenied, "only the final immunity winner selects a companion", map[string]string{"PlayerID": selectorID})
		}
		companion, err := tx.GetPlayer(ctx, sn.ID, companionID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return ineligible(apperrors.CodeCompanionIneligible, "companion is not on the roster", companionID)
			}
			return err
		}
		if !companion.Active() || companionID == selectorID {
			return ineligible(apperrors.CodeCompanionIneligible, "companion must be another active finalist", companionID)
		}
		sn.Companion = companionID
		sn.UpdatedAt = s.orch.Now()
		updated, err = tx.UpdateSeason(ctx, sn)
		if err != nil {
			return err
		}
		evt, err := event.New(sn.ID, sn.DayIndex, event.KindCompanionSelected, companionID, companionPayload{
			Selector:  selectorID,
			Companion: companionID,
		})
		if err != nil {
			return err
		}
		stored, err = appendAll(ctx, tx, evt.By(event.ActorPlayer, selectorID))
		return err
	})
	if err != nil {
		return season.Season{}, err
	}
	s.orch.Publish(ctx, stored)
	return updated, nil
}

// DeltaInput changes one player's stats. Day zero means the current day.
type DeltaInput struct {
	SeasonID string
	PlayerID string
	Day      int
	Delta    stats.Delta
}

// ApplyDelta adds the delta to the player's daily state, clamping every
// stat.
func (s *Service) ApplyDelta(ctx context.Context, in DeltaInput) (storage.DailyStateRecord, error) {
	seasonID, err := requireID("season id", in.SeasonID)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	playerID, err := requireID("player id", in.PlayerID)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	sn, err := s.store.GetSeason(ctx, seasonID)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	if err := sn.CheckLive(); err != nil {
		return storage.DailyStateRecord{}, err
	}
	day := in.Day
	if day <= 0 {
		day = sn.DayIndex
	}
	rec, err := storage.ApplyDelta(ctx, s.store, sn.ID, playerID, day, in.Delta)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	s.logger.Debug().Str("season_id", sn.ID).Str("player_id", playerID).Int("day", day).Int64("version", rec.Version).Msg("daily state updated")
	return rec, nil
}

// GetDailyState returns one player's stats. Day zero means the current day.
func (s *Service) GetDailyState(ctx context.Context, seasonID, playerID string, day int) (storage.DailyStateRecord, error) {
	seasonID, err := requireID("season id", seasonID)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	playerID, err = requireID("player id", playerID)
	if err != nil {
		return storage.DailyStateRecord{}, err
	}
	if day <= 0 {
		sn, err := s.store.GetSeason(ctx, seasonID)
		if err != nil {
			return storage.DailyStateRecord{}, err
		}
		day = sn.DayIndex
	}
	return s.store.GetDailyState(ctx, seasonID, playerID, day)
}

func liveSeason(ctx context.Context, tx storage.SeasonStore, seasonID string) (season.Season, error) {
	sn, err := tx.GetSeason(ctx, seasonID)
	if err != nil {
		return season.Season{}, err
	}
	if err := sn.CheckLive(); err != nil {
		return season.Season{}, err
	}
	return sn, nil
}

// currentChallenge is the most recently opened unscored challenge of the
// day that playerID is entered in.
func currentChallenge(ctx context.Context, tx storage.ChallengeStore, sn season.Season, playerID string, missing apperrors.Code) (challenge.Instance, error) {
	list, err := tx.ListChallenges(ctx, sn.ID, sn.DayIndex)
	if err != nil {
		return challenge.Instance{}, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		inst := list[i]
		if inst.Status == challenge.StatusScored {
			continue
		}
		if !inst.HasEntrant(playerID) {
			return challenge.Instance{}, ineligible(apperrors.CodeNotEntrant, "player is not an entrant", playerID)
		}
		return inst, nil
	}
	return challenge.Instance{}, apperrors.New(missing, fmt.Sprintf("no challenge in progress on day %d", sn.DayIndex))
}

// openRound returns the ballot box accepting votes for the season's current
// phase.
func openRound(ctx context.Context, tx storage.VoteStore, sn season.Season) (storage.VoteRound, error) {
	round, ok := orchestrator.VoteRoundFor(sn.NextPhase)
	if !ok {
		return storage.VoteRound{}, apperrors.New(apperrors.CodeVoteClosed, "voting is closed")
	}
	box, err := tx.GetVoteRound(ctx, sn.ID, sn.DayIndex, round)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return storage.VoteRound{}, apperrors.New(apperrors.CodeVoteClosed, "voting is closed")
		}
		return storage.VoteRound{}, err
	}
	if box.Status != storage.VoteRoundOpen {
		return storage.VoteRound{}, apperrors.New(apperrors.CodeVoteClosed, "voting is closed")
	}
	return box, nil
}

func ineligible(code apperrors.Code, message, playerID string) error {
	return apperrors.WithMetadata(code, message, map[string]string{"PlayerID": playerID})
}

func badTarget(message, targetID string) error {
	return apperrors.WithMetadata(apperrors.CodeTargetIneligible, message, map[string]string{"TargetID": targetID})
}
