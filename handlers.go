package main

import (
	"context"
	"errors"
	"fmt"

	"tournethub/coordinator/internal/auth"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/notify"
	"tournethub/coordinator/internal/protocol"
	"tournethub/coordinator/internal/router"
	"tournethub/coordinator/internal/scoring"
	"tournethub/coordinator/internal/state"
)

// requestSwitch extracts the secondary discriminator from request packets.
func requestSwitch(pkt *protocol.Packet) int32 {
	if pkt == nil || pkt.Request == nil {
		return -1
	}
	return int32(pkt.Request.Type)
}

// modules builds the full registration table. Each handler names the packet
// field carrying the tournament scope so authorization never inspects
// payloads reflectively.
func (s *Server) modules() []router.Module {
	return []router.Module{
		{
			Kind:       protocol.KindRequest,
			SwitchType: requestSwitch,
			Complete:   func(p *protocol.Packet) bool { return p.Request.HasPayload() },
			Handlers: []router.Handler{
				{
					SwitchType:   int32(protocol.RequestJoin),
					Permission:   auth.PermissionJoin,
					TournamentID: func(p *protocol.Packet) string { return p.Request.Join.TournamentID },
					Fn:           s.handleJoin,
				},
				{
					SwitchType: int32(protocol.RequestCreateTournament),
					Fn:         s.handleCreateTournament,
				},
				{
					SwitchType:   int32(protocol.RequestUpdateTournament),
					Permission:   auth.PermissionUpdateSettings,
					TournamentID: func(p *protocol.Packet) string { return p.Request.UpdateTournament.TournamentID },
					Fn:           s.handleUpdateTournament,
				},
				{
					SwitchType:   int32(protocol.RequestDeleteTournament),
					Permission:   auth.PermissionDeleteTournament,
					TournamentID: func(p *protocol.Packet) string { return p.Request.DeleteTournament.TournamentID },
					Fn:           s.handleDeleteTournament,
				},
				{
					SwitchType:   int32(protocol.RequestCreateMatch),
					Permission:   auth.PermissionCreateMatch,
					TournamentID: func(p *protocol.Packet) string { return p.Request.CreateMatch.TournamentID },
					Fn:           s.handleCreateMatch,
				},
				{
					SwitchType:   int32(protocol.RequestUpdateMatch),
					Permission:   auth.PermissionUpdateMatch,
					TournamentID: func(p *protocol.Packet) string { return p.Request.UpdateMatch.TournamentID },
					Fn:           s.handleUpdateMatch,
				},
				{
					SwitchType:   int32(protocol.RequestDeleteMatch),
					Permission:   auth.PermissionDeleteMatch,
					TournamentID: func(p *protocol.Packet) string { return p.Request.DeleteMatch.TournamentID },
					Fn:           s.handleDeleteMatch,
				},
				{
					SwitchType:   int32(protocol.RequestCreateQualifier),
					Permission:   auth.PermissionCreateQualifier,
					TournamentID: func(p *protocol.Packet) string { return p.Request.CreateQualifier.TournamentID },
					Fn:           s.handleCreateQualifier,
				},
				{
					SwitchType:   int32(protocol.RequestUpdateQualifier),
					Permission:   auth.PermissionUpdateQualifier,
					TournamentID: func(p *protocol.Packet) string { return p.Request.UpdateQualifier.TournamentID },
					Fn:           s.handleUpdateQualifier,
				},
				{
					SwitchType:   int32(protocol.RequestDeleteQualifier),
					Permission:   auth.PermissionDeleteQualifier,
					TournamentID: func(p *protocol.Packet) string { return p.Request.DeleteQualifier.TournamentID },
					Fn:           s.handleDeleteQualifier,
				},
				{
					SwitchType:   int32(protocol.RequestSubmitScore),
					Permission:   auth.PermissionSubmitScores,
					TournamentID: func(p *protocol.Packet) string { return p.Request.SubmitScore.TournamentID },
					Fn:           s.handleSubmitScore,
				},
				{
					SwitchType:   int32(protocol.RequestGetLeaderboard),
					Permission:   auth.PermissionGetScores,
					TournamentID: func(p *protocol.Packet) string { return p.Request.GetLeaderboard.TournamentID },
					Fn:           s.handleGetLeaderboard,
				},
				{
					SwitchType:   int32(protocol.RequestRemainingAttempts),
					Permission:   auth.PermissionView,
					TournamentID: func(p *protocol.Packet) string { return p.Request.RemainingAttempts.TournamentID },
					Fn:           s.handleRemainingAttempts,
				},
				{
					SwitchType: int32(protocol.RequestListTournaments),
					Fn:         s.handleListTournaments,
				},
			},
		},
	}
}

// stateResponse maps expected store failures onto typed response codes.
// Unexpected failures pass through as errors and become internal responses.
func stateResponse(pkt *protocol.Packet, err error) (*protocol.Packet, error) {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return protocol.NewResponse(pkt, protocol.CodeNotFound, err.Error()), nil
	case errors.Is(err, state.ErrVersionConflict):
		return protocol.NewResponse(pkt, protocol.CodeConcurrentConflict, err.Error()), nil
	case errors.Is(err, state.ErrNoAttemptsRemaining):
		return protocol.NewResponse(pkt, protocol.CodeAttemptsExhausted, err.Error()), nil
	default:
		return nil, err
	}
}

// updateMatchRetrying performs the match mutation under the caller's pinned
// version. A losing race is reapplied once on fresh state; only a second
// conflict surfaces to the caller.
func (s *Server) updateMatchRetrying(tournamentID, matchID string, version uint64, mutate func(*models.Match) error) (*models.Match, error) {
	match, err := s.store.UpdateMatch(tournamentID, matchID, version, mutate)
	if errors.Is(err, state.ErrVersionConflict) {
		match, err = s.store.UpdateMatch(tournamentID, matchID, 0, mutate)
	}
	return match, err
}

// updateQualifierRetrying mirrors updateMatchRetrying for qualifier edits.
func (s *Server) updateQualifierRetrying(tournamentID, qualifierID string, version uint64, mutate func(*models.QualifierEvent) error) (*models.QualifierEvent, error) {
	qualifier, err := s.store.UpdateQualifier(tournamentID, qualifierID, version, mutate)
	if errors.Is(err, state.ErrVersionConflict) {
		qualifier, err = s.store.UpdateQualifier(tournamentID, qualifierID, 0, mutate)
	}
	return qualifier, err
}

func (s *Server) handleJoin(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.Join
	if req == nil || user == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "join payload is missing"), nil
	}

	presence := user.Clone()
	if req.DisplayName != "" {
		presence.Name = req.DisplayName
	}
	if err := s.store.AddUser(req.TournamentID, presence); err != nil {
		return stateResponse(pkt, err)
	}

	//1.- Joining grants the role's default permission set for this scope.
	switch user.ClientType {
	case models.ClientTypeCoordinator:
		s.resolver.GrantAll(user.ID, req.TournamentID, auth.CoordinatorPermissions())
	case models.ClientTypePlayer, models.ClientTypeWebsocket:
		s.resolver.GrantAll(user.ID, req.TournamentID, auth.PlayerPermissions())
	}

	tournament, err := s.store.GetTournament(req.TournamentID)
	if err != nil {
		return stateResponse(pkt, err)
	}
	response := protocol.Success(pkt)
	response.Response.TournamentID = tournament.ID
	response.Response.Tournament = tournament
	return response, nil
}

func (s *Server) handleCreateTournament(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.CreateTournament
	if req == nil || user == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "create tournament payload is missing"), nil
	}
	if user.ClientType == models.ClientTypeReadOnly {
		return protocol.Forbidden(pkt), nil
	}

	tournament, err := s.store.CreateTournament(req.Settings)
	if err != nil {
		return nil, err
	}
	//1.- The creator owns the scope outright.
	s.resolver.GrantAll(user.ID, tournament.ID, auth.OwnerPermissions())
	s.persistTournament(tournament.ID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = tournament.ID
	response.Response.Tournament = tournament
	return response, nil
}

func (s *Server) handleUpdateTournament(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.UpdateTournament
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "update tournament payload is missing"), nil
	}
	tournament, err := s.store.UpdateTournament(req.TournamentID, func(settings *models.TournamentSettings) error {
		*settings = req.Settings
		return nil
	})
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(tournament.ID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = tournament.ID
	response.Response.Tournament = tournament
	return response, nil
}

func (s *Server) handleDeleteTournament(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.DeleteTournament
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "delete tournament payload is missing"), nil
	}
	if err := s.store.DeleteTournament(req.TournamentID); err != nil {
		return stateResponse(pkt, err)
	}
	s.persist.Enqueue("tournament_tombstone", req.TournamentID, req.TournamentID)
	return protocol.Success(pkt), nil
}

func (s *Server) handleCreateMatch(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.CreateMatch
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "create match payload is missing"), nil
	}
	coordinatorID := req.CoordinatorID
	if coordinatorID == "" && user != nil {
		coordinatorID = user.ID
	}
	match, err := s.store.CreateMatch(req.TournamentID, req.Participants, coordinatorID)
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.Match = match
	return response, nil
}

func (s *Server) handleUpdateMatch(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.UpdateMatch
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "update match payload is missing"), nil
	}
	match, err := s.updateMatchRetrying(req.TournamentID, req.MatchID, req.Version, func(match *models.Match) error {
		for _, add := range req.AddUsers {
			if !match.HasParticipant(add) {
				match.Participants = append(match.Participants, add)
			}
		}
		for _, remove := range req.RemoveUsers {
			kept := match.Participants[:0]
			for _, participant := range match.Participants {
				if participant != remove {
					kept = append(kept, participant)
				}
			}
			match.Participants = kept
		}
		if req.LeaderID != nil {
			match.CoordinatorID = *req.LeaderID
		}
		if req.SelectedMap != nil {
			match.SelectedMap = *req.SelectedMap
		}
		if req.InProgress != nil {
			match.InProgress = *req.InProgress
		}
		return nil
	})
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.Match = match
	return response, nil
}

func (s *Server) handleDeleteMatch(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.DeleteMatch
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "delete match payload is missing"), nil
	}
	if err := s.store.DeleteMatch(req.TournamentID, req.MatchID); err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)
	return protocol.Success(pkt), nil
}

func (s *Server) handleCreateQualifier(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.CreateQualifier
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "create qualifier payload is missing"), nil
	}
	sort := scoring.Sort(req.Sort)
	if sort < scoring.SortModifiedScore || sort > scoring.SortMaxComboAscending {
		return protocol.NewResponse(pkt, protocol.CodeMalformed,
			fmt.Sprintf("unknown sort strategy %d", req.Sort)), nil
	}
	qualifier, err := s.store.CreateQualifier(req.TournamentID, state.QualifierConfig{
		Name:           req.Name,
		Sort:           sort,
		Invert:         req.Invert,
		Flags:          req.Flags,
		AttemptsPerMap: req.AttemptsPerMap,
		MapIDs:         req.MapIDs,
	})
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.Qualifier = qualifier
	return response, nil
}

func (s *Server) handleUpdateQualifier(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.UpdateQualifier
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "update qualifier payload is missing"), nil
	}
	qualifier, err := s.updateQualifierRetrying(req.TournamentID, req.QualifierID, req.Version, func(q *models.QualifierEvent) error {
		if req.Name != nil {
			q.Name = *req.Name
		}
		if req.Sort != nil {
			sort := scoring.Sort(*req.Sort)
			if sort < scoring.SortModifiedScore || sort > scoring.SortMaxComboAscending {
				return fmt.Errorf("unknown sort strategy %d", *req.Sort)
			}
			q.Sort = *req.Sort
		}
		if req.Invert != nil {
			q.Invert = *req.Invert
		}
		if req.Flags != nil {
			q.Flags = *req.Flags
		}
		for _, mapID := range req.AddMaps {
			if _, ok := q.Leaderboards[mapID]; !ok {
				q.Leaderboards[mapID] = &models.Leaderboard{MapID: mapID, Attempts: make(map[string]int)}
			}
		}
		for _, mapID := range req.RemoveMaps {
			delete(q.Leaderboards, mapID)
		}
		return nil
	})
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)

	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.Qualifier = qualifier
	return response, nil
}

func (s *Server) handleDeleteQualifier(_ context.Context, pkt *protocol.Packet, _ *models.User) (*protocol.Packet, error) {
	req := pkt.Request.DeleteQualifier
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "delete qualifier payload is missing"), nil
	}
	if err := s.store.DeleteQualifier(req.TournamentID, req.QualifierID); err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)
	return protocol.Success(pkt), nil
}

func (s *Server) handleSubmitScore(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.SubmitScore
	if req == nil || user == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "submit score payload is missing"), nil
	}

	score := req.Score.Clone()
	//1.- Players may only submit under their own platform identity.
	if user.ClientType == models.ClientTypePlayer {
		if user.PlatformID == "" {
			return protocol.NewResponse(pkt, protocol.CodeMalformed, "your account has no platform identity"), nil
		}
		score.PlatformID = user.PlatformID
		if score.Username == "" {
			score.Username = user.Name
		}
	}

	result, err := s.store.SubmitScore(req.TournamentID, req.QualifierID, req.MapID, score)
	if err != nil {
		return stateResponse(pkt, err)
	}
	qualifier, err := s.store.GetQualifier(req.TournamentID, req.QualifierID)
	if err != nil {
		return stateResponse(pkt, err)
	}
	s.persistTournament(req.TournamentID)

	if result.Outcome != scoring.NotImproved && qualifier.Flags.Has(models.FlagEnableScoreFeed) {
		s.publishScoreFeed(req.TournamentID, qualifier.Name, req.MapID, result.Retained)
	}

	code := protocol.CodeSuccess
	if result.Outcome == scoring.NotImproved {
		code = protocol.CodeNotImproved
	}
	response := protocol.NewResponse(pkt, code, "")
	response.Response.TournamentID = req.TournamentID
	response.Response.Scores = s.visibleScores(qualifier, user, result.Ordered)
	return response, nil
}

func (s *Server) handleGetLeaderboard(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.GetLeaderboard
	if req == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "get leaderboard payload is missing"), nil
	}
	qualifier, err := s.store.GetQualifier(req.TournamentID, req.QualifierID)
	if err != nil {
		return stateResponse(pkt, err)
	}
	scores, err := s.store.Leaderboard(req.TournamentID, req.QualifierID, req.MapID)
	if err != nil {
		return stateResponse(pkt, err)
	}

	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.Scores = s.visibleScores(qualifier, user, scores)
	return response, nil
}

func (s *Server) handleRemainingAttempts(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	req := pkt.Request.RemainingAttempts
	if req == nil || user == nil {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "remaining attempts payload is missing"), nil
	}
	remaining, err := s.store.RemainingAttempts(req.TournamentID, req.QualifierID, req.MapID, user.PlatformID)
	if err != nil {
		return stateResponse(pkt, err)
	}
	response := protocol.Success(pkt)
	response.Response.TournamentID = req.TournamentID
	response.Response.RemainingAttempts = remaining
	return response, nil
}

func (s *Server) handleListTournaments(_ context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error) {
	if user == nil {
		return protocol.Forbidden(pkt), nil
	}
	response := protocol.Success(pkt)
	response.Response.Tournaments = s.store.ListTournaments()
	return response, nil
}

// visibleScores applies the hide-scores flag: players only see their own
// rows while the flag is set; coordinators and admins always see everything.
func (s *Server) visibleScores(qualifier *models.QualifierEvent, user *models.User, scores []*models.Score) []*models.Score {
	if qualifier == nil || !qualifier.Flags.Has(models.FlagHideScores) {
		return scores
	}
	if user != nil && (user.ClientType == models.ClientTypeCoordinator || user.ClientType == models.ClientTypeServerAdmin) {
		return scores
	}
	platformID := ""
	if user != nil {
		platformID = user.PlatformID
	}
	own := make([]*models.Score, 0, 1)
	for _, score := range scores {
		if platformID != "" && score.PlatformID == platformID {
			own = append(own, score)
		}
	}
	return own
}

// persistTournament hands the current tournament snapshot to the
// write-behind queue. Missing tournaments are already covered by tombstones.
func (s *Server) persistTournament(tournamentID string) {
	tournament, err := s.store.GetTournament(tournamentID)
	if err != nil {
		return
	}
	s.persist.Enqueue("tournament", tournamentID, tournament)
}

// publishScoreFeed emits a fire-and-forget notification for score feeds.
func (s *Server) publishScoreFeed(tournamentID, qualifierName, mapID string, score *models.Score) {
	if score == nil {
		return
	}
	s.notifier.Publish(notify.Notification{
		Kind:         "score_submitted",
		TournamentID: tournamentID,
		Message:      fmt.Sprintf("%s scored %d on %s (%s)", score.Username, score.ModifiedScore, mapID, qualifierName),
		Payload:      score,
	})
}
