package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournethub/coordinator/internal/config"
	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
	"tournethub/coordinator/internal/state"
)

func newTestCoordinator(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	server, err := NewServer(cfg, logging.NewTestLogger(), WithCredentialVerifier(testVerifier()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestStateResponseMapsStoreFailures(t *testing.T) {
	pkt := &protocol.Packet{ID: "pkt-9"}
	tests := []struct {
		name string
		err  error
		want protocol.ResponseCode
	}{
		{"not found", state.ErrNotFound, protocol.CodeNotFound},
		{"version conflict", state.ErrVersionConflict, protocol.CodeConcurrentConflict},
		{"attempts exhausted", state.ErrNoAttemptsRemaining, protocol.CodeAttemptsExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, err := stateResponse(pkt, tt.err)
			require.NoError(t, err)
			assert.Equal(t, tt.want, response.Response.Code)
			assert.Equal(t, "pkt-9", response.Response.RespondingTo)
		})
	}

	//1.- Unexpected failures pass through and become internal responses upstream.
	_, err := stateResponse(pkt, assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestUpdateMatchRetriesLostVersionRace(t *testing.T) {
	server := newTestCoordinator(t)
	tournament, err := server.store.CreateTournament(models.TournamentSettings{Name: "Bracket"})
	require.NoError(t, err)
	match, err := server.store.CreateMatch(tournament.ID, []string{"p1"}, "c1")
	require.NoError(t, err)

	//1.- Another writer advances the match before the stale update lands.
	_, err = server.store.UpdateMatch(tournament.ID, match.ID, 0, func(m *models.Match) error {
		m.SelectedMap = "map-b"
		return nil
	})
	require.NoError(t, err)

	pkt := &protocol.Packet{
		ID: "pkt-retry",
		Request: &protocol.Request{
			Type: protocol.RequestUpdateMatch,
			UpdateMatch: &protocol.UpdateMatchRequest{
				TournamentID: tournament.ID,
				MatchID:      match.ID,
				Version:      match.Version,
				AddUsers:     []string{"late-joiner"},
			},
		},
	}
	response, err := server.handleUpdateMatch(context.Background(), pkt, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.CodeSuccess, response.Response.Code)

	//2.- The retry reapplied the delta on fresh state instead of overwriting it.
	assert.Contains(t, response.Response.Match.Participants, "late-joiner")
	assert.Equal(t, "map-b", response.Response.Match.SelectedMap)
}

func TestUpdateQualifierRetriesLostVersionRace(t *testing.T) {
	server := newTestCoordinator(t)
	tournament, err := server.store.CreateTournament(models.TournamentSettings{Name: "Qualifier Cup"})
	require.NoError(t, err)
	qualifier, err := server.store.CreateQualifier(tournament.ID, state.QualifierConfig{
		Name:   "Week One",
		MapIDs: []string{"map-a"},
	})
	require.NoError(t, err)

	_, err = server.store.UpdateQualifier(tournament.ID, qualifier.ID, 0, func(q *models.QualifierEvent) error {
		q.Invert = true
		return nil
	})
	require.NoError(t, err)

	name := "Week One (extended)"
	pkt := &protocol.Packet{
		ID: "pkt-retry-q",
		Request: &protocol.Request{
			Type: protocol.RequestUpdateQualifier,
			UpdateQualifier: &protocol.UpdateQualifierRequest{
				TournamentID: tournament.ID,
				QualifierID:  qualifier.ID,
				Version:      qualifier.Version,
				Name:         &name,
			},
		},
	}
	response, err := server.handleUpdateQualifier(context.Background(), pkt, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.CodeSuccess, response.Response.Code)
	assert.Equal(t, name, response.Response.Qualifier.Name)
	assert.True(t, response.Response.Qualifier.Invert)
}
