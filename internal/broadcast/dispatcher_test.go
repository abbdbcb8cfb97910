package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
	"tournethub/coordinator/internal/scoring"
	"tournethub/coordinator/internal/state"
)

type fakeSender struct {
	mu        sync.Mutex
	connected []string
	full      map[string]bool
	delivered map[string][]*protocol.Packet
	dropped   map[string]string
}

func newFakeSender(connected ...string) *fakeSender {
	return &fakeSender{
		connected: connected,
		full:      make(map[string]bool),
		delivered: make(map[string][]*protocol.Packet),
		dropped:   make(map[string]string),
	}
}

func (f *fakeSender) Enqueue(userID string, pkt *protocol.Packet) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full[userID] {
		return false
	}
	f.delivered[userID] = append(f.delivered[userID], pkt)
	return true
}

func (f *fakeSender) Drop(userID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[userID] = reason
}

func (f *fakeSender) ConnectedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connected...)
}

func (f *fakeSender) packetsFor(userID string) []*protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Packet(nil), f.delivered[userID]...)
}

func (f *fakeSender) droppedReason(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped[userID]
}

func runDispatcher(t *testing.T, store *state.Store, sender Sender) func() {
	t.Helper()
	dispatcher := New(store, sender, logging.NewTestLogger())
	go dispatcher.Run()
	return dispatcher.Close
}

func TestTournamentEventsReachEveryConnection(t *testing.T) {
	store := state.NewStore(logging.NewTestLogger())
	sender := newFakeSender("alice", "bob")
	stop := runDispatcher(t, store, sender)

	created, err := store.CreateTournament(models.TournamentSettings{Name: "Cup"})
	require.NoError(t, err)
	stop()

	for _, userID := range []string{"alice", "bob"} {
		packets := sender.packetsFor(userID)
		require.Len(t, packets, 1, "user %s", userID)
		event := packets[0].Event
		require.NotNil(t, event)
		assert.Equal(t, protocol.EventTournamentCreated, event.Type)
		assert.Equal(t, created.ID, event.TournamentID)
	}
}

func TestScopedEventsOnlyReachPresences(t *testing.T) {
	store := state.NewStore(logging.NewTestLogger())
	sender := newFakeSender("alice", "bob", "stranger")
	stop := runDispatcher(t, store, sender)

	created, err := store.CreateTournament(models.TournamentSettings{Name: "Cup"})
	require.NoError(t, err)
	require.NoError(t, store.AddUser(created.ID, &models.User{ID: "alice"}))
	require.NoError(t, store.AddUser(created.ID, &models.User{ID: "bob"}))

	qualifier, err := store.CreateQualifier(created.ID, state.QualifierConfig{
		Name:   "Quals",
		Sort:   scoring.SortModifiedScore,
		MapIDs: []string{"m1"},
	})
	require.NoError(t, err)
	_, err = store.SubmitScore(created.ID, qualifier.ID, "m1",
		&models.Score{PlatformID: "alice-platform", Username: "alice", ModifiedScore: 100})
	require.NoError(t, err)
	stop()

	var aliceScoreEvents, strangerScoreEvents int
	for _, pkt := range sender.packetsFor("alice") {
		if pkt.Event != nil && pkt.Event.Type == protocol.EventScoreSubmitted {
			aliceScoreEvents++
		}
	}
	for _, pkt := range sender.packetsFor("stranger") {
		if pkt.Event != nil && pkt.Event.Type != protocol.EventTournamentCreated {
			strangerScoreEvents++
		}
	}
	assert.Equal(t, 1, aliceScoreEvents, "presences receive score events")
	assert.Zero(t, strangerScoreEvents, "non-presences only hear global listing changes")
}

func TestMatchEventsAddressParticipantsAndCoordinator(t *testing.T) {
	store := state.NewStore(logging.NewTestLogger())
	sender := newFakeSender("p1", "p2", "coord", "outsider")
	stop := runDispatcher(t, store, sender)

	created, err := store.CreateTournament(models.TournamentSettings{Name: "Cup"})
	require.NoError(t, err)
	_, err = store.CreateMatch(created.ID, []string{"p1", "p2"}, "coord")
	require.NoError(t, err)
	stop()

	for _, userID := range []string{"p1", "p2", "coord"} {
		found := false
		for _, pkt := range sender.packetsFor(userID) {
			if pkt.Event != nil && pkt.Event.Type == protocol.EventMatchCreated {
				found = true
			}
		}
		assert.True(t, found, "user %s should hear about the match", userID)
	}
	for _, pkt := range sender.packetsFor("outsider") {
		if pkt.Event != nil {
			assert.NotEqual(t, protocol.EventMatchCreated, pkt.Event.Type)
		}
	}
}

func TestEventsArriveInSequenceOrder(t *testing.T) {
	store := state.NewStore(logging.NewTestLogger())
	sender := newFakeSender("alice")
	stop := runDispatcher(t, store, sender)

	created, err := store.CreateTournament(models.TournamentSettings{Name: "Cup"})
	require.NoError(t, err)
	require.NoError(t, store.AddUser(created.ID, &models.User{ID: "alice"}))
	for i := 0; i < 10; i++ {
		_, err := store.UpdateTournament(created.ID, func(settings *models.TournamentSettings) error {
			settings.Name = "Cup"
			return nil
		})
		require.NoError(t, err)
	}
	stop()

	var lastSeq uint64
	for _, pkt := range sender.packetsFor("alice") {
		require.NotNil(t, pkt.Event)
		assert.Greater(t, pkt.Event.Seq, lastSeq, "delivery must be FIFO in mutation order")
		lastSeq = pkt.Event.Seq
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	store := state.NewStore(logging.NewTestLogger())
	sender := newFakeSender("alice")
	sender.full["alice"] = true
	stop := runDispatcher(t, store, sender)

	_, err := store.CreateTournament(models.TournamentSettings{Name: "Cup"})
	require.NoError(t, err)
	stop()

	assert.Equal(t, "outbound queue overflow", sender.droppedReason("alice"))
}
