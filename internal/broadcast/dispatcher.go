// Package broadcast fans state-store change events out to the connected
// clients that should observe them. Recipient sets are computed per event
// from the tournament tree; delivery goes through each connection's private
// outbound queue so one slow recipient never stalls the rest.
package broadcast

import (
	"github.com/google/uuid"

	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
	"tournethub/coordinator/internal/state"
)

// Sender abstracts the session manager's per-connection outbound queues.
// Enqueue reports false when the recipient's queue is full; the dispatcher
// then asks for the connection to be dropped rather than blocking.
type Sender interface {
	Enqueue(userID string, pkt *protocol.Packet) bool
	Drop(userID string, reason string)
	ConnectedIDs() []string
}

// Dispatcher consumes the change-event stream and translates each mutation
// into an outbound event packet for the addressed recipient set.
type Dispatcher struct {
	log    *logging.Logger
	store  *state.Store
	sender Sender
	sub    *state.Subscription
	done   chan struct{}
}

// New wires a dispatcher to the store's change-event stream.
func New(store *state.Store, sender Sender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.L()
	}
	return &Dispatcher{
		log:    logger,
		store:  store,
		sender: sender,
		sub:    store.Subscribe("broadcast", 1024),
		done:   make(chan struct{}),
	}
}

// Run drains the change-event stream until Close. Events are processed
// strictly in sequence order, which preserves per-recipient FIFO delivery
// relative to mutation order.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for event := range d.sub.Events() {
		d.fanOut(event)
	}
}

// Close detaches from the stream and waits for the fan-out loop to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.sub.Close()
	<-d.done
}

func (d *Dispatcher) fanOut(event state.ChangeEvent) {
	pkt, recipients := d.translate(event)
	if pkt == nil || len(recipients) == 0 {
		return
	}
	for _, userID := range recipients {
		if !d.sender.Enqueue(userID, pkt) {
			d.log.Warn("recipient queue full, dropping connection",
				logging.String("user_id", userID),
				logging.Uint64("seq", event.Seq))
			d.sender.Drop(userID, "outbound queue overflow")
		}
	}
}

// translate maps a state mutation onto an outbound event packet and its
// addressed recipient set.
func (d *Dispatcher) translate(event state.ChangeEvent) (*protocol.Packet, []string) {
	out := &protocol.Event{Seq: event.Seq, TournamentID: event.TournamentID, MapID: event.MapID}

	switch event.Kind {
	case state.EntityTournament:
		switch event.Action {
		case state.ActionCreated:
			out.Type = protocol.EventTournamentCreated
			out.Tournament, _ = event.After.(*models.Tournament)
		case state.ActionUpdated:
			out.Type = protocol.EventTournamentUpdated
			out.Tournament, _ = event.After.(*models.Tournament)
			return d.packet(out), d.tournamentRecipients(event.TournamentID)
		default:
			out.Type = protocol.EventTournamentDeleted
			out.Tournament, _ = event.Before.(*models.Tournament)
		}
		// Tournament arrivals and departures change the global listing, so
		// every connection hears about them.
		return d.packet(out), d.sender.ConnectedIDs()

	case state.EntityUser:
		if event.Action == state.ActionCreated {
			out.Type = protocol.EventUserJoined
			out.User, _ = event.After.(*models.User)
		} else {
			out.Type = protocol.EventUserLeft
			out.User, _ = event.Before.(*models.User)
		}
		return d.packet(out), d.tournamentRecipients(event.TournamentID)

	case state.EntityMatch:
		var match *models.Match
		switch event.Action {
		case state.ActionCreated:
			out.Type = protocol.EventMatchCreated
			match, _ = event.After.(*models.Match)
		case state.ActionUpdated:
			out.Type = protocol.EventMatchUpdated
			match, _ = event.After.(*models.Match)
		default:
			out.Type = protocol.EventMatchDeleted
			match, _ = event.Before.(*models.Match)
		}
		out.Match = match
		return d.packet(out), matchRecipients(match)

	case state.EntityQualifier:
		switch event.Action {
		case state.ActionCreated:
			out.Type = protocol.EventQualifierCreated
			out.Qualifier, _ = event.After.(*models.QualifierEvent)
		case state.ActionUpdated:
			out.Type = protocol.EventQualifierUpdated
			out.Qualifier, _ = event.After.(*models.QualifierEvent)
		default:
			out.Type = protocol.EventQualifierDeleted
			out.Qualifier, _ = event.Before.(*models.QualifierEvent)
		}
		return d.packet(out), d.tournamentRecipients(event.TournamentID)

	case state.EntityScore:
		out.Type = protocol.EventScoreSubmitted
		out.Score, _ = event.After.(*models.Score)
		return d.packet(out), d.tournamentRecipients(event.TournamentID)
	}

	return nil, nil
}

func (d *Dispatcher) packet(event *protocol.Event) *protocol.Packet {
	return &protocol.Packet{ID: uuid.NewString(), Event: event}
}

// tournamentRecipients addresses every live presence in the tournament.
func (d *Dispatcher) tournamentRecipients(tournamentID string) []string {
	tournament, err := d.store.GetTournament(tournamentID)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(tournament.Users))
	for id := range tournament.Users {
		ids = append(ids, id)
	}
	return ids
}

// matchRecipients addresses the participant set plus the coordinator.
func matchRecipients(match *models.Match) []string {
	if match == nil {
		return nil
	}
	ids := make([]string, 0, len(match.Participants)+1)
	seen := make(map[string]struct{}, len(match.Participants)+1)
	for _, id := range match.Participants {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if match.CoordinatorID != "" {
		if _, ok := seen[match.CoordinatorID]; !ok {
			ids = append(ids, match.CoordinatorID)
		}
	}
	return ids
}
