package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/notify"
)

// VoteEvent is one ballot action from a player. Choice is the positional
// index on the ballot; Target names the candidate directly. Room may be
// left empty to route by the player's membership.
type VoteEvent struct {
	Room     string `json:"room,omitempty"`
	PlayerID string `json:"playerId"`
	StageID  string `json:"stageId,omitempty"`
	Choice   *int   `json:"choice,omitempty"`
	Target   string `json:"target,omitempty"`
	Withdraw bool   `json:"withdraw,omitempty"`
}

// Vote applies ev to the room's open window. The cast that completes the
// quorum also settles the stage before Vote returns.
func (m *Manager) Vote(ctx context.Context, ev VoteEvent) (_ game.Ack, err error) {
	ctx, span := m.start(ctx, "Vote", ev.Room)
	defer func() { endSpan(span, err) }()

	if ev.PlayerID == "" {
		return game.Ack{}, fmt.Errorf("%w: player id is required", mafia.ErrValidation)
	}
	if !ev.Withdraw && ev.Choice == nil && ev.Target == "" {
		return game.Ack{}, fmt.Errorf("%w: a choice or a target is required", mafia.ErrValidation)
	}
	if ev.Room == "" {
		cur, err := m.membership(ctx, ev.PlayerID)
		if err != nil {
			return game.Ack{}, err
		}
		ev.Room = cur.Name
		span.SetAttributes(attribute.String("mafia.room", ev.Room))
	}

	var ack game.Ack
	err = m.with(ctx, ev.Room, func(s *session) error {
		ack, err = m.cast(ctx, s, ev)
		if err != nil {
			m.reject(ctx, s.room, ev.PlayerID, err)
			return err
		}
		if ack.Closed {
			return m.settle(ctx, s)
		}
		return nil
	})
	return ack, err
}

func (m *Manager) cast(ctx context.Context, s *session, ev VoteEvent) (game.Ack, error) {
	w := s.window
	if w == nil || w.Closed() {
		return game.Ack{}, fmt.Errorf("%w: room %s has no open stage", mafia.ErrNoActiveVote, ev.Room)
	}
	if ev.StageID != "" && ev.StageID != w.StageID() {
		return game.Ack{}, fmt.Errorf("%w: stage %s is no longer open", mafia.ErrNoActiveVote, ev.StageID)
	}
	if !s.room.HasPlayer(ev.PlayerID) {
		return game.Ack{}, fmt.Errorf("%w: player %s is not in room %s", mafia.ErrNotEligible, ev.PlayerID, ev.Room)
	}

	switch {
	case ev.Withdraw:
		return w.Withdraw(ev.PlayerID)
	case ev.Choice != nil:
		return w.CastIndex(ev.PlayerID, *ev.Choice)
	default:
		return w.Cast(ev.PlayerID, ev.Target)
	}
}

// reject tells the voter's role group why their vote did not count.
func (m *Manager) reject(ctx context.Context, room *mafia.Room, player string, err error) {
	p, ok := room.Player(player)
	if !ok || p.Role == "" {
		return
	}
	msg := notify.Message{
		Kind:  notify.KindVoteRejected,
		Title: fmt.Sprintf("Vote from %s rejected", player),
		Body:  Describe(err),
	}
	if cur := room.CurrentStage(); cur != nil {
		msg.StageID, msg.Day = cur.ID, cur.Day
	}
	m.notifier.Post(ctx, notify.Private(room.Name, p.Role), msg)
}
