// Package notify delivers game announcements to room audiences.
package notify

import (
	"context"
	"sort"
	"strings"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// Audience addresses either everyone in a room (no roles) or a private
// role group inside it.
type Audience struct {
	Room  string           `json:"room"`
	Roles []mafia.RoleType `json:"roles,omitempty"`
}

func Public(room string) Audience {
	return Audience{Room: room}
}

// Private addresses the given role group. A group that includes innocents
// is the whole town, so it collapses to the public audience.
func Private(room string, roles ...mafia.RoleType) Audience {
	if len(roles) == 0 || mafia.ContainsRole(roles, mafia.RoleInnocent) {
		return Public(room)
	}
	rs := append([]mafia.RoleType(nil), roles...)
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return Audience{Room: room, Roles: rs}
}

func (a Audience) IsPublic() bool {
	return len(a.Roles) == 0
}

// Key names the stream for this audience, e.g. "ROOM1/general" or
// "ROOM1/role-healer+investigator".
func (a Audience) Key() string {
	if a.IsPublic() {
		return a.Room + "/general"
	}
	parts := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		parts[i] = string(r)
	}
	return a.Room + "/role-" + strings.Join(parts, "+")
}

// Includes reports whether a player holding role receives messages posted
// to a.
func (a Audience) Includes(role mafia.RoleType) bool {
	return a.IsPublic() || mafia.ContainsRole(a.Roles, role)
}

type Kind string

const (
	KindRoomCreated  Kind = "room_created"
	KindPlayerJoined Kind = "player_joined"
	KindPlayerLeft   Kind = "player_left"
	KindGameStarted  Kind = "game_started"
	KindRoleAssigned Kind = "role_assigned"
	KindStageStarted Kind = "stage_started"
	KindBallot       Kind = "ballot"
	KindCountdown    Kind = "countdown"
	KindStageEnded   Kind = "stage_ended"
	KindNightReport  Kind = "night_report"
	KindInvestigated Kind = "investigation"
	KindBanished     Kind = "banished"
	KindGameOver     Kind = "game_over"
	KindVoteRejected Kind = "vote_rejected"
)

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a structured announcement. Transports decide how to render it.
type Message struct {
	Kind    Kind    `json:"kind"`
	Title   string  `json:"title"`
	Body    string  `json:"body,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
	StageID string  `json:"stageId,omitempty"`
	Day     int     `json:"day,omitempty"`
}

// Notifier posts messages. Delivery is fire-and-forget: implementations log
// failures and never block game progress.
type Notifier interface {
	Post(ctx context.Context, to Audience, msg Message)
}

// Multi fans a post out to several notifiers.
type Multi []Notifier

func (m Multi) Post(ctx context.Context, to Audience, msg Message) {
	for _, n := range m {
		if n != nil {
			n.Post(ctx, to, msg)
		}
	}
}

// Discard drops every message.
type Discard struct{}

func (Discard) Post(context.Context, Audience, Message) {}
