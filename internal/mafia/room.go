package mafia

import (
	"fmt"
	"time"
)

// Room is the aggregate root of one game. All mutation goes through its
// methods so the roster and stage history invariants hold.
type Room struct {
	Name      string    `json:"name"`
	Scenario  Scenario  `json:"scenario"`
	Players   []Player  `json:"players"`
	Stages    []Stage   `json:"stages"`
	Status    Status    `json:"status"`
	Winner    Faction   `json:"winner,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewRoom(name string, sc Scenario, now time.Time) *Room {
	return &Room{
		Name:      name,
		Scenario:  sc.Clone(),
		Players:   []Player{},
		Stages:    []Stage{},
		Status:    StatusWaiting,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (r *Room) indexOf(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Player returns the member with the given id.
func (r *Room) Player(id string) (Player, bool) {
	if i := r.indexOf(id); i >= 0 {
		return r.Players[i], true
	}
	return Player{}, false
}

func (r *Room) HasPlayer(id string) bool {
	return r.indexOf(id) >= 0
}

// AddPlayer appends id to the roster. Only allowed while waiting.
func (r *Room) AddPlayer(id string) error {
	if id == "" {
		return fmt.Errorf("%w: player id is required", ErrValidation)
	}
	if r.Status != StatusWaiting {
		return fmt.Errorf("%w: room %s is not accepting players", ErrInvalidState, r.Name)
	}
	if r.HasPlayer(id) {
		return fmt.Errorf("%w: player %s already in room %s", ErrInvalidState, id, r.Name)
	}
	r.Players = append(r.Players, Player{ID: id})
	return nil
}

// RemovePlayer drops id from the roster, keeping the order of the rest.
// Players cannot leave a game in progress.
func (r *Room) RemovePlayer(id string) error {
	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: player %s is not in room %s", ErrNotFound, id, r.Name)
	}
	if r.Status == StatusPlaying {
		return fmt.Errorf("%w: the game in room %s has already started", ErrInvalidState, r.Name)
	}
	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	return nil
}

// Kill moves a player into the terminal dead state. Killing an already dead
// player is a no-op.
func (r *Room) Kill(id string) error {
	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: player %s is not in room %s", ErrNotFound, id, r.Name)
	}
	if r.Players[i].Role == "" {
		return fmt.Errorf("%w: player %s has no role", ErrInvalidState, id)
	}
	r.Players[i].Dead = true
	return nil
}

// Begin moves a waiting room into play with the given roster.
func (r *Room) Begin(players []Player) error {
	if r.Status != StatusWaiting {
		return fmt.Errorf("%w: room %s was already started", ErrInvalidState, r.Name)
	}
	if len(players) != len(r.Players) {
		return fmt.Errorf("%w: roster size changed", ErrInvalidState)
	}
	r.Players = players
	r.Status = StatusPlaying
	return nil
}

// Finish ends the game. It never regresses a finished room.
func (r *Room) Finish(winner Faction) error {
	if r.Status == StatusFinished {
		return fmt.Errorf("%w: game already finished", ErrInvalidState)
	}
	if last := r.CurrentStage(); last != nil && last.Status == StatusPlaying {
		last.Status = StatusFinished
	}
	r.Status = StatusFinished
	r.Winner = winner
	return nil
}

// CurrentStage returns the last stage, or nil before the first one.
func (r *Room) CurrentStage() *Stage {
	if len(r.Stages) == 0 {
		return nil
	}
	return &r.Stages[len(r.Stages)-1]
}

// AppendStage adds a new stage. The previous one must be finished and
// days never decrease.
func (r *Room) AppendStage(s Stage) error {
	if r.Status != StatusPlaying {
		return fmt.Errorf("%w: room %s is not playing", ErrInvalidState, r.Name)
	}
	if last := r.CurrentStage(); last != nil {
		if last.Status == StatusPlaying {
			return fmt.Errorf("%w: stage %s is still open", ErrInvalidState, last.Name)
		}
		if s.Day < last.Day {
			return fmt.Errorf("%w: day %d precedes day %d", ErrInvalidState, s.Day, last.Day)
		}
	}
	r.Stages = append(r.Stages, s)
	return nil
}

// FinishStage records the outcome of the open stage identified by id.
func (r *Room) FinishStage(id string, votes []Vote, result string) (*Stage, error) {
	last := r.CurrentStage()
	if last == nil || last.ID != id {
		return nil, fmt.Errorf("%w: stage %s is not the current stage", ErrNotFound, id)
	}
	if last.Status != StatusPlaying {
		return nil, fmt.Errorf("%w: stage %s already finished", ErrInvalidState, last.Name)
	}
	last.Votes = votes
	last.Result = result
	last.Status = StatusFinished
	return last, nil
}

// Alive returns the alive players in roster order.
func (r *Room) Alive() []Player {
	var out []Player
	for _, p := range r.Players {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// Holding returns the ids of alive players holding any of roles, in
// roster order.
func (r *Room) Holding(roles []RoleType) []string {
	var out []string
	for _, p := range r.Players {
		if p.HoldsAny(roles) {
			out = append(out, p.ID)
		}
	}
	return out
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	out := *r
	out.Scenario = r.Scenario.Clone()
	out.Players = append([]Player{}, r.Players...)
	out.Stages = make([]Stage, len(r.Stages))
	for i, s := range r.Stages {
		s.Roles = append([]RoleType(nil), s.Roles...)
		s.Targets = append([]RoleType(nil), s.Targets...)
		s.Candidates = append([]string(nil), s.Candidates...)
		s.Votes = append([]Vote(nil), s.Votes...)
		out.Stages[i] = s
	}
	return &out
}
