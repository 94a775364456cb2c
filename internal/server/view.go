package server

import (
	"time"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type PlayerView struct {
	ID string `json:"id"`
	// Role is only shown to its holder, for dead players, and once the game
	// is over.
	Role string `json:"role,omitempty"`
	Dead bool   `json:"dead,omitempty"`
}

type StageView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Type         string    `json:"type"`
	Day          int       `json:"day"`
	Status       string    `json:"status"`
	VoterRoles   []string  `json:"voterRoles"`
	ResultPrompt string    `json:"resultPrompt"`
	Candidates   []string  `json:"candidates"`
	Deadline     time.Time `json:"deadline"`
	// Result is only public for day votes.
	Result string `json:"result,omitempty"`
}

type RoomView struct {
	Name     string       `json:"name"`
	Scenario string       `json:"scenario"`
	Status   string       `json:"status"`
	Winner   string       `json:"winner,omitempty"`
	Day      int          `json:"day"`
	Players  []PlayerView `json:"players"`
	Stage    *StageView   `json:"stage,omitempty"`
	Version  int          `json:"version"`
}

type RoomSummary struct {
	Name     string `json:"name"`
	Scenario string `json:"scenario"`
	Status   string `json:"status"`
	Players  int    `json:"players"`
}

type ScenarioSummary struct {
	Name        string   `json:"name"`
	Theme       string   `json:"theme"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles"`
	Stages      []string `json:"stages"`
}

// newRoomView renders room as seen by viewer. An empty viewer sees only
// public information.
func newRoomView(room *mafia.Room, viewer string) RoomView {
	v := RoomView{
		Name:     room.Name,
		Scenario: room.Scenario.Name,
		Status:   string(room.Status),
		Winner:   string(room.Winner),
		Players:  make([]PlayerView, len(room.Players)),
		Version:  room.Version,
	}
	over := room.Status == mafia.StatusFinished
	for i, p := range room.Players {
		pv := PlayerView{ID: p.ID, Dead: p.Dead}
		if p.Role != "" && (over || p.Dead || p.ID == viewer) {
			pv.Role = room.Scenario.RoleName(p.Role)
		}
		v.Players[i] = pv
	}
	if s := room.CurrentStage(); s != nil {
		v.Day = s.Day
		v.Stage = newStageView(room.Scenario, s)
	}
	return v
}

func newStageView(sc mafia.Scenario, s *mafia.Stage) *StageView {
	sv := &StageView{
		ID:           s.ID,
		Name:         s.Name,
		Description:  s.Description,
		Type:         string(s.Type),
		Day:          s.Day,
		Status:       string(s.Status),
		VoterRoles:   make([]string, len(s.Roles)),
		ResultPrompt: s.ResultPrompt,
		Candidates:   append([]string{}, s.Candidates...),
		Deadline:     s.Deadline,
	}
	for i, r := range s.Roles {
		sv.VoterRoles[i] = sc.RoleName(r)
	}
	if s.Type == mafia.StageVote {
		sv.Result = s.Result
	}
	return sv
}

func newRoomSummary(room *mafia.Room) RoomSummary {
	return RoomSummary{
		Name:     room.Name,
		Scenario: room.Scenario.Name,
		Status:   string(room.Status),
		Players:  len(room.Players),
	}
}

func newScenarioSummary(sc mafia.Scenario) ScenarioSummary {
	out := ScenarioSummary{
		Name:        sc.Name,
		Theme:       sc.Theme,
		Description: sc.Description,
		Roles:       make([]string, len(sc.Roles)),
	}
	for i, r := range sc.Roles {
		out.Roles[i] = r.Name
	}
	for _, t := range mafia.StageCycle {
		if st, ok := sc.Template(t); ok {
			out.Stages = append(out.Stages, st.Name)
		}
	}
	return out
}
