// Package mafia defines the core domain types of a social-deduction game:
// scenarios, roles, stages and rooms. It has no external dependencies.
package mafia

import "time"

type RoleType string

const (
	RoleKiller       RoleType = "killer"
	RoleInnocent     RoleType = "innocent"
	RoleHealer       RoleType = "healer"
	RoleInvestigator RoleType = "investigator"
)

// RoleTypes lists every known role in declaration order.
var RoleTypes = []RoleType{RoleKiller, RoleInnocent, RoleHealer, RoleInvestigator}

func (r RoleType) Valid() bool {
	switch r {
	case RoleKiller, RoleInnocent, RoleHealer, RoleInvestigator:
		return true
	}
	return false
}

// Faction groups roles for the win condition. Killers are the only
// adversarial faction.
type Faction string

const (
	FactionNone    Faction = ""
	FactionTown    Faction = "town"
	FactionKillers Faction = "killers"
)

func (r RoleType) Faction() Faction {
	if r == RoleKiller {
		return FactionKillers
	}
	if r == "" {
		return FactionNone
	}
	return FactionTown
}

type StageType string

const (
	StageKill        StageType = "kill"
	StageHeal        StageType = "heal"
	StageInvestigate StageType = "investigate"
	StageVote        StageType = "vote"
)

// StageCycle is the canonical order stages repeat in.
var StageCycle = []StageType{StageKill, StageHeal, StageInvestigate, StageVote}

func (s StageType) Valid() bool {
	for _, t := range StageCycle {
		if t == s {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type Ability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Role struct {
	Name        string    `json:"name"`
	Type        RoleType  `json:"type"`
	Description string    `json:"description"`
	Abilities   []Ability `json:"abilities"`
}

type StageTemplate struct {
	Name            string     `json:"name"`
	Type            StageType  `json:"type"`
	Description     string     `json:"description"`
	Roles           []RoleType `json:"roles"`
	Targets         []RoleType `json:"targets"`
	ResultPrompt    string     `json:"resultPrompt"`
	DurationSeconds int        `json:"durationSeconds,omitempty"`
}

// Duration returns the template's voting window length, or fallback when
// the template leaves it unset.
func (t StageTemplate) Duration(fallback time.Duration) time.Duration {
	if t.DurationSeconds <= 0 {
		return fallback
	}
	return time.Duration(t.DurationSeconds) * time.Second
}

type Scenario struct {
	Name        string          `json:"name"`
	Theme       string          `json:"theme"`
	Description string          `json:"description"`
	Image       string          `json:"image,omitempty"`
	Roles       []Role          `json:"roles"`
	Stages      []StageTemplate `json:"stages"`
}

// Role looks up the catalog entry for t.
func (s Scenario) Role(t RoleType) (Role, bool) {
	for _, r := range s.Roles {
		if r.Type == t {
			return r, true
		}
	}
	return Role{}, false
}

func (s Scenario) HasRole(t RoleType) bool {
	_, ok := s.Role(t)
	return ok
}

// Template returns the stage template of the given type.
func (s Scenario) Template(t StageType) (StageTemplate, bool) {
	for _, st := range s.Stages {
		if st.Type == t {
			return st, true
		}
	}
	return StageTemplate{}, false
}

// RoleName returns the display name of t, falling back to the raw type.
func (s Scenario) RoleName(t RoleType) string {
	if r, ok := s.Role(t); ok && r.Name != "" {
		return r.Name
	}
	return string(t)
}

// Clone returns a deep copy so callers can't mutate catalog entries.
func (s Scenario) Clone() Scenario {
	out := s
	out.Roles = make([]Role, len(s.Roles))
	for i, r := range s.Roles {
		r.Abilities = append([]Ability(nil), r.Abilities...)
		out.Roles[i] = r
	}
	out.Stages = make([]StageTemplate, len(s.Stages))
	for i, st := range s.Stages {
		st.Roles = append([]RoleType(nil), st.Roles...)
		st.Targets = append([]RoleType(nil), st.Targets...)
		out.Stages[i] = st
	}
	return out
}

// Player is a room member. Role stays empty until the game starts. Dead is
// terminal and keeps Role intact for reporting.
type Player struct {
	ID   string   `json:"id"`
	Role RoleType `json:"role,omitempty"`
	Dead bool     `json:"dead,omitempty"`
}

func (p Player) Alive() bool {
	return p.Role != "" && !p.Dead
}

// HoldsAny reports whether p is alive and holds one of roles.
func (p Player) HoldsAny(roles []RoleType) bool {
	return p.Alive() && containsRole(roles, p.Role)
}

type Vote struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Stage struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Type         StageType  `json:"type"`
	Day          int        `json:"day"`
	Status       Status     `json:"status"`
	Roles        []RoleType `json:"roles"`
	Targets      []RoleType `json:"targets"`
	ResultPrompt string     `json:"resultPrompt"`
	Candidates   []string   `json:"candidates"`
	Votes        []Vote     `json:"votes"`
	Result       string     `json:"result,omitempty"`
	OpenedAt     time.Time  `json:"openedAt"`
	Deadline     time.Time  `json:"deadline"`
}

func containsRole(roles []RoleType, r RoleType) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

// ContainsRole reports whether r is in roles.
func ContainsRole(roles []RoleType, r RoleType) bool {
	return containsRole(roles, r)
}
