package game

import (
	"math/rand/v2"
	"testing"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// fixedRand deals roles in roster order and always picks index pick.
type fixedRand struct{ pick int }

func (f fixedRand) IntN(n int) int { return f.pick % n }

func (fixedRand) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

var allRoles = []mafia.RoleType{mafia.RoleKiller, mafia.RoleInnocent, mafia.RoleHealer, mafia.RoleInvestigator}

func fullScenario() mafia.Scenario {
	return mafia.Scenario{
		Name: "test",
		Roles: []mafia.Role{
			{Type: mafia.RoleKiller, Name: "Killer"},
			{Type: mafia.RoleInnocent, Name: "Villager"},
			{Type: mafia.RoleHealer, Name: "Doctor"},
			{Type: mafia.RoleInvestigator, Name: "Detective"},
		},
		Stages: []mafia.StageTemplate{
			{Name: "Night", Type: mafia.StageKill, Roles: []mafia.RoleType{mafia.RoleKiller}, Targets: allRoles[1:], ResultPrompt: "kill"},
			{Name: "Healing", Type: mafia.StageHeal, Roles: []mafia.RoleType{mafia.RoleHealer}, Targets: allRoles, ResultPrompt: "heal"},
			{Name: "Search", Type: mafia.StageInvestigate, Roles: []mafia.RoleType{mafia.RoleInvestigator}, Targets: allRoles, ResultPrompt: "investigate"},
			{Name: "Trial", Type: mafia.StageVote, Roles: allRoles, Targets: allRoles, ResultPrompt: "banish"},
		},
	}
}

func roster(n int) []mafia.Player {
	out := make([]mafia.Player, n)
	for i := range out {
		out[i] = mafia.Player{ID: string(rune('a' + i))}
	}
	return out
}

func TestKillerCount(t *testing.T) {
	tests := []struct{ players, want int }{
		{1, 0}, {2, 1}, {3, 1}, {4, 1}, {5, 1}, {6, 2}, {8, 2}, {10, 3}, {12, 3},
	}
	for _, tt := range tests {
		if got := KillerCount(tt.players); got != tt.want {
			t.Errorf("KillerCount(%d) = %d, want %d", tt.players, got, tt.want)
		}
	}
}

func TestAssignRolesOrder(t *testing.T) {
	got := AssignRoles(roster(6), fullScenario(), fixedRand{})
	want := []mafia.RoleType{
		mafia.RoleHealer, mafia.RoleInvestigator,
		mafia.RoleKiller, mafia.RoleKiller,
		mafia.RoleInnocent, mafia.RoleInnocent,
	}
	for i, p := range got {
		if p.ID != string(rune('a'+i)) {
			t.Fatalf("player %d = %q, roster order changed", i, p.ID)
		}
		if p.Role != want[i] {
			t.Errorf("player %s role = %s, want %s", p.ID, p.Role, want[i])
		}
	}
}

func TestAssignRolesCounts(t *testing.T) {
	noHealer := fullScenario()
	noHealer.Roles = noHealer.Roles[:2]
	noHealer.Roles = append(noHealer.Roles, mafia.Role{Type: mafia.RoleInvestigator})

	tests := []struct {
		name string
		n    int
		sc   mafia.Scenario
		want map[mafia.RoleType]int
	}{
		{"eight players", 8, fullScenario(), map[mafia.RoleType]int{
			mafia.RoleHealer: 1, mafia.RoleInvestigator: 1, mafia.RoleKiller: 2, mafia.RoleInnocent: 4,
		}},
		{"no healer in scenario", 4, noHealer, map[mafia.RoleType]int{
			mafia.RoleInvestigator: 1, mafia.RoleKiller: 1, mafia.RoleInnocent: 2,
		}},
		{"single player", 1, fullScenario(), map[mafia.RoleType]int{
			mafia.RoleInnocent: 1,
		}},
		{"two players", 2, fullScenario(), map[mafia.RoleType]int{
			mafia.RoleHealer: 1, mafia.RoleInvestigator: 1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(3, 5))
			got := map[mafia.RoleType]int{}
			for _, p := range AssignRoles(roster(tt.n), tt.sc, rng) {
				got[p.Role]++
			}
			if len(got) != len(tt.want) {
				t.Fatalf("roles = %v, want %v", got, tt.want)
			}
			for role, n := range tt.want {
				if got[role] != n {
					t.Errorf("%s = %d, want %d", role, got[role], n)
				}
			}
		})
	}
}

func TestAssignRolesResetsDeath(t *testing.T) {
	players := roster(4)
	players[0].Dead = true
	players[0].Role = mafia.RoleKiller
	for _, p := range AssignRoles(players, fullScenario(), fixedRand{}) {
		if p.Dead {
			t.Fatalf("%s still dead after dealing", p.ID)
		}
	}
}
