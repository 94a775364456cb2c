package game

import (
	"math"

	"github.com/SGman98/mafiabot/internal/mafia"
)

// Rand is the injectable randomness used for shuffling and tie-breaks.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Perm(n int) []int
}

// KillerCount is round(n/4).
func KillerCount(n int) int {
	return int(math.Round(float64(n) / 4))
}

// AssignRoles hands out roles over a shuffled order of players: one healer
// and one investigator (when the scenario has them and there are at least
// two players), then KillerCount killers, then innocents. The returned
// roster keeps the input order; only roles are shuffled. With fewer than
// two players the special roles stay unfilled.
func AssignRoles(players []mafia.Player, sc mafia.Scenario, rng Rand) []mafia.Player {
	n := len(players)
	out := make([]mafia.Player, n)
	for i, p := range players {
		out[i] = mafia.Player{ID: p.ID}
	}
	if n == 0 {
		return out
	}

	order := rng.Perm(n)
	slot := 0
	give := func(role mafia.RoleType) {
		out[order[slot]].Role = role
		slot++
	}

	if n >= 2 {
		if sc.HasRole(mafia.RoleHealer) {
			give(mafia.RoleHealer)
		}
		if sc.HasRole(mafia.RoleInvestigator) {
			give(mafia.RoleInvestigator)
		}
	}
	for i := 0; i < KillerCount(n) && slot < n; i++ {
		give(mafia.RoleKiller)
	}
	for slot < n {
		give(mafia.RoleInnocent)
	}
	return out
}
