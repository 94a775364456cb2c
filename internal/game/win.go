package game

import "github.com/SGman98/mafiabot/internal/mafia"

type Outcome int

const (
	Undecided Outcome = iota
	TownWins
	KillersWin
)

func (o Outcome) String() string {
	switch o {
	case TownWins:
		return "town wins"
	case KillersWin:
		return "killers win"
	default:
		return "undecided"
	}
}

// Winner maps the outcome to the winning faction.
func (o Outcome) Winner() mafia.Faction {
	switch o {
	case TownWins:
		return mafia.FactionTown
	case KillersWin:
		return mafia.FactionKillers
	default:
		return mafia.FactionNone
	}
}

// Evaluate checks the win condition over alive players only.
func Evaluate(room *mafia.Room) Outcome {
	var killers, town int
	for _, p := range room.Players {
		if !p.Alive() {
			continue
		}
		if p.Role.Faction() == mafia.FactionKillers {
			killers++
		} else {
			town++
		}
	}
	switch {
	case killers == 0:
		return TownWins
	case killers >= town:
		return KillersWin
	default:
		return Undecided
	}
}
