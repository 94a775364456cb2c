package game

import "github.com/SGman98/mafiabot/internal/mafia"

// NextStageType returns the type following current in mafia.StageCycle,
// skipping types not in available. An empty current starts the cycle as if
// a vote had just finished, so the first stage is the one after vote.
func NextStageType(current mafia.StageType, available []mafia.StageType) mafia.StageType {
	from := current
	if from == "" {
		from = mafia.StageVote
	}
	idx := 0
	for i, t := range mafia.StageCycle {
		if t == from {
			idx = i
			break
		}
	}
	for step := 1; step <= len(mafia.StageCycle); step++ {
		t := mafia.StageCycle[(idx+step)%len(mafia.StageCycle)]
		for _, a := range available {
			if a == t {
				return t
			}
		}
	}
	return ""
}

// NextDay bumps the day only when entering a vote stage.
func NextDay(current int, next mafia.StageType) int {
	if current < 1 {
		current = 1
	}
	if next == mafia.StageVote {
		return current + 1
	}
	return current
}

func availableTypes(sc mafia.Scenario) []mafia.StageType {
	out := make([]mafia.StageType, 0, len(sc.Stages))
	for _, st := range sc.Stages {
		out = append(out, st.Type)
	}
	return out
}
