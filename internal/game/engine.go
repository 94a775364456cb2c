// Package game implements the rules of a room: role assignment, the
// repeating stage cycle, vote collection and resolution, and the win
// condition.
package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/notify"
)

// NightReport is the outcome of the kill/heal pair of one day.
type NightReport struct {
	Day    int
	Target string
	Healed string
	// Killed is set when Target died; false when the heal saved them or
	// nobody was targeted.
	Killed bool
}

func (r NightReport) Saved() bool {
	return r.Target != "" && r.Target == r.Healed
}

// Advance is what a call to Engine.Advance produced.
type Advance struct {
	// Stage is the newly opened stage, nil when the game ended instead.
	Stage    *mafia.Stage
	Audience notify.Audience
	Duration time.Duration
	Report   *NightReport
	Outcome  Outcome
}

// Settlement is what applying a resolution produced.
type Settlement struct {
	Stage      *mafia.Stage
	Banished   string
	Suspect    string
	SuspectBad bool
}

// Engine applies the stage machine to rooms and announces every state
// transition. It holds no room state; callers serialize access per room.
type Engine struct {
	notifier     notify.Notifier
	voteDuration time.Duration
	now          func() time.Time
}

func NewEngine(notifier notify.Notifier, voteDuration time.Duration) *Engine {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Engine{notifier: notifier, voteDuration: voteDuration, now: time.Now}
}

// StageAudience is who sees a stage's ballot and results: the eligible
// voter group, or the whole room when innocents vote.
func StageAudience(room string, s *mafia.Stage) notify.Audience {
	return notify.Private(room, s.Roles...)
}

// Start assigns roles and moves the room into play.
func (e *Engine) Start(ctx context.Context, room *mafia.Room, rng Rand, minPlayers int) error {
	switch room.Status {
	case mafia.StatusPlaying:
		return fmt.Errorf("%w: game already started", mafia.ErrInvalidState)
	case mafia.StatusFinished:
		return fmt.Errorf("%w: game already finished", mafia.ErrInvalidState)
	}
	need := max(minPlayers, 1)
	if len(room.Players) < need {
		return fmt.Errorf("%w: room %s needs at least %d players, has %d", mafia.ErrInvalidState, room.Name, need, len(room.Players))
	}

	if err := room.Begin(AssignRoles(room.Players, room.Scenario, rng)); err != nil {
		return err
	}

	e.notifier.Post(ctx, notify.Public(room.Name), notify.Message{
		Kind:  notify.KindGameStarted,
		Title: fmt.Sprintf("Room %s started", room.Name),
		Body:  room.Scenario.Theme,
		Fields: []notify.Field{
			{Name: "Party size", Value: fmt.Sprint(len(room.Players))},
			{Name: "Stages", Value: stageNames(room.Scenario)},
		},
	})
	for _, role := range room.Scenario.Roles {
		body := fmt.Sprintf("If you are reading this, your role is %s. Use this channel for your role commands.", role.Name)
		if role.Type == mafia.RoleInnocent {
			body = fmt.Sprintf("If you are reading this, your role is %s. If you have another role, don't tell anyone.", role.Name)
		}
		fields := make([]notify.Field, 0, len(role.Abilities))
		for _, a := range role.Abilities {
			fields = append(fields, notify.Field{Name: a.Name, Value: a.Description})
		}
		e.notifier.Post(ctx, notify.Private(room.Name, role.Type), notify.Message{
			Kind:   notify.KindRoleAssigned,
			Title:  "Your role is: " + role.Name,
			Body:   body + "\n" + role.Description,
			Fields: fields,
		})
	}
	return nil
}

// Advance moves a playing room to its next stage. Entering a new day first
// applies the previous night's kill unless it was healed. The win condition
// is checked only before a vote stage opens; a decided game finishes
// without opening it.
func (e *Engine) Advance(ctx context.Context, room *mafia.Room) (Advance, error) {
	switch room.Status {
	case mafia.StatusWaiting:
		return Advance{}, fmt.Errorf("%w: start the game first", mafia.ErrInvalidState)
	case mafia.StatusFinished:
		return Advance{}, fmt.Errorf("%w: game already finished", mafia.ErrInvalidState)
	}

	cur := room.CurrentStage()
	var curType mafia.StageType
	curDay := 1
	if cur != nil {
		if cur.Status == mafia.StatusPlaying {
			return Advance{}, fmt.Errorf("%w: stage %s is still open", mafia.ErrInvalidState, cur.Name)
		}
		curType, curDay = cur.Type, cur.Day
	}

	nextType := NextStageType(curType, availableTypes(room.Scenario))
	tmpl, ok := room.Scenario.Template(nextType)
	if !ok {
		return Advance{}, fmt.Errorf("%w: scenario %s has no %q stage", mafia.ErrValidation, room.Scenario.Name, nextType)
	}
	day := NextDay(curDay, nextType)

	var adv Advance
	if day != curDay && day > 1 {
		report, err := applyNight(room, day-1)
		if err != nil {
			return Advance{}, err
		}
		adv.Report = &report
		e.notifier.Post(ctx, notify.Public(room.Name), nightMessage(report))
	}

	if nextType == mafia.StageVote {
		if outcome := Evaluate(room); outcome != Undecided {
			if err := e.finish(ctx, room, outcome); err != nil {
				return Advance{}, err
			}
			adv.Outcome = outcome
			return adv, nil
		}
	}
	return e.open(ctx, room, tmpl, day, adv)
}

// open appends the stage built from tmpl and announces its ballot.
func (e *Engine) open(ctx context.Context, room *mafia.Room, tmpl mafia.StageTemplate, day int, adv Advance) (Advance, error) {
	now := e.now().UTC()
	duration := tmpl.Duration(e.voteDuration)
	stage := mafia.Stage{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("%s - Day %d", tmpl.Name, day),
		Description:  tmpl.Description,
		Type:         tmpl.Type,
		Day:          day,
		Status:       mafia.StatusPlaying,
		Roles:        append([]mafia.RoleType(nil), tmpl.Roles...),
		Targets:      append([]mafia.RoleType(nil), tmpl.Targets...),
		ResultPrompt: tmpl.ResultPrompt,
		Candidates:   room.Holding(tmpl.Targets),
		Votes:        []mafia.Vote{},
		OpenedAt:     now,
		Deadline:     now.Add(duration),
	}
	if err := room.AppendStage(stage); err != nil {
		return Advance{}, err
	}

	adv.Stage = room.CurrentStage()
	adv.Audience = StageAudience(room.Name, adv.Stage)
	adv.Duration = duration

	e.notifier.Post(ctx, notify.Public(room.Name), notify.Message{
		Kind:    notify.KindStageStarted,
		Title:   "Stage started: " + adv.Stage.Name,
		Body:    adv.Stage.Description,
		Fields:  []notify.Field{{Name: "Voting roles", Value: roleNames(room.Scenario, adv.Stage.Roles)}},
		StageID: adv.Stage.ID,
		Day:     day,
	})
	e.notifier.Post(ctx, adv.Audience, ballotMessage(adv.Stage))
	return adv, nil
}

// Settle writes a window's resolution into the room's current stage and
// applies its effect. Kill results wait for the night report; a vote
// banishes its target right away.
func (e *Engine) Settle(ctx context.Context, room *mafia.Room, res Resolution) (Settlement, error) {
	stage, err := room.FinishStage(res.StageID, res.Votes, res.Target)
	if err != nil {
		return Settlement{}, err
	}
	out := Settlement{Stage: stage}
	audience := StageAudience(room.Name, stage)

	e.notifier.Post(ctx, audience, resultMessage(stage, res))

	if res.Target == "" {
		return out, nil
	}
	target, ok := room.Player(res.Target)
	if !ok {
		return out, fmt.Errorf("%w: resolved target %s is not in room %s", mafia.ErrNotFound, res.Target, room.Name)
	}

	switch stage.Type {
	case mafia.StageInvestigate:
		out.Suspect = target.ID
		out.SuspectBad = target.Role == mafia.RoleKiller
		verdict := "is not a killer"
		if out.SuspectBad {
			verdict = "is a killer"
		}
		e.notifier.Post(ctx, audience, notify.Message{
			Kind:    notify.KindInvestigated,
			Title:   "Investigation result",
			Body:    fmt.Sprintf("%s %s", target.ID, verdict),
			StageID: stage.ID,
			Day:     stage.Day,
		})
	case mafia.StageVote:
		if err := room.Kill(target.ID); err != nil {
			return out, err
		}
		out.Banished = target.ID
		e.notifier.Post(ctx, notify.Public(room.Name), notify.Message{
			Kind:    notify.KindBanished,
			Title:   fmt.Sprintf("%s was banished", target.ID),
			Body:    fmt.Sprintf("%s was a %s", target.ID, room.Scenario.RoleName(target.Role)),
			StageID: stage.ID,
			Day:     stage.Day,
		})
	}
	return out, nil
}

// End force-finishes a game with no winner.
func (e *Engine) End(ctx context.Context, room *mafia.Room) error {
	return e.finish(ctx, room, Undecided)
}

func (e *Engine) finish(ctx context.Context, room *mafia.Room, outcome Outcome) error {
	if err := room.Finish(outcome.Winner()); err != nil {
		return err
	}
	title := "Game over"
	body := "The game was ended by an administrator."
	switch outcome {
	case TownWins:
		body = "All killers are gone. The town wins!"
	case KillersWin:
		body = "The killers outnumber the town. The killers win!"
	}
	fields := make([]notify.Field, 0, len(room.Players))
	for _, p := range room.Players {
		state := room.Scenario.RoleName(p.Role)
		if p.Dead {
			state += " (dead)"
		}
		fields = append(fields, notify.Field{Name: p.ID, Value: state})
	}
	e.notifier.Post(ctx, notify.Public(room.Name), notify.Message{
		Kind:   notify.KindGameOver,
		Title:  title,
		Body:   body,
		Fields: fields,
	})
	return nil
}

// applyNight resolves the most recent kill and heal stages of day and
// kills the target unless the heal matched.
func applyNight(room *mafia.Room, day int) (NightReport, error) {
	report := NightReport{Day: day}
	var foundKill, foundHeal bool
	for i := len(room.Stages) - 1; i >= 0; i-- {
		s := room.Stages[i]
		if s.Day != day {
			continue
		}
		switch {
		case s.Type == mafia.StageKill && !foundKill:
			report.Target, foundKill = s.Result, true
		case s.Type == mafia.StageHeal && !foundHeal:
			report.Healed, foundHeal = s.Result, true
		}
	}
	if report.Target == "" || report.Saved() {
		return report, nil
	}
	p, ok := room.Player(report.Target)
	if !ok || !p.Alive() {
		return report, nil
	}
	if err := room.Kill(report.Target); err != nil {
		return report, err
	}
	report.Killed = true
	return report, nil
}

func nightMessage(r NightReport) notify.Message {
	body := "The night has passed\n"
	switch {
	case r.Target == "":
		body += "And everyone was safe"
	case r.Saved():
		body += fmt.Sprintf("Someone tried to kill %s but they were saved by the healer", r.Target)
	default:
		body += fmt.Sprintf("Someone tried to kill %s and no one saved them", r.Target)
	}
	return notify.Message{
		Kind:  notify.KindNightReport,
		Title: fmt.Sprintf("Day %d report", r.Day),
		Body:  body,
		Day:   r.Day,
	}
}

func ballotMessage(s *mafia.Stage) notify.Message {
	lines := make([]string, len(s.Candidates))
	for i, id := range s.Candidates {
		lines[i] = fmt.Sprintf("%d. %s", i, id)
	}
	return notify.Message{
		Kind:    notify.KindBallot,
		Title:   "Vote for who you want to " + s.ResultPrompt,
		Body:    strings.Join(lines, "\n"),
		StageID: s.ID,
		Day:     s.Day,
	}
}

func resultMessage(s *mafia.Stage, res Resolution) notify.Message {
	var lines []string
	for _, id := range s.Candidates {
		if n := res.Tally[id]; n > 0 {
			lines = append(lines, fmt.Sprintf("%s received %d votes", id, n))
		}
	}
	votes := strings.Join(lines, "\n")
	if votes == "" {
		votes = "No votes"
	}
	result := res.Target
	if result == "" {
		result = "No one"
	}
	return notify.Message{
		Kind:  notify.KindStageEnded,
		Title: "Stage ended: " + s.Name,
		Fields: []notify.Field{
			{Name: "Votes", Value: votes},
			{Name: "Total votes", Value: fmt.Sprint(len(res.Votes))},
			{Name: s.ResultPrompt, Value: result},
			{Name: "Closed by", Value: string(res.Reason)},
		},
		StageID: s.ID,
		Day:     s.Day,
	}
}

func roleNames(sc mafia.Scenario, roles []mafia.RoleType) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = sc.RoleName(r)
	}
	return strings.Join(names, ", ")
}

func stageNames(sc mafia.Scenario) string {
	names := make([]string, 0, len(sc.Stages))
	for _, t := range mafia.StageCycle {
		if st, ok := sc.Template(t); ok {
			names = append(names, st.Name)
		}
	}
	return strings.Join(names, " -> ")
}
