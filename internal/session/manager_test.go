package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/notify"
	"github.com/SGman98/mafiabot/internal/scenario"
	"github.com/SGman98/mafiabot/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Post(_ context.Context, _ notify.Audience, msg notify.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func testScenario() mafia.Scenario {
	all := []mafia.RoleType{mafia.RoleKiller, mafia.RoleInnocent, mafia.RoleHealer, mafia.RoleInvestigator}
	return mafia.Scenario{
		Name:  "test",
		Theme: "A quiet town",
		Roles: []mafia.Role{
			{Type: mafia.RoleKiller, Name: "Killer"},
			{Type: mafia.RoleInnocent, Name: "Villager"},
			{Type: mafia.RoleHealer, Name: "Doctor"},
			{Type: mafia.RoleInvestigator, Name: "Detective"},
		},
		Stages: []mafia.StageTemplate{
			{Name: "Night", Type: mafia.StageKill, Roles: []mafia.RoleType{mafia.RoleKiller}, Targets: all[1:], ResultPrompt: "kill"},
			{Name: "Healing", Type: mafia.StageHeal, Roles: []mafia.RoleType{mafia.RoleHealer}, Targets: all, ResultPrompt: "heal"},
			{Name: "Search", Type: mafia.StageInvestigate, Roles: []mafia.RoleType{mafia.RoleInvestigator}, Targets: all, ResultPrompt: "investigate"},
			{Name: "Trial", Type: mafia.StageVote, Roles: all, Targets: all, ResultPrompt: "banish"},
		},
	}
}

func setupManager(t *testing.T, st store.RoomStore, voteDuration time.Duration) (*Manager, *recorder) {
	t.Helper()
	cat, err := scenario.New(testScenario())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	rec := &recorder{}
	m, err := New(st, cat, rec, nil, Options{
		MinPlayers:   4,
		VoteDuration: voteDuration,
		Rand:         rand.New(rand.NewPCG(1, 2)),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, rec
}

func startedRoom(t *testing.T, m *Manager, name string, players int) *mafia.Room {
	t.Helper()
	ctx := context.Background()
	if _, err := m.CreateRoom(ctx, name, "test"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for i := range players {
		if _, err := m.JoinRoom(ctx, name, fmt.Sprintf("%s-p%d", name, i)); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	room, err := m.StartGame(ctx, name)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return room
}

func withRole(room *mafia.Room, role mafia.RoleType) string {
	for _, p := range room.Players {
		if p.Role == role {
			return p.ID
		}
	}
	return ""
}

func TestCreateRoomRejectsDuplicate(t *testing.T) {
	m, rec := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()

	if _, err := m.CreateRoom(ctx, "alpha", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CreateRoom(ctx, "alpha", "test"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := m.CreateRoom(ctx, "beta", "nope"); !errors.Is(err, mafia.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := rec.count(notify.KindRoomCreated); n != 1 {
		t.Fatalf("room_created posts = %d, want 1", n)
	}
}

func TestJoinRoomSingleRoomPerPlayer(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		if _, err := m.CreateRoom(ctx, name, "test"); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := m.JoinRoom(ctx, "alpha", "ana"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := m.JoinRoom(ctx, "beta", "ana"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	// An empty room name picks the waiting room with the fewest players.
	room, err := m.JoinRoom(ctx, "", "bob")
	if err != nil {
		t.Fatalf("auto join: %v", err)
	}
	if room.Name != "beta" {
		t.Fatalf("room = %q, want %q", room.Name, "beta")
	}
}

func TestLeaveRoom(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()

	if _, err := m.CreateRoom(ctx, "alpha", "test"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.JoinRoom(ctx, "alpha", "ana"); err != nil {
		t.Fatalf("join: %v", err)
	}
	room, err := m.LeaveRoom(ctx, "", "ana")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(room.Players) != 0 {
		t.Fatalf("players = %d, want 0", len(room.Players))
	}
	if _, err := m.LeaveRoom(ctx, "alpha", "ana"); !errors.Is(err, mafia.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	startedRoom(t, m, "beta", 4)
	if _, err := m.LeaveRoom(ctx, "beta", "beta-p0"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestFinishedRoomKeepsMembership(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()

	startedRoom(t, m, "alpha", 4)
	if _, err := m.EndGame(ctx, "alpha"); err != nil {
		t.Fatalf("end game: %v", err)
	}
	if _, err := m.CreateRoom(ctx, "beta", "test"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.JoinRoom(ctx, "beta", "alpha-p0"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("join while on a finished roster: err = %v, want ErrInvalidState", err)
	}

	room, err := m.LeaveRoom(ctx, "", "alpha-p0")
	if err != nil {
		t.Fatalf("leave finished room: %v", err)
	}
	if room.Name != "alpha" || room.HasPlayer("alpha-p0") {
		t.Fatalf("left %s, roster = %+v", room.Name, room.Players)
	}

	beta, err := m.JoinRoom(ctx, "beta", "alpha-p0")
	if err != nil {
		t.Fatalf("join after leaving: %v", err)
	}
	if !beta.HasPlayer("alpha-p0") {
		t.Fatal("player missing from beta")
	}
	if alpha, _ := m.Room(ctx, "alpha"); alpha.HasPlayer("alpha-p0") {
		t.Fatal("player still on alpha's roster")
	}
}

func TestStartGameNeedsMinimumPlayers(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()

	if _, err := m.CreateRoom(ctx, "alpha", "test"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range []string{"a", "b", "c"} {
		if _, err := m.JoinRoom(ctx, "alpha", p); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := m.StartGame(ctx, "alpha"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestVoteWithoutOpenStage(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	room := startedRoom(t, m, "alpha", 4)

	zero := 0
	_, err := m.Vote(context.Background(), VoteEvent{Room: "alpha", PlayerID: room.Players[0].ID, Choice: &zero})
	if !errors.Is(err, mafia.ErrNoActiveVote) {
		t.Fatalf("err = %v, want ErrNoActiveVote", err)
	}
	if _, err := m.EndStage(context.Background(), "alpha"); !errors.Is(err, mafia.ErrNoActiveVote) {
		t.Fatalf("end stage err = %v, want ErrNoActiveVote", err)
	}
}

func TestQuorumSettlesStage(t *testing.T) {
	m, rec := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()
	room := startedRoom(t, m, "alpha", 4)
	killer := withRole(room, mafia.RoleKiller)

	room, err := m.NextStage(ctx, "alpha")
	if err != nil {
		t.Fatalf("next stage: %v", err)
	}
	stage := room.CurrentStage()
	if stage.Type != mafia.StageKill {
		t.Fatalf("stage type = %s, want %s", stage.Type, mafia.StageKill)
	}

	// Stale stage ids are rejected.
	zero := 0
	if _, err := m.Vote(ctx, VoteEvent{PlayerID: killer, StageID: "old", Choice: &zero}); !errors.Is(err, mafia.ErrNoActiveVote) {
		t.Fatalf("err = %v, want ErrNoActiveVote", err)
	}

	// Only the killer may vote in the kill stage.
	innocent := withRole(room, mafia.RoleInnocent)
	if _, err := m.Vote(ctx, VoteEvent{Room: "alpha", PlayerID: innocent, Choice: &zero}); !errors.Is(err, mafia.ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}
	if n := rec.count(notify.KindVoteRejected); n != 2 {
		t.Fatalf("vote_rejected posts = %d, want 2", n)
	}

	ack, err := m.Vote(ctx, VoteEvent{PlayerID: killer, StageID: stage.ID, Choice: &zero})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !ack.Closed {
		t.Fatal("expected the only killer's vote to close the stage")
	}

	room, err = m.Room(ctx, "alpha")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	got := room.CurrentStage()
	if got.Status != mafia.StatusFinished {
		t.Fatalf("stage status = %s, want %s", got.Status, mafia.StatusFinished)
	}
	if got.Result != stage.Candidates[0] {
		t.Fatalf("result = %q, want %q", got.Result, stage.Candidates[0])
	}
	if _, err := m.Vote(ctx, VoteEvent{PlayerID: killer, Choice: &zero}); !errors.Is(err, mafia.ErrNoActiveVote) {
		t.Fatalf("err = %v, want ErrNoActiveVote", err)
	}
}

func TestVoteStageBanishesMajority(t *testing.T) {
	m, rec := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()
	room := startedRoom(t, m, "alpha", 8)

	killers := 0
	for _, p := range room.Players {
		if p.Role == mafia.RoleKiller {
			killers++
		}
	}
	if killers != 2 {
		t.Fatalf("killers = %d, want 2", killers)
	}

	// Let the night stages pass without votes.
	var err error
	for range 4 {
		if room, err = m.NextStage(ctx, "alpha"); err != nil {
			t.Fatalf("next stage: %v", err)
		}
	}
	stage := room.CurrentStage()
	if stage.Type != mafia.StageVote {
		t.Fatalf("stage type = %s, want %s", stage.Type, mafia.StageVote)
	}

	target := withRole(room, mafia.RoleKiller)
	other := withRole(room, mafia.RoleInnocent)
	for i, p := range room.Players {
		choice := target
		if i >= 5 {
			choice = other
		}
		ack, err := m.Vote(ctx, VoteEvent{Room: "alpha", PlayerID: p.ID, StageID: stage.ID, Target: choice})
		if err != nil {
			t.Fatalf("vote from %s: %v", p.ID, err)
		}
		if ack.Closed != (i == len(room.Players)-1) {
			t.Fatalf("vote %d closed = %v", i, ack.Closed)
		}
	}

	room, err = m.Room(ctx, "alpha")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	got := room.CurrentStage()
	if got.ID != stage.ID || got.Status != mafia.StatusFinished {
		t.Fatalf("stage = %s %s, want %s finished", got.ID, got.Status, stage.ID)
	}
	if got.Result != target || len(got.Votes) != 8 {
		t.Fatalf("result = %q with %d votes, want %q with 8", got.Result, len(got.Votes), target)
	}
	if p, _ := room.Player(target); !p.Dead {
		t.Fatalf("%s survived the banishment", target)
	}
	if n := rec.count(notify.KindBanished); n != 1 {
		t.Fatalf("banished posts = %d, want 1", n)
	}
}

func TestTimeoutSettlesAndPersists(t *testing.T) {
	st := store.NewMemory()
	m, _ := setupManager(t, st, 50*time.Millisecond)
	ctx := context.Background()
	startedRoom(t, m, "alpha", 4)

	if _, err := m.NextStage(ctx, "alpha"); err != nil {
		t.Fatalf("next stage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		room, err := st.Load(ctx, "alpha")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if room.CurrentStage().Status == mafia.StatusFinished {
			if room.CurrentStage().Result != "" {
				t.Fatalf("result = %q, want none", room.CurrentStage().Result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stage was not settled after the timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}

	room, err := m.NextStage(ctx, "alpha")
	if err != nil {
		t.Fatalf("next stage: %v", err)
	}
	if got := room.CurrentStage().Type; got != mafia.StageHeal {
		t.Fatalf("stage type = %s, want %s", got, mafia.StageHeal)
	}
}

func TestNextStageForceSettlesOpenStage(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()
	startedRoom(t, m, "alpha", 4)

	first, err := m.NextStage(ctx, "alpha")
	if err != nil {
		t.Fatalf("next stage: %v", err)
	}
	room, err := m.NextStage(ctx, "alpha")
	if err != nil {
		t.Fatalf("next stage: %v", err)
	}
	if len(room.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(room.Stages))
	}
	if room.Stages[0].ID != first.CurrentStage().ID || room.Stages[0].Status != mafia.StatusFinished {
		t.Fatalf("first stage = %+v, want it finished", room.Stages[0])
	}
}

func TestEndGame(t *testing.T) {
	m, rec := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()
	startedRoom(t, m, "alpha", 4)
	if _, err := m.NextStage(ctx, "alpha"); err != nil {
		t.Fatalf("next stage: %v", err)
	}

	room, err := m.EndGame(ctx, "alpha")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if room.Status != mafia.StatusFinished {
		t.Fatalf("status = %s, want %s", room.Status, mafia.StatusFinished)
	}
	if room.CurrentStage().Status != mafia.StatusFinished {
		t.Fatal("open stage should be finished with the game")
	}
	if _, err := m.EndGame(ctx, "alpha"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := m.NextStage(ctx, "alpha"); !errors.Is(err, mafia.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if n := rec.count(notify.KindGameOver); n != 1 {
		t.Fatalf("game_over posts = %d, want 1", n)
	}
}

func TestResumeOpenStage(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first, _ := setupManager(t, st, time.Minute)
	room := startedRoom(t, first, "alpha", 4)
	killer := withRole(room, mafia.RoleKiller)
	if _, err := first.NextStage(ctx, "alpha"); err != nil {
		t.Fatalf("next stage: %v", err)
	}
	first.Close()

	second, _ := setupManager(t, st, time.Minute)
	zero := 0
	ack, err := second.Vote(ctx, VoteEvent{Room: "alpha", PlayerID: killer, Choice: &zero})
	if err != nil {
		t.Fatalf("vote after resume: %v", err)
	}
	if !ack.Closed {
		t.Fatal("expected the resumed window to close on quorum")
	}
}

func TestDeleteRoom(t *testing.T) {
	m, _ := setupManager(t, store.NewMemory(), time.Minute)
	ctx := context.Background()
	startedRoom(t, m, "alpha", 4)
	if _, err := m.NextStage(ctx, "alpha"); err != nil {
		t.Fatalf("next stage: %v", err)
	}

	if err := m.DeleteRoom(ctx, "alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Room(ctx, "alpha"); !errors.Is(err, mafia.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	rooms, err := m.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("rooms = %d, want 0", len(rooms))
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{mafia.ErrNoActiveVote, "There is no vote in progress right now."},
		{fmt.Errorf("%w: stage x is no longer open", mafia.ErrNoActiveVote), "There is no vote in progress right now. Stage x is no longer open."},
		{fmt.Errorf("loading: %w", mafia.ErrNotFound), "Couldn't find that."},
		{errors.New("boom"), "Something went wrong."},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

var _ game.Rand = (*lockedRand)(nil)
