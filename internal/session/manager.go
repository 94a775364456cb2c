// Package session owns the live rooms: it serializes every operation on a
// room, runs its voting windows and persists each change before returning.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SGman98/mafiabot/internal/game"
	"github.com/SGman98/mafiabot/internal/mafia"
	"github.com/SGman98/mafiabot/internal/notify"
	"github.com/SGman98/mafiabot/internal/scenario"
	"github.com/SGman98/mafiabot/internal/store"
)

const settleTimeout = 10 * time.Second

type Options struct {
	MinPlayers   int
	VoteDuration time.Duration
	Cadence      game.Cadence
	// Rand drives role assignment and tie-breaks. Seeded from crypto/rand
	// when nil.
	Rand game.Rand
}

type Manager struct {
	store    store.RoomStore
	catalog  *scenario.Catalog
	engine   *game.Engine
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	rng      *lockedRand
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*session

	// join serializes membership changes across rooms so a player can
	// never end up in two of them.
	join   sync.Mutex
	closed atomic.Bool
}

// session is the live state of one room. mu guards everything below it
// and is held for the whole of every operation on the room.
type session struct {
	mu     sync.Mutex
	room   *mafia.Room
	window *game.Window
	gone   bool
}

func New(st store.RoomStore, catalog *scenario.Catalog, notifier notify.Notifier, logger *slog.Logger, opts Options) (*Manager, error) {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VoteDuration <= 0 {
		opts.VoteDuration = time.Minute
	}
	if opts.Cadence == (game.Cadence{}) {
		opts.Cadence = game.DefaultCadence()
	}
	if opts.Rand == nil {
		r, err := NewRand()
		if err != nil {
			return nil, err
		}
		opts.Rand = r
	}
	return &Manager{
		store:    st,
		catalog:  catalog,
		engine:   game.NewEngine(notifier, opts.VoteDuration),
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("github.com/SGman98/mafiabot/internal/session"),
		rng:      &lockedRand{src: opts.Rand},
		opts:     opts,
		sessions: make(map[string]*session),
	}, nil
}

func (m *Manager) start(ctx context.Context, op, room string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "session."+op, trace.WithAttributes(attribute.String("mafia.room", room)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// get returns the session for name, loading it from the store on first use.
func (m *Manager) get(ctx context.Context, name string) (*session, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: shutting down", mafia.ErrInvalidState)
	}
	m.mu.RLock()
	s, ok := m.sessions[name]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if s, ok := m.sessions[name]; ok {
		return s, nil
	}

	room, err := m.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", name, err)
	}
	s = &session{room: room}
	m.resume(ctx, s)
	m.sessions[name] = s
	return s, nil
}

// with runs fn holding the room's session lock.
func (m *Manager) with(ctx context.Context, name string, fn func(*session) error) error {
	if name == "" {
		return fmt.Errorf("%w: room name is required", mafia.ErrValidation)
	}
	s, err := m.get(ctx, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return fmt.Errorf("%w: room %s", mafia.ErrNotFound, name)
	}
	return fn(s)
}

// persist saves room. A version conflict is retried once on top of the
// stored version since the session lock makes this the only writer.
func (m *Manager) persist(ctx context.Context, room *mafia.Room) error {
	err := m.store.Save(ctx, room)
	if !errors.Is(err, mafia.ErrConcurrencyConflict) {
		return err
	}
	stored, lerr := m.store.Load(ctx, room.Name)
	if lerr != nil {
		return err
	}
	m.logger.WarnContext(ctx, "retrying room save",
		"room", room.Name, "version", room.Version, "stored", stored.Version)
	room.Version = stored.Version
	return m.store.Save(ctx, room)
}

// commit persists work and makes it the session's room.
func (m *Manager) commit(ctx context.Context, s *session, work *mafia.Room) error {
	if err := m.persist(ctx, work); err != nil {
		return err
	}
	s.room = work
	return nil
}

func (m *Manager) CreateRoom(ctx context.Context, name, scenarioName string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "CreateRoom", name)
	defer func() { endSpan(span, err) }()

	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", mafia.ErrValidation)
	}
	var sc mafia.Scenario
	if scenarioName == "" {
		all := m.catalog.List()
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: no scenarios loaded", mafia.ErrNotFound)
		}
		sc = all[0]
	} else if sc, err = m.catalog.Find(scenarioName); err != nil {
		return nil, err
	}

	if _, err := m.store.Load(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: room %s already exists", mafia.ErrInvalidState, name)
	} else if !errors.Is(err, mafia.ErrNotFound) {
		return nil, err
	}

	room := mafia.NewRoom(name, sc, time.Now())
	if err := m.store.Save(ctx, room); err != nil {
		if errors.Is(err, mafia.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: room %s already exists", mafia.ErrInvalidState, name)
		}
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.sessions[name]; !ok {
		m.sessions[name] = &session{room: room.Clone()}
	}
	m.mu.Unlock()

	m.notifier.Post(ctx, notify.Public(name), notify.Message{
		Kind:  notify.KindRoomCreated,
		Title: fmt.Sprintf("Room %s created", name),
		Body:  sc.Description,
		Fields: []notify.Field{
			{Name: "Scenario", Value: sc.Name},
		},
	})
	m.logger.InfoContext(ctx, "room created", "room", name, "scenario", sc.Name)
	return room, nil
}

func (m *Manager) DeleteRoom(ctx context.Context, name string) (err error) {
	ctx, span := m.start(ctx, "DeleteRoom", name)
	defer func() { endSpan(span, err) }()

	err = m.with(ctx, name, func(s *session) error {
		if err := m.store.Delete(ctx, name); err != nil {
			return err
		}
		if w := s.window; w != nil {
			s.window = nil
			w.Close(game.ReasonForced)
		}
		s.gone = true
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "room deleted", "room", name)
	return nil
}

func (m *Manager) ListRooms(ctx context.Context) ([]*mafia.Room, error) {
	return m.store.List(ctx)
}

// Room returns a snapshot of the named room.
func (m *Manager) Room(ctx context.Context, name string) (*mafia.Room, error) {
	var out *mafia.Room
	err := m.with(ctx, name, func(s *session) error {
		out = s.room.Clone()
		return nil
	})
	return out, err
}

// membership returns the room whose roster holds player. A finished room
// still counts until the player leaves it; an unfinished one wins if both
// exist.
func (m *Manager) membership(ctx context.Context, player string) (*mafia.Room, error) {
	rooms, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var finished *mafia.Room
	for _, r := range rooms {
		if !r.HasPlayer(player) {
			continue
		}
		if r.Status != mafia.StatusFinished {
			return r, nil
		}
		if finished == nil {
			finished = r
		}
	}
	if finished != nil {
		return finished, nil
	}
	return nil, fmt.Errorf("%w: player %s is not in any room", mafia.ErrNotFound, player)
}

// JoinRoom adds player to room. An empty room name picks the waiting room
// with the fewest players.
func (m *Manager) JoinRoom(ctx context.Context, room, player string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "JoinRoom", room)
	defer func() { endSpan(span, err) }()

	if player == "" {
		return nil, fmt.Errorf("%w: player id is required", mafia.ErrValidation)
	}

	m.join.Lock()
	defer m.join.Unlock()

	if cur, err := m.membership(ctx, player); err == nil {
		return nil, fmt.Errorf("%w: player %s is already in room %s", mafia.ErrInvalidState, player, cur.Name)
	} else if !errors.Is(err, mafia.ErrNotFound) {
		return nil, err
	}

	if room == "" {
		if room, err = m.emptiest(ctx); err != nil {
			return nil, err
		}
	}

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		work := s.room.Clone()
		if err := work.AddPlayer(player); err != nil {
			return err
		}
		if err := m.commit(ctx, s, work); err != nil {
			return err
		}
		out = work.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifier.Post(ctx, notify.Public(room), notify.Message{
		Kind:  notify.KindPlayerJoined,
		Title: fmt.Sprintf("%s joined the room", player),
		Body:  fmt.Sprintf("%d players waiting", len(out.Players)),
	})
	return out, nil
}

func (m *Manager) emptiest(ctx context.Context) (string, error) {
	rooms, err := m.store.List(ctx)
	if err != nil {
		return "", err
	}
	var best *mafia.Room
	for _, r := range rooms {
		if r.Status != mafia.StatusWaiting {
			continue
		}
		if best == nil || len(r.Players) < len(best.Players) {
			best = r
		}
	}
	if best == nil {
		return "", fmt.Errorf("%w: no room is waiting for players", mafia.ErrNotFound)
	}
	return best.Name, nil
}

// LeaveRoom removes player from room, or from their current room when room
// is empty. Refused while the game is being played.
func (m *Manager) LeaveRoom(ctx context.Context, room, player string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "LeaveRoom", room)
	defer func() { endSpan(span, err) }()

	if player == "" {
		return nil, fmt.Errorf("%w: player id is required", mafia.ErrValidation)
	}

	m.join.Lock()
	defer m.join.Unlock()

	if room == "" {
		cur, err := m.membership(ctx, player)
		if err != nil {
			return nil, err
		}
		room = cur.Name
	}

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		work := s.room.Clone()
		if err := work.RemovePlayer(player); err != nil {
			return err
		}
		if err := m.commit(ctx, s, work); err != nil {
			return err
		}
		out = work.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifier.Post(ctx, notify.Public(room), notify.Message{
		Kind:  notify.KindPlayerLeft,
		Title: fmt.Sprintf("%s left the room", player),
		Body:  fmt.Sprintf("%d players waiting", len(out.Players)),
	})
	return out, nil
}

func (m *Manager) StartGame(ctx context.Context, room string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "StartGame", room)
	defer func() { endSpan(span, err) }()

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		work := s.room.Clone()
		if err := m.engine.Start(ctx, work, m.rng, m.opts.MinPlayers); err != nil {
			return err
		}
		if err := m.commit(ctx, s, work); err != nil {
			return err
		}
		out = work.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "game started", "room", room, "players", len(out.Players))
	return out, nil
}

// NextStage settles any open window and moves the room to its next stage.
// The returned room is finished when the win condition was met instead.
func (m *Manager) NextStage(ctx context.Context, room string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "NextStage", room)
	defer func() { endSpan(span, err) }()

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		if err := m.settle(ctx, s); err != nil {
			return err
		}

		work := s.room.Clone()
		adv, err := m.engine.Advance(ctx, work)
		if err != nil {
			return err
		}

		var w *game.Window
		if adv.Stage != nil {
			if w, err = m.open(work, adv.Stage, adv.Audience, adv.Duration); err != nil {
				return err
			}
		}
		if err := m.commit(ctx, s, work); err != nil {
			if w != nil {
				w.Close(game.ReasonForced)
			}
			return err
		}
		if w != nil {
			m.track(ctx, s, w)
			span.SetAttributes(attribute.String("mafia.stage", adv.Stage.Name))
		}
		if adv.Outcome != game.Undecided {
			m.logger.InfoContext(ctx, "game over", "room", room, "outcome", adv.Outcome.String())
		}
		out = s.room.Clone()
		return nil
	})
	return out, err
}

// EndStage closes the open window early and applies its result.
func (m *Manager) EndStage(ctx context.Context, room string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "EndStage", room)
	defer func() { endSpan(span, err) }()

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		if s.window == nil {
			return fmt.Errorf("%w: no stage is open in room %s", mafia.ErrNoActiveVote, room)
		}
		if err := m.settle(ctx, s); err != nil {
			return err
		}
		out = s.room.Clone()
		return nil
	})
	return out, err
}

// EndGame force-finishes the room with no winner, discarding open votes.
func (m *Manager) EndGame(ctx context.Context, room string) (_ *mafia.Room, err error) {
	ctx, span := m.start(ctx, "EndGame", room)
	defer func() { endSpan(span, err) }()

	var out *mafia.Room
	err = m.with(ctx, room, func(s *session) error {
		work := s.room.Clone()
		if err := m.engine.End(ctx, work); err != nil {
			return err
		}
		if err := m.commit(ctx, s, work); err != nil {
			return err
		}
		if w := s.window; w != nil {
			s.window = nil
			w.Close(game.ReasonForced)
		}
		out = work.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "game ended", "room", room)
	return out, nil
}

// open starts the voting window for a freshly opened stage.
func (m *Manager) open(room *mafia.Room, stage *mafia.Stage, audience notify.Audience, d time.Duration) (*game.Window, error) {
	stageID, day := stage.ID, stage.Day
	return game.OpenWindow(game.WindowConfig{
		StageID:    stage.ID,
		Voters:     room.Holding(stage.Roles),
		Candidates: stage.Candidates,
		Duration:   d,
		Tiebreak:   m.rng,
		Cadence:    m.opts.Cadence,
		OnTick: func(remaining time.Duration) {
			m.notifier.Post(context.Background(), audience, notify.Message{
				Kind:    notify.KindCountdown,
				Title:   fmt.Sprintf("%s left to vote", remaining),
				StageID: stageID,
				Day:     day,
			})
		},
	})
}

// track installs w on s. A window that already closed, which happens when
// no player can vote, is settled right away; otherwise a watcher settles
// it once the timeout fires. Caller holds s.mu.
func (m *Manager) track(ctx context.Context, s *session, w *game.Window) {
	s.window = w
	if w.Closed() {
		if err := m.settle(ctx, s); err != nil {
			m.logger.ErrorContext(ctx, "settling empty stage", "room", s.room.Name, "error", err)
		}
		return
	}
	go m.watch(s, w)
}

func (m *Manager) watch(s *session, w *game.Window) {
	<-w.Done()
	if m.closed.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone || s.window != w {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	ctx, span := m.start(ctx, "settle", s.room.Name)
	err := m.settle(ctx, s)
	endSpan(span, err)
	if err != nil {
		m.logger.ErrorContext(ctx, "settling stage", "room", s.room.Name, "stage", w.StageID(), "error", err)
	}
}

// settle closes the session's window if needed and writes its resolution
// into the room. On a failed save the closed window stays installed so the
// next call retries with the same resolution. Caller holds s.mu.
func (m *Manager) settle(ctx context.Context, s *session) error {
	w := s.window
	if w == nil {
		return nil
	}
	res, ok := w.Result()
	if !ok {
		res, _ = w.Close(game.ReasonForced)
	}

	cur := s.room.CurrentStage()
	if cur == nil || cur.ID != res.StageID || cur.Status != mafia.StatusPlaying {
		s.window = nil
		return nil
	}

	work := s.room.Clone()
	out, err := m.engine.Settle(ctx, work, res)
	if err != nil {
		return err
	}
	if err := m.commit(ctx, s, work); err != nil {
		return err
	}
	s.window = nil
	m.logger.InfoContext(ctx, "stage settled",
		"room", work.Name, "stage", out.Stage.Name, "result", out.Stage.Result, "reason", string(res.Reason))
	return nil
}

// resume reopens the window of a stage that was still open when the room
// was last saved, with whatever time remains before its deadline.
func (m *Manager) resume(ctx context.Context, s *session) {
	room := s.room
	cur := room.CurrentStage()
	if room.Status != mafia.StatusPlaying || cur == nil || cur.Status != mafia.StatusPlaying {
		return
	}
	remaining := max(time.Until(cur.Deadline), m.opts.Cadence.Fine, time.Second)
	w, err := m.open(room, cur, game.StageAudience(room.Name, cur), remaining)
	if err != nil {
		m.logger.ErrorContext(ctx, "resuming stage", "room", room.Name, "stage", cur.ID, "error", err)
		return
	}
	m.logger.InfoContext(ctx, "stage resumed", "room", room.Name, "stage", cur.Name, "remaining", remaining.String())
	m.track(ctx, s, w)
}

// Close stops every open window without settling it. Open stages resume
// from the store on the next start.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.sessions {
		s.mu.Lock()
		if w := s.window; w != nil {
			s.window = nil
			w.Close(game.ReasonForced)
		}
		s.mu.Unlock()
		delete(m.sessions, name)
	}
	return nil
}
