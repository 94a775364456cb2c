package game

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SGman98/mafiabot/internal/mafia"
)

type CloseReason string

const (
	ReasonQuorum  CloseReason = "quorum"
	ReasonTimeout CloseReason = "timeout"
	ReasonForced  CloseReason = "forced"
)

// Tiebreak picks uniformly in [0, n).
type Tiebreak interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Cadence controls how often countdown updates fire: every Coarse while
// more than Threshold remains, then every Fine. A zero step disables that
// pace.
type Cadence struct {
	Coarse    time.Duration
	Fine      time.Duration
	Threshold time.Duration
}

func DefaultCadence() Cadence {
	return Cadence{Coarse: 10 * time.Second, Fine: time.Second, Threshold: 10 * time.Second}
}

// Next returns how long to wait before the next update when remaining is
// left, or 0 when no further update is due.
func (c Cadence) Next(remaining time.Duration) time.Duration {
	if remaining <= 0 {
		return 0
	}
	if remaining > c.Threshold {
		if c.Coarse <= 0 {
			return 0
		}
		return min(c.Coarse, remaining-c.Threshold)
	}
	if c.Fine <= 0 {
		return 0
	}
	return min(c.Fine, remaining)
}

type WindowConfig struct {
	StageID string
	// Voters are the alive players allowed to vote.
	Voters []string
	// Candidates are the eligible targets. Their order defines the
	// positional choice index.
	Candidates []string
	Duration   time.Duration
	Tiebreak   Tiebreak
	Cadence    Cadence
	// OnTick receives countdown updates. Optional.
	OnTick func(remaining time.Duration)
}

// Resolution is the outcome of a closed window.
type Resolution struct {
	StageID string
	// Target is empty when nobody received a vote.
	Target string
	Tied   []string
	Tally  map[string]int
	Votes  []mafia.Vote
	Reason CloseReason
}

// Ack describes the effect of a single vote event.
type Ack struct {
	Voter     string `json:"voter"`
	Target    string `json:"target,omitempty"`
	Previous  string `json:"previous,omitempty"`
	Changed   bool   `json:"changed"`
	Withdrawn bool   `json:"withdrawn"`
	// Closed is set on the one cast that completed the quorum.
	Closed bool `json:"closed"`
}

// Window collects votes for one stage. It closes exactly once: on quorum,
// on timeout, or when closed explicitly. After that every vote is rejected.
type Window struct {
	stageID    string
	voters     map[string]bool
	candidates []string
	targets    map[string]bool
	deadline   time.Time
	tiebreak   Tiebreak

	mu    sync.Mutex
	order []string
	votes map[string]string
	tally map[string]int

	closed atomic.Bool
	done   chan struct{}
	result Resolution
	// timer is guarded by mu.
	timer  *time.Timer
}

// OpenWindow starts the timeout and, if cfg.OnTick is set, the countdown.
// A window with no eligible voters closes immediately with no result.
func OpenWindow(cfg WindowConfig) (*Window, error) {
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: voting window needs a positive duration", mafia.ErrValidation)
	}
	w := &Window{
		stageID:    cfg.StageID,
		voters:     make(map[string]bool, len(cfg.Voters)),
		candidates: append([]string(nil), cfg.Candidates...),
		targets:    make(map[string]bool, len(cfg.Candidates)),
		deadline:   time.Now().Add(cfg.Duration),
		tiebreak:   cfg.Tiebreak,
		votes:      make(map[string]string),
		tally:      make(map[string]int),
		done:       make(chan struct{}),
	}
	if w.tiebreak == nil {
		w.tiebreak = globalRand{}
	}
	for _, id := range cfg.Voters {
		w.voters[id] = true
	}
	for _, id := range cfg.Candidates {
		w.targets[id] = true
	}

	if len(w.voters) == 0 {
		w.Close(ReasonQuorum)
		return w, nil
	}

	w.mu.Lock()
	w.timer = time.AfterFunc(cfg.Duration, func() { w.Close(ReasonTimeout) })
	w.mu.Unlock()
	if cfg.OnTick != nil {
		go w.countdown(cfg.Cadence, cfg.OnTick)
	}
	return w, nil
}

func (w *Window) StageID() string { return w.stageID }

func (w *Window) Deadline() time.Time { return w.deadline }

// Candidates returns the ballot in choice-index order.
func (w *Window) Candidates() []string {
	return append([]string(nil), w.candidates...)
}

// Done is closed once the window has resolved.
func (w *Window) Done() <-chan struct{} { return w.done }

func (w *Window) Closed() bool { return w.closed.Load() }

// Result returns the resolution once the window is done.
func (w *Window) Result() (Resolution, bool) {
	select {
	case <-w.done:
		return w.result, true
	default:
		return Resolution{}, false
	}
}

// Cast records voter's choice, replacing any earlier one.
func (w *Window) Cast(voter, target string) (Ack, error) {
	w.mu.Lock()
	if w.closed.Load() {
		w.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: voting for stage %s is closed", mafia.ErrNoActiveVote, w.stageID)
	}
	if !w.voters[voter] {
		w.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: player %s cannot vote in this stage", mafia.ErrNotEligible, voter)
	}
	if !w.targets[target] {
		w.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: player %s is not a valid target", mafia.ErrNotEligible, target)
	}

	ack := Ack{Voter: voter, Target: target}
	if prev, ok := w.votes[voter]; ok {
		ack.Changed = true
		ack.Previous = prev
		w.untally(prev)
	} else {
		w.order = append(w.order, voter)
	}
	w.votes[voter] = target
	w.tally[target]++

	if len(w.votes) == len(w.voters) && w.closed.CompareAndSwap(false, true) {
		w.result = w.resolveLocked(ReasonQuorum)
		ack.Closed = true
	}
	w.mu.Unlock()

	if ack.Closed {
		w.finish()
	}
	return ack, nil
}

// CastIndex maps a positional ballot choice to a candidate and casts it.
func (w *Window) CastIndex(voter string, index int) (Ack, error) {
	if index < 0 || index >= len(w.candidates) {
		return Ack{}, fmt.Errorf("%w: choice %d is not on the ballot", mafia.ErrNotEligible, index)
	}
	return w.Cast(voter, w.candidates[index])
}

// Withdraw removes voter's current vote, if any.
func (w *Window) Withdraw(voter string) (Ack, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return Ack{}, fmt.Errorf("%w: voting for stage %s is closed", mafia.ErrNoActiveVote, w.stageID)
	}
	if !w.voters[voter] {
		return Ack{}, fmt.Errorf("%w: player %s cannot vote in this stage", mafia.ErrNotEligible, voter)
	}
	prev, ok := w.votes[voter]
	if !ok {
		return Ack{}, fmt.Errorf("%w: player %s has no vote to withdraw", mafia.ErrNotFound, voter)
	}
	w.untally(prev)
	delete(w.votes, voter)
	for i, id := range w.order {
		if id == voter {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return Ack{Voter: voter, Previous: prev, Withdrawn: true}, nil
}

// Tally returns a copy of the live vote counts.
func (w *Window) Tally() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int, len(w.tally))
	for k, v := range w.tally {
		out[k] = v
	}
	return out
}

// Close resolves the window. Only the first close (from any trigger) wins;
// later calls wait for that resolution and return ok=false.
func (w *Window) Close(reason CloseReason) (Resolution, bool) {
	if !w.closed.CompareAndSwap(false, true) {
		<-w.done
		return w.result, false
	}
	w.mu.Lock()
	w.result = w.resolveLocked(reason)
	w.mu.Unlock()
	w.finish()
	return w.result, true
}

func (w *Window) finish() {
	w.mu.Lock()
	t := w.timer
	w.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	close(w.done)
}

func (w *Window) untally(target string) {
	w.tally[target]--
	if w.tally[target] <= 0 {
		delete(w.tally, target)
	}
}

func (w *Window) resolveLocked(reason CloseReason) Resolution {
	res := Resolution{
		StageID: w.stageID,
		Reason:  reason,
		Tally:   make(map[string]int, len(w.tally)),
		Votes:   make([]mafia.Vote, 0, len(w.order)),
	}
	top := 0
	for id, n := range w.tally {
		res.Tally[id] = n
		top = max(top, n)
	}
	for _, voter := range w.order {
		res.Votes = append(res.Votes, mafia.Vote{From: voter, To: w.votes[voter]})
	}
	if top == 0 {
		return res
	}

	// Ballot order keeps the tie-break deterministic for a given source.
	for _, id := range w.candidates {
		if w.tally[id] == top {
			res.Tied = append(res.Tied, id)
		}
	}
	switch len(res.Tied) {
	case 0:
	case 1:
		res.Target = res.Tied[0]
	default:
		res.Target = res.Tied[w.tiebreak.IntN(len(res.Tied))]
	}
	return res
}

func (w *Window) countdown(c Cadence, tick func(time.Duration)) {
	for {
		wait := c.Next(time.Until(w.deadline))
		if wait <= 0 {
			return
		}
		t := time.NewTimer(wait)
		select {
		case <-w.done:
			t.Stop()
			return
		case <-t.C:
		}
		if remaining := time.Until(w.deadline).Round(c.Fine); remaining > 0 && !w.Closed() {
			tick(remaining)
		}
	}
}
