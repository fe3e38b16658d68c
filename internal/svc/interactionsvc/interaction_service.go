package interactionsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/notify"
)

const meterName = "nutrifit.interactionsvc"

// ErrUnknownTarget is returned by Toggle for a key that was never seeded or was released.
var ErrUnknownTarget = errors.New("unknown interaction target")

// State is the observable state of a toggle target: the flag (liked,
// following) and its counter (likes, followers).
type State struct {
	Flag  bool
	Count int
}

// toggled returns the optimistic successor of s. The counter never goes below zero.
func (s State) toggled() State {
	next := State{Flag: !s.Flag, Count: s.Count}

	if next.Flag {
		next.Count++
	} else if next.Count > 0 {
		next.Count--
	}

	return next
}

// Endpoints are the confirming calls of a toggle target.
type Endpoints struct {
	// Kind labels metrics and logs, e.g. "like" or "follow"
	Kind string
	// Apply is called on a false to true transition
	Apply func(ctx context.Context) error
	// Revert is called on a true to false transition
	Revert func(ctx context.Context) error
	// FailureTitle is the notification title shown on a failed confirmation
	FailureTitle string
	// AppliedTitle and RevertedTitle are shown once Apply or Revert succeeded.
	// An empty title shows nothing.
	AppliedTitle  string
	RevertedTitle string
}

// Outcome is the settled result of a PendingMutation.
type Outcome struct {
	// Confirmed is true if the confirming call succeeded.
	Confirmed bool
	// RolledBack is true if the previous state was restored.
	// A failed call on a released target is neither confirmed nor rolled back.
	RolledBack bool
	// Err is the error of the confirming call, or of the Wait context.
	Err error
}

// PendingMutation is an in-flight toggle.
type PendingMutation struct {
	TargetKey  string
	Previous   State
	Optimistic State

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the confirming call settled.
func (p *PendingMutation) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the mutation settled or ctx is done.
func (p *PendingMutation) Wait(ctx context.Context) Outcome {
	select {
	case <-p.done:
		return p.outcome
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
}

type target struct {
	state State
	// generation changes on every Seed, so a rollback can tell a re-seeded
	// target from the one it snapshotted
	generation uint64
}

// Sync applies toggles optimistically and reconciles them with the remote API.
// Overlapping toggles of the same target are not serialized: each one
// snapshots the current optimistic state and the last settled write wins.
type Sync struct {
	notifier notify.Notifier
	log      logging.Logger

	toggles   metric.Int64Counter
	rollbacks metric.Int64Counter

	mu         sync.Mutex
	targets    map[string]*target
	generation uint64

	subsMu  sync.Mutex
	subs    map[int]func(key string, state State)
	nextSub int

	wg sync.WaitGroup
}

// NewSync creates a Sync. If mp is nil the global meter provider is used.
func NewSync(notifier notify.Notifier, mp metric.MeterProvider) (*Sync, error) {
	if notifier == nil {
		notifier = notify.Nop()
	}

	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(meterName)

	toggles, err := meter.Int64Counter("nutrifit.interaction.toggles",
		metric.WithDescription("Optimistic toggles applied"))
	if err != nil {
		return nil, fmt.Errorf("toggles counter: %w", err)
	}

	rollbacks, err := meter.Int64Counter("nutrifit.interaction.rollbacks",
		metric.WithDescription("Optimistic toggles rolled back after a failed confirmation"))
	if err != nil {
		return nil, fmt.Errorf("rollbacks counter: %w", err)
	}

	return &Sync{
		notifier:  notifier,
		log:       logging.GetLogger("svc.interactionsvc"),
		toggles:   toggles,
		rollbacks: rollbacks,
		targets:   make(map[string]*target),
		subs:      make(map[int]func(string, State)),
	}, nil
}

// Seed sets the state of key from a fresh fetch, replacing any optimistic state.
func (s *Sync) Seed(key string, state State) {
	if state.Count < 0 {
		state.Count = 0
	}

	s.mu.Lock()
	s.generation++
	s.targets[key] = &target{state: state, generation: s.generation}
	s.mu.Unlock()

	s.publish(key, state)
}

// State returns the current state of key.
func (s *Sync) State(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[key]
	if !ok {
		return State{}, false
	}

	return t.state, true
}

// Release forgets key. Confirmations settling afterwards do not touch its state.
func (s *Sync) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.targets, key)
}

// Subscribe registers fn to be called after every state change.
// fn is never called while internal locks are held.
func (s *Sync) Subscribe(fn func(key string, state State)) (cancel func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()

		delete(s.subs, id)
	}
}

func (s *Sync) publish(key string, state State) {
	s.subsMu.Lock()
	subs := make([]func(string, State), 0, len(s.subs))

	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(key, state)
	}
}

// Toggle flips the state of key immediately and confirms it in the background
// with ep.Apply or ep.Revert. A failed confirmation restores the previous
// state unless the target was released or re-seeded meanwhile. It always
// emits a notification and is never returned as an error.
func (s *Sync) Toggle(ctx context.Context, key string, ep Endpoints) (*PendingMutation, error) {
	s.mu.Lock()

	t, ok := s.targets[key]
	if !ok {
		s.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, key)
	}

	previous := t.state
	t.state = previous.toggled()
	optimistic, generation := t.state, t.generation
	s.mu.Unlock()

	s.publish(key, optimistic)

	s.toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", ep.Kind),
		attribute.Bool("flag", optimistic.Flag),
	))

	pm := &PendingMutation{
		TargetKey:  key,
		Previous:   previous,
		Optimistic: optimistic,
		done:       make(chan struct{}),
	}

	call := ep.Revert
	if optimistic.Flag {
		call = ep.Apply
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.confirm(context.WithoutCancel(ctx), pm, ep, call, generation)
	}()

	return pm, nil
}

func (s *Sync) confirm(
	ctx context.Context,
	pm *PendingMutation,
	ep Endpoints,
	call func(context.Context) error,
	generation uint64,
) {
	defer close(pm.done)

	log := s.log.With(logging.Group("interaction", "key", pm.TargetKey, "kind", ep.Kind))

	err := call(ctx)
	if err == nil {
		pm.outcome = Outcome{Confirmed: true}

		log.DebugContext(ctx, "toggle confirmed", "flag", pm.Optimistic.Flag)

		title := ep.RevertedTitle
		if pm.Optimistic.Flag {
			title = ep.AppliedTitle
		}

		if title != "" {
			s.notifier.Notify(ctx, notify.Success(title, ""))
		}

		return
	}

	pm.outcome = Outcome{Err: err}

	s.mu.Lock()

	t, ok := s.targets[pm.TargetKey]
	if ok && t.generation == generation {
		t.state = pm.Previous
		pm.outcome.RolledBack = true
	}
	s.mu.Unlock()

	if pm.outcome.RolledBack {
		log.WarnContext(ctx, "toggle rolled back", "error", err)

		s.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ep.Kind)))
		s.publish(pm.TargetKey, pm.Previous)
	} else {
		log.WarnContext(ctx, "toggle failed on released or re-seeded target", "error", err)
	}

	// the user still sees the failure when the target is gone
	s.notifier.Notify(ctx, notify.Error(ep.FailureTitle, "Please try again."))
}

// Wait blocks until every confirmation started so far has settled.
func (s *Sync) Wait() {
	s.wg.Wait()
}
