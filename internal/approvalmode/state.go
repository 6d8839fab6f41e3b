package approvalmode

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/logging"
)

// TransitionError reports a rejected mode change. The mode is left unchanged.
type TransitionError struct {
	From   Mode
	To     Mode
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot switch approval mode from %s to %s: %s", e.From, e.To, e.Reason)
}

// Observer is called after every successful transition.
type Observer func(prev, next Mode)

type observerEntry struct {
	id uint64
	fn Observer
}

type transitionNote struct {
	prev, next Mode
}

// Option configures a State.
type Option func(*State)

// WithYoloDisabled rejects transitions into Yolo.
func WithYoloDisabled(disabled bool) Option {
	return func(s *State) { s.yoloDisabled = disabled }
}

// State owns the current approval mode. Set and Cycle are the only writers;
// every entry point (keyboard cycle, slash command, mode tools, HTTP) goes
// through them. Decisions read Get once and are not revisited when the mode
// later changes.
type State struct {
	mu           sync.RWMutex
	mode         Mode
	yoloDisabled bool

	obsMu     sync.Mutex
	observers []observerEntry
	nextObs   uint64

	// writeMu serializes transitions. Their notifications are queued in
	// the same order and delivered by one goroutine at a time.
	writeMu   sync.Mutex
	queueMu   sync.Mutex
	pending   []transitionNote
	notifying bool

	log zerolog.Logger
}

// New creates a State starting in initial.
func New(initial Mode, opts ...Option) (*State, error) {
	s := &State{log: logging.Component("approvalmode")}
	for _, opt := range opts {
		opt(s)
	}
	if initial == "" {
		initial = Default
	}
	if err := s.validate(Default, initial); err != nil {
		return nil, err
	}
	s.mode = initial
	return s, nil
}

// Get returns the current mode.
func (s *State) Get() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// YoloDisabled reports whether Yolo is disabled by configuration.
func (s *State) YoloDisabled() bool {
	return s.yoloDisabled
}

// Set switches to mode. Setting the current mode again succeeds without
// notifying observers. Observers run before Set returns unless another
// goroutine is already delivering notifications, in which case that
// goroutine delivers this one next.
func (s *State) Set(mode Mode) error {
	s.writeMu.Lock()
	err := s.transition(mode)
	s.writeMu.Unlock()

	s.flush()
	return err
}

// Cycle advances Default -> AutoEdit -> Plan -> Default and returns the new
// mode. Cycling from Yolo returns to Default.
func (s *State) Cycle() Mode {
	s.writeMu.Lock()
	next := s.Get().Next()
	if err := s.transition(next); err != nil {
		// The cycle never targets Yolo, so validation cannot fail.
		s.log.Error().Err(err).Msg("cycle transition rejected")
	}
	current := s.Get()
	s.writeMu.Unlock()

	s.flush()
	return current
}

// transition must be called with writeMu held.
func (s *State) transition(next Mode) error {
	prev := s.Get()
	if err := s.validate(prev, next); err != nil {
		s.log.Warn().Err(err).Msg("mode transition rejected")
		return err
	}
	if prev == next {
		return nil
	}

	s.mu.Lock()
	s.mode = next
	s.mu.Unlock()

	s.log.Info().Str("from", string(prev)).Str("to", string(next)).Msg("approval mode changed")

	s.queueMu.Lock()
	s.pending = append(s.pending, transitionNote{prev: prev, next: next})
	s.queueMu.Unlock()
	return nil
}

func (s *State) validate(from, to Mode) error {
	if !to.Valid() {
		return &TransitionError{From: from, To: to, Reason: "unknown mode"}
	}
	if to == Yolo && s.yoloDisabled {
		return &TransitionError{From: from, To: to, Reason: "yolo mode is disabled by configuration"}
	}
	return nil
}

// Observe registers fn for transition notifications and returns a function
// that removes it. Removing twice is harmless. Observers may call Set or
// Cycle; the nested transition is delivered after the current one.
func (s *State) Observe(fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// flush delivers queued notifications unless another goroutine already is.
func (s *State) flush() {
	s.queueMu.Lock()
	if s.notifying {
		s.queueMu.Unlock()
		return
	}
	s.notifying = true
	for len(s.pending) > 0 {
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.queueMu.Unlock()
		s.notify(n.prev, n.next)
		s.queueMu.Lock()
	}
	s.notifying = false
	s.queueMu.Unlock()
}

func (s *State) notify(prev, next Mode) {
	s.obsMu.Lock()
	observers := make([]observerEntry, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(prev, next)
	}
}
