// Package workflow implements the editor session lifecycle: run, submit,
// auto-run and draft persistence, independent of the transport that drives it.
package workflow

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

const (
	// DraftSaveDelay is the quiet period after an edit before the draft is stored.
	DraftSaveDelay = time.Second
	// AutoRunDelay is the quiet period after an edit before an automatic run.
	AutoRunDelay = 1500 * time.Millisecond

	storeTimeout = 3 * time.Second
)

// Config wires a session to its collaborators.
type Config struct {
	UserID      string
	ChallengeID string
	StarterCode string

	Runner    sandbox.Runner
	Store     store.KVStore
	Submitter Submitter
	History   History
	Clock     Clock
	Sink      func(Event)
	Logger    zerolog.Logger
}

// Session is one learner editing one challenge. All methods are safe for
// concurrent use. The sink is invoked with the session lock held and must not
// call back into the session.
type Session struct {
	cfg    Config
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	state            State
	code             string
	source           Source
	autoRun          bool
	hasRun           bool
	lastSucceeded    bool
	submittedThisRun bool
	submitting       bool
	lastResult       *sandbox.Result
	closed           bool

	generation   uint64
	draftSeq     uint64
	runSeq       uint64
	draftTimer   Timer
	runTimer     Timer
	draftPending bool
}

// Open resolves the initial code and auto-run preference and returns a ready session.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Runner == nil {
		return nil, errors.New("workflow: runner is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Sink == nil {
		cfg.Sink = func(Event) {}
	}
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}
	logger = logger.With().
		Str("component", "editor_session").
		Str("user_id", cfg.UserID).
		Str("challenge_id", cfg.ChallengeID).
		Logger()

	code, source := ResolveInitialCode(ctx, cfg.Store, cfg.History, cfg.UserID, cfg.ChallengeID, cfg.StarterCode, logger)
	autoRun := LoadAutoRun(ctx, cfg.Store, cfg.UserID, logger)

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		logger:  logger,
		ctx:     sessionCtx,
		cancel:  cancel,
		state:   StateInitial,
		code:    code,
		source:  source,
		autoRun: autoRun,
	}

	s.mu.Lock()
	s.emitStateLocked(true)
	s.mu.Unlock()
	return s, nil
}

// ResolveInitialCode prefers a stored draft, then the latest submission, then the starter code.
func ResolveInitialCode(ctx context.Context, kv store.KVStore, history History, userID, challengeID, starter string, logger zerolog.Logger) (string, Source) {
	if kv != nil {
		draft, err := kv.Get(ctx, store.DraftKey(userID, challengeID))
		switch {
		case err == nil && draft != "":
			return draft, SourceDraft
		case err != nil && !errors.Is(err, store.ErrNotFound):
			logger.Warn().Err(err).Msg("failed to load draft")
		}
	}

	if history != nil && userID != "" {
		code, found, err := history.LatestCode(ctx, userID, challengeID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load latest submission")
		} else if found {
			return code, SourceSubmission
		}
	}

	return starter, SourceStarter
}

// LoadAutoRun reads the stored auto-run preference, defaulting to off.
func LoadAutoRun(ctx context.Context, kv store.KVStore, userID string, logger zerolog.Logger) bool {
	if kv == nil {
		return false
	}
	raw, err := kv.Get(ctx, store.AutoRunKey(userID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn().Err(err).Msg("failed to load auto-run preference")
		}
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	return err == nil && enabled
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ReadyToSubmit reports whether the last run succeeded and has not been submitted yet.
func (s *Session) ReadyToSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

// Edit replaces the code and (re)schedules the draft save and, when enabled, an automatic run.
func (s *Session) Edit(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.code = code
	s.draftPending = true
	s.draftSeq++
	stopTimer(s.draftTimer)
	seq := s.draftSeq
	s.draftTimer = s.cfg.Clock.AfterFunc(DraftSaveDelay, func() { s.flushDraft(seq) })

	if s.autoRun {
		s.scheduleRunLocked()
	}
	return nil
}

// SetAutoRun toggles and persists the auto-run preference.
func (s *Session) SetAutoRun(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.autoRun = enabled
	if !enabled {
		s.runSeq++
		stopTimer(s.runTimer)
		s.runTimer = nil
	}
	s.emitStateLocked(false)
	s.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.cfg.Store.Set(storeCtx, store.AutoRunKey(s.cfg.UserID), strconv.FormatBool(enabled)); err != nil {
		s.reportError("failed to save auto-run preference", err)
		return err
	}
	return nil
}

// Run executes the current code and records the outcome.
func (s *Session) Run(ctx context.Context) (sandbox.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sandbox.Result{}, ErrClosed
	}
	s.runSeq++
	stopTimer(s.runTimer)
	s.runTimer = nil
	s.generation++
	generation := s.generation
	code := s.code
	s.lastResult = nil
	s.submittedThisRun = false
	s.mu.Unlock()

	result, err := s.cfg.Runner.Execute(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return result, ErrSuperseded
	}
	if err != nil {
		// The earlier result no longer describes the current run.
		s.lastSucceeded = false
		if s.hasRun {
			s.state = StateRanFailed
		}
		s.logger.Error().Err(err).Msg("code execution failed")
		s.cfg.Sink(Event{Type: EventError, Message: "Unable to run code right now"})
		s.emitStateLocked(false)
		return result, err
	}

	s.applyResultLocked(result)
	s.state = stateFor(result)
	s.emitOutputLocked()
	return result, nil
}

// Submit re-runs the current code and persists exactly what that run produced.
func (s *Session) Submit(ctx context.Context) (Receipt, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return Receipt{}, ErrClosed
	case !s.hasRun:
		s.mu.Unlock()
		return Receipt{}, ErrNotRun
	case s.submitting:
		s.mu.Unlock()
		return Receipt{}, ErrSubmitInProgress
	}
	s.submitting = true
	s.submittedThisRun = true
	s.runSeq++
	stopTimer(s.runTimer)
	s.runTimer = nil
	s.generation++
	generation := s.generation
	code := s.code
	s.emitStateLocked(false)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	result, err := s.cfg.Runner.Execute(ctx, code)
	if err != nil {
		s.reportError("Unable to run code right now", err)
		return Receipt{}, err
	}

	s.mu.Lock()
	if generation == s.generation {
		s.applyResultLocked(result)
		s.submittedThisRun = true
		s.state = StateSubmitted
		s.emitOutputLocked()
	}
	s.mu.Unlock()

	attempt := Attempt{
		UserID:      s.cfg.UserID,
		ChallengeID: s.cfg.ChallengeID,
		Code:        code,
		Passed:      result.Success && result.Error == "",
		Output:      result.Output(),
		Error:       result.Error,
	}

	receipt, err := s.cfg.Submitter.Persist(ctx, attempt)
	if err != nil {
		s.reportError("Failed to save your submission", err)
		return Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt.Passed {
		s.cfg.Sink(Event{Type: EventCelebrate, SubmissionID: receipt.ID, Message: "Challenge completed!"})
	} else {
		s.cfg.Sink(Event{Type: EventAcknowledged, SubmissionID: receipt.ID, Message: "Submission saved"})
	}
	return receipt, nil
}

// Reset discards in-progress work and reverts to the starter code.
func (s *Session) Reset(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrResetNotConfirmed
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelTimersLocked()
	s.generation++
	s.code = s.cfg.StarterCode
	s.source = SourceStarter
	s.state = StateInitial
	s.hasRun = false
	s.lastSucceeded = false
	s.submittedThisRun = false
	s.lastResult = nil
	s.emitStateLocked(true)
	s.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.cfg.Store.Remove(storeCtx, store.DraftKey(s.cfg.UserID, s.cfg.ChallengeID)); err != nil {
		s.reportError("failed to clear draft", err)
		return err
	}
	return nil
}

// Close stops pending timers and flushes a draft that has not been saved yet.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.draftPending
	code := s.code
	s.cancelTimersLocked()
	s.generation++
	s.mu.Unlock()
	s.cancel()

	if !pending {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.cfg.Store.Set(ctx, store.DraftKey(s.cfg.UserID, s.cfg.ChallengeID), code); err != nil {
		s.logger.Warn().Err(err).Msg("failed to flush draft on close")
		return err
	}
	return nil
}

func (s *Session) scheduleRunLocked() {
	s.runSeq++
	stopTimer(s.runTimer)
	seq := s.runSeq
	s.runTimer = s.cfg.Clock.AfterFunc(AutoRunDelay, func() { s.autoRunFired(seq) })
}

func (s *Session) autoRunFired(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.runSeq {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if _, err := s.Run(s.ctx); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
		s.logger.Warn().Err(err).Msg("auto-run failed")
	}
}

func (s *Session) flushDraft(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.draftSeq {
		s.mu.Unlock()
		return
	}
	code := s.code
	s.draftPending = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	if err := s.cfg.Store.Set(ctx, store.DraftKey(s.cfg.UserID, s.cfg.ChallengeID), code); err != nil {
		s.reportError("failed to save draft", err)
	}
}

func (s *Session) cancelTimersLocked() {
	s.draftSeq++
	s.runSeq++
	stopTimer(s.draftTimer)
	stopTimer(s.runTimer)
	s.draftTimer = nil
	s.runTimer = nil
	s.draftPending = false
}

func (s *Session) applyResultLocked(result sandbox.Result) {
	copied := result
	s.lastResult = &copied
	s.hasRun = true
	s.lastSucceeded = result.Success && result.Error == ""
}

func (s *Session) readyLocked() bool {
	return s.hasRun && s.lastSucceeded && !s.submittedThisRun
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:         s.state,
		Code:          s.code,
		Source:        s.source,
		AutoRun:       s.autoRun,
		ReadyToSubmit: s.readyLocked(),
		HasRun:        s.hasRun,
		LastResult:    s.lastResult,
	}
}

func (s *Session) emitStateLocked(withCode bool) {
	event := Event{
		Type:          EventState,
		State:         s.state,
		Source:        s.source,
		ReadyToSubmit: s.readyLocked(),
		AutoRun:       s.autoRun,
	}
	if withCode {
		code := s.code
		event.Code = &code
	}
	s.cfg.Sink(event)
}

func (s *Session) emitOutputLocked() {
	s.cfg.Sink(Event{
		Type:          EventOutput,
		State:         s.state,
		Result:        s.lastResult,
		ReadyToSubmit: s.readyLocked(),
		AutoRun:       s.autoRun,
	})
}

func (s *Session) reportError(message string, err error) {
	s.logger.Warn().Err(err).Msg(message)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Sink(Event{Type: EventError, Message: message})
}

func stateFor(result sandbox.Result) State {
	if result.Success && result.Error == "" {
		return StateRanSuccess
	}
	return StateRanFailed
}

func stopTimer(timer Timer) {
	if timer != nil {
		timer.Stop()
	}
}
