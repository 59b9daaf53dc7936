package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"medquiz-challenge/internal/domain"
)

// defaultTimeLimit is used when a challenge reports no usable time limit.
const defaultTimeLimit = 30

// Backend is the challenge API the engine consumes.
type Backend interface {
	LoadChallenge(ctx context.Context, code string) (domain.ChallengeDetails, error)
	SubmitAnswer(ctx context.Context, code string, submission domain.AnswerSubmission) (domain.SubmitResult, error)
	// AnswerStatus must bypass every cache between the caller and the store.
	AnswerStatus(ctx context.Context, code string, questionOrder int) (domain.AnswerStatusSnapshot, error)
}

// Exit tells the caller where to navigate once Run returns.
type Exit int

const (
	// ExitNone means the run was torn down before reaching a destination.
	ExitNone Exit = iota
	// ExitResults leads to the results view.
	ExitResults
	// ExitLobby leads back to the challenge lobby.
	ExitLobby
)

func (e Exit) String() string {
	switch e {
	case ExitResults:
		return "results"
	case ExitLobby:
		return "lobby"
	default:
		return "none"
	}
}

// ErrAlreadyStarted is returned by Run on a machine that has already run.
var ErrAlreadyStarted = errors.New("engine: machine already started")

type eventKind int

const (
	evAnswer eventKind = iota
	evTick
	evSubmitted
	evPoll
	evVerdict
	evDeadline
	evCountdown
	evRevealDone
	evScores
	evScoreboardDone
	evAuthoritative
)

type event struct {
	kind  eventKind
	epoch uint64

	answer    string
	auto      bool
	duplicate bool
	result    domain.SubmitResult
	verdict   Verdict
	board     []domain.ScoreboardEntry
	err       error
}

// Machine is the game state machine for one participant of one challenge. Run owns
// all state on a single goroutine; timers, backend calls and convergence checks run
// elsewhere and report back through the event channel.
type Machine struct {
	code     string
	backend  Backend
	cfg      Config
	clock    clockwork.Clock
	log      zerolog.Logger
	observer func(State)

	events  chan event
	done    chan struct{}
	started atomic.Bool

	tasks       *TaskTable
	sess        *Session
	timer       QuestionTimer
	submitter   *AnswerSubmitter
	poller      *ConvergencePoller
	transitions *TransitionScheduler
	scoreboard  *ScoreboardAggregator
	broadcast   *broadcaster

	runCtx      context.Context
	phaseCtx    context.Context
	cancelPhase context.CancelFunc
	checking    bool
}

// Option configures a Machine.
type Option func(*Machine)

func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithClock swaps the clock; tests pass a fake one.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) { m.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithObserver registers fn to receive every published state synchronously on the
// machine loop. fn must not block.
func WithObserver(fn func(State)) Option {
	return func(m *Machine) { m.observer = fn }
}

func New(code string, backend Backend, opts ...Option) *Machine {
	m := &Machine{
		code:      code,
		backend:   backend,
		cfg:       DefaultConfig(),
		clock:     clockwork.NewRealClock(),
		log:       log.Logger.With().Str("challenge", code).Logger(),
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		sess:      newSession(),
		broadcast: newBroadcaster(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = m.cfg.withDefaults()

	m.tasks = NewTaskTable(m.clock)
	m.submitter = newAnswerSubmitter(backend, code)
	m.poller = newConvergencePoller(backend, code, m.clock, m.cfg, m.log)
	m.transitions = newTransitionScheduler(m.tasks, m.cfg.Tick)
	m.scoreboard = newScoreboardAggregator(backend, code, m.cfg.RequestTimeout)
	return m
}

// Subscribe returns a channel of published states. It is closed when Run returns.
func (m *Machine) Subscribe() (<-chan State, func()) {
	return m.broadcast.subscribe()
}

// Answer selects an answer for the current question. It is ignored outside the
// question phase and after the answer for this question has been sent.
func (m *Machine) Answer(selected string) {
	m.post(event{kind: evAnswer, answer: selected})
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Run loads the challenge and plays it to the end. It returns ExitLobby with the
// load error when the challenge is not playable, ExitResults once the questions are
// exhausted, and ExitNone with ctx's error on teardown.
func (m *Machine) Run(ctx context.Context) (Exit, error) {
	if !m.started.CompareAndSwap(false, true) {
		return ExitNone, ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	defer func() {
		m.tasks.CancelAll()
		if m.cancelPhase != nil {
			m.cancelPhase()
		}
		cancel()
		close(m.done)
		m.broadcast.close()
	}()

	m.publish()
	details, err := m.load(runCtx)
	if err != nil {
		m.log.Warn().Err(err).Msg("challenge not playable, returning to lobby")
		return ExitLobby, err
	}
	m.sess.Details = details
	m.enterQuestion(0)

	for {
		select {
		case <-ctx.Done():
			return ExitNone, ctx.Err()
		case ev := <-m.events:
			if exit, finished := m.handle(ev); finished {
				return exit, nil
			}
		}
	}
}

func (m *Machine) load(ctx context.Context) (domain.ChallengeDetails, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	details, err := m.backend.LoadChallenge(reqCtx, m.code)
	if err != nil {
		return domain.ChallengeDetails{}, fmt.Errorf("load challenge %s: %w", m.code, err)
	}
	if details.Challenge.Status != domain.ChallengeActive {
		return domain.ChallengeDetails{}, fmt.Errorf("load challenge %s: %w (status %q)",
			m.code, domain.ErrChallengeNotActive, details.Challenge.Status)
	}
	if len(details.Questions) == 0 {
		return domain.ChallengeDetails{}, fmt.Errorf("load challenge %s: %w", m.code, domain.ErrNoQuestions)
	}
	if details.Challenge.TimeLimitSeconds <= 0 {
		details.Challenge.TimeLimitSeconds = defaultTimeLimit
	}
	sort.SliceStable(details.Questions, func(i, j int) bool {
		return details.Questions[i].Order < details.Questions[j].Order
	})
	return details, nil
}

func (m *Machine) handle(ev event) (Exit, bool) {
	if ev.kind != evAnswer && ev.epoch != m.sess.Epoch {
		return ExitNone, false
	}

	switch ev.kind {
	case evAnswer:
		if m.sess.Phase == domain.PhaseQuestion && !m.submitter.Taken() {
			m.submit(ev.answer, false)
		}
	case evTick:
		m.onTick()
	case evSubmitted:
		m.onSubmitted(ev)
	case evPoll:
		m.onPoll()
	case evVerdict:
		m.onVerdict(ev.verdict)
	case evDeadline:
		if m.sess.Phase == domain.PhaseQuestion {
			m.log.Warn().Int("question", m.sess.Index+1).Msg("convergence deadline reached, forcing reveal")
			m.enterReveal()
		}
	case evAuthoritative:
		if m.sess.Phase == domain.PhaseQuestion {
			if ev.err == nil {
				m.sess.Scoreboard = ev.board
			}
			m.enterReveal()
		}
	case evCountdown:
		if m.sess.Countdown > 0 {
			m.sess.Countdown--
		}
		m.publish()
	case evRevealDone:
		return m.onRevealDone()
	case evScores:
		if ev.err != nil {
			m.log.Warn().Err(ev.err).Msg("scoreboard refresh failed, showing previous scores")
		} else {
			m.sess.Scoreboard = ev.board
		}
		m.enterScores()
	case evScoreboardDone:
		return m.onScoreboardDone()
	}
	return ExitNone, false
}

// setPhase cancels everything the previous phase armed before the new phase arms
// anything of its own.
func (m *Machine) setPhase(phase domain.GamePhase) {
	m.tasks.CancelAll()
	if m.cancelPhase != nil {
		m.cancelPhase()
	}
	m.phaseCtx, m.cancelPhase = context.WithCancel(m.runCtx)
	m.checking = false
	m.sess.Phase = phase
	m.sess.Epoch++
}

func (m *Machine) enterQuestion(index int) {
	if index < m.sess.Index {
		panic(fmt.Sprintf("engine: question index moved backwards from %d to %d", m.sess.Index, index))
	}
	m.setPhase(domain.PhaseQuestion)
	m.sess.Index = index

	limit := m.sess.Details.Challenge.TimeLimitSeconds
	m.sess.resetQuestion(limit)
	m.timer.Reset(limit)
	m.submitter.Reset()

	epoch := m.sess.Epoch
	m.startQuestionTimer(epoch)
	deadline := time.Duration(limit)*m.cfg.Tick + m.cfg.ConvergenceGrace
	m.tasks.After(TaskQuestionDeadline, deadline, func() {
		m.post(event{kind: evDeadline, epoch: epoch})
	})

	m.log.Debug().Int("question", index+1).Int("time_limit", limit).Msg("question started")
	m.publish()
}

func (m *Machine) startQuestionTimer(epoch uint64) {
	m.tasks.Every(TaskQuestionTimer, m.cfg.Tick, func() {
		m.post(event{kind: evTick, epoch: epoch})
	})
}

func (m *Machine) onTick() {
	if m.sess.Phase != domain.PhaseQuestion {
		return
	}
	remaining, expired := m.timer.Tick()
	m.sess.TimerSeconds = remaining
	if expired {
		m.tasks.Cancel(TaskQuestionTimer)
		if !m.submitter.Taken() {
			m.log.Debug().Int("question", m.sess.Index+1).Msg("time expired, submitting empty answer")
			m.submit("", true)
			return
		}
	}
	m.publish()
}

func (m *Machine) submit(answer string, auto bool) {
	if !m.submitter.Begin() {
		return
	}
	m.tasks.Cancel(TaskQuestionTimer)

	q := m.sess.question()
	taken := m.timer.Elapsed()
	if auto {
		taken = m.timer.Limit()
	}
	m.sess.SelectedAnswer = answer
	m.sess.LastError = ""
	submission := domain.AnswerSubmission{
		QuestionID:       q.ID,
		QuestionOrder:    q.Order,
		SelectedAnswer:   answer,
		TimeTakenSeconds: taken,
	}

	epoch, ctx := m.sess.Epoch, m.phaseCtx
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
		res, duplicate, err := m.submitter.Send(reqCtx, submission)
		m.post(event{kind: evSubmitted, epoch: epoch, result: res, duplicate: duplicate, err: err, auto: auto})
	}()
	m.publish()
}

func (m *Machine) onSubmitted(ev event) {
	if m.sess.Phase != domain.PhaseQuestion {
		return
	}
	if ev.err != nil {
		m.onSubmitFailed(ev)
		return
	}

	if ev.duplicate {
		m.log.Debug().Int("question", m.sess.Index+1).Msg("answer already stored, treating as submitted")
	} else if ev.result.TotalCount > 0 {
		m.sess.observe(domain.AnswerStatusSnapshot{
			AnsweredCount: ev.result.AnsweredCount,
			TotalCount:    ev.result.TotalCount,
			CountsKnown:   true,
		})
	}
	m.sess.UserAnswered = true
	m.armPoller()
	m.publish()
}

func (m *Machine) onSubmitFailed(ev event) {
	if ev.auto {
		// The player must not be stranded: mark the question answered, refresh
		// scores from the backend and move on to the reveal.
		m.log.Warn().Err(ev.err).Int("question", m.sess.Index+1).Msg("automatic submission failed")
		m.sess.UserAnswered = true
		m.sess.LastError = ev.err.Error()
		epoch, ctx := m.sess.Epoch, m.phaseCtx
		go func() {
			board, err := m.scoreboard.Fetch(ctx)
			m.post(event{kind: evAuthoritative, epoch: epoch, board: board, err: err})
		}()
		m.publish()
		return
	}

	m.log.Warn().Err(ev.err).Int("question", m.sess.Index+1).Msg("answer submission failed")
	m.submitter.Release()
	m.sess.SelectedAnswer = ""
	m.sess.LastError = ev.err.Error()
	if m.timer.Expired() {
		m.submit("", true)
		return
	}
	m.startQuestionTimer(m.sess.Epoch)
	m.publish()
}

// armPoller schedules the early opportunistic check and the regular interval.
func (m *Machine) armPoller() {
	epoch := m.sess.Epoch
	poll := func() { m.post(event{kind: evPoll, epoch: epoch}) }
	m.tasks.After(TaskPollKick, m.cfg.FirstPollDelay, poll)
	m.tasks.Every(TaskPollInterval, m.cfg.PollInterval, poll)
}

func (m *Machine) onPoll() {
	if m.sess.Phase != domain.PhaseQuestion || !m.sess.UserAnswered || m.checking {
		return
	}
	q := m.sess.question()
	m.checking = true
	epoch, ctx := m.sess.Epoch, m.phaseCtx
	go func() {
		v := m.poller.Check(ctx, q.Order)
		m.post(event{kind: evVerdict, epoch: epoch, verdict: v})
	}()
}

func (m *Machine) onVerdict(v Verdict) {
	m.checking = false
	if v.Err != nil {
		m.log.Debug().Err(v.Err).Stringer("round", v.Round).Msg("convergence check failed")
		return
	}
	m.sess.observe(v.Snapshot)
	if !v.Converged {
		m.publish()
		return
	}
	// A verdict may arrive after another path already moved the game on.
	if m.sess.Phase != domain.PhaseQuestion {
		return
	}
	m.log.Debug().
		Int("question", m.sess.Index+1).
		Stringer("round", v.Round).
		Int("total", v.Snapshot.TotalCount).
		Msg("all participants answered")
	m.sess.AllAnswered = true
	m.enterReveal()
}

func (m *Machine) enterReveal() {
	m.setPhase(domain.PhaseShowingAnswer)
	m.sess.Countdown = m.cfg.windowTicks(m.cfg.RevealWindow)
	m.startWindow(m.cfg.answerWindow(), evRevealDone)
	m.publish()
}

func (m *Machine) enterScores() {
	m.setPhase(domain.PhaseShowingScores)
	m.sess.Countdown = m.cfg.windowTicks(m.cfg.ScoreboardWindow)
	m.startWindow(m.cfg.scoresWindow(), evScoreboardDone)
	m.publish()
}

func (m *Machine) startWindow(w revealWindow, done eventKind) {
	epoch := m.sess.Epoch
	m.transitions.Start(w,
		func() { m.post(event{kind: evCountdown, epoch: epoch}) },
		func() { m.post(event{kind: done, epoch: epoch}) },
	)
}

func (m *Machine) onRevealDone() (Exit, bool) {
	if m.sess.Phase != domain.PhaseShowingAnswer {
		return ExitNone, false
	}
	m.transitions.Stop(m.cfg.answerWindow())
	if m.sess.lastQuestion() {
		return m.finish()
	}
	epoch, ctx := m.sess.Epoch, m.phaseCtx
	go func() {
		board, err := m.scoreboard.Fetch(ctx)
		m.post(event{kind: evScores, epoch: epoch, board: board, err: err})
	}()
	return ExitNone, false
}

func (m *Machine) onScoreboardDone() (Exit, bool) {
	if m.sess.Phase != domain.PhaseShowingScores {
		return ExitNone, false
	}
	m.transitions.Stop(m.cfg.scoresWindow())
	next := m.sess.Index + 1
	if next >= len(m.sess.Details.Questions) {
		return m.finish()
	}
	m.enterQuestion(next)
	return ExitNone, false
}

func (m *Machine) finish() (Exit, bool) {
	m.setPhase(domain.PhaseCompleted)
	m.sess.Countdown = 0
	m.publish()
	m.log.Info().Int("questions", len(m.sess.Details.Questions)).Msg("challenge completed")
	return ExitResults, true
}

func (m *Machine) publish() {
	st := m.sess.state(m.code)
	if m.observer != nil {
		m.observer(st)
	}
	m.broadcast.publish(st)
}
