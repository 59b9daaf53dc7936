package engine

import "time"

// revealWindow describes one fixed-duration reveal phase.
type revealWindow struct {
	countdown TaskName
	timeout   TaskName
	duration  time.Duration
}

func (c Config) answerWindow() revealWindow {
	return revealWindow{countdown: TaskRevealCountdown, timeout: TaskRevealTimeout, duration: c.RevealWindow}
}

func (c Config) scoresWindow() revealWindow {
	return revealWindow{countdown: TaskScoreboardCountdown, timeout: TaskScoreboardTimeout, duration: c.ScoreboardWindow}
}

// TransitionScheduler drives the answer and scoreboard windows: a visible
// countdown ticking every Tick plus one completion timeout.
type TransitionScheduler struct {
	tasks *TaskTable
	tick  time.Duration
}

func newTransitionScheduler(tasks *TaskTable, tick time.Duration) *TransitionScheduler {
	return &TransitionScheduler{tasks: tasks, tick: tick}
}

// Start arms both tasks of w. onDone runs at most once.
func (s *TransitionScheduler) Start(w revealWindow, onTick, onDone func()) {
	s.tasks.Every(w.countdown, s.tick, onTick)
	s.tasks.After(w.timeout, w.duration, onDone)
}

// Stop cancels both tasks of w.
func (s *TransitionScheduler) Stop(w revealWindow) {
	s.tasks.Cancel(w.countdown)
	s.tasks.Cancel(w.timeout)
}
