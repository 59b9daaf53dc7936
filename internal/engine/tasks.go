package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TaskName identifies one scheduled task. A name holds at most one live task.
type TaskName string

const (
	TaskQuestionTimer       TaskName = "question_timer"
	TaskQuestionDeadline    TaskName = "question_deadline"
	TaskPollKick            TaskName = "poll_kick"
	TaskPollInterval        TaskName = "poll_interval"
	TaskRevealCountdown     TaskName = "reveal_countdown"
	TaskRevealTimeout       TaskName = "reveal_timeout"
	TaskScoreboardCountdown TaskName = "scoreboard_countdown"
	TaskScoreboardTimeout   TaskName = "scoreboard_timeout"
)

// TaskTable is the table of named timeouts and intervals armed by the current phase.
// Cancel and CancelAll return only after the task has been stopped; a callback that
// was already past its stop check may still run once, so callers tag their work with
// the phase epoch and drop anything stale.
type TaskTable struct {
	clock clockwork.Clock

	mu    sync.Mutex
	tasks map[TaskName]*task
}

type task struct {
	stop   chan struct{}
	timer  clockwork.Timer
	ticker clockwork.Ticker
}

func NewTaskTable(clock clockwork.Clock) *TaskTable {
	return &TaskTable{
		clock: clock,
		tasks: make(map[TaskName]*task),
	}
}

// After runs fn once after d. A task already registered under name is cancelled first.
func (t *TaskTable) After(name TaskName, d time.Duration, fn func()) {
	tk := &task{stop: make(chan struct{}), timer: t.clock.NewTimer(d)}
	t.replace(name, tk)

	go func() {
		select {
		case <-tk.timer.Chan():
			if t.finish(name, tk) {
				fn()
			}
		case <-tk.stop:
			stopAndDrainTimer(tk.timer)
		}
	}()
}

// Every runs fn each d until cancelled. A task already registered under name is cancelled first.
func (t *TaskTable) Every(name TaskName, d time.Duration, fn func()) {
	tk := &task{stop: make(chan struct{}), ticker: t.clock.NewTicker(d)}
	t.replace(name, tk)

	go func() {
		defer tk.ticker.Stop()
		for {
			select {
			case <-tk.ticker.Chan():
				select {
				case <-tk.stop:
					return
				default:
				}
				fn()
			case <-tk.stop:
				return
			}
		}
	}()
}

// Cancel stops the task registered under name, if any.
func (t *TaskTable) Cancel(name TaskName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk, ok := t.tasks[name]; ok {
		tk.cancel()
		delete(t.tasks, name)
	}
}

// CancelAll stops every registered task.
func (t *TaskTable) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, tk := range t.tasks {
		tk.cancel()
		delete(t.tasks, name)
	}
}

// Active lists the names of live tasks in lexical order.
func (t *TaskTable) Active() []TaskName {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]TaskName, 0, len(t.tasks))
	for name := range t.tasks {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (t *TaskTable) replace(name TaskName, tk *task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.tasks[name]; ok {
		existing.cancel()
	}
	t.tasks[name] = tk
}

// finish removes a fired one-shot task and reports whether it was still current.
func (t *TaskTable) finish(name TaskName, tk *task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-tk.stop:
		return false
	default:
	}
	if t.tasks[name] == tk {
		delete(t.tasks, name)
	}
	return true
}

func (tk *task) cancel() {
	select {
	case <-tk.stop:
		return
	default:
	}
	close(tk.stop)
	if tk.timer != nil {
		stopAndDrainTimer(tk.timer)
	}
	if tk.ticker != nil {
		tk.ticker.Stop()
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
