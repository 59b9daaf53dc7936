package engine

import (
	"sync"

	"medquiz-challenge/internal/domain"
)

// State is the renderer-facing view of the game published after every change.
type State struct {
	Challenge      string                   `json:"challenge"`
	Phase          domain.GamePhase         `json:"phase"`
	QuestionIndex  int                      `json:"questionIndex"`
	QuestionCount  int                      `json:"questionCount"`
	Question       *domain.Question         `json:"question,omitempty"`
	TimerSeconds   int                      `json:"timerSeconds"`
	Countdown      int                      `json:"countdown"`
	SelectedAnswer string                   `json:"selectedAnswer,omitempty"`
	UserAnswered   bool                     `json:"userAnswered"`
	AllAnswered    bool                     `json:"allAnswered"`
	AnsweredCount  int                      `json:"answeredCount"`
	TotalCount     int                      `json:"totalCount"`
	Scoreboard     []domain.ScoreboardEntry `json:"scoreboard,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// broadcaster fans states out to subscribers. Slow subscribers lose intermediate
// states but always receive the latest one.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan State]struct{}
	last        State
	closed      bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[chan State]struct{})}
}

func (b *broadcaster) subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	b.mu.Lock()
	ch <- b.last
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *broadcaster) publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = s
	for ch := range b.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
