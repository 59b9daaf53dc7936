package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"medquiz-challenge/internal/domain"
	"medquiz-challenge/internal/engine"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	correctColor = color.New(color.FgGreen, color.Bold)
	wrongColor   = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
	meColor      = color.New(color.FgYellow, color.Bold)
)

// terminalRenderer prints engine state changes as a scrolling transcript.
type terminalRenderer struct {
	out    io.Writer
	userID string

	mu      sync.Mutex
	started bool
	last    engine.State
	options []string
}

func newTerminalRenderer(out io.Writer, userID string) *terminalRenderer {
	return &terminalRenderer{out: out, userID: userID}
}

func (r *terminalRenderer) render(s engine.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, first := r.last, !r.started
	r.last, r.started = s, true
	entered := first || prev.Phase != s.Phase

	switch s.Phase {
	case domain.PhaseQuestion:
		if entered || prev.QuestionIndex != s.QuestionIndex {
			if s.Question != nil {
				r.options = s.Question.Options
			}
			r.printQuestion(s)
			return
		}
		if s.Error != "" && s.Error != prev.Error {
			wrongColor.Fprintf(r.out, "  submission failed: %s\n", s.Error)
		}
		if s.SelectedAnswer != "" && s.SelectedAnswer != prev.SelectedAnswer {
			fmt.Fprintf(r.out, "  answer locked in: %s\n", s.SelectedAnswer)
		}
		if s.UserAnswered && s.TotalCount > 0 &&
			(s.AnsweredCount != prev.AnsweredCount || s.TotalCount != prev.TotalCount) {
			dimColor.Fprintf(r.out, "  waiting for others (%d/%d answered)\n", s.AnsweredCount, s.TotalCount)
		}
		if !s.UserAnswered && s.TimerSeconds != prev.TimerSeconds && (s.TimerSeconds <= 5 || s.TimerSeconds%10 == 0) {
			dimColor.Fprintf(r.out, "  %ds left\n", s.TimerSeconds)
		}
	case domain.PhaseShowingAnswer:
		if entered {
			r.printReveal(s)
		}
	case domain.PhaseShowingScores:
		if entered {
			r.printScores(s.Scoreboard)
		}
	case domain.PhaseCompleted:
		if entered {
			titleColor.Fprintln(r.out, "\nChallenge complete.")
		}
	}
}

// resolve maps a typed line to an option: a 1-based number or the option text itself.
func (r *terminalRenderer) resolve(line string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(r.options) {
			return "", false
		}
		return r.options[n-1], true
	}
	for _, opt := range r.options {
		if strings.EqualFold(opt, line) {
			return opt, true
		}
	}
	return "", false
}

func (r *terminalRenderer) printQuestion(s engine.State) {
	if s.Question == nil {
		return
	}
	titleColor.Fprintf(r.out, "\nQuestion %d/%d  (%ds)\n", s.QuestionIndex+1, s.QuestionCount, s.TimerSeconds)
	fmt.Fprintln(r.out, s.Question.Prompt)
	for i, opt := range s.Question.Options {
		fmt.Fprintf(r.out, "  %d) %s\n", i+1, opt)
	}
}

func (r *terminalRenderer) printReveal(s engine.State) {
	if s.Question == nil {
		return
	}
	correct := s.Question.CorrectAnswer
	correctColor.Fprintf(r.out, "Answer: %s\n", correct)
	switch {
	case s.SelectedAnswer == "":
		wrongColor.Fprintln(r.out, "  no answer given")
	case strings.EqualFold(strings.TrimSpace(s.SelectedAnswer), strings.TrimSpace(correct)):
		correctColor.Fprintln(r.out, "  you got it")
	default:
		wrongColor.Fprintf(r.out, "  you answered %s\n", s.SelectedAnswer)
	}
	if s.Question.Explanation != "" {
		dimColor.Fprintln(r.out, "  "+s.Question.Explanation)
	}
}

func (r *terminalRenderer) printScores(board []domain.ScoreboardEntry) {
	titleColor.Fprintln(r.out, "Scoreboard")
	if len(board) == 0 {
		dimColor.Fprintln(r.out, "  (no scores yet)")
		return
	}
	for _, e := range board {
		line := fmt.Sprintf("  %2d. %-20s %5d", e.Rank, e.UserID, e.Score)
		if e.UserID == r.userID {
			meColor.Fprintln(r.out, line)
			continue
		}
		fmt.Fprintln(r.out, line)
	}
}
