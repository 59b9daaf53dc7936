package engine

import "time"

// Config holds every timing constant the engine uses. Zero fields fall back to DefaultConfig.
type Config struct {
	// Tick is the granularity of the question timer and the reveal countdowns.
	Tick time.Duration
	// PollInterval is the spacing between answer-status polls once the local answer landed.
	PollInterval time.Duration
	// FirstPollDelay is the pause between a successful submission and the first poll.
	FirstPollDelay time.Duration
	// VerifyDelay precedes the round 2 re-read and should exceed backend replication lag.
	VerifyDelay time.Duration
	// ConfirmDelay precedes the round 3 re-read.
	ConfirmDelay time.Duration
	// RevealWindow is how long the correct answer is shown.
	RevealWindow time.Duration
	// ScoreboardWindow is how long the ranked scores are shown.
	ScoreboardWindow time.Duration
	// ConvergenceGrace extends the question deadline past the time limit before progress is forced.
	// It never drops below RequestTimeout plus one Tick, so an auto-submit sent when the
	// timer runs out settles before the deadline fires.
	ConvergenceGrace time.Duration
	// RequestTimeout bounds each backend call.
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tick:             time.Second,
		PollInterval:     1500 * time.Millisecond,
		FirstPollDelay:   300 * time.Millisecond,
		VerifyDelay:      1200 * time.Millisecond,
		ConfirmDelay:     800 * time.Millisecond,
		RevealWindow:     5 * time.Second,
		ScoreboardWindow: 5 * time.Second,
		ConvergenceGrace: 10 * time.Second,
		RequestTimeout:   5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.Tick, d.Tick)
	fill(&c.PollInterval, d.PollInterval)
	fill(&c.FirstPollDelay, d.FirstPollDelay)
	fill(&c.VerifyDelay, d.VerifyDelay)
	fill(&c.ConfirmDelay, d.ConfirmDelay)
	fill(&c.RevealWindow, d.RevealWindow)
	fill(&c.ScoreboardWindow, d.ScoreboardWindow)
	fill(&c.ConvergenceGrace, d.ConvergenceGrace)
	fill(&c.RequestTimeout, d.RequestTimeout)
	if floor := c.RequestTimeout + c.Tick; c.ConvergenceGrace < floor {
		c.ConvergenceGrace = floor
	}
	return c
}

// windowTicks converts a reveal window into the number of countdown steps shown to the player.
func (c Config) windowTicks(window time.Duration) int {
	n := int(window / c.Tick)
	if n < 1 {
		n = 1
	}
	return n
}
