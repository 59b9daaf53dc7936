package engine

// QuestionTimer is the countdown for the active question, in whole seconds.
// It is only touched from the machine loop.
type QuestionTimer struct {
	limit     int
	remaining int
	expired   bool
}

// Reset rearms the timer at limit seconds.
func (t *QuestionTimer) Reset(limit int) {
	t.limit = limit
	t.remaining = limit
	t.expired = false
}

// Tick decrements the timer, clamping at zero. expiredNow is true exactly once,
// on the tick that reaches zero.
func (t *QuestionTimer) Tick() (remaining int, expiredNow bool) {
	if t.expired {
		return 0, false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.expired = true
		return 0, true
	}
	return t.remaining, false
}

func (t *QuestionTimer) Remaining() int { return t.remaining }

func (t *QuestionTimer) Limit() int { return t.limit }

func (t *QuestionTimer) Expired() bool { return t.expired }

// Elapsed is the whole seconds spent on the question so far.
func (t *QuestionTimer) Elapsed() int { return t.limit - t.remaining }
