package integration

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"medquiz-challenge/internal/app"
	"medquiz-challenge/internal/client"
	"medquiz-challenge/internal/domain"
	"medquiz-challenge/internal/engine"
	transport "medquiz-challenge/internal/transport/http"
)

func fastEngineConfig() engine.Config {
	return engine.Config{
		Tick:             20 * time.Millisecond,
		PollInterval:     30 * time.Millisecond,
		FirstPollDelay:   5 * time.Millisecond,
		VerifyDelay:      25 * time.Millisecond,
		ConfirmDelay:     15 * time.Millisecond,
		RevealWindow:     60 * time.Millisecond,
		ScoreboardWindow: 60 * time.Millisecond,
		ConvergenceGrace: 10 * time.Second,
		RequestTimeout:   2 * time.Second,
	}
}

func serve(t *testing.T, service *app.ChallengeService) string {
	t.Helper()
	router := mux.NewRouter()
	transport.NewRESTHandler(service, transport.NewMetrics()).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server.URL
}

type playerResult struct {
	user   string
	exit   engine.Exit
	err    error
	phases []domain.GamePhase
}

// playAll joins every user and runs one engine per user. Each engine answers the
// first option of every question shortly after it appears.
func playAll(t *testing.T, ctx context.Context, baseURL, code string, users []string) []playerResult {
	t.Helper()
	results := make([]playerResult, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		backend := client.New(baseURL, user)
		if _, err := backend.Join(ctx, code); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}

		res := &results[i]
		res.user = user
		var machine *engine.Machine
		answered := -1
		observe := func(s engine.State) {
			if len(res.phases) == 0 || res.phases[len(res.phases)-1] != s.Phase {
				res.phases = append(res.phases, s.Phase)
			}
			if s.Phase != domain.PhaseQuestion || s.Question == nil || s.QuestionIndex == answered {
				return
			}
			answered = s.QuestionIndex
			choice := s.Question.Options[0]
			delay := time.Duration(5*(i+1)) * time.Millisecond
			time.AfterFunc(delay, func() { machine.Answer(choice) })
		}
		machine = engine.New(code, backend,
			engine.WithConfig(fastEngineConfig()),
			engine.WithLogger(zerolog.Nop()),
			engine.WithObserver(observe),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			res.exit, res.err = machine.Run(ctx)
		}()
	}
	wg.Wait()
	return results
}
