package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"medquiz-challenge/internal/client"
	"medquiz-challenge/internal/config"
	"medquiz-challenge/internal/domain"
	"medquiz-challenge/internal/engine"
	transport "medquiz-challenge/internal/transport/http"
)

type playOptions struct {
	serverURL string
	userID    string
	bots      int
	uiAddr    string
}

// NewPlayCmd joins a challenge and plays it from the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var opts playOptions
	cmd := &cobra.Command{
		Use:   "play CODE",
		Short: "Join a challenge and play it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, args[0], opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "challenge backend URL (overrides config)")
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id to play as (overrides config)")
	cmd.Flags().IntVar(&opts.bots, "bots", 0, "number of bot participants to run alongside you")
	cmd.Flags().StringVar(&opts.uiAddr, "ui-addr", "", "serve a websocket UI bridge on this address, e.g. :7070")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, code string, opts playOptions, in io.Reader, out io.Writer) error {
	serverURL := firstNonEmpty(opts.serverURL, cfg.Client.ServerURL, "http://localhost:8080")
	userID := firstNonEmpty(opts.userID, cfg.Client.UserID, "player-"+uuid.NewString()[:8])
	engineCfg := cfg.EngineConfig()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := client.New(serverURL, userID)
	if _, err := backend.Join(ctx, code); err != nil {
		return fmt.Errorf("join %s: %w", code, err)
	}

	renderer := newTerminalRenderer(out, userID)
	machine := engine.New(code, backend,
		engine.WithConfig(engineCfg),
		engine.WithLogger(log.With().Str("challenge", code).Str("user", userID).Logger()),
		engine.WithObserver(renderer.render),
	)

	g, gctx := errgroup.WithContext(ctx)

	for i := 1; i <= opts.bots; i++ {
		botID := fmt.Sprintf("bot-%d-%s", i, uuid.NewString()[:4])
		seed := time.Now().UnixNano() + int64(i)
		g.Go(func() error {
			return runBot(gctx, serverURL, code, botID, engineCfg, seed)
		})
	}

	humanDone := make(chan struct{})
	if opts.uiAddr != "" {
		g.Go(func() error {
			return serveUIBridge(gctx, humanDone, opts.uiAddr, machine)
		})
	}

	// Reading stdin blocks until EOF, so it is left outside the group.
	go readAnswers(in, renderer, machine)

	var (
		exit     engine.Exit
		lobbyErr error
	)
	g.Go(func() error {
		defer close(humanDone)
		var err error
		exit, err = machine.Run(gctx)
		switch {
		case exit == engine.ExitLobby:
			lobbyErr = err
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	switch exit {
	case engine.ExitResults:
		return printResults(ctx, backend, code, renderer)
	case engine.ExitLobby:
		fmt.Fprintf(out, "Challenge is not playable right now: %v\n", lobbyErr)
	}
	return nil
}

func readAnswers(in io.Reader, renderer *terminalRenderer, machine *engine.Machine) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if answer, ok := renderer.resolve(scanner.Text()); ok {
			machine.Answer(answer)
		}
	}
}

func printResults(ctx context.Context, backend *client.Client, code string, renderer *terminalRenderer) error {
	details, err := backend.LoadChallenge(ctx, code)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	renderer.printScores(engine.Rank(details.Participants))
	return nil
}

// runBot joins as its own participant and answers each question with a random
// option after a random delay inside the time limit.
func runBot(ctx context.Context, serverURL, code, botID string, cfg engine.Config, seed int64) error {
	backend := client.New(serverURL, botID)
	if _, err := backend.Join(ctx, code); err != nil {
		return fmt.Errorf("bot %s join: %w", botID, err)
	}

	rnd := rand.New(rand.NewSource(seed))
	logger := log.With().Str("challenge", code).Str("user", botID).Logger()
	var (
		machine *engine.Machine
		pending *time.Timer
	)
	answered := -1

	// The observer runs on the machine's loop goroutine, so answers are sent from a timer.
	observe := func(s engine.State) {
		if s.Phase != domain.PhaseQuestion || s.Question == nil || s.QuestionIndex == answered {
			return
		}
		answered = s.QuestionIndex
		if pending != nil {
			pending.Stop()
		}
		options := s.Question.Options
		if len(options) == 0 {
			return
		}
		choice := options[rnd.Intn(len(options))]
		window := s.TimerSeconds * 3 / 4
		if window < 1 {
			window = 1
		}
		delay := time.Duration(1+rnd.Intn(window)) * cfg.Tick
		pending = time.AfterFunc(delay, func() { machine.Answer(choice) })
	}

	machine = engine.New(code, backend,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithObserver(observe),
	)
	exit, err := machine.Run(ctx)
	logger.Info().Err(err).Str("exit", exit.String()).Msg("bot finished")
	if exit == engine.ExitLobby || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveUIBridge(ctx context.Context, done <-chan struct{}, addr string, player transport.Player) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", transport.NewUIBridge(player).ServeWS)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("ui bridge listening on /ws")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
