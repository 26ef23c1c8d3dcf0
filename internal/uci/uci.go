// Package uci exposes the engine over the Universal Chess Interface.
package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/engine"
	"github.com/hailam/chessnet/internal/model"
)

// Option limits
const (
	maxShortlist    = 64
	maxRolloutDepth = 32
	maxWorkers      = 64
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine *engine.Engine
	game   *chess.Game
	out    io.Writer
	mu     sync.Mutex // guards out
	log    zerolog.Logger

	// ModelOptions is used when EvalFile loads a new model.
	ModelOptions model.LoadOptions
	evalFile     string
	ownedModel   model.Model

	// Search state
	searchDone chan struct{}

	// First search or evaluation failure; Run stops on it.
	errMu sync.Mutex
	err   error

	// CPU profiling
	profileFile *os.File
}

// New creates a new UCI protocol handler writing replies to out.
func New(eng *engine.Engine, out io.Writer, log zerolog.Logger) *UCI {
	return &UCI{
		engine: eng,
		game:   chess.NewGame(),
		out:    out,
		log:    log.With().Str("component", "uci").Logger(),
	}
}

// Run reads commands from in until "quit" or end of input. Any search still
// running is waited for before Run returns. A model failure during a search
// or evaluation ends the loop and is returned.
func (u *UCI) Run(in io.Reader) (err error) {
	defer func() {
		u.shutdown()
		if err == nil {
			err = u.failure()
		}
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := u.failure(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]
		u.log.Debug().Str("cmd", line).Msg("command")

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.waitSearch()
			if err := u.failure(); err != nil {
				return err
			}
			u.println("readyok")
		case "ucinewgame":
			u.waitSearch()
			u.game = chess.NewGame()
		case "position":
			u.waitSearch()
			u.handlePosition(args)
		case "go":
			u.handleGo()
		case "stop":
			u.waitSearch()
		case "quit":
			return nil
		case "setoption":
			u.waitSearch()
			u.handleSetOption(args)
		// Debug commands
		case "d":
			u.handleDisplay()
		case "eval":
			u.handleEval()
		default:
			u.infoString("Unknown command: %s", cmd)
		}
	}
	return scanner.Err()
}

func (u *UCI) shutdown() {
	u.waitSearch()
	u.stopProfile()
	if u.ownedModel != nil {
		u.ownedModel.Close()
		u.ownedModel = nil
	}
}

// fail records the first engine failure.
func (u *UCI) fail(err error) {
	u.errMu.Lock()
	defer u.errMu.Unlock()
	if u.err == nil {
		u.err = err
	}
}

func (u *UCI) failure() error {
	u.errMu.Lock()
	defer u.errMu.Unlock()
	return u.err
}

func (u *UCI) println(s string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.out, s)
}

func (u *UCI) printf(format string, args ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.out, format, args...)
}

func (u *UCI) infoString(format string, args ...any) {
	u.printf("info string "+format+"\n", args...)
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	opts := u.engine.Options()
	u.println("id name ChessNet")
	u.println("id author ChessNet Team")
	u.println("")
	u.printf("option name Mode type combo default %s var rollout var greedy\n", opts.Mode)
	u.printf("option name Shortlist type spin default %d min 1 max %d\n", opts.ShortlistSize, maxShortlist)
	u.printf("option name RolloutDepth type spin default %d min 0 max %d\n", opts.RolloutDepth, maxRolloutDepth)
	u.printf("option name Workers type spin default %d min 1 max %d\n", max(opts.Workers, 1), maxWorkers)
	u.println("option name EvalFile type string default <empty>")
	u.println("uciok")
}

// handlePosition parses and sets up a position. A command with a bad FEN
// or move leaves the current position unchanged.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	var g *chess.Game
	switch args[0] {
	case "startpos":
		g = chess.NewGame()
	case "fen":
		fenStr := strings.Join(args[1:movesAt], " ")
		opt, err := chess.FEN(fenStr)
		if err != nil {
			u.infoString("Invalid FEN: %v", err)
			return
		}
		g = chess.NewGame(opt)
	default:
		return
	}

	if movesAt < len(args) {
		for _, moveStr := range args[movesAt+1:] {
			m, err := chess.UCINotation{}.Decode(g.Position(), moveStr)
			if err == nil {
				err = g.Move(m)
			}
			if err != nil {
				u.infoString("Invalid move: %s", moveStr)
				return
			}
		}
	}
	u.game = g
}

// handleGo starts a search on a copy of the current position. Time and
// depth limits are accepted but ignored: the search cost is fixed by the
// engine options.
func (u *UCI) handleGo() {
	u.waitSearch()
	if u.failure() != nil {
		return
	}

	pos, err := snapshot(u.game.Position())
	if err != nil {
		u.infoString("Cannot search: %v", err)
		u.println("bestmove 0000")
		return
	}

	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(pos.Turn(), info)
	}

	done := make(chan struct{})
	u.searchDone = done

	go func() {
		defer close(done)

		move, err := u.engine.SelectMove(pos)
		switch {
		case errors.Is(err, engine.ErrNoLegalMoves):
			u.println("bestmove 0000")
		case err != nil:
			u.log.Error().Err(err).Str("fen", pos.String()).Msg("search failed")
			u.infoString("Search failed: %v", err)
			u.fail(fmt.Errorf("search: %w", err))
		default:
			u.printf("bestmove %s\n", move)
		}
	}()
}

func snapshot(pos *chess.Position) (*chess.Position, error) {
	opt, err := chess.FEN(pos.String())
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

// waitSearch blocks until a running search has printed its bestmove.
func (u *UCI) waitSearch() {
	if u.searchDone != nil {
		<-u.searchDone
		u.searchDone = nil
	}
}

// sendInfo reports the search result. Scores are from the side to move's
// point of view in hundredths of a model unit.
func (u *UCI) sendInfo(turn chess.Color, info engine.SearchInfo) {
	score := info.Score
	if turn == chess.Black {
		score = -score
	}
	depth := 1
	if info.Mode == engine.ModeRollout {
		depth += u.engine.Options().RolloutDepth
	}

	parts := []string{
		fmt.Sprintf("depth %d", depth),
		fmt.Sprintf("score cp %d", int(score*100)),
		fmt.Sprintf("nodes %d", info.Evaluations),
		fmt.Sprintf("time %d", info.Time.Milliseconds()),
	}
	if info.Time > 0 {
		nps := uint64(float64(info.Evaluations) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}
	if info.BestMove != nil {
		parts = append(parts, "pv "+info.BestMove.String())
	}
	u.printf("info %s\n", strings.Join(parts, " "))
}

func (u *UCI) handleDisplay() {
	pos := u.game.Position()
	u.printf("%s\nFen: %s\n", pos.Board().Draw(), pos.String())
}

func (u *UCI) handleEval() {
	score, err := u.engine.Evaluate(u.game.Position())
	if err != nil {
		u.log.Error().Err(err).Str("fen", u.game.Position().String()).Msg("eval failed")
		u.infoString("Eval failed: %v", err)
		u.fail(fmt.Errorf("eval: %w", err))
		return
	}
	u.printf("Evaluation: %.4f (white side)\n", score)
}

func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	opts := u.engine.Options()
	switch strings.ToLower(name) {
	case "mode":
		mode, err := engine.ParseMode(strings.ToLower(value))
		if err != nil {
			u.infoString("%v", err)
			return
		}
		opts.Mode = mode
	case "shortlist":
		n, ok := u.spin(name, value, 1, maxShortlist)
		if !ok {
			return
		}
		opts.ShortlistSize = n
	case "rolloutdepth":
		n, ok := u.spin(name, value, 0, maxRolloutDepth)
		if !ok {
			return
		}
		opts.RolloutDepth = n
	case "workers":
		n, ok := u.spin(name, value, 1, maxWorkers)
		if !ok {
			return
		}
		opts.Workers = n
	case "evalfile":
		u.loadEvalFile(value)
		return
	case "cpuprofile":
		u.setProfile(value)
		return
	default:
		u.infoString("Unknown option: %s", name)
		return
	}
	u.engine.SetOptions(opts)
	u.log.Info().Str("option", name).Str("value", value).Msg("option set")
}

func (u *UCI) spin(name, value string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < lo || n > hi {
		u.infoString("Invalid value for %s: %q (want %d-%d)", name, value, lo, hi)
		return 0, false
	}
	return n, true
}

func (u *UCI) loadEvalFile(path string) {
	if path == "" || path == "<empty>" || path == u.evalFile {
		return
	}
	m, err := model.Load(path, u.ModelOptions)
	if err != nil {
		u.infoString("Failed to load model: %v", err)
		return
	}
	u.engine.SetModel(m)
	if u.ownedModel != nil {
		u.ownedModel.Close()
	}
	u.ownedModel = m
	u.evalFile = path
	u.infoString("Model loaded from %s", path)
}

func (u *UCI) setProfile(value string) {
	u.stopProfile()
	if value == "" || value == "stop" {
		return
	}
	f, err := os.Create(value)
	if err != nil {
		u.infoString("Failed to create profile: %v", err)
		return
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		u.infoString("Failed to start profile: %v", err)
		return
	}
	u.profileFile = f
	u.infoString("CPU profiling to %s", value)
}

func (u *UCI) stopProfile() {
	if u.profileFile == nil {
		return
	}
	pprof.StopCPUProfile()
	u.profileFile.Close()
	u.profileFile = nil
	u.log.Info().Msg("CPU profile saved")
}
