// Package engine selects moves by scoring positions with a learned model.
package engine

import (
	"fmt"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/model"
)

// Mode selects the move-selection algorithm.
type Mode int

const (
	// ModeRollout shortlists the best immediate replies and plays a greedy
	// rollout from each before choosing.
	ModeRollout Mode = iota
	// ModeGreedy picks the best immediate reply with no lookahead.
	ModeGreedy
)

func (m Mode) String() string {
	switch m {
	case ModeRollout:
		return "rollout"
	case ModeGreedy:
		return "greedy"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses the names printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "rollout":
		return ModeRollout, nil
	case "greedy":
		return ModeGreedy, nil
	}
	return 0, fmt.Errorf("unknown search mode %q", s)
}

// Search defaults
const (
	DefaultShortlist    = 5
	DefaultRolloutDepth = 5
)

// Options configures move selection.
type Options struct {
	Mode          Mode
	ShortlistSize int // candidates carried into rollouts
	RolloutDepth  int // plies per rollout
	Workers       int // concurrent rollouts; <= 1 runs them in order
}

// DefaultOptions returns the rollout search with a shortlist of 5 and
// rollouts of 5 plies.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeRollout,
		ShortlistSize: DefaultShortlist,
		RolloutDepth:  DefaultRolloutDepth,
		Workers:       1,
	}
}

// Difficulty represents the AI difficulty level.
type Difficulty int

const (
	Easy   Difficulty = iota // one ply
	Medium                   // 3 candidates, 3-ply rollouts
	Hard                     // 5 candidates, 5-ply rollouts
)

// DifficultySettings maps difficulty to search options.
var DifficultySettings = map[Difficulty]Options{
	Easy:   {Mode: ModeGreedy, ShortlistSize: 1, RolloutDepth: 0, Workers: 1},
	Medium: {Mode: ModeRollout, ShortlistSize: 3, RolloutDepth: 3, Workers: 1},
	Hard:   DefaultOptions(),
}

// SearchInfo describes a finished move selection.
type SearchInfo struct {
	Mode        Mode
	Candidates  []Candidate // shortlisted moves, best immediate first
	BestMove    *chess.Move
	Score       float32 // rollout score in rollout mode, immediate otherwise
	Evaluations uint64  // model calls made by this selection
	Time        time.Duration
}

// Engine is the chess AI engine.
type Engine struct {
	eval *Evaluator
	opts Options
	log  zerolog.Logger

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates an engine over a loaded model.
func NewEngine(m model.Model, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		eval: NewEvaluator(m),
		opts: opts,
		log:  log.With().Str("component", "engine").Logger(),
	}
}

// Options returns the current search options.
func (e *Engine) Options() Options {
	return e.opts
}

// SetOptions replaces the search options. Not safe during a search.
func (e *Engine) SetOptions(opts Options) {
	e.opts = opts
}

// SetDifficulty applies a difficulty preset, keeping the worker count.
func (e *Engine) SetDifficulty(d Difficulty) {
	opts, ok := DifficultySettings[d]
	if !ok {
		return
	}
	opts.Workers = e.opts.Workers
	e.opts = opts
}

// Evaluate returns the model's score for a position.
func (e *Engine) Evaluate(pos *chess.Position) (float32, error) {
	return e.eval.Evaluate(pos)
}

// Evaluations returns the total number of model calls made so far.
func (e *Engine) Evaluations() uint64 {
	return e.eval.Calls()
}

// Shortlist evaluates every legal move and returns the best ShortlistSize of
// them for the side to move, best first.
func (e *Engine) Shortlist(pos *chess.Position) ([]Candidate, error) {
	cands, err := e.scoreChildren(pos)
	if err != nil {
		return nil, err
	}
	return shortlist(cands, pos.Turn(), e.shortlistSize()), nil
}

func (e *Engine) shortlistSize() int {
	if e.opts.ShortlistSize <= 0 {
		return DefaultShortlist
	}
	return e.opts.ShortlistSize
}

// SelectMove chooses a move for the side to move. It blocks until the
// search is complete.
func (e *Engine) SelectMove(pos *chess.Position) (*chess.Move, error) {
	start := time.Now()
	startCalls := e.eval.Calls()

	moves := pos.ValidMoves()
	switch len(moves) {
	case 0:
		return nil, ErrNoLegalMoves
	case 1:
		e.log.Debug().Str("move", moves[0].String()).Msg("only move")
		return moves[0], nil
	}

	cands, err := e.scoreChildren(pos)
	if err != nil {
		return nil, err
	}
	turn := pos.Turn()

	info := SearchInfo{Mode: e.opts.Mode}
	switch e.opts.Mode {
	case ModeGreedy:
		best := cands[pickImmediate(cands, turn)]
		info.Candidates = []Candidate{best}
		info.BestMove = best.Move
		info.Score = best.Immediate

	default:
		short := shortlist(cands, turn, e.shortlistSize())
		if err := e.runRollouts(short, e.opts.RolloutDepth, e.opts.Workers); err != nil {
			return nil, err
		}
		best := short[pickRollout(short, turn)]
		info.Candidates = short
		info.BestMove = best.Move
		info.Score = best.Rollout
	}

	info.Evaluations = e.eval.Calls() - startCalls
	info.Time = time.Since(start)

	e.log.Debug().
		Str("mode", info.Mode.String()).
		Str("move", info.BestMove.String()).
		Float32("score", info.Score).
		Int("legal", len(moves)).
		Uint64("evals", info.Evaluations).
		Dur("elapsed", info.Time).
		Msg("move selected")

	if e.OnInfo != nil {
		e.OnInfo(info)
	}
	return info.BestMove, nil
}

// SetModel swaps the scoring model. The caller owns the old model and is
// responsible for closing it. Not safe during a search.
func (e *Engine) SetModel(m model.Model) {
	e.eval = NewEvaluator(m)
}
