package engine

import (
	"errors"
	"sort"

	"github.com/notnil/chess"
	"golang.org/x/sync/errgroup"
)

// ErrNoLegalMoves is returned when asked to move in a position without
// legal moves.
var ErrNoLegalMoves = errors.New("no legal moves")

// Candidate is a root move with its scores. Rollout is only set for
// shortlisted moves in rollout mode.
type Candidate struct {
	Move      *chess.Move
	Immediate float32
	Rollout   float32

	pos *chess.Position // position after Move
}

// better reports whether a is preferable to b for the side to move.
// White maximises, Black minimises. Equal scores are never better, so the
// earliest candidate wins ties.
func better(turn chess.Color, a, b float32) bool {
	if turn == chess.White {
		return a > b
	}
	return a < b
}

// scoreChildren evaluates every legal move from pos in enumeration order.
func (e *Engine) scoreChildren(pos *chess.Position) ([]Candidate, error) {
	moves := pos.ValidMoves()
	out := make([]Candidate, 0, len(moves))
	for _, m := range moves {
		child := pos.Update(m)
		score, err := e.eval.Evaluate(child)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Move: m, Immediate: score, pos: child})
	}
	return out, nil
}

// shortlist keeps the n best candidates for the side to move, best first.
// The sort is stable, so ties keep enumeration order.
func shortlist(cands []Candidate, turn chess.Color, n int) []Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return better(turn, sorted[i].Immediate, sorted[j].Immediate)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// rollout plays depth plies from pos, each side greedily choosing the child
// with the best immediate evaluation, and returns the evaluation of the
// final position. A rollout that reaches a position without legal moves
// stops there.
func (e *Engine) rollout(pos *chess.Position, depth int) (float32, error) {
	for ply := 0; ply < depth; ply++ {
		children, err := e.scoreChildren(pos)
		if err != nil {
			return 0, err
		}
		if len(children) == 0 {
			break
		}
		pos = children[pickImmediate(children, pos.Turn())].pos
	}
	return e.eval.Evaluate(pos)
}

// runRollouts fills in Rollout for every candidate. With more than one
// worker the rollouts run concurrently; each one owns its positions and
// writes only its own slot.
func (e *Engine) runRollouts(cands []Candidate, depth, workers int) error {
	if workers <= 1 {
		for i := range cands {
			score, err := e.rollout(cands[i].pos, depth)
			if err != nil {
				return err
			}
			cands[i].Rollout = score
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range cands {
		g.Go(func() error {
			score, err := e.rollout(cands[i].pos, depth)
			if err != nil {
				return err
			}
			cands[i].Rollout = score
			return nil
		})
	}
	return g.Wait()
}

// pickImmediate returns the index of the candidate with the best immediate
// evaluation for turn.
func pickImmediate(cands []Candidate, turn chess.Color) int {
	best := 0
	for i := 1; i < len(cands); i++ {
		if better(turn, cands[i].Immediate, cands[best].Immediate) {
			best = i
		}
	}
	return best
}

// pickRollout is pickImmediate over rollout scores.
func pickRollout(cands []Candidate, turn chess.Color) int {
	best := 0
	for i := 1; i < len(cands); i++ {
		if better(turn, cands[i].Rollout, cands[best].Rollout) {
			best = i
		}
	}
	return best
}
