package engine

import (
	"errors"
	"hash/fnv"
	"math"
	"sync/atomic"
	"testing"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/features"
)

// fakeModel scores vectors with a plain function.
type fakeModel struct {
	score func(v *features.Vector) float32
	calls atomic.Int64
	err   error
}

func (m *fakeModel) Predict(batch []features.Vector) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(batch))
	for i := range batch {
		m.calls.Add(1)
		out[i] = m.score(&batch[i])
	}
	return out, nil
}

func (m *fakeModel) Close() error { return nil }

var materialValues = [6]float32{1, 3, 3, 5, 9, 0} // p n b r q k

// material returns White's material minus Black's.
func material(v *features.Vector) float32 {
	var sum float32
	for sq := 0; sq < features.NumSquares; sq++ {
		for p := 0; p < features.PiecePlanes; p++ {
			if v[sq*features.PiecePlanes+p] == 0 {
				continue
			}
			if p < 6 {
				sum -= materialValues[p]
			} else {
				sum += materialValues[p-6]
			}
		}
	}
	return sum
}

// noise gives every distinct vector a pseudo-random score in [-1, 1].
func noise(v *features.Vector) float32 {
	h := fnv.New64a()
	h.Write(v.Pack())
	return float32(h.Sum64()%20001)/10000 - 1
}

func constant(*features.Vector) float32 { return 0.25 }

func newTestEngine(score func(*features.Vector) float32, opts Options) (*Engine, *fakeModel) {
	m := &fakeModel{score: score}
	return NewEngine(m, opts, zerolog.Nop()), m
}

func positionFromFEN(t *testing.T, fen string) *chess.Position {
	t.Helper()
	opt, err := chess.FEN(fen)
	if err != nil {
		t.Fatalf("bad FEN %q: %v", fen, err)
	}
	return chess.NewGame(opt).Position()
}

func TestSelectMoveSingleLegalMove(t *testing.T) {
	// Only Kxb2 is legal: a2 and b1 are covered by the rook.
	pos := positionFromFEN(t, "k7/8/8/8/8/8/1r6/K7 w - - 0 1")

	for _, mode := range []Mode{ModeRollout, ModeGreedy} {
		eng, m := newTestEngine(noise, Options{Mode: mode, ShortlistSize: 5, RolloutDepth: 5})
		move, err := eng.SelectMove(pos)
		if err != nil {
			t.Fatalf("%v: SelectMove failed: %v", mode, err)
		}
		if move.String() != "a1b2" {
			t.Errorf("%v: got %s, want a1b2", mode, move)
		}
		if n := m.calls.Load(); n != 0 {
			t.Errorf("%v: model called %d times for a forced move", mode, n)
		}
	}
}

func TestSelectMoveNoLegalMoves(t *testing.T) {
	// Black is checkmated.
	pos := positionFromFEN(t, "R6k/6pp/8/8/8/8/8/K7 b - - 0 1")
	eng, _ := newTestEngine(constant, DefaultOptions())
	if _, err := eng.SelectMove(pos); !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("error = %v, want ErrNoLegalMoves", err)
	}
}

func TestShortlistTopK(t *testing.T) {
	fens := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2",
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	}

	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos := positionFromFEN(t, fen)
			eng, _ := newTestEngine(noise, DefaultOptions())

			short, err := eng.Shortlist(pos)
			if err != nil {
				t.Fatal(err)
			}
			if len(short) != DefaultShortlist {
				t.Fatalf("shortlist has %d moves, want %d", len(short), DefaultShortlist)
			}

			in := map[string]bool{}
			worst := short[0].Immediate
			for _, c := range short {
				in[c.Move.String()] = true
				if better(pos.Turn(), worst, c.Immediate) {
					worst = c.Immediate
				}
			}

			for _, m := range pos.ValidMoves() {
				if in[m.String()] {
					continue
				}
				score, err := eng.Evaluate(pos.Update(m))
				if err != nil {
					t.Fatal(err)
				}
				if better(pos.Turn(), score, worst) {
					t.Errorf("excluded %s scores %v, better than shortlisted %v", m, score, worst)
				}
			}
		})
	}
}

func TestShortlistTieBreakKeepsEnumerationOrder(t *testing.T) {
	pos := positionFromFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	eng, _ := newTestEngine(constant, DefaultOptions())

	short, err := eng.Shortlist(pos)
	if err != nil {
		t.Fatal(err)
	}
	moves := pos.ValidMoves()
	for i, c := range short {
		if c.Move.String() != moves[i].String() {
			t.Errorf("shortlist[%d] = %s, want %s", i, c.Move, moves[i])
		}
	}

	// With every score equal the first enumerated move is chosen.
	move, err := eng.SelectMove(pos)
	if err != nil {
		t.Fatal(err)
	}
	if move.String() != moves[0].String() {
		t.Errorf("SelectMove = %s, want %s", move, moves[0])
	}
}

func TestShortlistSmallerThanK(t *testing.T) {
	// White king in the corner with a pawn: fewer than 5 legal moves.
	pos := positionFromFEN(t, "k7/8/8/8/8/8/P7/K7 w - - 0 1")
	eng, _ := newTestEngine(noise, DefaultOptions())
	short, err := eng.Shortlist(pos)
	if err != nil {
		t.Fatal(err)
	}
	if len(short) != len(pos.ValidMoves()) {
		t.Errorf("shortlist has %d moves, want all %d", len(short), len(pos.ValidMoves()))
	}
}

func TestGreedyTakesQueen(t *testing.T) {
	pos := positionFromFEN(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1")
	eng, m := newTestEngine(material, Options{Mode: ModeGreedy})

	move, err := eng.SelectMove(pos)
	if err != nil {
		t.Fatal(err)
	}
	if move.String() != "e4d5" {
		t.Errorf("got %s, want e4d5", move)
	}
	if got, want := m.calls.Load(), int64(len(pos.ValidMoves())); got != want {
		t.Errorf("greedy made %d model calls, want %d", got, want)
	}
}

func TestRolloutTakesQueen(t *testing.T) {
	pos := positionFromFEN(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1")
	eng, _ := newTestEngine(material, DefaultOptions())

	var info SearchInfo
	eng.OnInfo = func(i SearchInfo) { info = i }

	move, err := eng.SelectMove(pos)
	if err != nil {
		t.Fatal(err)
	}
	if move.String() != "e4d5" {
		t.Errorf("got %s, want e4d5", move)
	}
	if len(info.Candidates) != DefaultShortlist {
		t.Errorf("reported %d candidates, want %d", len(info.Candidates), DefaultShortlist)
	}
	if info.Score < 0 {
		t.Errorf("rollout score %v, expected White to stay ahead", info.Score)
	}
	t.Logf("best %s score %.2f after %d evaluations in %v", info.BestMove, info.Score, info.Evaluations, info.Time)
}

func TestBlackMinimises(t *testing.T) {
	// Black to move can capture the white queen with the pawn.
	pos := positionFromFEN(t, "4k3/8/8/4p3/3Q4/8/8/4K3 b - - 0 1")

	for _, mode := range []Mode{ModeGreedy, ModeRollout} {
		opts := DefaultOptions()
		opts.Mode = mode
		eng, _ := newTestEngine(material, opts)
		move, err := eng.SelectMove(pos)
		if err != nil {
			t.Fatal(err)
		}
		if move.String() != "e5d4" {
			t.Errorf("%v: got %s, want e5d4", mode, move)
		}
	}
}

func TestRolloutStopsAtTerminalPosition(t *testing.T) {
	// Rd8 is mate; the rollout from it has no moves to play.
	pos := positionFromFEN(t, "6k1/5ppp/8/8/8/8/8/3R2K1 w - - 0 1")
	eng, _ := newTestEngine(material, DefaultOptions())

	children, err := eng.scoreChildren(pos)
	if err != nil {
		t.Fatal(err)
	}
	var mate *Candidate
	for i := range children {
		if children[i].Move.String() == "d1d8" {
			mate = &children[i]
		}
	}
	if mate == nil {
		t.Fatal("d1d8 not generated")
	}
	score, err := eng.rollout(mate.pos, 5)
	if err != nil {
		t.Fatalf("rollout from mate failed: %v", err)
	}
	if score != mate.Immediate {
		t.Errorf("rollout score %v, want static score %v of the final position", score, mate.Immediate)
	}
}

// referenceRollout replays a greedy rollout independently of the engine:
// each ply the side to move takes the child with its best material score,
// the first one on ties. It returns the final score and the number of
// positions scored along the way.
func referenceRollout(t *testing.T, pos *chess.Position, depth int) (float32, int) {
	t.Helper()
	scoreOf := func(p *chess.Position) float32 {
		v, err := features.EncodePosition(p)
		if err != nil {
			t.Fatal(err)
		}
		return material(&v)
	}

	evals := 0
	for ply := 0; ply < depth; ply++ {
		moves := pos.ValidMoves()
		if len(moves) == 0 {
			break
		}
		var next *chess.Position
		var best float32
		for _, m := range moves {
			child := pos.Update(m)
			score := scoreOf(child)
			evals++
			if next == nil || better(pos.Turn(), score, best) {
				next, best = child, score
			}
		}
		pos = next
	}
	return scoreOf(pos), evals + 1
}

func TestRolloutMatchesReference(t *testing.T) {
	fens := []string{
		"4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1",
		"rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2",
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"4k3/8/8/4p3/3Q4/8/8/4K3 b - - 0 1",
	}

	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos := positionFromFEN(t, fen)
			eng, _ := newTestEngine(material, DefaultOptions())

			var info SearchInfo
			eng.OnInfo = func(i SearchInfo) { info = i }
			move, err := eng.SelectMove(pos)
			if err != nil {
				t.Fatal(err)
			}

			wantEvals := len(pos.ValidMoves())
			best := 0
			for i, c := range info.Candidates {
				want, evals := referenceRollout(t, pos.Update(c.Move), DefaultRolloutDepth)
				wantEvals += evals
				if c.Rollout != want {
					t.Errorf("%s: rollout %v, want %v", c.Move, c.Rollout, want)
				}
				if better(pos.Turn(), want, info.Candidates[best].Rollout) {
					best = i
				}
			}
			if got := info.Candidates[best].Move.String(); move.String() != got {
				t.Errorf("chose %s, best rollout is %s", move, got)
			}

			// Cost: every root child once, then each rollout scores the
			// children of every ply plus its final position.
			if info.Evaluations != uint64(wantEvals) {
				t.Errorf("%d evaluations, want %d", info.Evaluations, wantEvals)
			}
		})
	}
}

func TestRolloutOverridesGreedy(t *testing.T) {
	// Every reply keeps material level, so greedy takes the first move.
	// Only the rollouts separate them.
	fen := "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2"

	greedy, _ := newTestEngine(material, Options{Mode: ModeGreedy})
	g, err := greedy.SelectMove(positionFromFEN(t, fen))
	if err != nil {
		t.Fatal(err)
	}

	rollout, _ := newTestEngine(material, DefaultOptions())
	var info SearchInfo
	rollout.OnInfo = func(i SearchInfo) { info = i }
	r, err := rollout.SelectMove(positionFromFEN(t, fen))
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range info.Candidates {
		if c.Immediate != info.Candidates[0].Immediate {
			t.Fatalf("immediate scores differ: %s %v vs %v", c.Move, c.Immediate, info.Candidates[0].Immediate)
		}
	}
	if r.String() != "e8e7" {
		t.Errorf("rollout chose %s, want e8e7", r)
	}
	if r.String() == g.String() {
		t.Errorf("rollout and greedy both chose %s", r)
	}
}

func TestWorkersMatchSequential(t *testing.T) {
	pos := positionFromFEN(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")

	seq, _ := newTestEngine(noise, Options{Mode: ModeRollout, ShortlistSize: 5, RolloutDepth: 2, Workers: 1})
	par, _ := newTestEngine(noise, Options{Mode: ModeRollout, ShortlistSize: 5, RolloutDepth: 2, Workers: 4})

	a, err := seq.SelectMove(pos)
	if err != nil {
		t.Fatal(err)
	}
	b, err := par.SelectMove(pos)
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Errorf("sequential chose %s, parallel chose %s", a, b)
	}
}

func TestInferenceErrorPropagates(t *testing.T) {
	pos := positionFromFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	m := &fakeModel{score: constant, err: errors.New("session lost")}
	eng := NewEngine(m, DefaultOptions(), zerolog.Nop())

	if _, err := eng.SelectMove(pos); !errors.Is(err, ErrInference) {
		t.Errorf("error = %v, want ErrInference", err)
	}
}

func TestSetDifficulty(t *testing.T) {
	eng, _ := newTestEngine(constant, Options{Workers: 3})
	eng.SetDifficulty(Easy)
	if got := eng.Options(); got.Mode != ModeGreedy || got.Workers != 3 {
		t.Errorf("Easy options = %+v", got)
	}
	eng.SetDifficulty(Hard)
	if got := eng.Options(); got.ShortlistSize != 5 || got.RolloutDepth != 5 {
		t.Errorf("Hard options = %+v", got)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeRollout, ModeGreedy} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("minimax"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestEvaluatorCountsCalls(t *testing.T) {
	m := &fakeModel{score: material}
	ev := NewEvaluator(m)
	score, err := ev.EvaluateFEN("4k3/8/8/8/8/8/8/Q3K3 w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(score-9)) > 1e-6 {
		t.Errorf("score = %v, want 9", score)
	}
	if ev.Calls() != 1 {
		t.Errorf("Calls = %d, want 1", ev.Calls())
	}
	if _, err := ev.EvaluateFEN("not a fen"); !errors.Is(err, features.ErrMalformedFEN) {
		t.Errorf("error = %v, want ErrMalformedFEN", err)
	}
}
