package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/notnil/chess"

	"github.com/hailam/chessnet/internal/features"
	"github.com/hailam/chessnet/internal/model"
)

// ErrInference is returned when the scoring model fails on a position.
var ErrInference = errors.New("inference failed")

// Evaluator scores positions with the loaded model.
// Positive scores favour White.
type Evaluator struct {
	model model.Model
	calls atomic.Uint64
}

// NewEvaluator wraps a loaded model.
func NewEvaluator(m model.Model) *Evaluator {
	return &Evaluator{model: m}
}

// Evaluate encodes the position and runs it through the model as a
// single-sample batch.
func (e *Evaluator) Evaluate(pos *chess.Position) (float32, error) {
	return e.EvaluateFEN(pos.String())
}

// EvaluateFEN is Evaluate for a FEN string.
func (e *Evaluator) EvaluateFEN(fen string) (float32, error) {
	v, err := features.Encode(fen)
	if err != nil {
		return 0, fmt.Errorf("encode position: %w", err)
	}

	e.calls.Add(1)
	out, err := e.model.Predict([]features.Vector{v})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: model returned %d values for 1 sample", ErrInference, len(out))
	}
	return out[0], nil
}

// Calls returns how many positions have been sent to the model.
func (e *Evaluator) Calls() uint64 {
	return e.calls.Load()
}
