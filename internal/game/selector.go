package game

import (
	"errors"

	"github.com/notnil/chess"
)

// ErrOffBoard is returned for clicks outside the board.
var ErrOffBoard = errors.New("point is off the board")

// SelectState is the state of the click-to-move machine.
type SelectState int

const (
	Idle SelectState = iota
	OneSquareSelected
)

func (s SelectState) String() string {
	if s == OneSquareSelected {
		return "one-square-selected"
	}
	return "idle"
}

// Selector turns two clicks into a move: the first picks the source square,
// the second the destination. Clicking the source again cancels.
type Selector struct {
	session *Session
	state   SelectState
	from    chess.Square
}

// NewSelector creates a selector for moves in s.
func NewSelector(s *Session) *Selector {
	return &Selector{session: s, from: chess.NoSquare}
}

// State returns the current state.
func (sel *Selector) State() SelectState {
	return sel.state
}

// Selected returns the selected source square, if any.
func (sel *Selector) Selected() (chess.Square, bool) {
	return sel.from, sel.state == OneSquareSelected
}

// Reset returns to Idle.
func (sel *Selector) Reset() {
	sel.state = Idle
	sel.from = chess.NoSquare
}

// Click feeds a clicked square into the machine. It returns a UCI move when
// the click completes one. Promotions are completed with a queen.
func (sel *Selector) Click(sq chess.Square) (string, bool) {
	if sel.state == Idle {
		sel.state = OneSquareSelected
		sel.from = sq
		return "", false
	}

	from := sel.from
	sel.Reset()
	if sq == from {
		return "", false
	}

	uci := from.String() + sq.String()
	if sel.session != nil && sel.session.NeedsPromotion(from, sq) {
		uci += "q"
	}
	return uci, true
}

// SquareAt maps a point on the board image to a square. Row 0 is the top
// of the board: rank 8, or rank 1 when flipped.
func SquareAt(x, y, squareSize int, flipped bool) (chess.Square, error) {
	size := 8 * squareSize
	if squareSize <= 0 || x < 0 || y < 0 || x >= size || y >= size {
		return chess.NoSquare, ErrOffBoard
	}
	file, row := x/squareSize, y/squareSize
	rank := 7 - row
	if flipped {
		file, rank = 7-file, row
	}
	return squareOf(chess.File(file), chess.Rank(rank)), nil
}

// SquareOrigin returns the top-left pixel of sq on the board image.
func SquareOrigin(sq chess.Square, squareSize int, flipped bool) (x, y int) {
	file, rank := int(sq.File()), int(sq.Rank())
	if flipped {
		return (7 - file) * squareSize, rank * squareSize
	}
	return file * squareSize, (7 - rank) * squareSize
}
