package game

import (
	"strings"

	"github.com/notnil/chess"
)

// Empty marks an unoccupied square in a Mirror.
const Empty = '-'

// Mirror is the board as the presentation layer sees it: one piece symbol
// per square (FEN letters, upper case for White), indexed by chess.Square.
type Mirror [64]byte

// NewMirror returns a mirror of the standard starting position.
func NewMirror() Mirror {
	return MirrorFromBoard(chess.StartingPosition().Board())
}

// MirrorFromBoard copies an oracle board into a mirror.
func MirrorFromBoard(b *chess.Board) Mirror {
	var m Mirror
	for i := range m {
		m[i] = Empty
	}
	for sq, p := range b.SquareMap() {
		m[sq] = pieceSymbol(p)
	}
	return m
}

func pieceSymbol(p chess.Piece) byte {
	s := p.Type().String()
	if s == "" {
		return Empty
	}
	c := s[0]
	if p.Color() == chess.White {
		c -= 'a' - 'A'
	}
	return c
}

// At returns the symbol on sq.
func (m *Mirror) At(sq chess.Square) byte {
	return m[sq]
}

// Matches reports whether the mirror agrees with the oracle board.
func (m *Mirror) Matches(b *chess.Board) bool {
	return *m == MirrorFromBoard(b)
}

// Apply updates the mirror for a move already accepted by the oracle.
// Castling moves the rook too, en passant removes the captured pawn and
// promotion places the new piece. Anything else moves one entry.
func (m *Mirror) Apply(uci string) {
	from, to, ok := parseSquares(uci)
	if !ok {
		return
	}
	piece := m[from]

	switch {
	case isCastle(uci, piece):
		m.castle(from, to)
		return

	case (piece == 'P' || piece == 'p') && from.File() != to.File() && m[to] == Empty:
		// En passant: the captured pawn sits beside the source square.
		m[squareOf(to.File(), from.Rank())] = Empty
	}

	m[to] = piece
	m[from] = Empty

	if len(uci) == 5 {
		promo := uci[4]
		if piece == 'P' {
			promo -= 'a' - 'A'
		}
		m[to] = promo
	}
}

var castleRooks = map[string][2]chess.Square{
	"e1g1": {chess.H1, chess.F1},
	"e1c1": {chess.A1, chess.D1},
	"e8g8": {chess.H8, chess.F8},
	"e8c8": {chess.A8, chess.D8},
}

func isCastle(uci string, piece byte) bool {
	if _, ok := castleRooks[uci]; !ok {
		return false
	}
	if uci[1] == '1' {
		return piece == 'K'
	}
	return piece == 'k'
}

func (m *Mirror) castle(from, to chess.Square) {
	rooks := castleRooks[from.String()+to.String()]
	m[to] = m[from]
	m[from] = Empty
	m[rooks[1]] = m[rooks[0]]
	m[rooks[0]] = Empty
}

// String renders the mirror rank 8 first, one rank per line.
func (m *Mirror) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			if file > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(m[rank*8+file])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func squareOf(f chess.File, r chess.Rank) chess.Square {
	return chess.Square(int(r)*8 + int(f))
}

// parseSquare parses algebraic square names such as "e4".
func parseSquare(s string) (chess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, false
	}
	return squareOf(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), true
}

func parseSquares(uci string) (from, to chess.Square, ok bool) {
	if len(uci) != 4 && len(uci) != 5 {
		return chess.NoSquare, chess.NoSquare, false
	}
	if from, ok = parseSquare(uci[0:2]); !ok {
		return chess.NoSquare, chess.NoSquare, false
	}
	if to, ok = parseSquare(uci[2:4]); !ok {
		return chess.NoSquare, chess.NoSquare, false
	}
	return from, to, true
}
