// Package features converts chess positions into the fixed-length bit vector
// consumed by the evaluation model.
package features

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Vector layout constants
const (
	PiecePlanes = 12 // p, n, b, r, q, k, P, N, B, R, Q, K
	NumSquares  = 64
	BoardBits   = PiecePlanes * NumSquares // 768

	// Trailing flags
	SideToMove     = BoardBits     // 1 if white is to move
	WhiteKingside  = BoardBits + 1 // K
	WhiteQueenside = BoardBits + 2 // Q
	BlackKingside  = BoardBits + 3 // k
	BlackQueenside = BoardBits + 4 // q

	Size = BoardBits + 5 // 773
)

// ErrMalformedFEN is returned when a FEN string cannot be encoded.
var ErrMalformedFEN = errors.New("malformed FEN")

// Vector is the network input for one position. Every entry is 0 or 1.
type Vector [Size]float32

// pieceIndex maps a FEN piece letter to its slot within a square's 12 slots.
var pieceIndex = map[rune]int{
	'p': 0, 'n': 1, 'b': 2, 'r': 3, 'q': 4, 'k': 5,
	'P': 6, 'N': 7, 'B': 8, 'R': 9, 'Q': 10, 'K': 11,
}

// Encode builds the feature vector for a FEN string.
// Both the full 6-field form and the 4-field form without move counters are
// accepted.
func Encode(fen string) (Vector, error) {
	var v Vector

	placement, turn, castling, err := splitFEN(fen)
	if err != nil {
		return v, err
	}

	cursor := 0
	for _, ch := range placement {
		switch {
		case ch == '/':
			continue
		case ch >= '1' && ch <= '8':
			cursor += int(ch-'0') * PiecePlanes
		default:
			idx, ok := pieceIndex[ch]
			if !ok {
				return v, fmt.Errorf("%w: unknown piece %q in %q", ErrMalformedFEN, ch, fen)
			}
			if cursor >= BoardBits {
				return v, fmt.Errorf("%w: too many squares in %q", ErrMalformedFEN, placement)
			}
			v[cursor+idx] = 1
			cursor += PiecePlanes
		}
	}
	if cursor != BoardBits {
		return v, fmt.Errorf("%w: placement %q covers %d squares", ErrMalformedFEN, placement, cursor/PiecePlanes)
	}

	if turn == "w" {
		v[SideToMove] = 1
	}
	if strings.ContainsRune(castling, 'K') {
		v[WhiteKingside] = 1
	}
	if strings.ContainsRune(castling, 'Q') {
		v[WhiteQueenside] = 1
	}
	if strings.ContainsRune(castling, 'k') {
		v[BlackKingside] = 1
	}
	if strings.ContainsRune(castling, 'q') {
		v[BlackQueenside] = 1
	}

	return v, nil
}

// EncodePosition encodes a position from the rules library.
func EncodePosition(pos *chess.Position) (Vector, error) {
	return Encode(pos.String())
}

// splitFEN returns the placement, side-to-move and castling fields.
func splitFEN(fen string) (placement, turn, castling string, err error) {
	fields := strings.Fields(fen)
	switch len(fields) {
	case 6, 4:
		return fields[0], fields[1], fields[2], nil
	default:
		return "", "", "", fmt.Errorf("%w: expected 6 or 4 fields, got %d in %q", ErrMalformedFEN, len(fields), fen)
	}
}

// SetBits returns the number of entries equal to 1.
func (v *Vector) SetBits() int {
	n := 0
	for _, x := range v {
		if x != 0 {
			n++
		}
	}
	return n
}

// Pack packs the vector into bytes, most significant bit first.
// The last byte is zero-padded.
func (v *Vector) Pack() []byte {
	out := make([]byte, (Size+7)/8)
	for i, x := range v {
		if x != 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// Unpack is the inverse of Pack.
func Unpack(b []byte) (Vector, error) {
	var v Vector
	if len(b) != (Size+7)/8 {
		return v, fmt.Errorf("packed vector has %d bytes, want %d", len(b), (Size+7)/8)
	}
	for i := range v {
		if b[i/8]&(0x80>>(i%8)) != 0 {
			v[i] = 1
		}
	}
	return v, nil
}
