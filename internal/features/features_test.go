package features

import (
	"errors"
	"testing"

	"github.com/notnil/chess"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestEncodeStartPosition(t *testing.T) {
	v, err := Encode(startFEN)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// FEN order: a8 is square 0, h1 is square 63.
	backRank := []int{3, 1, 2, 4, 5, 2, 1, 3} // r n b q k b n r
	for file, piece := range backRank {
		if v[file*PiecePlanes+piece] != 1 {
			t.Errorf("black back rank file %d: piece %d not set", file, piece)
		}
		if v[(56+file)*PiecePlanes+piece+6] != 1 {
			t.Errorf("white back rank file %d: piece %d not set", file, piece+6)
		}
	}
	for file := 0; file < 8; file++ {
		if v[(8+file)*PiecePlanes+0] != 1 {
			t.Errorf("black pawn missing on file %d", file)
		}
		if v[(48+file)*PiecePlanes+6] != 1 {
			t.Errorf("white pawn missing on file %d", file)
		}
	}
	for sq := 16; sq < 48; sq++ {
		for p := 0; p < PiecePlanes; p++ {
			if v[sq*PiecePlanes+p] != 0 {
				t.Fatalf("empty square %d has bit %d set", sq, p)
			}
		}
	}

	for _, idx := range []int{SideToMove, WhiteKingside, WhiteQueenside, BlackKingside, BlackQueenside} {
		if v[idx] != 1 {
			t.Errorf("flag %d = %v, want 1", idx, v[idx])
		}
	}
	if got := v.SetBits(); got != 32+5 {
		t.Errorf("SetBits = %d, want 37", got)
	}
}

func TestEncodeOneBitPerOccupiedSquare(t *testing.T) {
	fens := []string{
		startFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r2q1rk1/pP1p2pp/Q4n2/bbp1p3/Np6/1B3NBn/pPPP1PPP/R3K2R b KQ - 0 1",
		"4k3/8/8/8/8/8/8/4K3 b - - 0 1",
	}

	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			v, err := Encode(fen)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			pos := mustPosition(t, fen)
			occupied := len(pos.Board().SquareMap())

			boardBits := 0
			for sq := 0; sq < NumSquares; sq++ {
				n := 0
				for p := 0; p < PiecePlanes; p++ {
					x := v[sq*PiecePlanes+p]
					if x != 0 && x != 1 {
						t.Fatalf("non-binary entry %v", x)
					}
					if x == 1 {
						n++
					}
				}
				if n > 1 {
					t.Errorf("square %d has %d bits set", sq, n)
				}
				boardBits += n
			}
			if boardBits != occupied {
				t.Errorf("board bits = %d, occupied squares = %d", boardBits, occupied)
			}
			for i := BoardBits; i < Size; i++ {
				if v[i] != 0 && v[i] != 1 {
					t.Errorf("flag %d is %v", i, v[i])
				}
			}
		})
	}
}

func TestEncodeFlags(t *testing.T) {
	tests := []struct {
		fen  string
		want [5]float32
	}{
		{"4k3/8/8/8/8/8/8/4K3 w - - 0 1", [5]float32{1, 0, 0, 0, 0}},
		{"r3k2r/8/8/8/8/8/8/R3K2R b Kq - 3 20", [5]float32{0, 1, 0, 0, 1}},
		{"r3k2r/8/8/8/8/8/8/R3K2R b Qk -", [5]float32{0, 0, 1, 1, 0}},
	}

	for _, tt := range tests {
		v, err := Encode(tt.fen)
		if err != nil {
			t.Fatalf("Encode(%q) failed: %v", tt.fen, err)
		}
		for i, want := range tt.want {
			if v[BoardBits+i] != want {
				t.Errorf("%q flag %d = %v, want %v", tt.fen, i, v[BoardBits+i], want)
			}
		}
	}
}

func TestEncodeFourFieldFallback(t *testing.T) {
	full, err := Encode(startFEN)
	if err != nil {
		t.Fatal(err)
	}
	short, err := Encode("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -")
	if err != nil {
		t.Fatalf("4-field FEN rejected: %v", err)
	}
	if full != short {
		t.Error("4-field and 6-field encodings differ")
	}
}

func TestEncodeMalformed(t *testing.T) {
	bad := []string{
		"",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNX w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR/8 w KQkq - 0 1",
	}
	for _, fen := range bad {
		if _, err := Encode(fen); !errors.Is(err, ErrMalformedFEN) {
			t.Errorf("Encode(%q) error = %v, want ErrMalformedFEN", fen, err)
		}
	}
}

func TestEncodePositionMatchesFEN(t *testing.T) {
	game := chess.NewGame()
	for _, m := range []string{"e2e4", "c7c5", "g1f3"} {
		mv, err := chess.UCINotation{}.Decode(game.Position(), m)
		if err != nil {
			t.Fatal(err)
		}
		if err := game.Move(mv); err != nil {
			t.Fatal(err)
		}
	}

	a, err := EncodePosition(game.Position())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(game.Position().String())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("EncodePosition differs from Encode(FEN)")
	}
	if a[SideToMove] != 0 {
		t.Error("black to move but side flag set")
	}
}

func TestPackRoundTrip(t *testing.T) {
	v, err := Encode(startFEN)
	if err != nil {
		t.Fatal(err)
	}
	packed := v.Pack()
	if len(packed) != 97 {
		t.Fatalf("packed length = %d, want 97", len(packed))
	}
	// a8 holds a black rook: slot 3 of square 0.
	if packed[0] != 0x10 {
		t.Errorf("first byte = %08b, want 00010000", packed[0])
	}
	back, err := Unpack(packed)
	if err != nil {
		t.Fatal(err)
	}
	if back != v {
		t.Error("Unpack(Pack(v)) != v")
	}
}

func mustPosition(t *testing.T, fen string) *chess.Position {
	t.Helper()
	opt, err := chess.FEN(fen)
	if err != nil {
		t.Fatalf("rules library rejected %q: %v", fen, err)
	}
	return chess.NewGame(opt).Position()
}
