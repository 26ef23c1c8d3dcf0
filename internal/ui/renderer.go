package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/notnil/chess"

	"github.com/hailam/chessnet/internal/game"
)

// Theme defines the color scheme for the board.
type Theme struct {
	LightSquare    color.RGBA
	DarkSquare     color.RGBA
	SelectedSquare color.RGBA
	LegalMoveColor color.RGBA
	LastMoveColor  color.RGBA
	Background     color.RGBA
	TextColor      color.RGBA
}

// DefaultTheme returns the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		LightSquare:    color.RGBA{240, 217, 181, 255}, // Tan
		DarkSquare:     color.RGBA{181, 136, 99, 255},  // Brown
		SelectedSquare: color.RGBA{247, 247, 105, 180}, // Yellow highlight
		LegalMoveColor: color.RGBA{130, 151, 105, 200}, // Green dots
		LastMoveColor:  color.RGBA{180, 190, 100, 90},
		Background:     color.RGBA{40, 44, 52, 255},
		TextColor:      color.RGBA{220, 220, 220, 255},
	}
}

// Renderer handles all drawing operations.
type Renderer struct {
	sprites    *SpriteManager
	fonts      *Fonts
	theme      *Theme
	squareSize int
	flipped    bool
}

// NewRenderer creates a new renderer.
func NewRenderer(squareSize int) (*Renderer, error) {
	sprites, err := NewSpriteManager(squareSize)
	if err != nil {
		return nil, err
	}
	fonts, err := LoadFonts()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		sprites:    sprites,
		fonts:      fonts,
		theme:      DefaultTheme(),
		squareSize: squareSize,
	}, nil
}

// SetFlipped draws the board from Black's side when true.
func (r *Renderer) SetFlipped(flipped bool) {
	r.flipped = flipped
}

// Flipped reports whether Black is at the bottom.
func (r *Renderer) Flipped() bool {
	return r.flipped
}

// DrawBoard draws the chess board squares and coordinates.
func (r *Renderer) DrawBoard(screen *ebiten.Image) {
	size := float32(r.squareSize)
	for sq := chess.A1; sq <= chess.H8; sq++ {
		c := r.theme.LightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			c = r.theme.DarkSquare
		}
		x, y := game.SquareOrigin(sq, r.squareSize, r.flipped)
		vector.DrawFilledRect(screen, float32(x), float32(y), size, size, c, false)
	}
	r.drawCoordinates(screen)
}

// drawCoordinates labels the bottom rank with files and the left file
// with ranks.
func (r *Renderer) drawCoordinates(screen *ebiten.Image) {
	for i := 0; i < 8; i++ {
		file, rank := chess.File(i), chess.Rank(i)
		if r.flipped {
			file = chess.File(7 - i)
		} else {
			rank = chess.Rank(7 - i)
		}

		op := &text.DrawOptions{}
		op.GeoM.Translate(float64((i+1)*r.squareSize-10), float64(8*r.squareSize-18))
		op.ColorScale.ScaleWithColor(r.theme.Background)
		text.Draw(screen, file.String(), r.fonts.Regular, op)

		op = &text.DrawOptions{}
		op.GeoM.Translate(3, float64(i*r.squareSize+2))
		op.ColorScale.ScaleWithColor(r.theme.Background)
		text.Draw(screen, rank.String(), r.fonts.Regular, op)
	}
}

// DrawHighlights draws the last move, the selected square and the targets
// of its legal moves.
func (r *Renderer) DrawHighlights(screen *ebiten.Image, selected chess.Square, targets []*chess.Move, lastMove *chess.Move) {
	if lastMove != nil {
		r.highlightSquare(screen, lastMove.S1(), r.theme.LastMoveColor)
		r.highlightSquare(screen, lastMove.S2(), r.theme.LastMoveColor)
	}

	if selected != chess.NoSquare {
		r.highlightSquare(screen, selected, r.theme.SelectedSquare)
	}

	for _, m := range targets {
		r.drawLegalMoveIndicator(screen, m.S2())
	}
}

// highlightSquare draws a colored overlay on a square.
func (r *Renderer) highlightSquare(screen *ebiten.Image, sq chess.Square, c color.RGBA) {
	if sq == chess.NoSquare {
		return
	}
	x, y := game.SquareOrigin(sq, r.squareSize, r.flipped)
	size := float32(r.squareSize)
	vector.DrawFilledRect(screen, float32(x), float32(y), size, size, c, false)
}

// drawLegalMoveIndicator draws a circle on legal move squares.
func (r *Renderer) drawLegalMoveIndicator(screen *ebiten.Image, sq chess.Square) {
	x, y := game.SquareOrigin(sq, r.squareSize, r.flipped)
	half := float32(r.squareSize) / 2
	radius := float32(r.squareSize) * 0.15
	vector.DrawFilledCircle(screen, float32(x)+half, float32(y)+half, radius, r.theme.LegalMoveColor, false)
}

// DrawPieces draws every piece in the mirror.
func (r *Renderer) DrawPieces(screen *ebiten.Image, m *game.Mirror) {
	for sq := chess.A1; sq <= chess.H8; sq++ {
		symbol := m.At(sq)
		if symbol == game.Empty {
			continue
		}
		x, y := game.SquareOrigin(sq, r.squareSize, r.flipped)
		r.sprites.DrawPieceAt(screen, symbol, x, y)
	}
}

// DrawStatus fills the bar below the board with msg.
func (r *Renderer) DrawStatus(screen *ebiten.Image, top, width, height int, msg string) {
	vector.DrawFilledRect(screen, 0, float32(top), float32(width), float32(height), r.theme.Background, false)

	w, h := MeasureText(msg, r.fonts.Bold)
	op := &text.DrawOptions{}
	op.GeoM.Translate((float64(width)-w)/2, float64(top)+(float64(height)-h)/2)
	op.ColorScale.ScaleWithColor(r.theme.TextColor)
	text.Draw(screen, msg, r.fonts.Bold, op)
}
