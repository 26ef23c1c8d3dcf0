// Package ui implements the chess game UI using Ebitengine.
package ui

import (
	"embed"
	"fmt"
	"image"
	"strings"
	"unicode"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines with {{fill}} and {{stroke}} placeholders, one file per
// piece type named by its lower-case FEN letter.
//
//go:embed assets/pieces/*.svg
var pieceAssets embed.FS

var (
	whiteColors = strings.NewReplacer("{{fill}}", "#ffffff", "{{stroke}}", "#000000")
	blackColors = strings.NewReplacer("{{fill}}", "#000000", "{{stroke}}", "#ffffff")
)

// SpriteManager manages piece sprites.
type SpriteManager struct {
	pieces      map[byte]*ebiten.Image // keyed by FEN letter
	size        int                    // Display size (e.g., 80)
	renderScale float64                // Render at higher resolution for quality
}

// NewSpriteManager creates a new sprite manager with pieces of the given size.
func NewSpriteManager(size int) (*SpriteManager, error) {
	sm := &SpriteManager{
		pieces:      make(map[byte]*ebiten.Image),
		size:        size,
		renderScale: 3.0,
	}
	if err := sm.loadPieces(); err != nil {
		return nil, err
	}
	return sm, nil
}

// loadPieces rasterises both colours of every piece from the embedded SVGs.
func (sm *SpriteManager) loadPieces() error {
	renderSize := int(float64(sm.size) * sm.renderScale)

	for _, kind := range "pnbrqk" {
		path := fmt.Sprintf("assets/pieces/%c.svg", kind)
		data, err := pieceAssets.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read piece asset %s: %w", path, err)
		}

		for _, c := range []struct {
			symbol byte
			colors *strings.Replacer
		}{
			{byte(unicode.ToUpper(kind)), whiteColors},
			{byte(kind), blackColors},
		} {
			img, err := rasterize(c.colors.Replace(string(data)), renderSize)
			if err != nil {
				return fmt.Errorf("parse SVG %s: %w", path, err)
			}
			sm.pieces[c.symbol] = ebiten.NewImageFromImage(img)
		}
	}
	return nil
}

func rasterize(svg string, size int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return rgba, nil
}

// DrawPieceAt draws the piece with the given FEN letter at pixel (x, y).
func (sm *SpriteManager) DrawPieceAt(screen *ebiten.Image, symbol byte, x, y int) {
	sprite := sm.pieces[symbol]
	if sprite == nil {
		return
	}
	op := &ebiten.DrawImageOptions{}
	scale := 1.0 / sm.renderScale
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(float64(x), float64(y))
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(sprite, op)
}
