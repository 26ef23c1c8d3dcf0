// Package game holds the state of one game against the engine: the
// authoritative oracle game, the board mirror the UI draws from, and the
// click-to-move input machine.
package game

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/engine"
)

// ErrIllegalMove is returned when the oracle rejects a move. The session is
// left unchanged.
var ErrIllegalMove = errors.New("illegal move")

// Session owns a game, its mirror and the engine that plays one side.
type Session struct {
	game   *chess.Game
	mirror Mirror
	engine *engine.Engine
	last   *chess.Move
	log    zerolog.Logger
}

// NewSession starts a game from the standard position.
func NewSession(eng *engine.Engine, log zerolog.Logger) *Session {
	return &Session{
		game:   chess.NewGame(chess.UseNotation(chess.UCINotation{})),
		mirror: NewMirror(),
		engine: eng,
		log:    log.With().Str("component", "session").Logger(),
	}
}

// NewSessionFromFEN starts a game from fen.
func NewSessionFromFEN(eng *engine.Engine, fen string, log zerolog.Logger) (*Session, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("load FEN %q: %w", fen, err)
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	return &Session{
		game:   g,
		mirror: MirrorFromBoard(g.Position().Board()),
		engine: eng,
		log:    log.With().Str("component", "session").Logger(),
	}, nil
}

// Reset starts a new game from the standard position.
func (s *Session) Reset() {
	s.game = chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	s.mirror = NewMirror()
	s.last = nil
}

// ApplyMove plays a move given in UCI notation and updates the mirror.
func (s *Session) ApplyMove(uci string) error {
	m, err := chess.UCINotation{}.Decode(s.game.Position(), uci)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrIllegalMove, uci, err)
	}
	if err := s.game.Move(m); err != nil {
		return fmt.Errorf("%w %q: %v", ErrIllegalMove, uci, err)
	}

	moves := s.game.Moves()
	s.last = moves[len(moves)-1]
	s.SyncMirror(uci)

	s.log.Debug().Str("move", uci).Str("fen", s.FEN()).Msg("move applied")
	return nil
}

// SyncMirror updates the mirror for a move the oracle has just accepted.
func (s *Session) SyncMirror(uci string) {
	s.mirror.Apply(uci)
}

// IsTerminal reports whether the side to move is checkmated.
func (s *Session) IsTerminal() bool {
	return s.game.Method() == chess.Checkmate
}

// Over reports whether the game has ended for any reason.
func (s *Session) Over() bool {
	return s.game.Outcome() != chess.NoOutcome
}

// Outcome returns the result and how it was reached.
func (s *Session) Outcome() (chess.Outcome, chess.Method) {
	return s.game.Outcome(), s.game.Method()
}

// Snapshot returns an independent copy of the current position, safe to
// search from another goroutine.
func (s *Session) Snapshot() (*chess.Position, error) {
	opt, err := chess.FEN(s.FEN())
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

// AIMove lets the engine choose a move for the side to move and plays it.
func (s *Session) AIMove() (*chess.Move, error) {
	pos, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	m, err := s.engine.SelectMove(pos)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyMove(m.String()); err != nil {
		return nil, err
	}
	return s.last, nil
}

// Engine returns the engine playing in this session.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Mirror returns a copy of the board mirror.
func (s *Session) Mirror() Mirror {
	return s.mirror
}

// FEN returns the current position in FEN.
func (s *Session) FEN() string {
	return s.game.Position().String()
}

// Turn returns the side to move.
func (s *Session) Turn() chess.Color {
	return s.game.Position().Turn()
}

// Position returns the current oracle position. Callers must not search
// it concurrently with ApplyMove; use Snapshot for that.
func (s *Session) Position() *chess.Position {
	return s.game.Position()
}

// LegalMovesFrom returns the legal moves starting on sq.
func (s *Session) LegalMovesFrom(sq chess.Square) []*chess.Move {
	var out []*chess.Move
	for _, m := range s.game.ValidMoves() {
		if m.S1() == sq {
			out = append(out, m)
		}
	}
	return out
}

// NeedsPromotion reports whether moving from one square to another is only
// legal with a promotion piece.
func (s *Session) NeedsPromotion(from, to chess.Square) bool {
	for _, m := range s.LegalMovesFrom(from) {
		if m.S2() == to && m.Promo() != chess.NoPieceType {
			return true
		}
	}
	return false
}

// LastMove returns the most recent move, or nil at the start of a game.
func (s *Session) LastMove() *chess.Move {
	return s.last
}

// MoveCount returns the number of plies played.
func (s *Session) MoveCount() int {
	return len(s.game.Moves())
}
