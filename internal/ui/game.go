package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/engine"
	"github.com/hailam/chessnet/internal/game"
	"github.com/hailam/chessnet/internal/storage"
)

// UI Constants
const (
	BoardSize    = 640
	SquareSize   = BoardSize / 8
	StatusHeight = 32
	ScreenWidth  = BoardSize
	ScreenHeight = BoardSize + StatusHeight
	TPS          = 30
)

// aiResult is a finished search. gen ties it to the game it was started
// for, so results from an abandoned game are dropped.
type aiResult struct {
	gen  int
	move *chess.Move
	err  error
}

// Config wires a Game to its collaborators.
type Config struct {
	Session     *game.Session
	Storage     *storage.Storage // optional
	Prefs       *storage.UserPreferences
	PlayerColor chess.Color
	Log         zerolog.Logger
}

// Game implements ebiten.Game interface.
type Game struct {
	session  *game.Session
	selector *game.Selector
	renderer *Renderer
	input    *InputHandler
	log      zerolog.Logger

	playerColor chess.Color
	difficulty  storage.Difficulty

	// Storage
	storage *storage.Storage
	prefs   *storage.UserPreferences
	stats   *storage.GameStats

	// AI search
	gen        int
	aiThinking bool
	aiMove     chan aiResult
	awaitDraw  bool // a move was made and has not been drawn yet

	// Game state
	gameOver bool
	status   string
	started  time.Time
	fatal    error
}

// NewGame creates the UI for a session.
func NewGame(cfg Config) (*Game, error) {
	renderer, err := NewRenderer(SquareSize)
	if err != nil {
		return nil, err
	}
	prefs := cfg.Prefs
	if prefs == nil {
		prefs = storage.DefaultPreferences()
	}

	g := &Game{
		session:     cfg.Session,
		selector:    game.NewSelector(cfg.Session),
		renderer:    renderer,
		input:       NewInputHandler(),
		log:         cfg.Log.With().Str("component", "ui").Logger(),
		playerColor: cfg.PlayerColor,
		difficulty:  prefs.Difficulty,
		storage:     cfg.Storage,
		prefs:       prefs,
		aiMove:      make(chan aiResult, 1),
		started:     time.Now(),
	}
	g.renderer.SetFlipped(g.playerColor == chess.Black)
	g.loadStats()
	g.updateStatus()
	return g, nil
}

// Update handles game logic updates.
func (g *Game) Update() error {
	if g.fatal != nil {
		return g.fatal
	}

	g.input.Update()

	if IsKeyJustPressed(ebiten.KeyN) {
		g.NewGameAction()
		return nil
	}
	if IsKeyJustPressed(ebiten.KeyF) {
		g.renderer.SetFlipped(!g.renderer.Flipped())
	}
	// The engine options are not touched while a search runs.
	if IsKeyJustPressed(ebiten.KeyD) && !g.aiThinking {
		g.cycleDifficulty()
	}

	g.checkAIMove()
	g.handleBoardInput()

	// The human move is drawn before the engine starts thinking.
	if !g.gameOver && !g.aiThinking && !g.awaitDraw && g.session.Turn() != g.playerColor {
		g.startAIThinking()
	}
	return g.fatal
}

// Draw renders the game.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(g.renderer.theme.Background)

	g.renderer.DrawBoard(screen)

	selected, ok := g.selector.Selected()
	var targets []*chess.Move
	if ok {
		targets = g.session.LegalMovesFrom(selected)
	} else {
		selected = chess.NoSquare
	}
	g.renderer.DrawHighlights(screen, selected, targets, g.session.LastMove())

	mirror := g.session.Mirror()
	g.renderer.DrawPieces(screen, &mirror)
	g.renderer.DrawStatus(screen, BoardSize, ScreenWidth, StatusHeight, g.status)

	g.awaitDraw = false
}

// Layout returns the logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

func (g *Game) handleBoardInput() {
	if g.gameOver || g.aiThinking || g.session.Turn() != g.playerColor {
		return
	}

	x, y, ok := g.input.Click()
	if !ok {
		return
	}
	sq, err := game.SquareAt(x, y, SquareSize, g.renderer.Flipped())
	if err != nil {
		return
	}

	uci, ok := g.selector.Click(sq)
	if !ok {
		return
	}
	if err := g.session.ApplyMove(uci); err != nil {
		g.log.Warn().Err(err).Msg("move rejected")
		// A click on another own piece starts a new selection.
		if len(g.session.LegalMovesFrom(sq)) > 0 {
			g.selector.Click(sq)
		}
		return
	}
	g.afterMove()
}

// startAIThinking searches a snapshot of the position in the background.
func (g *Game) startAIThinking() {
	pos, err := g.session.Snapshot()
	if err != nil {
		g.fatal = err
		return
	}
	g.aiThinking = true
	g.updateStatus()

	gen := g.gen
	eng := g.session.Engine()
	go func() {
		move, err := eng.SelectMove(pos)
		g.aiMove <- aiResult{gen: gen, move: move, err: err}
	}()
}

// checkAIMove applies a finished search, if any.
func (g *Game) checkAIMove() {
	if !g.aiThinking {
		return
	}

	var res aiResult
	select {
	case res = <-g.aiMove:
	default:
		return
	}
	g.aiThinking = false
	if res.gen != g.gen {
		return
	}

	switch {
	case errors.Is(res.err, engine.ErrNoLegalMoves):
		g.checkGameEnd()
		return
	case res.err != nil:
		g.fatal = fmt.Errorf("engine: %w", res.err)
		return
	}

	if err := g.session.ApplyMove(res.move.String()); err != nil {
		g.fatal = fmt.Errorf("engine move %s: %w", res.move, err)
		return
	}
	g.log.Info().Str("move", res.move.String()).Msg("engine moved")
	g.afterMove()
}

func (g *Game) afterMove() {
	g.awaitDraw = true
	g.checkGameEnd()
	g.updateStatus()
}

// checkGameEnd records the result once the oracle reports the game over.
func (g *Game) checkGameEnd() {
	if g.gameOver || !g.session.Over() {
		return
	}
	g.gameOver = true

	outcome, method := g.session.Outcome()
	g.log.Info().Str("outcome", string(outcome)).Str("method", method.String()).Msg("game over")

	if g.storage == nil {
		return
	}
	result := storage.GameResult{
		Draw:       outcome == chess.Draw,
		Won:        outcome == chess.WhiteWon && g.playerColor == chess.White || outcome == chess.BlackWon && g.playerColor == chess.Black,
		Difficulty: g.difficulty,
		Duration:   time.Since(g.started),
	}
	if g.playerColor == chess.Black {
		result.PlayerColor = storage.ColorBlack
	}
	if err := g.storage.RecordGame(result); err != nil {
		g.log.Warn().Err(err).Msg("failed to record game")
	}
	g.loadStats()
}

func (g *Game) loadStats() {
	if g.storage == nil {
		return
	}
	stats, err := g.storage.LoadStats()
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to load stats")
		return
	}
	g.stats = stats
}

// cycleDifficulty moves to the next preset. Explicit search overrides in
// the preferences are dropped so the preset takes effect next time too.
func (g *Game) cycleDifficulty() {
	g.difficulty = g.difficulty.Next()
	g.session.Engine().SetDifficulty(engine.Difficulty(g.difficulty))

	g.prefs.Difficulty = g.difficulty
	g.prefs.SearchMode = ""
	g.prefs.ShortlistSize = 0
	g.prefs.RolloutDepth = 0

	g.log.Info().Str("difficulty", g.difficulty.String()).Msg("difficulty changed")
	g.updateStatus()
}

func (g *Game) updateStatus() {
	switch {
	case g.gameOver:
		outcome, method := g.session.Outcome()
		g.status = fmt.Sprintf("%s by %s. Press N for a new game", outcome, method)
		if g.stats != nil {
			g.status += ". Record " + g.stats.Summary()
		}
	case g.aiThinking:
		g.status = fmt.Sprintf("Thinking (%s)...", g.difficulty)
	case g.session.Turn() == g.playerColor:
		g.status = fmt.Sprintf("Your move (%s), %s. D changes level", g.session.Turn().Name(), g.difficulty)
	default:
		g.status = fmt.Sprintf("%s to move", g.session.Turn().Name())
	}
}

// NewGameAction resets the board. A search still running is abandoned.
func (g *Game) NewGameAction() {
	g.gen++
	g.session.Reset()
	g.selector.Reset()
	g.gameOver = false
	g.awaitDraw = false
	g.started = time.Now()
	g.updateStatus()
}

// Close saves preferences and closes storage.
func (g *Game) Close() {
	if g.storage == nil {
		return
	}
	g.prefs.PlayerColor = storage.ColorWhite
	if g.playerColor == chess.Black {
		g.prefs.PlayerColor = storage.ColorBlack
	}
	if err := g.storage.SavePreferences(g.prefs); err != nil {
		g.log.Warn().Err(err).Msg("failed to save preferences")
	}
}
