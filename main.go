// ChessNet - play chess against a learned evaluator, built with Ebitengine
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/notnil/chess"

	"github.com/hailam/chessnet/internal/engine"
	"github.com/hailam/chessnet/internal/game"
	"github.com/hailam/chessnet/internal/logging"
	"github.com/hailam/chessnet/internal/model"
	"github.com/hailam/chessnet/internal/storage"
	"github.com/hailam/chessnet/internal/ui"
)

var (
	modelPath  = flag.String("model", "", "evaluation model (.onnx or .cnet); defaults to the saved path, then the data dir")
	ortLib     = flag.String("ort-lib", "", "path to the onnxruntime shared library")
	dataDir    = flag.String("data", "", "database directory (default: platform data dir)")
	logLevel   = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	color      = flag.String("color", "", "side you play: white or black")
	difficulty = flag.String("difficulty", "", "easy, medium or hard")
	mode       = flag.String("mode", "", "search mode: rollout or greedy")
	workers    = flag.Int("workers", 1, "concurrent rollouts")
	fen        = flag.String("fen", "", "start from this position")
)

func main() {
	flag.Parse()

	log, err := logging.New(*logLevel, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	store, err := storage.NewStorage(*dataDir, log)
	if err != nil {
		log.Warn().Err(err).Msg("storage unavailable, using defaults")
		store = nil
	}
	prefs := storage.DefaultPreferences()
	if store != nil {
		defer store.Close()
		if prefs, err = store.LoadPreferences(); err != nil {
			log.Warn().Err(err).Msg("failed to load preferences")
			prefs = storage.DefaultPreferences()
		}
	}
	if err := applyFlags(prefs); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}

	path := prefs.ModelPath
	if path == "" {
		if path, err = storage.DefaultModelPath(); err != nil {
			log.Fatal().Err(err).Msg("no model path")
		}
	}
	m, err := model.Load(path, model.LoadOptions{ORTLibraryPath: *ortLib})
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("cannot start without a model")
	}
	defer m.Close()
	log.Info().Str("path", path).Msg("model loaded")

	opts, err := searchOptions(prefs, *workers)
	if err != nil {
		log.Fatal().Err(err).Msg("bad search options")
	}
	eng := engine.NewEngine(m, opts, log)

	session := game.NewSession(eng, log)
	if *fen != "" {
		if session, err = game.NewSessionFromFEN(eng, *fen, log); err != nil {
			log.Fatal().Err(err).Msg("bad start position")
		}
	}

	player := chess.White
	if prefs.PlayerColor == storage.ColorBlack {
		player = chess.Black
	}
	g, err := ui.NewGame(ui.Config{
		Session:     session,
		Storage:     store,
		Prefs:       prefs,
		PlayerColor: player,
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build UI")
	}
	defer g.Close()

	ebiten.SetWindowSize(ui.ScreenWidth, ui.ScreenHeight)
	ebiten.SetWindowTitle("ChessNet")
	ebiten.SetTPS(ui.TPS)

	if err := ebiten.RunGame(g); err != nil {
		// Deferred calls are skipped by Fatal, so save what we can first.
		g.Close()
		if store != nil {
			store.Close()
		}
		log.Fatal().Err(err).Msg("game stopped")
	}
}

// applyFlags copies explicitly set flags over the saved preferences.
func applyFlags(prefs *storage.UserPreferences) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "model":
			prefs.ModelPath = *modelPath
		case "color":
			switch strings.ToLower(*color) {
			case "white":
				prefs.PlayerColor = storage.ColorWhite
			case "black":
				prefs.PlayerColor = storage.ColorBlack
			default:
				err = fmt.Errorf("unknown color %q", *color)
			}
		case "difficulty":
			switch strings.ToLower(*difficulty) {
			case "easy":
				prefs.Difficulty = storage.DifficultyEasy
			case "medium":
				prefs.Difficulty = storage.DifficultyMedium
			case "hard":
				prefs.Difficulty = storage.DifficultyHard
			default:
				err = fmt.Errorf("unknown difficulty %q", *difficulty)
			}
			// A new preset replaces earlier fine-tuning.
			prefs.SearchMode, prefs.ShortlistSize, prefs.RolloutDepth = "", 0, 0
		case "mode":
			prefs.SearchMode = *mode
		}
	})
	return err
}

// searchOptions starts from the difficulty preset and applies any saved
// overrides.
func searchOptions(prefs *storage.UserPreferences, workers int) (engine.Options, error) {
	opts, ok := engine.DifficultySettings[engine.Difficulty(prefs.Difficulty)]
	if !ok {
		opts = engine.DefaultOptions()
	}
	if prefs.SearchMode != "" {
		m, err := engine.ParseMode(prefs.SearchMode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	if prefs.ShortlistSize > 0 {
		opts.ShortlistSize = prefs.ShortlistSize
	}
	if prefs.RolloutDepth > 0 {
		opts.RolloutDepth = prefs.RolloutDepth
	}
	opts.Workers = min(max(workers, 1), runtime.NumCPU())
	return opts, nil
}

