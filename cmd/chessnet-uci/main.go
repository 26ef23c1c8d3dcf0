package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/hailam/chessnet/internal/engine"
	"github.com/hailam/chessnet/internal/logging"
	"github.com/hailam/chessnet/internal/model"
	"github.com/hailam/chessnet/internal/storage"
	"github.com/hailam/chessnet/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	modelPath  = flag.String("model", "", "evaluation model (.onnx or .cnet); default is eval.onnx in the data dir")
	ortLib     = flag.String("ort-lib", "", "path to the onnxruntime shared library")
	logLevel   = flag.String("log-level", "warn", "log level for stderr")
	mode       = flag.String("mode", "rollout", "search mode: rollout or greedy")
	shortlist  = flag.Int("shortlist", engine.DefaultShortlist, "candidates carried into rollouts")
	depth      = flag.Int("depth", engine.DefaultRolloutDepth, "plies per rollout")
	workers    = flag.Int("workers", 1, "concurrent rollouts")
)

func main() {
	flag.Parse()

	// stdout carries the protocol, so logs go to stderr as JSON.
	log, err := logging.New(*logLevel, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	path := *modelPath
	if path == "" {
		if path, err = storage.DefaultModelPath(); err != nil {
			log.Fatal().Err(err).Msg("no model path")
		}
	}
	loadOpts := model.LoadOptions{ORTLibraryPath: *ortLib}
	m, err := model.Load(path, loadOpts)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("cannot start without a model")
	}
	defer m.Close()

	searchMode, err := engine.ParseMode(*mode)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -mode")
	}
	eng := engine.NewEngine(m, engine.Options{
		Mode:          searchMode,
		ShortlistSize: *shortlist,
		RolloutDepth:  *depth,
		Workers:       *workers,
	}, log)

	protocol := uci.New(eng, os.Stdout, log)
	protocol.ModelOptions = loadOpts
	if err := protocol.Run(os.Stdin); err != nil {
		m.Close()
		log.Fatal().Err(err).Msg("engine stopped")
	}
}
